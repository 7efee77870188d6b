// gptr-road-safety/internal/models/oracle_models.go
package models

// TriageRequest asks the oracle to classify a new hazard photo.
type TriageRequest struct {
	ImageRef        string `json:"image_ref"`
	LocationContext string `json:"location_context"`
}

// RepairRequest asks the oracle to compare a repair photo with the original.
type RepairRequest struct {
	ImageRef         string `json:"image_ref"`
	OriginalImageRef string `json:"original_image_ref,omitempty"`
	LocationContext  string `json:"location_context"`
}
