// gptr-road-safety/internal/platform/external_apis/forensics_types.go
package external_apis

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/gandretiraghu/gptr-road-safety/internal/models"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const (
	triageSchemaName = "triage.schema.json"
	repairSchemaName = "repair.schema.json"
)

// verdictSchemas holds the compiled response contracts for both verbs.
type verdictSchemas struct {
	triage *jsonschema.Schema
	repair *jsonschema.Schema
}

func compileSchemas() (*verdictSchemas, error) {
	compiler := jsonschema.NewCompiler()
	for _, name := range []string{triageSchemaName, repairSchemaName} {
		data, err := schemaFS.ReadFile("schemas/" + name)
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", name, err)
		}
		if err := compiler.AddResource(name, bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("add schema resource %s: %w", name, err)
		}
	}
	triage, err := compiler.Compile(triageSchemaName)
	if err != nil {
		return nil, fmt.Errorf("compile triage schema: %w", err)
	}
	repair, err := compiler.Compile(repairSchemaName)
	if err != nil {
		return nil, fmt.Errorf("compile repair schema: %w", err)
	}
	return &verdictSchemas{triage: triage, repair: repair}, nil
}

// stripCodeFence removes a surrounding markdown fence such as ```json ... ```.
// Models often wrap JSON in one even when told not to.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// decodeVerdict parses a body into a generic document and checks it against schema.
func decodeVerdict(body []byte, schema *jsonschema.Schema) (map[string]any, error) {
	raw := stripCodeFence(string(body))
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedAnalysis, err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedAnalysis, err)
	}
	m, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: verdict is not an object", ErrMalformedAnalysis)
	}
	return m, nil
}

var triageKnownFields = []string{"is_road", "hazard_detected", "hazard_type", "severity", "accident_probability_score"}

func toHazardAnalysis(doc map[string]any) *models.HazardAnalysis {
	a := &models.HazardAnalysis{
		IsRoad:                   boolField(doc, "is_road"),
		HazardDetected:           boolField(doc, "hazard_detected"),
		HazardType:               stringField(doc, "hazard_type"),
		Severity:                 stringField(doc, "severity"),
		AccidentProbabilityScore: scoreField(doc, "accident_probability_score"),
	}
	if info, ok := doc["repair_info"].(map[string]any); ok {
		a.EstimatedRepairCost = stringField(info, "estimated_cost_inr")
	}
	a.Detail = remainder(doc, triageKnownFields)
	return a
}

func toRepairAudit(doc map[string]any) *models.RepairAudit {
	audit, _ := doc["repair_quality_audit"].(map[string]any)
	r := &models.RepairAudit{
		IsRoad:            boolField(doc, "is_road"),
		Status:            models.AuditStatus(stringField(audit, "status")),
		Evidence:          stringField(audit, "evidence"),
		VerificationScore: scoreField(audit, "verification_score"),
		MatchConfidence:   scoreField(audit, "match_confidence"),
	}
	r.Detail = remainder(doc, []string{"is_road", "repair_quality_audit"})
	return r
}

func boolField(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// scoreField reads a 0..100 score. Anything else reads as absent.
func scoreField(m map[string]any, key string) *int {
	f, ok := m[key].(float64)
	if !ok || math.IsNaN(f) || f < 0 || f > 100 {
		return nil
	}
	v := int(math.Round(f))
	return &v
}

func remainder(doc map[string]any, known []string) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	for _, k := range known {
		delete(out, k)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
