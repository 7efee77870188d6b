package handlers

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gandretiraghu/gptr-road-safety/internal/core/service"
)

// FeedSource produces the partner feeds.
type FeedSource interface {
	NavigationFeed(ctx context.Context) ([]service.NavigationItem, error)
	CivicFeed(ctx context.Context) ([]service.CivicItem, error)
}

// FeedResponse is the envelope shared by both partner feeds.
type FeedResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Count   int    `json:"count"`
	Data    any    `json:"data,omitempty"`
}

type FeedHandler struct {
	src      FeedSource
	navKey   string
	civicKey string
}

// NewFeedHandler guards the navigation feed with navKey and the civic feed
// with civicKey. An empty key locks its feed.
func NewFeedHandler(src FeedSource, navKey, civicKey string) *FeedHandler {
	return &FeedHandler{src: src, navKey: navKey, civicKey: civicKey}
}

// Navigate handles GET /v1/navigate?key=.
func (h *FeedHandler) Navigate(c *gin.Context) {
	if !keyMatches(c.Query("key"), h.navKey) {
		c.JSON(http.StatusForbidden, FeedResponse{
			Status:  "forbidden",
			Message: "Access Denied: Invalid API Key. Contact administrator.",
		})
		return
	}
	items, err := h.src.NavigationFeed(c.Request.Context())
	if err != nil {
		c.JSON(errorStatus(err), FeedResponse{Status: "error", Message: "Server Error"})
		return
	}
	c.Header("Cache-Control", "public, max-age=300, s-maxage=600")
	c.JSON(http.StatusOK, FeedResponse{Status: "success", Count: len(items), Data: items})
}

// Civic handles GET /v1/civic with the key in X-API-Key.
func (h *FeedHandler) Civic(c *gin.Context) {
	if !keyMatches(c.GetHeader("X-API-Key"), h.civicKey) {
		c.JSON(http.StatusUnauthorized, FeedResponse{
			Status:  "access_denied",
			Message: "Unauthorized: Invalid Credentials.",
		})
		return
	}
	items, err := h.src.CivicFeed(c.Request.Context())
	if err != nil {
		c.JSON(errorStatus(err), FeedResponse{Status: "error", Message: "Server Error"})
		return
	}
	c.JSON(http.StatusOK, FeedResponse{Status: "success", Count: len(items), Data: items})
}

func keyMatches(provided, want string) bool {
	if provided == "" || want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(want)) == 1
}
