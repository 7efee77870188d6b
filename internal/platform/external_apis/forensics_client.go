package external_apis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gandretiraghu/gptr-road-safety/internal/models"
)

const (
	triagePath        = "/v1/triage"
	verifyRepairPath  = "/v1/verify-repair"
	defaultAPITimeout = 45 * time.Second
	maxVerdictBytes   = 1 << 20
)

var (
	// ErrOracleUnavailable covers transport failures, timeouts and non-2xx replies.
	ErrOracleUnavailable = errors.New("forensics oracle unavailable")
	// ErrMalformedAnalysis means the reply broke the verdict contract.
	ErrMalformedAnalysis = errors.New("forensics oracle returned a malformed verdict")
)

// ForensicsConfig points the client at the image forensics service.
type ForensicsConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// ForensicsClient calls the external image forensics oracle over HTTP.
type ForensicsClient struct {
	baseURL    *url.URL
	apiKey     string
	httpClient *http.Client
	schemas    *verdictSchemas
	logger     *slog.Logger
}

func NewForensicsClient(cfg ForensicsConfig, logger *slog.Logger) (*ForensicsClient, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid forensics base URL %q", cfg.BaseURL)
	}
	schemas, err := compileSchemas()
	if err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultAPITimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ForensicsClient{
		baseURL:    base,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		schemas:    schemas,
		logger:     logger.With("component", "ForensicsClient"),
	}, nil
}

// TriageHazard classifies a new hazard photo.
func (c *ForensicsClient) TriageHazard(ctx context.Context, req models.TriageRequest) (*models.HazardAnalysis, error) {
	body, err := c.post(ctx, triagePath, req)
	if err != nil {
		return nil, err
	}
	doc, err := decodeVerdict(body, c.schemas.triage)
	if err != nil {
		c.logger.Warn("triage verdict rejected", "error", err)
		return nil, err
	}
	return toHazardAnalysis(doc), nil
}

// VerifyRepair compares a repair photo with the original hazard photo.
func (c *ForensicsClient) VerifyRepair(ctx context.Context, req models.RepairRequest) (*models.RepairAudit, error) {
	body, err := c.post(ctx, verifyRepairPath, req)
	if err != nil {
		return nil, err
	}
	doc, err := decodeVerdict(body, c.schemas.repair)
	if err != nil {
		c.logger.Warn("repair verdict rejected", "error", err)
		return nil, err
	}
	return toRepairAudit(doc), nil
}

func (c *ForensicsClient) post(ctx context.Context, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode oracle request: %w", err)
	}
	endpoint := c.baseURL.JoinPath(path).String()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("error creating oracle request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("oracle request failed", "path", path, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxVerdictBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrOracleUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("unexpected oracle status", "path", path, "status", resp.StatusCode)
		return nil, fmt.Errorf("%w: unexpected status code: %d", ErrOracleUnavailable, resp.StatusCode)
	}
	c.logger.Debug("oracle replied", "path", path, "bytes", len(body), "elapsed", time.Since(start))
	return body, nil
}
