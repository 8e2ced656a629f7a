package service

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/iliyamo/vocabulary-sync/internal/model"
)

// HealthProber issues bounded GET requests against a node's health path.
type HealthProber struct {
	client *http.Client
	path   string
}

// NewHealthProber returns a prober whose requests never outlive timeout.
func NewHealthProber(timeout time.Duration, path string) *HealthProber {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return &HealthProber{client: &http.Client{Timeout: timeout}, path: path}
}

// Probe reports healthy for any 2xx answer and unhealthy otherwise.
func (p *HealthProber) Probe(ctx context.Context, baseURL string) model.HealthStatus {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+p.path, nil)
	if err != nil {
		return model.HealthUnhealthy
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return model.HealthUnhealthy
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return model.HealthHealthy
	}
	return model.HealthUnhealthy
}
