// Package catalog consumes the service-catalog collaborator. It is
// queried exactly once, at booking creation, to populate the immutable
// provider id and base price.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fixitnow/bookings/internal/domain"
)

type ServiceSnapshot struct {
	ServiceID  string  `json:"service_id"`
	ProviderID string  `json:"provider_id"`
	BasePrice  float64 `json:"base_price"`
}

type Client interface {
	GetServiceSnapshot(ctx context.Context, serviceID string) (*ServiceSnapshot, error)
}

type HTTPClient struct {
	baseURL string
	http    *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) GetServiceSnapshot(ctx context.Context, serviceID string) (*ServiceSnapshot, error) {
	url := fmt.Sprintf("%s/services/%s", c.baseURL, serviceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, domain.ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("catalog returned status %d", resp.StatusCode)
	}

	var snap ServiceSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode catalog response: %w", err)
	}
	if snap.ServiceID == "" {
		snap.ServiceID = serviceID
	}
	return &snap, nil
}
