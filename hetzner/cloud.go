package hetzner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

const cloudBaseURL = "https://api.hetzner.cloud/v1"

// CloudClient talks to the Hetzner Cloud API's DNS zones. Authentication
// is a Bearer token.
type CloudClient struct {
	token   string
	baseURL string
	http    *http.Client
}

// NewCloudClient returns a CloudClient using token.
func NewCloudClient(token string) *CloudClient {
	return &CloudClient{
		token:   token,
		baseURL: cloudBaseURL,
		http:    newHTTPClient(),
	}
}

func (c *CloudClient) do(ctx context.Context, method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return err
	}

	req.Header.Set("Authorization", "Bearer "+c.token)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}

	if out == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// FindZone returns the zone responsible for domain.
func (c *CloudClient) FindZone(ctx context.Context, domain string) (Zone, error) {
	var body struct {
		Zones []struct {
			ID   json.Number `json:"id"`
			Name string      `json:"name"`
		} `json:"zones"`
	}

	if err := c.do(ctx, http.MethodGet, "/zones", nil, &body); err != nil {
		return Zone{}, fmt.Errorf("listing zones: %w", err)
	}

	zones := make([]Zone, 0, len(body.Zones))
	for _, z := range body.Zones {
		zones = append(zones, Zone{ID: z.ID.String(), Name: z.Name})
	}

	return matchZone(zones, domain)
}

// CreateTXT creates a TXT RRSet in zone. The Cloud API addresses RRSets
// by name and type, so the returned ID is the record name.
func (c *CloudClient) CreateTXT(ctx context.Context, zone Zone, name, value string) (string, error) {
	req := map[string]any{
		"name": name,
		"type": "TXT",
		"ttl":  60,
		"records": []map[string]string{
			{"value": fmt.Sprintf("%q", value)},
		},
	}

	err := c.do(ctx, http.MethodPost, "/zones/"+url.PathEscape(zone.ID)+"/rrsets", req, nil)
	if err != nil {
		return "", fmt.Errorf("creating TXT rrset: %w", err)
	}

	return name, nil
}

// DeleteTXT removes the TXT RRSet by name.
func (c *CloudClient) DeleteTXT(ctx context.Context, zone Zone, name, _ string) error {
	path := "/zones/" + url.PathEscape(zone.ID) + "/rrsets/" + url.PathEscape(name) + "/TXT"

	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("deleting TXT rrset: %w", err)
	}

	return nil
}
