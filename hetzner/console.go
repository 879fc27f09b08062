package hetzner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

const consoleBaseURL = "https://dns.hetzner.com/api/v1"

// ConsoleClient talks to the Hetzner DNS Console API. Authentication is
// an Auth-API-Token header.
type ConsoleClient struct {
	token   string
	baseURL string
	http    *http.Client
}

// NewConsoleClient returns a ConsoleClient using token.
func NewConsoleClient(token string) *ConsoleClient {
	return &ConsoleClient{
		token:   token,
		baseURL: consoleBaseURL,
		http:    newHTTPClient(),
	}
}

func (c *ConsoleClient) do(ctx context.Context, method, path string, body, out any) error {
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

	req.Header.Set("Auth-API-Token", c.token)

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
func (c *ConsoleClient) FindZone(ctx context.Context, domain string) (Zone, error) {
	var body struct {
		Zones []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"zones"`
	}

	if err := c.do(ctx, http.MethodGet, "/zones", nil, &body); err != nil {
		return Zone{}, fmt.Errorf("listing zones: %w", err)
	}

	zones := make([]Zone, 0, len(body.Zones))
	for _, z := range body.Zones {
		zones = append(zones, Zone{ID: z.ID, Name: z.Name})
	}

	return matchZone(zones, domain)
}

// CreateTXT creates a TXT record in zone and returns its record ID.
func (c *ConsoleClient) CreateTXT(ctx context.Context, zone Zone, name, value string) (string, error) {
	req := map[string]any{
		"zone_id": zone.ID,
		"type":    "TXT",
		"name":    name,
		"value":   value,
		"ttl":     60,
	}

	var body struct {
		Record struct {
			ID string `json:"id"`
		} `json:"record"`
	}

	if err := c.do(ctx, http.MethodPost, "/records", req, &body); err != nil {
		return "", fmt.Errorf("creating TXT record: %w", err)
	}

	return body.Record.ID, nil
}

// DeleteTXT removes a TXT record by ID.
func (c *ConsoleClient) DeleteTXT(ctx context.Context, _ Zone, _ string, recordID string) error {
	err := c.do(ctx, http.MethodDelete, "/records/"+url.PathEscape(recordID), nil, nil)
	if err != nil {
		return fmt.Errorf("deleting TXT record: %w", err)
	}

	return nil
}
