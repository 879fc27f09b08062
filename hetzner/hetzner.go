// Package hetzner provides minimal clients for the two Hetzner DNS
// APIs: the Cloud API (api.hetzner.cloud, Bearer token) and the DNS
// Console API (dns.hetzner.com, Auth-API-Token header). Both cover just
// what DNS-01 certificate validation needs: zone lookup and TXT record
// management.
package hetzner

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Zone is a DNS zone as reported by either API.
type Zone struct {
	ID   string
	Name string
}

// Errors mapped from API status codes.
var (
	ErrUnauthorized = errors.New("hetzner: invalid or missing API token")
	ErrNotFound     = errors.New("hetzner: not found")
	ErrRateLimited  = errors.New("hetzner: rate limited")
)

// A ZoneFinder locates the zone responsible for a domain.
type ZoneFinder interface {
	FindZone(ctx context.Context, domain string) (Zone, error)
}

// A Provider manages the TXT records used for DNS-01 challenges.
type Provider interface {
	ZoneFinder

	// CreateTXT creates a TXT record under zone and returns its ID.
	// name is relative to the zone (e.g. "_acme-challenge").
	CreateTXT(ctx context.Context, zone Zone, name, value string) (string, error)

	// DeleteTXT removes a TXT record created by CreateTXT.
	DeleteTXT(ctx context.Context, zone Zone, name, recordID string) error
}

// ChallengeName returns the record name for a DNS-01 challenge on
// domain, relative to zone.
func ChallengeName(zone Zone, domain string) string {
	name := "_acme-challenge"

	sub := strings.TrimSuffix(domain, zone.Name)
	sub = strings.TrimSuffix(sub, ".")

	if sub != "" {
		name += "." + sub
	}

	return name
}

// matchZone picks the zone with the longest suffix match on domain, so
// "mqtt.lab.example.com" resolves to "lab.example.com" over
// "example.com" when both zones exist.
func matchZone(zones []Zone, domain string) (Zone, error) {
	domain = strings.TrimSuffix(strings.ToLower(domain), ".")

	var best Zone

	for _, z := range zones {
		name := strings.ToLower(z.Name)

		if domain != name && !strings.HasSuffix(domain, "."+name) {
			continue
		}

		if len(name) > len(best.Name) {
			best = z
		}
	}

	if best.ID == "" {
		return Zone{}, fmt.Errorf("%w: no zone for domain %s", ErrNotFound, domain)
	}

	return best, nil
}

func statusError(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrRateLimited
	}

	return fmt.Errorf("hetzner: unexpected status %s", resp.Status)
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}
