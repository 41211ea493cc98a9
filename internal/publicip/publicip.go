// Package publicip looks up the machine's public IP address through the
// ipify service.
package publicip

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
)

// DefaultURL returns the caller's address as {"ip": "..."}.
const DefaultURL = "https://api.ipify.org/?format=json"

// maxBody bounds how much of the response is read.
const maxBody = 4 << 10

// Resolver performs lookups against an ipify-compatible endpoint.
type Resolver struct {
	URL    string
	Client *Client
}

// NewResolver returns a Resolver for DefaultURL with two retries.
func NewResolver() *Resolver {
	return &Resolver{URL: DefaultURL, Client: NewClient(ClientConfig{MaxRetries: 2})}
}

// Lookup returns the public IP reported by the default endpoint.
func Lookup(ctx context.Context) (net.IP, error) {
	return NewResolver().Lookup(ctx)
}

// Lookup fetches and decodes the endpoint's JSON answer.
func (r *Resolver) Lookup(ctx context.Context) (net.IP, error) {
	hdr := http.Header{}
	hdr.Set("Accept", "application/json")
	resp, err := r.Client.Get(ctx, r.URL, hdr)
	if err != nil {
		return nil, fmt.Errorf("publicip: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("publicip: unexpected status %s", resp.Status)
	}
	var body struct {
		IP string `json:"ip"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(&body); err != nil {
		return nil, fmt.Errorf("publicip: decode response: %w", err)
	}
	ip := net.ParseIP(body.IP)
	if ip == nil {
		return nil, fmt.Errorf("publicip: invalid address %q", body.IP)
	}
	return ip, nil
}
