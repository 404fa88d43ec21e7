package wateriso

import (
	"context"
	"net/http"
	"time"
)

// Probe checks reachability with a single HEAD request against the service.
// Any HTTP response counts as online.
type Probe struct {
	url    string
	client *http.Client
}

// NewProbe creates a probe against baseURL.
func NewProbe(baseURL string, timeout time.Duration) *Probe {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Probe{url: baseURL, client: &http.Client{Timeout: timeout}}
}

// IsOnline reports whether the service answered.
func (p *Probe) IsOnline(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

// StaticProbe always gives the same answer. Used for forced offline mode.
type StaticProbe bool

func (s StaticProbe) IsOnline(context.Context) bool { return bool(s) }
