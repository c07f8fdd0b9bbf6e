// Package health implements the single-attempt HTTP probe the supervisor
// polls during the PROBING state. Retry policy (how many attempts, how long
// to wait between them) lives in the supervisor, not here.
package health

import (
	"context"
	"net/http"
	"time"
)

// DefaultTimeout is the per-attempt timeout when none is configured.
const DefaultTimeout = 5 * time.Second

// Prober issues a single GET and classifies the response. It holds no retry
// state; construct one per supervised process and call Probe repeatedly.
type Prober struct {
	client *http.Client
}

// New builds a Prober with the given per-attempt timeout. A zero timeout
// uses DefaultTimeout.
func New(timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Prober{client: &http.Client{Timeout: timeout}}
}

// Probe issues GET url and reports whether the response was a 2xx. Any
// other outcome — connection refused, timeout, non-2xx status — is a single
// failed attempt; Probe never retries.
func (p *Prober) Probe(ctx context.Context, url string) (ok bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	resp, doErr := p.client.Do(req)
	if doErr != nil {
		return false, doErr
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode >= 200 && resp.StatusCode < 300, nil
}
