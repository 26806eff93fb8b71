package health

import (
	"context"
	"net/http"
	"time"
)

// DefaultTimeout bounds a single probe round trip.
const DefaultTimeout = 2 * time.Second

// Prober issues a single HTTP GET and reports readiness. Retry policy
// belongs to the caller; the prober itself never retries.
type Prober interface {
	Check(ctx context.Context, url string) bool
}

// HTTPProber probes with a plain HTTP client. True only on status 200;
// any network error, non-200 status or timeout is false.
type HTTPProber struct {
	Client  *http.Client
	Timeout time.Duration
}

var _ Prober = HTTPProber{}

func (p HTTPProber) Check(ctx context.Context, url string) bool {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(cctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}
