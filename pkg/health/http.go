package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cuemby/rolekeeper/pkg/types"
)

// Answers in this range pass; redirects are not followed
const (
	httpPassMin = http.StatusOK
	httpPassMax = http.StatusPermanentRedirect

	maxDrainBytes = 4 << 10
)

// HTTPProber GETs the check path on the host of a worker's slot
type HTTPProber struct {
	slot   types.SlotID
	url    string
	client *http.Client
}

// NewHTTPProber probes http://<slot host>:<cfg.Port><cfg.Path>
func NewHTTPProber(cfg ProbeConfig, slot types.SlotID) *HTTPProber {
	path := cfg.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return &HTTPProber{
		slot: slot,
		url:  "http://" + probeAddr(slot, cfg.Port) + path,
		client: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Probe runs one check against the slot
func (h *HTTPProber) Probe(ctx context.Context) Result {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return failed(start, "slot %s: bad check url: %v", h.slot, err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return failed(start, "slot %s: %v", h.slot, err)
	}
	defer resp.Body.Close()
	// drained so the connection is reused by the next round
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))

	if resp.StatusCode < httpPassMin || resp.StatusCode > httpPassMax {
		return failed(start, "slot %s: GET %s answered %d", h.slot, h.url, resp.StatusCode)
	}
	return Result{Healthy: true, Message: fmt.Sprintf("HTTP %d", resp.StatusCode), Latency: time.Since(start)}
}

// Type returns the check kind
func (h *HTTPProber) Type() types.HealthCheckType {
	return types.HealthCheckHTTP
}

// Target returns what is probed
func (h *HTTPProber) Target() string {
	return h.url
}
