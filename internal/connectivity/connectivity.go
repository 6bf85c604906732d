// Package connectivity reports whether the remote audio source is reachable.
// State is sampled on each call, never monitored in the background.
package connectivity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Mode selects how connectivity is determined.
type Mode string

const (
	// ModeProbe issues a lightweight request to decide.
	ModeProbe Mode = "probe"
	// ModeOnline always reports online.
	ModeOnline Mode = "online"
	// ModeOffline always reports offline.
	ModeOffline Mode = "offline"
)

// IsValid reports whether m names a known mode.
func (m Mode) IsValid() bool {
	return m == ModeProbe || m == ModeOnline || m == ModeOffline
}

// ErrUnknownMode is returned by New for an unrecognised mode.
var ErrUnknownMode = errors.New("connectivity: unknown mode")

// Checker reports current connectivity.
type Checker interface {
	Online(ctx context.Context) bool
}

// Static is a Checker with a fixed answer.
type Static bool

// Online returns the fixed answer.
func (s Static) Online(context.Context) bool {
	return bool(s)
}

// HTTPProbe treats any HTTP response from target as online; transport
// failures and timeouts mean offline.
type HTTPProbe struct {
	target string
	client *http.Client
}

// NewHTTPProbe creates a probe against target with the given timeout.
func NewHTTPProbe(target string, timeout time.Duration) *HTTPProbe {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPProbe{
		target: target,
		client: &http.Client{Timeout: timeout},
	}
}

// Online sends a HEAD request to the probe target.
func (p *HTTPProbe) Online(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.target, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return true
}

// New builds the Checker for mode. target is only used by ModeProbe.
func New(mode Mode, target string, timeout time.Duration) (Checker, error) {
	switch mode {
	case ModeOnline:
		return Static(true), nil
	case ModeOffline:
		return Static(false), nil
	case ModeProbe, "":
		return NewHTTPProbe(target, timeout), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
}
