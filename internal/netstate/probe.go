package netstate

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/mesh-intelligence/oilsync/pkg/types"
)

// ErrAlreadyRunning is returned by a second concurrent Run.
var ErrAlreadyRunning = errors.New("observer already running")

// DefaultProbeInterval is used when HTTPProbe.Interval is zero.
const DefaultProbeInterval = 15 * time.Second

// HTTPProbe is a Source that polls URL. A transport failure reports
// disconnected; any HTTP response, whatever its status, reports the
// internet reachable.
type HTTPProbe struct {
	URL      string
	Interval time.Duration
	HTTP     *http.Client
}

// Events starts polling and returns the event channel. The channel is
// closed when ctx ends.
func (p *HTTPProbe) Events(ctx context.Context) <-chan types.NetworkEvent {
	out := make(chan types.NetworkEvent)
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	client := p.HTTP
	if client == nil {
		client = &http.Client{Timeout: interval}
	}

	go func() {
		defer close(out)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			ev := p.probe(ctx, client)
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (p *HTTPProbe) probe(ctx context.Context, client *http.Client) types.NetworkEvent {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.URL, nil)
	if err != nil {
		return types.NetworkEvent{IsConnected: false}
	}
	resp, err := client.Do(req)
	if err != nil {
		return types.NetworkEvent{IsConnected: false}
	}
	resp.Body.Close()
	reachable := true
	return types.NetworkEvent{IsConnected: true, IsInternetReachable: &reachable}
}

// ChanSource adapts a channel of events, for platform callbacks and tests.
type ChanSource chan types.NetworkEvent

// Events returns the channel.
func (c ChanSource) Events(context.Context) <-chan types.NetworkEvent {
	return c
}
