// Package connectivity turns periodic reachability probes into online/offline
// transition events, the client-side stand-in for a browser's online event.
package connectivity

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Event is one connectivity observation delivered to a handler.
type Event struct {
	Online bool
	// Initial is set on the first observation after start (cold start).
	Initial bool
	At      time.Time
}

// Handler receives events one at a time, in order.
type Handler func(ctx context.Context, ev Event)

// Monitor probes a health URL and reports changes.
type Monitor struct {
	url      string
	interval time.Duration
	client   *http.Client
	log      zerolog.Logger
}

// NewMonitor builds a monitor. timeout bounds each probe so a dead link is
// reported as offline instead of hanging the loop.
func NewMonitor(url string, interval, timeout time.Duration, log zerolog.Logger) *Monitor {
	return &Monitor{
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: timeout},
		log:      log,
	}
}

// Probe reports whether the health endpoint answered with a 2xx status.
func (m *Monitor) Probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.url, nil)
	if err != nil {
		m.log.Error().Err(err).Str("url", m.url).Msg("Invalid probe URL")
		return false
	}
	req.Header.Set("Cache-Control", "no-cache")
	resp, err := m.client.Do(req)
	if err != nil {
		m.log.Debug().Err(err).Msg("Probe failed")
		return false
	}
	resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode <= 299
}

// Run delivers the initial state, then one event per transition, until ctx
// is done. Handlers run on the monitor goroutine, so events never overlap.
func (m *Monitor) Run(ctx context.Context, handle Handler) {
	online := m.Probe(ctx)
	if ctx.Err() != nil {
		return
	}
	handle(ctx, Event{Online: online, Initial: true, At: time.Now()})

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := m.Probe(ctx)
			if ctx.Err() != nil {
				return
			}
			if now == online {
				continue
			}
			online = now
			m.log.Debug().Bool("online", online).Msg("Connectivity changed")
			handle(ctx, Event{Online: online, At: time.Now()})
		}
	}
}
