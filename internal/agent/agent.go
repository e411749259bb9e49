// Package agent is the intercepting cache agent: a reverse proxy in front of
// the API server that serves cached responses when the network fails and
// refreshes its caches when it succeeds. It runs as its own process and
// shares nothing with the client except the HTTP boundary.
package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dvloznov/budget-tracker/internal/api/middleware"
	"github.com/dvloznov/budget-tracker/internal/cachestore"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// State is the agent lifecycle position.
type State int32

const (
	StateInstalling State = iota
	StateWaiting
	StateActive
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateInstalling:
		return "installing"
	case StateWaiting:
		return "waiting"
	case StateActive:
		return "active"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Response headers set by the agent.
const (
	HeaderSource = "X-Agent-Source" // "network" or "cache"
	HeaderError  = "X-Agent-Error"
)

// MetricsPath is answered by the agent itself and never forwarded.
const MetricsPath = "/agent/metrics"

// responseCache is the part of cachestore.Storage the agent uses.
type responseCache interface {
	Open(name string) error
	Keys() ([]string, error)
	Delete(name string) (bool, error)
	Put(name, key string, resp cachestore.Response) error
	Match(name, key string) (cachestore.Response, error)
}

// Config describes what the agent caches and where it forwards.
type Config struct {
	Upstream    *url.URL
	StaticCache string
	DataCache   string
	APIPrefix   string
	WarmPath    string
	Manifest    []string
}

// Agent intercepts every request from the client.
type Agent struct {
	cfg    Config
	caches responseCache
	client *http.Client
	log    zerolog.Logger

	state atomic.Int32

	// lifecycle guards the transition to terminated against new warm fetches.
	lifecycle sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	warm      sync.WaitGroup
	warming   atomic.Bool
}

// New creates an agent in the installing state. A nil client means no
// timeout, matching a browser fetch.
func New(cfg Config, caches *cachestore.Storage, client *http.Client, log zerolog.Logger) (*Agent, error) {
	if cfg.Upstream == nil || cfg.Upstream.Host == "" {
		return nil, fmt.Errorf("agent: upstream URL is required")
	}
	if cfg.StaticCache == "" || cfg.DataCache == "" || cfg.StaticCache == cfg.DataCache {
		return nil, fmt.Errorf("agent: static and data cache names must be set and distinct")
	}
	if caches == nil {
		return nil, fmt.Errorf("agent: cache storage is required")
	}
	if client == nil {
		client = &http.Client{}
	}
	RegisterMetrics()

	ctx, cancel := context.WithCancel(context.Background())
	a := &Agent{
		cfg:    cfg,
		caches: caches,
		client: client,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
	a.state.Store(int32(StateInstalling))
	return a, nil
}

// Handler is the agent behind the shared request middleware, with its
// metrics on MetricsPath.
func (a *Agent) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(MetricsPath, promhttp.Handler())
	mux.Handle("/", a)
	return middleware.Recovery(a.log)(middleware.RequestID(middleware.Logger(a.log)(mux)))
}

func (a *Agent) State() State {
	return State(a.state.Load())
}

// Install pre-caches the static manifest. Single assets that fail are
// logged and skipped; the agent then moves straight on to waiting without
// holding for older instances.
func (a *Agent) Install(ctx context.Context) error {
	if s := a.State(); s != StateInstalling {
		return fmt.Errorf("agent: install in state %s", s)
	}
	if err := a.caches.Open(a.cfg.StaticCache); err != nil {
		return err
	}

	stored := 0
	for _, path := range a.cfg.Manifest {
		resp, err := a.roundTrip(ctx, http.MethodGet, path, "", nil, nil)
		if err != nil {
			upstreamFailures.WithLabelValues("install").Inc()
			a.log.Warn().Err(err).Str("asset", path).Msg("Could not pre-cache asset")
			continue
		}
		if resp.Status != http.StatusOK {
			a.log.Warn().Int("status", resp.Status).Str("asset", path).Msg("Asset not cached")
			continue
		}
		if err := a.caches.Put(a.cfg.StaticCache, path, resp); err != nil {
			a.log.Error().Err(err).Str("asset", path).Msg("Could not store asset")
			continue
		}
		cacheStores.WithLabelValues(a.cfg.StaticCache).Inc()
		stored++
	}
	a.log.Info().Int("stored", stored).Int("manifest", len(a.cfg.Manifest)).Str("cache", a.cfg.StaticCache).Msg("Static files pre-cached")

	a.state.Store(int32(StateWaiting))
	return nil
}

// Activate deletes every cache that is neither the current static nor the
// current data cache, then takes control of requests. Cleanup errors are
// returned but do not prevent activation.
func (a *Agent) Activate(ctx context.Context) error {
	if s := a.State(); s != StateWaiting {
		return fmt.Errorf("agent: activate in state %s", s)
	}

	var errs []error
	names, err := a.caches.Keys()
	if err != nil {
		errs = append(errs, err)
	}
	for _, name := range names {
		if name == a.cfg.StaticCache || name == a.cfg.DataCache {
			continue
		}
		a.log.Info().Str("cache", name).Msg("Removing old cache data")
		if _, err := a.caches.Delete(name); err != nil {
			errs = append(errs, err)
			continue
		}
		cachesDeleted.Inc()
	}
	if err := a.caches.Open(a.cfg.DataCache); err != nil {
		errs = append(errs, err)
	}

	a.state.Store(int32(StateActive))
	a.log.Info().Msg("Agent active")
	return errors.Join(errs...)
}

// Terminate stops new warm fetches and waits for running ones.
func (a *Agent) Terminate() {
	a.lifecycle.Lock()
	a.state.Store(int32(StateTerminated))
	a.lifecycle.Unlock()

	a.cancel()
	a.warm.Wait()
}

// ServeHTTP intercepts one request. Before activation requests pass straight
// through, as pages are not controlled yet.
func (a *Agent) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if a.State() != StateActive {
		a.passthrough(w, r)
		return
	}
	defer a.warmUp()

	if strings.HasPrefix(r.URL.Path, a.cfg.APIPrefix) {
		a.serveAPI(w, r)
		return
	}
	a.serveStatic(w, r)
}

// serveAPI is network-first: good GET responses refresh the data cache,
// and a GET that gets no response falls back to the cached copy.
func (a *Agent) serveAPI(w http.ResponseWriter, r *http.Request) {
	key := r.URL.RequestURI()
	log := a.log.With().Str("method", r.Method).Str("url", key).Logger()

	resp, err := a.roundTrip(r.Context(), r.Method, r.URL.Path, r.URL.RawQuery, r.Header, r.Body)
	if err != nil {
		upstreamFailures.WithLabelValues("api").Inc()
		if r.Method == http.MethodGet {
			cached, cerr := a.caches.Match(a.cfg.DataCache, key)
			recordLookup(a.cfg.DataCache, cerr == nil)
			if cerr == nil {
				log.Debug().Err(err).Msg("Network failed, serving cached data")
				writeResponse(w, r, cached, "cache")
				return
			}
			if !errors.Is(cerr, cachestore.ErrNotFound) {
				log.Error().Err(cerr).Msg("Data cache lookup failed")
			}
		}
		log.Debug().Err(err).Msg("Network failed, nothing cached")
		writeFailure(w, err)
		return
	}

	if r.Method == http.MethodGet && resp.Status == http.StatusOK {
		if err := a.caches.Put(a.cfg.DataCache, key, resp); err != nil {
			log.Error().Err(err).Msg("Could not cache API response")
		} else {
			cacheStores.WithLabelValues(a.cfg.DataCache).Inc()
		}
	}
	writeResponse(w, r, resp, "network")
}

// serveStatic is cache-first with no write-back; only Install fills the
// static cache.
func (a *Agent) serveStatic(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		cached, err := a.caches.Match(a.cfg.StaticCache, r.URL.RequestURI())
		recordLookup(a.cfg.StaticCache, err == nil)
		if err == nil {
			writeResponse(w, r, cached, "cache")
			return
		}
		if !errors.Is(err, cachestore.ErrNotFound) {
			a.log.Error().Err(err).Str("url", r.URL.RequestURI()).Msg("Static cache lookup failed")
		}
	}

	resp, err := a.roundTrip(r.Context(), r.Method, r.URL.Path, r.URL.RawQuery, r.Header, r.Body)
	if err != nil {
		upstreamFailures.WithLabelValues("static").Inc()
		writeFailure(w, err)
		return
	}
	writeResponse(w, r, resp, "network")
}

func (a *Agent) passthrough(w http.ResponseWriter, r *http.Request) {
	resp, err := a.roundTrip(r.Context(), r.Method, r.URL.Path, r.URL.RawQuery, r.Header, r.Body)
	if err != nil {
		upstreamFailures.WithLabelValues("passthrough").Inc()
		writeFailure(w, err)
		return
	}
	writeResponse(w, r, resp, "network")
}

// warmUp refreshes the listing endpoint in the background so the data cache
// is warm even if the client's own first fetch raced activation. At most one
// warm fetch runs at a time; results and failures are discarded.
func (a *Agent) warmUp() {
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()
	if a.State() != StateActive || !a.warming.CompareAndSwap(false, true) {
		return
	}
	a.warm.Add(1)
	go func() {
		defer a.warm.Done()
		defer a.warming.Store(false)
		defer func() {
			if p := recover(); p != nil {
				warmFetches.WithLabelValues("panic").Inc()
				a.log.Error().Interface("error", p).Str("url", a.cfg.WarmPath).Msg("Panic recovered in warm fetch")
			}
		}()

		resp, err := a.roundTrip(a.ctx, http.MethodGet, a.cfg.WarmPath, "", nil, nil)
		if err != nil {
			upstreamFailures.WithLabelValues("warm").Inc()
			warmFetches.WithLabelValues("failed").Inc()
			a.log.Debug().Err(err).Msg("Warm fetch failed")
			return
		}
		if resp.Status != http.StatusOK {
			warmFetches.WithLabelValues("skipped").Inc()
			return
		}
		if err := a.caches.Put(a.cfg.DataCache, a.cfg.WarmPath, resp); err != nil {
			warmFetches.WithLabelValues("failed").Inc()
			a.log.Debug().Err(err).Msg("Warm fetch not cached")
			return
		}
		cacheStores.WithLabelValues(a.cfg.DataCache).Inc()
		warmFetches.WithLabelValues("stored").Inc()
	}()
}

// roundTrip performs one upstream request and buffers the whole response.
// An error means no response was received.
func (a *Agent) roundTrip(ctx context.Context, method, path, rawQuery string, header http.Header, body io.Reader) (cachestore.Response, error) {
	target := *a.cfg.Upstream
	target.Path = strings.TrimRight(target.Path, "/") + path
	target.RawPath = ""
	target.RawQuery = rawQuery

	if method == http.MethodGet || method == http.MethodHead {
		body = nil
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return cachestore.Response{}, fmt.Errorf("build upstream request: %w", err)
	}
	for k, vs := range header {
		if hopHeader(k) || strings.EqualFold(k, "Accept-Encoding") {
			continue
		}
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return cachestore.Response{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return cachestore.Response{}, fmt.Errorf("read upstream body: %w", err)
	}
	out := cachestore.Response{Status: resp.StatusCode, Header: http.Header{}, Body: data}
	for k, vs := range resp.Header {
		if hopHeader(k) || strings.EqualFold(k, "Content-Length") {
			continue
		}
		out.Header[k] = append([]string(nil), vs...)
	}
	return out, nil
}

func writeResponse(w http.ResponseWriter, r *http.Request, resp cachestore.Response, source string) {
	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.Header().Set(HeaderSource, source)
	w.Header().Set("Content-Length", strconv.Itoa(len(resp.Body)))
	w.WriteHeader(resp.Status)
	if r.Method != http.MethodHead {
		_, _ = io.Copy(w, bytes.NewReader(resp.Body))
	}
}

// writeFailure surfaces a network failure to the client as 502; no
// fallback content is made up.
func writeFailure(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(HeaderError, "upstream unreachable")
	w.WriteHeader(http.StatusBadGateway)
	_, _ = fmt.Fprintf(w, "{\"error\":%q}\n", "upstream unreachable: "+err.Error())
}

var hopHeaders = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Proxy-Connection":    {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
}

func hopHeader(k string) bool {
	_, ok := hopHeaders[http.CanonicalHeaderKey(k)]
	return ok
}
