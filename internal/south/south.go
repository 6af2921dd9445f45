// Package south implements the HTTP South Listener (spec §4.8): a minimal
// ingestion endpoint that accepts readings over HTTP and inserts them into
// storage, applying back-pressure when it cannot keep up.
package south

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/weinenglong/foglamp-sendprocess/internal/statistics"
	"github.com/weinenglong/foglamp-sendprocess/internal/storageclient"
)

// requestIDHeader is set on every ingest response so a caller can correlate
// a rejected or failed batch with the listener's logs.
const requestIDHeader = "X-Request-Id"

// ingestRequest is the wire shape POSTed to the listener's ingest URI (spec
// §4.6/§6): one reading per request, timestamp/asset/key at the top level
// and the sensor's own value mapping under readings.
type ingestRequest struct {
	Timestamp string                 `json:"timestamp"`
	Asset     string                 `json:"asset"`
	Key       string                 `json:"key"`
	Readings  map[string]interface{} `json:"readings"`
}

// Settings configures the listener; URI/Host/Port changes require a
// restart, everything else can be applied live.
type Settings struct {
	Host        string
	Port        int
	URI         string
	MaxInFlight int
}

// Listener is the HTTP South ingestion endpoint.
type Listener struct {
	storage storageclient.Client
	stats   *statistics.Recorder
	logger  *slog.Logger

	mu       sync.Mutex
	settings Settings
	server   *http.Server
	sem      chan struct{}
}

func NewListener(storage storageclient.Client, stats *statistics.Recorder, logger *slog.Logger) *Listener {
	return &Listener{storage: storage, stats: stats, logger: logger}
}

// Start binds and serves per settings. Call Reconfigure to apply a changed
// Settings value; Start itself is only ever called once per process.
func (l *Listener) Start(ctx context.Context, settings Settings) error {
	router := l.Handler(settings)

	l.mu.Lock()
	addr := net.JoinHostPort(settings.Host, fmt.Sprintf("%d", settings.Port))
	l.server = &http.Server{Addr: addr, Handler: router}
	server := l.server
	l.mu.Unlock()

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("south listener: bind %s: %w", addr, err)
	}

	errc := make(chan error, 1)
	go func() { errc <- server.Serve(listener) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errc:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// Reconfigure applies a Settings change. A Host/Port/URI change requires a
// restart of the underlying listener; a MaxInFlight change is applied without
// disrupting in-flight requests.
func (l *Listener) Reconfigure(ctx context.Context, newSettings Settings) error {
	l.mu.Lock()
	old := l.settings
	l.mu.Unlock()

	if old.Host != newSettings.Host || old.Port != newSettings.Port || old.URI != newSettings.URI {
		if err := l.server.Shutdown(ctx); err != nil {
			return err
		}
		return l.Start(ctx, newSettings)
	}

	l.mu.Lock()
	l.settings.MaxInFlight = newSettings.MaxInFlight
	l.sem = make(chan struct{}, newSettings.MaxInFlight)
	l.mu.Unlock()
	return nil
}

// Handler builds the routed HTTP handler for settings without binding a
// socket, used by Start and directly by tests that exercise the handler
// in-process via httptest.
func (l *Listener) Handler(settings Settings) http.Handler {
	l.mu.Lock()
	l.settings = settings
	l.sem = make(chan struct{}, settings.MaxInFlight)
	l.mu.Unlock()

	router := mux.NewRouter()
	router.HandleFunc(settings.URI, l.handleIngest).Methods(http.MethodPost)
	return router
}

func (l *Listener) handleIngest(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.New().String()
	w.Header().Set(requestIDHeader, requestID)

	l.mu.Lock()
	sem := l.sem
	l.mu.Unlock()

	select {
	case sem <- struct{}{}:
		defer func() { <-sem }()
	default:
		l.discard(r.Context(), w)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "cannot read request body", "status": http.StatusBadRequest})
		return
	}

	var req ingestRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "malformed reading payload", "status": http.StatusBadRequest})
		return
	}

	payload, err := json.Marshal(map[string]interface{}{
		"asset_code": req.Asset,
		"read_key":   req.Key,
		"user_ts":    normalizeTimestamp(req.Timestamp),
		"reading":    req.Readings,
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": "cannot encode reading", "status": http.StatusInternalServerError})
		return
	}
	if _, err := l.storage.InsertIntoTbl(r.Context(), "readings", payload); err != nil {
		l.logger.Error("south listener: insert failed", "error", err, "request_id", requestID)
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": "storage insert failed", "status": http.StatusInternalServerError})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"result": "success", "status": http.StatusOK})
}

// discard rejects a request under back-pressure with {busy:true} and
// increments the DISCARDED statistic, rather than queuing unboundedly. The
// listener reports this as a 200 (spec §4.6): back-pressure is an expected,
// in-band outcome for the caller, not a transport failure.
func (l *Listener) discard(ctx context.Context, w http.ResponseWriter) {
	if err := l.stats.Update(ctx, "DISCARDED", "readings discarded under back-pressure", 1); err != nil {
		l.logger.Error("south listener: statistics update failed", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"busy": true, "status": http.StatusOK})
}

func writeJSON(w http.ResponseWriter, status int, body map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

var (
	zoneSuffixRe = regexp.MustCompile(`(Z|[+-]\d{2}(:?\d{2})?)$`)
	fracSecRe    = regexp.MustCompile(`\.(\d+)$`)
)

// normalizeTimestamp rewrites a caller-supplied timestamp to UTC with
// six-digit fractional seconds and a "+00" suffix (spec §6): any existing
// zone indicator is stripped and replaced without conversion, since the
// caller is expected to already be emitting UTC; a missing one is just
// appended.
func normalizeTimestamp(ts string) string {
	base := zoneSuffixRe.ReplaceAllString(ts, "")
	if m := fracSecRe.FindStringSubmatch(base); m != nil {
		frac := m[1]
		switch {
		case len(frac) > 6:
			frac = frac[:6]
		case len(frac) < 6:
			frac = frac + strings.Repeat("0", 6-len(frac))
		}
		base = fracSecRe.ReplaceAllString(base, "."+frac)
	} else {
		base += ".000000"
	}
	return base + "+00"
}

