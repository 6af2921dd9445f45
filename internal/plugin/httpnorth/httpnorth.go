// Package httpnorth is the reference North plugin (spec §4.7): it POSTs a
// batch of readings as JSON to a configured HTTP endpoint, honoring the
// max_attempts retry encoding and an optional outbound rate limit.
package httpnorth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/weinenglong/foglamp-sendprocess/internal/config"
	"github.com/weinenglong/foglamp-sendprocess/internal/errtypes"
	"github.com/weinenglong/foglamp-sendprocess/internal/plugin"
	"github.com/weinenglong/foglamp-sendprocess/internal/plugin/registry"
	"github.com/weinenglong/foglamp-sendprocess/internal/storageclient"
)

const pluginName = "http_north"

func init() {
	registry.Register(pluginName, func() plugin.NorthPlugin { return &Plugin{} })
}

// ConfigSchema is this plugin's category schema, passed to
// config.Manager.CreateCategory when the Sending Process starts up.
func ConfigSchema() map[string]map[string]string {
	return map[string]map[string]string{
		"url": {
			"description": "destination URL to POST readings to",
			"type":        "string",
			"default":     "http://localhost:6683/sensor-reading",
		},
		"shutdown_wait_time": {
			"description": "shutdown wait in seconds; checked to be an integer at init, not used by shutdown, which closes idle connections without waiting",
			"type":        "integer",
			"default":     "5",
		},
		"max_attempts": {
			"description": "retries per batch: -1 retry forever, 0 no retry, N finite retries",
			"type":        "integer",
			"default":     "0",
		},
		"rateLimit": {
			"description": "maximum sends per second, 0 disables the limit",
			"type":        "integer",
			"default":     "0",
		},
	}
}

type handle struct {
	url          string
	shutdownWait time.Duration
	maxAttempts  int
	limiter      *rate.Limiter
	client       *http.Client
}

type Plugin struct{}

func (p *Plugin) Info() plugin.Info {
	return plugin.Info{
		Name:         pluginName,
		Version:      "1.0.0",
		Type:         "north",
		Interface:    "1.0",
		ConfigSchema: ConfigSchema(),
	}
}

func (p *Plugin) Init(ctx context.Context, cfg map[string]config.Item) (plugin.Handle, error) {
	h := &handle{client: &http.Client{Timeout: 30 * time.Second}}

	h.url = cfg["url"].Value

	wait, err := strconv.Atoi(cfg["shutdown_wait_time"].Value)
	if err != nil {
		return nil, &errtypes.PluginInitFailed{Plugin: pluginName, Cause: fmt.Errorf("shutdown_wait_time: %w", err)}
	}
	h.shutdownWait = time.Duration(wait) * time.Second

	attempts, err := strconv.Atoi(cfg["max_attempts"].Value)
	if err != nil {
		return nil, &errtypes.PluginInitFailed{Plugin: pluginName, Cause: fmt.Errorf("max_attempts: %w", err)}
	}
	h.maxAttempts = attempts

	if limit, err := strconv.Atoi(cfg["rateLimit"].Value); err == nil && limit > 0 {
		h.limiter = rate.NewLimiter(rate.Limit(limit), limit)
	}

	return h, nil
}

func (p *Plugin) Reconfigure(ctx context.Context, hdl plugin.Handle, cfg map[string]config.Item) (plugin.Handle, error) {
	return p.Init(ctx, cfg)
}

// Send POSTs batch as one request per the max_attempts encoding:
//   - max_attempts == 0: a single attempt, no retry.
//   - max_attempts > 0: one attempt plus up to max_attempts retries (N+1
//     attempts total) with exponential backoff starting at 500ms.
//   - max_attempts < 0: retry forever with the same backoff.
//
// 4xx, 5xx, and transport failures are all retryable; only a malformed
// request URL is terminal.
func (p *Plugin) Send(ctx context.Context, hdl plugin.Handle, batch []storageclient.Reading, streamID int) (bool, int64, int, error) {
	h, ok := hdl.(*handle)
	if !ok {
		return false, 0, 0, &errtypes.PluginSendFailed{StreamID: streamID, Cause: fmt.Errorf("invalid handle")}
	}
	if len(batch) == 0 {
		return true, 0, 0, nil
	}

	body, err := encodeBatch(batch)
	if err != nil {
		return false, 0, 0, &errtypes.PluginSendFailed{StreamID: streamID, Cause: err}
	}

	op := func() error {
		if h.limiter != nil {
			if err := h.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}
		return h.post(ctx, body)
	}

	var sendErr error
	switch {
	case h.maxAttempts == 0:
		sendErr = op()
	case h.maxAttempts > 0:
		policy := newBackoff(ctx)
		sendErr = backoff.Retry(op, backoff.WithMaxRetries(policy, uint64(h.maxAttempts)))
	default:
		sendErr = backoff.Retry(op, newBackoff(ctx))
	}

	if sendErr != nil {
		return false, 0, 0, &errtypes.PluginSendFailed{StreamID: streamID, Cause: sendErr}
	}

	lastID := batch[len(batch)-1].ID
	return true, lastID, len(batch), nil
}

func (p *Plugin) Shutdown(ctx context.Context, hdl plugin.Handle) error {
	h, ok := hdl.(*handle)
	if !ok {
		return nil
	}
	h.client.CloseIdleConnections()
	return nil
}

func (h *handle) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return err // transport failure, retryable
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 400:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return fmt.Errorf("http north: destination rejected batch: %d", resp.StatusCode)
	default:
		return fmt.Errorf("http north: destination unavailable: %d", resp.StatusCode)
	}
}

func newBackoff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = 500 * time.Millisecond
	exp.MaxInterval = 8 * time.Second
	exp.MaxElapsedTime = 0
	return backoff.WithContext(exp, ctx)
}

type wireReading struct {
	ReadKey string                 `json:"read_key"`
	UserTS  time.Time              `json:"user_ts"`
	Reading map[string]interface{} `json:"reading"`
}

func encodeBatch(batch []storageclient.Reading) ([]byte, error) {
	assetCode := batch[0].AssetCode
	readings := make([]wireReading, 0, len(batch))
	for _, r := range batch {
		readings = append(readings, wireReading{ReadKey: r.ReadKey, UserTS: r.UserTS, Reading: r.Values})
	}
	return json.Marshal(map[string]interface{}{
		"asset_code": assetCode,
		"readings":   readings,
	})
}
