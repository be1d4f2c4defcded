// Package remote is the HTTP client for the directory service.  Every call
// is bounded by a fixed timeout so a hung endpoint cannot stall door
// control for longer than that.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/Portunus/agent/internal/observability"
	"github.com/BrandonDHaskell/Portunus/agent/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/agent/internal/portunus/types"
)

const (
	pathSettings       = "/settings"
	pathEntities       = "/entities"
	pathSystemSettings = "/system-settings"
	pathLogs           = "/logs"
	pathPendingRFIDs   = "/pending-rfids"

	// maxResponseBody caps what we are willing to decode from the directory.
	maxResponseBody = 1 << 20
)

type Options struct {
	BaseURL string
	Timeout time.Duration
	Logger  zerolog.Logger

	// Applied to door configs that omit their pulse bounds.
	DefaultMinPulse float64
	DefaultMaxPulse float64

	// HTTPClient overrides the default client; its Timeout is replaced.
	HTTPClient *http.Client
}

type Client struct {
	base     string
	http     *http.Client
	logger   zerolog.Logger
	minPulse float64
	maxPulse float64
}

var _ store.Directory = (*Client)(nil)

func New(opt Options) *Client {
	timeout := opt.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	hc := &http.Client{}
	if opt.HTTPClient != nil {
		c := *opt.HTTPClient
		hc = &c
	}
	hc.Timeout = timeout

	minPulse, maxPulse := opt.DefaultMinPulse, opt.DefaultMaxPulse
	if minPulse <= 0 {
		minPulse = types.DefaultMinPulse
	}
	if maxPulse <= 0 {
		maxPulse = types.DefaultMaxPulse
	}

	return &Client{
		base:     strings.TrimRight(strings.TrimSpace(opt.BaseURL), "/"),
		http:     hc,
		logger:   opt.Logger.With().Str("component", "directory").Logger(),
		minPulse: minPulse,
		maxPulse: maxPulse,
	}
}

// ── Fetches ──────────────────────────────────────────────────────────────────

func (c *Client) FetchDoorConfigs(ctx context.Context) (map[string]types.DoorConfig, error) {
	var items []doorSettingJSON
	if err := c.getJSON(ctx, pathSettings, &items); err != nil {
		c.logger.Error().Err(err).Msg("failed to fetch door settings")
		return map[string]types.DoorConfig{}, err
	}
	out := make(map[string]types.DoorConfig, len(items))
	for _, it := range items {
		if strings.TrimSpace(it.DoorName) == "" {
			c.logger.Warn().Int("pin", it.ServoPin).Msg("ignoring door setting without door_name")
			continue
		}
		out[it.DoorName] = it.toDoorConfig(c.minPulse, c.maxPulse)
	}
	return out, nil
}

func (c *Client) FetchEntities(ctx context.Context) (map[string]types.EntityRecord, error) {
	var items []entityJSON
	if err := c.getJSON(ctx, pathEntities, &items); err != nil {
		c.logger.Error().Err(err).Msg("failed to fetch entities")
		return map[string]types.EntityRecord{}, err
	}
	out := make(map[string]types.EntityRecord, len(items))
	for _, it := range items {
		e := it.toEntity()
		out[e.TagID] = e
	}
	return out, nil
}

func (c *Client) FetchDefaultOpenDurations(ctx context.Context) (map[string]float64, error) {
	var s systemSettingsJSON
	if err := c.getJSON(ctx, pathSystemSettings, &s); err != nil {
		c.logger.Error().Err(err).Msg("failed to fetch pending door values")
		return map[string]float64{}, err
	}
	if s.PendingDoorValues == nil {
		return map[string]float64{}, nil
	}
	return s.PendingDoorValues, nil
}

// ── Posts ────────────────────────────────────────────────────────────────────

func (c *Client) PostAccessEvent(ctx context.Context, ev types.AccessEvent) {
	if !ev.Action.Valid() {
		c.logger.Warn().Str("action", string(ev.Action)).Msg("dropping access log with unknown action")
		return
	}
	if err := c.postJSON(ctx, pathLogs, accessLogFromEvent(ev)); err != nil {
		c.logger.Warn().Err(err).Str("action", string(ev.Action)).Msg("failed to post access log")
	}
}

func (c *Client) PostUnknownTag(ctx context.Context, tag types.TagID) {
	if err := c.postJSON(ctx, pathPendingRFIDs, pendingRFIDJSON{RFIDID: tag.String()}); err != nil {
		c.logger.Debug().Err(err).Str("tag_id", tag.String()).Msg("failed to register pending rfid")
	}
}

// ── Transport ────────────────────────────────────────────────────────────────

func (c *Client) getJSON(ctx context.Context, path string, out any) (err error) {
	defer func() { observability.RecordDirectoryRequest(strings.TrimPrefix(path, "/"), err == nil) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return fmt.Errorf("GET %s: %v: %w", path, err, store.ErrDirectoryUnavailable)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %v: %w", path, err, store.ErrDirectoryUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))
		return fmt.Errorf("GET %s: status %d: %w", path, resp.StatusCode, store.ErrDirectoryUnavailable)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(out); err != nil {
		return fmt.Errorf("GET %s: decode: %v: %w", path, err, store.ErrDirectoryUnavailable)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, body any) (err error) {
	defer func() { observability.RecordDirectoryRequest(strings.TrimPrefix(path, "/"), err == nil) }()

	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("POST %s: encode: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %v: %w", path, err, store.ErrDirectoryUnavailable)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("POST %s: status %d: %w", path, resp.StatusCode, store.ErrDirectoryUnavailable)
	}
	return nil
}
