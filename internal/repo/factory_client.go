package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/miradorstack/equipment-monitor/internal/cache"
	"github.com/miradorstack/equipment-monitor/internal/models"
)

const (
	successCode    = "0000"
	rosterCacheKey = "roster:all"
	requestIDKey   = "X-Request-ID"
)

// FactoryClientConfig locates the factory backend endpoints.
type FactoryClientConfig struct {
	BaseURL             string
	DetectedContentPath string
	DeviceDataPath      string
	Timeout             time.Duration
	RosterTTL           time.Duration
}

// FactoryClient wraps the factory backend's detection and device APIs.
type FactoryClient struct {
	baseURL             string
	detectedContentPath string
	deviceDataPath      string
	httpClient          *http.Client
	cache               cache.Provider
	rosterTTL           time.Duration
	logger              *slog.Logger
}

// NewFactoryClient constructs a client. A nil cache disables roster caching.
func NewFactoryClient(cfg FactoryClientConfig, cacheProvider cache.Provider, logger *slog.Logger) *FactoryClient {
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FactoryClient{
		baseURL:             strings.TrimRight(cfg.BaseURL, "/"),
		detectedContentPath: cfg.DetectedContentPath,
		deviceDataPath:      cfg.DeviceDataPath,
		httpClient:          &http.Client{Timeout: cfg.Timeout},
		cache:               cacheProvider,
		rosterTTL:           cfg.RosterTTL,
		logger:              logger,
	}
}

// envelope is the backend's standard response wrapper.
type envelope struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// FetchDetectedContent returns the raw detection records between two backend timestamps
// for a camera. Payloads that are not a record array yield an empty slice and no error.
func (c *FactoryClient) FetchDetectedContent(ctx context.Context, startTime, endTime, camIndex string) ([]models.RawDetectionRecord, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	payload := map[string]string{
		"start_time": startTime,
		"end_time":   endTime,
		"cam_index":  camIndex,
	}

	var raw json.RawMessage
	if err := c.postJSON(ctx, c.resolvePath(c.detectedContentPath), payload, &raw); err != nil {
		return nil, fmt.Errorf("detected content request failed: %w", err)
	}

	items, err := unwrapArray(raw)
	if err != nil {
		return nil, fmt.Errorf("detected content request failed: %w", err)
	}
	records := make([]models.RawDetectionRecord, 0, len(items))
	for i, item := range items {
		var rec models.RawDetectionRecord
		if err := json.Unmarshal(item, &rec); err != nil {
			c.logger.Warn("skipping malformed detection record", slog.Int("index", i), slog.Any("error", err))
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// FetchDevices returns the transformed device roster, served from cache while fresh.
func (c *FactoryClient) FetchDevices(ctx context.Context) (models.Roster, error) {
	if err := c.ready(); err != nil {
		return models.Roster{}, err
	}

	if cached, err := c.cache.Get(ctx, rosterCacheKey); err == nil {
		var roster models.Roster
		if err := json.Unmarshal(cached, &roster); err == nil {
			return roster, nil
		}
		c.logger.Warn("discarding undecodable cached roster")
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		c.logger.Warn("roster cache read failed", slog.Any("error", err))
	}

	var env envelope
	if err := c.postJSON(ctx, c.resolvePath(c.deviceDataPath), map[string]string{"keyword": ""}, &env); err != nil {
		return models.Roster{}, fmt.Errorf("device data request failed: %w", err)
	}
	if env.Code != successCode {
		return models.Roster{}, fmt.Errorf("device data request failed: code %s: %s", env.Code, env.Message)
	}

	var rows []map[string]any
	if len(env.Result) > 0 && !bytes.Equal(bytes.TrimSpace(env.Result), []byte("null")) {
		if err := json.Unmarshal(env.Result, &rows); err != nil {
			var single map[string]any
			if err := json.Unmarshal(env.Result, &single); err != nil {
				return models.Roster{}, fmt.Errorf("decode device rows: %w", err)
			}
			rows = []map[string]any{single}
		}
	}
	roster := TransformRoster(rows)

	if c.rosterTTL > 0 {
		if data, err := json.Marshal(roster); err == nil {
			if err := c.cache.Set(ctx, rosterCacheKey, data, c.rosterTTL); err != nil {
				c.logger.Warn("roster cache write failed", slog.Any("error", err))
			}
		}
	}
	return roster, nil
}

// unwrapArray accepts a bare array or an envelope whose result is an array.
func unwrapArray(raw json.RawMessage) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, nil
	}
	switch trimmed[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, nil
		}
		return items, nil
	case '{':
		var env envelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, nil
		}
		if env.Code != "" && env.Code != successCode {
			return nil, fmt.Errorf("backend code %s: %s", env.Code, env.Message)
		}
		return unwrapArray(env.Result)
	default:
		return nil, nil
	}
}

func (c *FactoryClient) ready() error {
	if c == nil {
		return fmt.Errorf("factory client not initialised")
	}
	if c.baseURL == "" {
		return fmt.Errorf("factory base URL not configured")
	}
	return nil
}

func (c *FactoryClient) resolvePath(p string) string {
	if c.baseURL == "" {
		return ""
	}
	cleaned := "/" + strings.TrimLeft(p, "/")
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

func (c *FactoryClient) postJSON(ctx context.Context, endpoint string, payload any, out any) error {
	if endpoint == "" {
		return fmt.Errorf("empty endpoint")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(requestIDKey, requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("factory backend returned %s (request %s)", resp.Status, requestID)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
