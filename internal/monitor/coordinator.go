// Package monitor runs the fetch cycles that keep the device snapshot current.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/miradorstack/equipment-monitor/internal/engine"
	"github.com/miradorstack/equipment-monitor/internal/ingest"
	"github.com/miradorstack/equipment-monitor/internal/metrics"
	"github.com/miradorstack/equipment-monitor/internal/models"
	"github.com/miradorstack/equipment-monitor/internal/patterns"
	"github.com/miradorstack/equipment-monitor/internal/tracing"
	"github.com/miradorstack/equipment-monitor/internal/utils"
)

// ErrNoDevice is returned by Refresh when no device has been selected.
var ErrNoDevice = errors.New("no device selected")

// ErrStale is returned by Refresh when a newer cycle superseded this one.
var ErrStale = errors.New("fetch superseded by a newer request")

// ErrAbandoned is returned by Refresh when the caller's context ended before the fetch finished.
// Nothing is committed: the previous snapshot stays in place.
var ErrAbandoned = errors.New("fetch abandoned by caller")

// Fetcher retrieves raw detection records for a camera between two backend timestamps.
type Fetcher interface {
	FetchDetectedContent(ctx context.Context, startTime, endTime, camIndex string) ([]models.RawDetectionRecord, error)
}

// Listener receives every committed snapshot in generation order.
type Listener interface {
	OnSnapshot(ctx context.Context, snapshot models.Snapshot)
}

// State is the coordinator's coarse lifecycle state.
type State string

const (
	StateIdle     State = "idle"
	StateFetching State = "fetching"
)

// Options configures a Coordinator.
type Options struct {
	PollInterval  time.Duration
	DefaultDevice string
	DefaultWindow models.QueryWindow
	HotspotLimit  int
	// Now is used to fill empty window dates; defaults to time.Now.
	Now func() time.Time
}

// Coordinator serialises device/window changes and ticker refreshes onto a single snapshot.
// Every cycle is tagged with a generation; only the latest issued generation may commit.
type Coordinator struct {
	fetcher  Fetcher
	analyzer *engine.Analyzer
	miner    *patterns.Miner
	logger   *slog.Logger
	tracer   trace.Tracer
	interval time.Duration
	now      func() time.Time

	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc
	state      State
	deviceID   string
	window     models.QueryWindow
	snapshot   models.Snapshot
	listeners  []Listener
	baseCtx    context.Context

	notifyMu     sync.Mutex
	lastNotified uint64

	wg sync.WaitGroup
}

// NewCoordinator wires a coordinator. A nil analyzer uses the built-in vocabulary.
func NewCoordinator(fetcher Fetcher, analyzer *engine.Analyzer, logger *slog.Logger, opts Options) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if analyzer == nil {
		analyzer = engine.NewAnalyzer(logger, nil)
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 10 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	c := &Coordinator{
		fetcher:  fetcher,
		analyzer: analyzer,
		miner:    patterns.NewMiner(logger, opts.HotspotLimit),
		logger:   logger,
		tracer:   tracing.Tracer(),
		interval: opts.PollInterval,
		now:      opts.Now,
		state:    StateIdle,
		deviceID: opts.DefaultDevice,
		snapshot: models.EmptySnapshot(),
		baseCtx:  context.Background(),
	}
	c.window = c.fillWindow(opts.DefaultWindow)
	c.snapshot.DeviceID = c.deviceID
	c.snapshot.Window = c.window
	return c
}

// AddListener registers l for committed snapshots.
func (c *Coordinator) AddListener(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Run refreshes on every tick until ctx is cancelled. The current device and window are
// reused unchanged. Changes made through Select and SetWindow inherit ctx.
func (c *Coordinator) Run(ctx context.Context) error {
	c.mu.Lock()
	c.baseCtx = ctx
	c.mu.Unlock()

	c.trigger()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	c.logger.Info("coordinator started", slog.Duration("poll_interval", c.interval))

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("coordinator stopping")
			c.wg.Wait()
			return nil
		case <-ticker.C:
			if _, err := c.Refresh(ctx); err != nil && !expectedRefreshErr(err) {
				c.logger.Warn("scheduled refresh failed", slog.Any("error", err))
			}
		}
	}
}

// Select changes the device and starts a fetch for it.
func (c *Coordinator) Select(deviceID string) {
	c.mu.Lock()
	c.deviceID = deviceID
	c.mu.Unlock()
	c.logger.Info("device selected", slog.String("device_id", deviceID))
	c.trigger()
}

// SetWindow validates and installs a new query window and starts a fetch for it.
// Empty dates default to today.
func (c *Coordinator) SetWindow(window models.QueryWindow) error {
	window = c.fillWindow(window)
	if _, _, err := backendRange(window); err != nil {
		return err
	}
	c.mu.Lock()
	c.window = window
	c.mu.Unlock()
	c.trigger()
	return nil
}

// Selection returns the current device and window.
func (c *Coordinator) Selection() (string, models.QueryWindow) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deviceID, c.window
}

// Snapshot returns the last committed snapshot and the current lifecycle state.
func (c *Coordinator) Snapshot() (models.Snapshot, State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot, c.state
}

// Wait blocks until every background cycle started by Select or SetWindow has returned.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func (c *Coordinator) trigger() {
	c.mu.Lock()
	ctx := c.baseCtx
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if _, err := c.Refresh(ctx); err != nil && !expectedRefreshErr(err) {
			c.logger.Warn("refresh failed", slog.Any("error", err))
		}
	}()
}

// Refresh runs one fetch cycle for the current device and window and returns the snapshot it
// committed. A backend failure still commits: the snapshot is reset and carries the error text.
// A cycle whose own ctx was cancelled commits nothing and returns ErrAbandoned.
// Issuing a cycle cancels the one in flight, whose result is then discarded.
func (c *Coordinator) Refresh(ctx context.Context) (models.Snapshot, error) {
	c.mu.Lock()
	deviceID, window := c.deviceID, c.window
	if deviceID == "" {
		snap := c.snapshot
		c.mu.Unlock()
		metrics.ObserveFetchCycle(0, metrics.OutcomeSkipped)
		return snap, ErrNoDevice
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.generation++
	gen := c.generation
	cycleCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.state = StateFetching
	c.mu.Unlock()
	defer cancel()

	cycleCtx, span := tracing.StartFetchSpan(cycleCtx, c.tracer, gen, deviceID)
	defer span.End()

	started := time.Now()
	snap, fetchErr := c.build(cycleCtx, gen, deviceID, window)

	c.mu.Lock()
	if gen != c.generation {
		current := c.snapshot
		c.mu.Unlock()
		metrics.ObserveFetchCycle(time.Since(started), metrics.OutcomeStale)
		span.SetAttributes(attribute.Bool("monitor.stale", true))
		c.logger.Debug("discarding stale fetch", slog.Uint64("generation", gen))
		return current, ErrStale
	}
	if fetchErr != nil && ctx.Err() != nil {
		current := c.snapshot
		c.state = StateIdle
		c.cancel = nil
		c.mu.Unlock()
		metrics.ObserveFetchCycle(time.Since(started), metrics.OutcomeSkipped)
		span.SetAttributes(attribute.Bool("monitor.abandoned", true))
		c.logger.Debug("fetch abandoned by caller", slog.Uint64("generation", gen), slog.Any("error", ctx.Err()))
		return current, fmt.Errorf("%w: %w", ErrAbandoned, ctx.Err())
	}
	c.snapshot = snap
	c.state = StateIdle
	c.cancel = nil
	listeners := append([]Listener(nil), c.listeners...)
	c.mu.Unlock()

	if fetchErr != nil {
		tracing.RecordError(span, fetchErr)
		metrics.ObserveFetchCycle(time.Since(started), metrics.OutcomeError)
		c.logger.Error("fetch cycle failed",
			slog.Uint64("generation", gen),
			slog.String("device_id", deviceID),
			slog.Any("error", fetchErr),
		)
	} else {
		metrics.ObserveFetchCycle(time.Since(started), metrics.OutcomeSuccess)
		metrics.ObserveSnapshot(deviceID, snap.Analysis.HealthScore, len(snap.Series), severityLabels(snap.Analysis.Anomalies))
		span.SetAttributes(
			attribute.Int("monitor.points", len(snap.Series)),
			attribute.Int("monitor.anomalies", len(snap.Analysis.Anomalies)),
		)
	}

	c.publish(ctx, listeners, snap)
	return snap, fetchErr
}

func expectedRefreshErr(err error) bool {
	return errors.Is(err, ErrNoDevice) || errors.Is(err, ErrStale) || errors.Is(err, ErrAbandoned)
}

// build fetches and analyses one cycle. On error it returns the reset snapshot.
func (c *Coordinator) build(ctx context.Context, gen uint64, deviceID string, window models.QueryWindow) (models.Snapshot, error) {
	snap := models.EmptySnapshot()
	snap.Generation = gen
	snap.DeviceID = deviceID
	snap.Window = window
	snap.UpdatedAt = c.now()

	start, end, err := backendRange(window)
	if err != nil {
		snap.Error = utils.DisplayMessage(err)
		return snap, err
	}
	if c.fetcher == nil {
		err := utils.NewAppError("fetch detected content", "backend not configured", nil)
		snap.Error = utils.DisplayMessage(err)
		return snap, err
	}

	records, err := c.fetcher.FetchDetectedContent(ctx, start, end, deviceID)
	if err != nil {
		err = utils.NewAppError("fetch detected content", "failed to load equipment data", err)
		snap.Error = utils.DisplayMessage(err)
		return snap, err
	}

	result := ingest.Process(records, deviceID)
	params := result.Parameters.Names()
	snap.Series = result.Series
	snap.Parameters = params
	snap.Equipment = result.Equipment
	snap.LatestStats = result.LatestStats
	snap.Analysis = c.analyzer.Analyze(result.Series, params)
	snap.Hotspots = c.miner.Mine(snap.Analysis.Anomalies)
	return snap, nil
}

// publish hands snap to listeners unless a newer generation was already delivered.
func (c *Coordinator) publish(ctx context.Context, listeners []Listener, snap models.Snapshot) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	if snap.Generation < c.lastNotified {
		return
	}
	c.lastNotified = snap.Generation
	for _, l := range listeners {
		l.OnSnapshot(ctx, snap)
	}
}

func (c *Coordinator) fillWindow(w models.QueryWindow) models.QueryWindow {
	today := c.now().Format("2006-01-02")
	if w.StartDate == "" {
		w.StartDate = today
	}
	if w.EndDate == "" {
		w.EndDate = w.StartDate
	}
	if w.StartTime == "" {
		w.StartTime = "00:00"
	}
	if w.EndTime == "" {
		w.EndTime = "23:59"
	}
	return w
}

func backendRange(w models.QueryWindow) (string, string, error) {
	start, err := utils.BackendTimestamp(w.StartDate, w.StartTime)
	if err != nil {
		return "", "", fmt.Errorf("invalid window start: %w", err)
	}
	end, err := utils.BackendTimestamp(w.EndDate, w.EndTime)
	if err != nil {
		return "", "", fmt.Errorf("invalid window end: %w", err)
	}
	return start, end, nil
}

func severityLabels(anomalies []models.Anomaly) map[string]int {
	counts := make(map[string]int, 3)
	for _, a := range anomalies {
		counts[string(a.Severity)]++
	}
	return counts
}
