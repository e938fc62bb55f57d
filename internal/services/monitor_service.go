package services

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/equipment-monitor/internal/api"
	"github.com/miradorstack/equipment-monitor/internal/models"
	"github.com/miradorstack/equipment-monitor/internal/monitor"
	"github.com/miradorstack/equipment-monitor/internal/utils"
)

// Coordinator is the monitor surface the gRPC service drives.
type Coordinator interface {
	Snapshot() (models.Snapshot, monitor.State)
	Select(deviceID string)
	SetWindow(window models.QueryWindow) error
}

// MonitorService implements api.MonitorServer on top of the coordinator and roster client.
type MonitorService struct {
	logger      *slog.Logger
	coordinator Coordinator
	roster      api.RosterSource
	latencies   *utils.LatencyTracker
}

var _ api.MonitorServer = (*MonitorService)(nil)

// NewMonitorService constructs the service facade. roster may be nil.
func NewMonitorService(logger *slog.Logger, coordinator Coordinator, roster api.RosterSource) *MonitorService {
	if logger == nil {
		logger = slog.Default()
	}
	return &MonitorService{
		logger:      logger,
		coordinator: coordinator,
		roster:      roster,
		latencies:   utils.NewLatencyTracker(1024),
	}
}

// GetSnapshot returns the last committed snapshot with the coordinator state.
func (s *MonitorService) GetSnapshot(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if s.coordinator == nil {
		return nil, status.Error(codes.FailedPrecondition, "coordinator not configured")
	}
	snap, state := s.coordinator.Snapshot()
	out, err := api.ToStruct(api.SnapshotResponse{State: string(state), Snapshot: snap})
	if err != nil {
		s.logger.Error("encode snapshot failed", slog.Any("error", err))
		return nil, status.Error(codes.Internal, "failed to encode snapshot")
	}
	return out, nil
}

// SelectDevice switches the monitored device; the fetch runs asynchronously.
func (s *MonitorService) SelectDevice(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	if s.coordinator == nil {
		return nil, status.Error(codes.FailedPrecondition, "coordinator not configured")
	}
	deviceID, err := api.DeviceIDFromStruct(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	s.coordinator.Select(deviceID)
	s.logger.Debug("SelectDevice called", slog.String("device_id", deviceID))
	return structpb.NewStruct(map[string]any{"deviceId": deviceID, "accepted": true})
}

// SetWindow replaces the query window; the fetch runs asynchronously.
func (s *MonitorService) SetWindow(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	if s.coordinator == nil {
		return nil, status.Error(codes.FailedPrecondition, "coordinator not configured")
	}
	window, err := api.WindowFromStruct(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.coordinator.SetWindow(window); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return structpb.NewStruct(map[string]any{"accepted": true})
}

// ListDevices returns the backend roster.
func (s *MonitorService) ListDevices(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if s.roster == nil {
		return nil, status.Error(codes.FailedPrecondition, "device roster not configured")
	}

	start := time.Now()
	roster, err := s.roster.FetchDevices(ctx)
	duration := time.Since(start)
	if err != nil {
		s.logger.Error("list devices failed", slog.Any("error", err))
		if ctx.Err() != nil {
			return nil, status.FromContextError(ctx.Err()).Err()
		}
		return nil, status.Error(codes.Unavailable, "failed to list devices")
	}
	s.latencies.Observe(duration)
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		s.logger.Info("roster latency", slog.Duration("p95", s.latencies.Percentile(95)), slog.Int("samples", count))
	}

	out, err := api.ToStruct(roster)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode roster")
	}
	return out, nil
}

// RosterLatencyP95 returns the current p95 roster latency.
func (s *MonitorService) RosterLatencyP95() time.Duration {
	if s.latencies == nil {
		return 0
	}
	return s.latencies.Percentile(95)
}
