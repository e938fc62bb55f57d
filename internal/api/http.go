package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/miradorstack/equipment-monitor/internal/models"
	"github.com/miradorstack/equipment-monitor/internal/monitor"
)

const requestIDHeader = "X-Request-ID"

// Controller is the coordinator surface the REST layer drives.
type Controller interface {
	Snapshot() (models.Snapshot, monitor.State)
	Select(deviceID string)
	SetWindow(window models.QueryWindow) error
	Refresh(ctx context.Context) (models.Snapshot, error)
}

// RosterSource lists the backend's devices.
type RosterSource interface {
	FetchDevices(ctx context.Context) (models.Roster, error)
}

// NewRouter builds the gin engine for the REST and WebSocket surface. roster and hub may be nil.
func NewRouter(ctrl Controller, roster RosterSource, hub *Hub, logger *slog.Logger) *gin.Engine {
	if logger == nil {
		logger = slog.Default()
	}
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), requestLogger(logger))

	h := &restHandlers{ctrl: ctrl, roster: roster, logger: logger}
	r.GET("/healthz", h.health)

	v1 := r.Group("/api/v1")
	v1.GET("/snapshot", h.snapshot)
	v1.GET("/series", h.series)
	v1.GET("/analysis", h.analysis)
	v1.GET("/anomalies", h.anomalies)
	v1.GET("/hotspots", h.hotspots)
	v1.GET("/devices", h.devices)
	v1.PUT("/selection", h.selectDevice)
	v1.PUT("/window", h.setWindow)
	v1.POST("/refresh", h.refresh)
	if hub != nil {
		v1.GET("/ws", hub.Handle)
	}
	return r
}

type restHandlers struct {
	ctrl   Controller
	roster RosterSource
	logger *slog.Logger
}

func (h *restHandlers) health(c *gin.Context) {
	snap, state := h.ctrl.Snapshot()
	c.JSON(http.StatusOK, gin.H{"status": "ok", "state": state, "generation": snap.Generation})
}

func (h *restHandlers) snapshot(c *gin.Context) {
	snap, state := h.ctrl.Snapshot()
	c.JSON(http.StatusOK, SnapshotResponse{State: string(state), Snapshot: snap})
}

func (h *restHandlers) series(c *gin.Context) {
	snap, _ := h.ctrl.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"deviceId":    snap.DeviceID,
		"generation":  snap.Generation,
		"parameters":  snap.Parameters,
		"series":      snap.Series,
		"latestStats": snap.LatestStats,
		"equipment":   snap.Equipment,
	})
}

func (h *restHandlers) analysis(c *gin.Context) {
	snap, _ := h.ctrl.Snapshot()
	c.JSON(http.StatusOK, snap.Analysis)
}

func (h *restHandlers) anomalies(c *gin.Context) {
	snap, _ := h.ctrl.Snapshot()
	filtered := FilterAnomalies(snap.Analysis.Anomalies, c.Query("severity"))
	c.JSON(http.StatusOK, gin.H{"anomalies": filtered, "count": len(filtered)})
}

func (h *restHandlers) hotspots(c *gin.Context) {
	snap, _ := h.ctrl.Snapshot()
	c.JSON(http.StatusOK, gin.H{"hotspots": snap.Hotspots})
}

func (h *restHandlers) devices(c *gin.Context) {
	if h.roster == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "device roster not configured"})
		return
	}
	roster, err := h.roster.FetchDevices(c.Request.Context())
	if err != nil {
		h.logger.Error("list devices failed", slog.Any("error", err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to list devices"})
		return
	}
	c.JSON(http.StatusOK, roster)
}

func (h *restHandlers) selectDevice(c *gin.Context) {
	var req SelectionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.DeviceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "deviceId is required"})
		return
	}
	h.ctrl.Select(req.DeviceID)
	c.JSON(http.StatusAccepted, gin.H{"deviceId": req.DeviceID})
}

func (h *restHandlers) setWindow(c *gin.Context) {
	var window models.QueryWindow
	if err := c.ShouldBindJSON(&window); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid window body"})
		return
	}
	if err := h.ctrl.SetWindow(window); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"window": window})
}

func (h *restHandlers) refresh(c *gin.Context) {
	// A client disconnect must not abort a cycle the other subscribers will receive.
	snap, err := h.ctrl.Refresh(context.WithoutCancel(c.Request.Context()))
	switch {
	case errors.Is(err, monitor.ErrNoDevice):
		c.JSON(http.StatusConflict, gin.H{"error": "no device selected"})
	case errors.Is(err, monitor.ErrAbandoned):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "refresh abandoned"})
	case errors.Is(err, monitor.ErrStale):
		c.JSON(http.StatusAccepted, SnapshotResponse{State: string(monitor.StateFetching), Snapshot: snap})
	case err != nil:
		c.JSON(http.StatusBadGateway, gin.H{"error": snap.Error})
	default:
		c.JSON(http.StatusOK, SnapshotResponse{State: string(monitor.StateIdle), Snapshot: snap})
	}
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
			c.Request.Header.Set(requestIDHeader, id)
		}
		c.Writer.Header().Set(requestIDHeader, id)
		c.Next()
	}
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		level := slog.LevelDebug
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}
		logger.Log(c.Request.Context(), level, "http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", status),
			slog.Duration("latency", time.Since(start)),
			slog.String("request_id", c.Request.Header.Get(requestIDHeader)),
		)
	}
}

// HTTPServer serves the gin router with graceful shutdown.
type HTTPServer struct {
	srv *http.Server
}

// NewHTTPServer binds handler to addr.
func NewHTTPServer(addr string, handler http.Handler) *HTTPServer {
	return &HTTPServer{srv: &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

// Start serves until Shutdown; a graceful close is not reported as an error.
func (s *HTTPServer) Start() error {
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
