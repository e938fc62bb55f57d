package api

import (
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/equipment-monitor/internal/models"
)

// ToStruct converts any JSON-encodable value into a protobuf Struct.
func ToStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("payload is not an object: %w", err)
	}
	return structpb.NewStruct(m)
}

// FromStruct decodes a protobuf Struct into out through its JSON form.
func FromStruct(s *structpb.Struct, out any) error {
	if s == nil {
		return fmt.Errorf("request is nil")
	}
	data, err := s.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

// SelectionRequest is the body of a device selection.
type SelectionRequest struct {
	DeviceID string `json:"deviceId"`
}

// DeviceIDFromStruct extracts and validates deviceId.
func DeviceIDFromStruct(s *structpb.Struct) (string, error) {
	var req SelectionRequest
	if err := FromStruct(s, &req); err != nil {
		return "", err
	}
	id := strings.TrimSpace(req.DeviceID)
	if id == "" {
		return "", fmt.Errorf("deviceId is required")
	}
	return id, nil
}

// WindowFromStruct extracts the query window.
func WindowFromStruct(s *structpb.Struct) (models.QueryWindow, error) {
	var w models.QueryWindow
	if err := FromStruct(s, &w); err != nil {
		return models.QueryWindow{}, err
	}
	return w, nil
}

// SnapshotResponse is the payload of snapshot reads over REST and gRPC.
type SnapshotResponse struct {
	State    string          `json:"state"`
	Snapshot models.Snapshot `json:"snapshot"`
}

// FilterAnomalies keeps anomalies whose severity is in the comma-separated list. An empty
// list keeps everything.
func FilterAnomalies(anomalies []models.Anomaly, severities string) []models.Anomaly {
	if strings.TrimSpace(severities) == "" {
		return anomalies
	}
	allowed := make(map[models.Severity]struct{})
	for _, s := range strings.Split(severities, ",") {
		allowed[models.Severity(strings.ToLower(strings.TrimSpace(s)))] = struct{}{}
	}
	out := make([]models.Anomaly, 0, len(anomalies))
	for _, a := range anomalies {
		if _, ok := allowed[a.Severity]; ok {
			out = append(out, a)
		}
	}
	return out
}
