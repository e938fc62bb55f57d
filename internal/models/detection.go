package models

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// RawDetectionRecord is one backend row: every sensor reading a camera reported at a timestamp.
type RawDetectionRecord struct {
	Datetime   string      `json:"datetime"`
	CamIndex   FlexString  `json:"cam_index"`
	Detections []Detection `json:"detected_list"`
}

// Detection is a single named sensor value inside a RawDetectionRecord.
type Detection struct {
	DeviceID            FlexString `json:"device_id"`
	DeviceName          string     `json:"device_name"`
	Value               FlexString `json:"value"`
	LatestDetectionTime string     `json:"latest_detection_time"`
}

// FlexString accepts a JSON string, number or null and keeps the textual form.
// The backend is inconsistent about quoting identifiers and values. Numbers are kept in their
// shortest decimal form, so 1.0 and 1 both read as "1".
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*f = ""
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	*f = FlexString(canonicalNumber(string(trimmed)))
	return nil
}

// canonicalNumber rewrites a JSON number literal in shortest decimal form. Plain integers are
// kept verbatim so identifiers beyond float precision survive; anything else is returned as is.
func canonicalNumber(literal string) string {
	if !strings.ContainsAny(literal, ".eE") {
		if literal == "-0" {
			return "0"
		}
		return literal
	}
	v, err := strconv.ParseFloat(literal, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return literal
	}
	if v == 0 {
		return "0"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// String returns the raw text.
func (f FlexString) String() string { return string(f) }
