package main

import (
	"encoding/json"
	"log"
	"math"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

type detection struct {
	DeviceID            string `json:"device_id"`
	DeviceName          string `json:"device_name"`
	Value               string `json:"value"`
	LatestDetectionTime string `json:"latest_detection_time"`
}

type detectionRecord struct {
	Datetime   string      `json:"datetime"`
	CamIndex   string      `json:"cam_index"`
	Detections []detection `json:"detected_list"`
}

type envelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Result  any    `json:"result"`
}

type sensor struct {
	name      string
	base      float64
	amplitude float64
	spikeAt   int
	spike     float64
}

var sensors = []sensor{
	{name: "電流", base: 22, amplitude: 6, spikeAt: 37, spike: 46},
	{name: "電壓", base: 220, amplitude: 8},
	{name: "溫度", base: 48, amplitude: 12, spikeAt: 53, spike: 86},
	{name: "功率", base: 4.2, amplitude: 1.1},
	{name: "主軸速度", base: 2400, amplitude: 300},
}

const maxPoints = 240

func main() {
	addr := ":9090"
	if v := os.Getenv("MOCK_FACTORY_ADDRESS"); v != "" {
		addr = v
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/AREditior/GetDetectedContent", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		var req struct {
			StartTime string `json:"start_time"`
			EndTime   string `json:"end_time"`
			CamIndex  string `json:"cam_index"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		writeJSON(w, envelope{Code: "0000", Message: "ok", Result: synthesise(req.StartTime, req.EndTime, req.CamIndex)})
	})

	mux.HandleFunc("/api/AREditior/GetDeviceData", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		writeJSON(w, envelope{Code: "0000", Message: "ok", Result: []map[string]any{
			{"Num": "1", "Name": "CNC-1", "Status": "RUN", "Connected": "Yes", "Alarm": "0", "PieceConuter": "1520", "operationRate": "0.82", "idleRate": "0.12", "alarmRate": "0.01", "offlineRate": "0.05", "OpMode": "MEM", "ProgramNo": "O1234", "TCode": "T0101", "SpindleLoad": "35.5%", "SpindleSpeed": "2400 rpm", "Feedrate": "800", "PowerOnTime": "1520:10:00"},
			{"Num": "2", "Name": "CNC-2", "Status": "IDLE", "Connected": "Yes", "Alarm": "0", "PieceConuter": "870", "operationRate": "0.55", "idleRate": "0.40", "alarmRate": "0.00", "offlineRate": "0.05"},
			{"Num": "10", "Name": "CNC-10", "Status": "ALARM", "Connected": "Yes", "Alarm": "1", "PieceConuter": "12", "operationRate": "0.10", "idleRate": "0.20", "alarmRate": "0.70", "offlineRate": "0.00"},
			{"Num": "3", "Name": "Lathe-3", "Status": "RUN", "Connected": "No", "Alarm": "0", "operationRate": "0"},
		}})
	})

	logger := log.New(log.Writer(), "factory-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:              addr,
		Handler:           logRequests(logger, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Printf("listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

// synthesise returns one record per minute between start and end, capped at maxPoints.
func synthesise(start, end, cam string) []detectionRecord {
	from, ok := parseBackendTime(start)
	if !ok {
		return []detectionRecord{}
	}
	to, ok := parseBackendTime(end)
	if !ok || to.Before(from) {
		return []detectionRecord{}
	}
	if now := time.Now(); to.After(now) && from.Before(now) {
		to = now
	}

	records := make([]detectionRecord, 0, maxPoints)
	for i, ts := 0, from; !ts.After(to) && i < maxPoints; i, ts = i+1, ts.Add(time.Minute) {
		stamp := ts.Format("20060102150405")
		rec := detectionRecord{Datetime: stamp, CamIndex: cam}
		for j, s := range sensors {
			value := s.base + s.amplitude*math.Sin(float64(i)/9+float64(j))
			if s.spikeAt > 0 && i > 0 && i%s.spikeAt == 0 {
				value = s.spike
			}
			// every 41st minute drops one reading so the monitor's gap repair has work to do
			if i%41 == 40 && j == 1 {
				continue
			}
			rec.Detections = append(rec.Detections, detection{
				DeviceID:            cam,
				DeviceName:          s.name,
				Value:               formatValue(value),
				LatestDetectionTime: stamp,
			})
		}
		records = append(records, rec)
	}
	return records
}

// parseBackendTime accepts YYYYMMDDHHMMSS and the backend's 13-digit midnight form.
func parseBackendTime(ts string) (time.Time, bool) {
	ts = strings.TrimSpace(ts)
	if len(ts) < 8 {
		return time.Time{}, false
	}
	padded := (ts + "000000")[:14]
	t, err := time.ParseInLocation("20060102150405", padded, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func formatValue(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}

func enforcePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
