package repo

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/miradorstack/equipment-monitor/internal/models"
)

var leadingNumber = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)`)

// TransformRoster maps backend device rows onto the sorted roster and its summary.
// Row keys may arrive capitalised ("Name") or not ("name").
func TransformRoster(rows []map[string]any) models.Roster {
	devices := make([]models.Device, 0, len(rows))
	for _, row := range rows {
		devices = append(devices, transformDevice(row))
	}
	sortDevices(devices)
	return models.Roster{Devices: devices, Summary: summarise(devices)}
}

func transformDevice(row map[string]any) models.Device {
	connected := field(row, "Connected")
	alarm := field(row, "Alarm")
	return models.Device{
		ID:            field(row, "Num"),
		Name:          field(row, "Name"),
		Status:        DeviceStatus(field(row, "Status"), connected),
		Connected:     connected == "1" || connected == "Yes",
		Warning:       alarm != "0" && alarm != "",
		WorkCount:     int(leadingFloat(field(row, "PieceConuter"), true)),
		Efficiency:    efficiency(field(row, "operationRate")),
		OperationMode: field(row, "OpMode"),
		ProgramNo:     field(row, "ProgramNo"),
		ToolCode:      field(row, "TCode"),
		SpindleLoad:   leadingFloat(field(row, "SpindleLoad"), false),
		SpindleSpeed:  int(leadingFloat(field(row, "SpindleSpeed"), true)),
		FeedRate:      int(leadingFloat(field(row, "Feedrate"), true)),
		PowerOnTime:   field(row, "PowerOnTime"),
		Rates: models.DeviceRates{
			Operation: fmt.Sprintf("%.2f", leadingFloat(field(row, "operationRate"), false)),
			Idle:      fmt.Sprintf("%.2f", leadingFloat(field(row, "idleRate"), false)),
			Alarm:     fmt.Sprintf("%.2f", leadingFloat(field(row, "alarmRate"), false)),
			Offline:   fmt.Sprintf("%.2f", leadingFloat(field(row, "offlineRate"), false)),
		},
	}
}

// DeviceStatus maps a backend status onto the roster vocabulary. Anything not
// explicitly connected ("Yes") is offline.
func DeviceStatus(status, connected string) models.EquipmentStatus {
	if connected != "Yes" {
		return models.StatusOffline
	}
	switch strings.ToUpper(status) {
	case "RUN", "RUNNING":
		return models.StatusRunning
	case "IDLE":
		return models.StatusIdle
	case "ALARM", "ERROR":
		return models.StatusError
	default:
		return models.StatusOffline
	}
}

func efficiency(rate string) string {
	v := leadingFloat(rate, false)
	if rate == "" || v == 0 {
		return "0.0000"
	}
	return fmt.Sprintf("%.4f", v)
}

func summarise(devices []models.Device) models.RosterSummary {
	var summary models.RosterSummary
	total, connected := 0.0, 0
	for _, d := range devices {
		switch d.Status {
		case models.StatusError:
			summary.Error++
		case models.StatusIdle:
			summary.Idle++
		case models.StatusRunning:
			summary.Running++
		}
		if !d.Connected {
			summary.Offline++
			continue
		}
		connected++
		total += leadingFloat(d.Efficiency, false)
	}
	summary.AverageEfficiency = "0"
	if connected > 0 {
		summary.AverageEfficiency = fmt.Sprintf("%.4f", total/float64(connected))
	}
	return summary
}

func sortDevices(devices []models.Device) {
	sort.SliceStable(devices, func(i, j int) bool {
		pi, pj := devices[i].Status.Priority(), devices[j].Status.Priority()
		if pi != pj {
			return pi < pj
		}
		return naturalLess(devices[i].Name, devices[j].Name)
	})
}

// naturalLess compares strings with embedded digit runs ordered numerically ("M2" < "M10").
func naturalLess(a, b string) bool {
	ra, rb := []rune(a), []rune(b)
	i, j := 0, 0
	for i < len(ra) && j < len(rb) {
		if unicode.IsDigit(ra[i]) && unicode.IsDigit(rb[j]) {
			si := i
			for i < len(ra) && unicode.IsDigit(ra[i]) {
				i++
			}
			sj := j
			for j < len(rb) && unicode.IsDigit(rb[j]) {
				j++
			}
			na := strings.TrimLeft(string(ra[si:i]), "0")
			nb := strings.TrimLeft(string(rb[sj:j]), "0")
			if len(na) != len(nb) {
				return len(na) < len(nb)
			}
			if na != nb {
				return na < nb
			}
			continue
		}
		ca, cb := unicode.ToLower(ra[i]), unicode.ToLower(rb[j])
		if ca != cb {
			return ca < cb
		}
		i++
		j++
	}
	return len(ra)-i < len(rb)-j
}

// field reads key in either leading-case form and renders scalars as text.
func field(row map[string]any, key string) string {
	v, ok := row[key]
	if !ok || isEmpty(v) {
		lower := strings.ToLower(key[:1]) + key[1:]
		v, ok = row[lower]
	}
	if !ok || v == nil {
		return ""
	}
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

// leadingFloat parses the numeric prefix of s; integer truncates at the decimal point.
func leadingFloat(s string, integer bool) float64 {
	m := leadingNumber.FindString(strings.TrimSpace(s))
	if m == "" {
		return 0
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0
	}
	if integer {
		if v < 0 {
			return -float64(int64(-v))
		}
		return float64(int64(v))
	}
	return v
}
