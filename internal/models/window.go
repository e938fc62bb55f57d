package models

// QueryWindow is the user-selected time range, as dates (YYYY-MM-DD) and clock times (HH:MM).
type QueryWindow struct {
	StartDate string `json:"startDate"`
	StartTime string `json:"startTime"`
	EndDate   string `json:"endDate"`
	EndTime   string `json:"endTime"`
}
