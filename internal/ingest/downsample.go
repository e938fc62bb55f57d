package ingest

// MaxChartPoints is the record count above which a window is down-sampled.
const MaxChartPoints = 100

// Downsample keeps every ceil(n/limit)-th item once len(items) exceeds limit.
// The first and last items always survive and order is preserved.
func Downsample[T any](items []T, limit int) []T {
	n := len(items)
	if limit <= 0 || n <= limit {
		return items
	}
	step := (n + limit - 1) / limit
	out := make([]T, 0, n/step+2)
	for i, item := range items {
		if i%step == 0 || i == 0 || i == n-1 {
			out = append(out, item)
		}
	}
	return out
}
