package services

import (
	"time"

	"github.com/openpnl/bitget-orders-go/internal/models"
)

// PartitionTimeRange splits the lookback horizon ending at now into
// contiguous, non-overlapping windows of the given size for parallel symbol
// discovery. Window ends are inclusive (end = start + window - 1ms) except
// the last window, which is clipped to now. A non-positive lookback or
// window size yields an empty list.
func PartitionTimeRange(now time.Time, lookback, window time.Duration) []models.TimeWindow {
	if lookback <= 0 || window <= 0 {
		return nil
	}

	endTime := now.UnixMilli()
	startTime := endTime - lookback.Milliseconds()
	windowMs := window.Milliseconds()

	var windows []models.TimeWindow
	windowID := 1
	for currentStart := startTime; currentStart < endTime; windowID++ {
		currentEnd := currentStart + windowMs - 1
		if currentEnd > endTime {
			currentEnd = endTime
		}
		windows = append(windows, models.TimeWindow{
			WindowID:  windowID,
			StartTime: models.EpochMillis(currentStart),
			EndTime:   models.EpochMillis(currentEnd),
			StartDate: time.UnixMilli(currentStart).UTC().Format(time.RFC3339),
			EndDate:   time.UnixMilli(currentEnd).UTC().Format(time.RFC3339),
		})
		currentStart = currentEnd + 1
	}
	return windows
}
