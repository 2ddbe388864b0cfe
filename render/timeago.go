package render

import (
	"fmt"
	"time"
)

// FormatTimeAgo formats a millisecond timestamp relative to now, e.g. "45s ago".
// Each unit is floored; timestamps in the future count as "0s ago".
func FormatTimeAgo(tsMs int64, now time.Time) string {
	diff := now.UnixMilli() - tsMs
	if diff < 0 {
		diff = 0
	}

	seconds := diff / 1000
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	switch {
	case seconds < 60:
		return fmt.Sprintf("%ds ago", seconds)
	case minutes < 60:
		return fmt.Sprintf("%dm ago", minutes)
	case hours < 24:
		return fmt.Sprintf("%dh ago", hours)
	default:
		return fmt.Sprintf("%dd ago", days)
	}
}
