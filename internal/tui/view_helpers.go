package tui

import (
	"strings"
	"time"
)

func statusTag(status string) string {
	text := strings.ToLower(status)
	switch {
	case strings.Contains(text, "failed"),
		strings.Contains(text, "error"),
		strings.Contains(text, "timeout"),
		strings.Contains(text, "disconnected"):
		return "[ERR]"
	case strings.Contains(text, "stopped"),
		strings.Contains(text, "idle"),
		strings.Contains(text, "cleared"):
		return "[WARN]"
	case strings.Contains(text, "started"),
		strings.Contains(text, "new tag"),
		strings.Contains(text, "connected"):
		return "[OK]"
	default:
		return "[INFO ]"
	}
}

func onOff(value bool) string {
	if value {
		return "ON"
	}
	return "OFF"
}

func formatShortTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format("15:04:05")
}

func fallback(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func trimText(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	if limit <= 3 {
		return string(r[:limit])
	}
	return string(r[:limit-3]) + "..."
}

func runeLen(s string) int {
	return len([]rune(s))
}

func padRight(s string, width int) string {
	n := runeLen(s)
	if n >= width {
		return s
	}
	return s + strings.Repeat(" ", width-n)
}

func clampInt(value, minValue, maxValue int) int {
	if value < minValue {
		return minValue
	}
	if value > maxValue {
		return maxValue
	}
	return value
}

// listWindow returns the [start, end) slice of total rows that keeps the
// cursor visible in size lines.
func listWindow(cursor, total, size int) (int, int) {
	if total <= size {
		return 0, total
	}
	start := cursor - size/2
	start = clampInt(start, 0, total-size)
	return start, start + size
}
