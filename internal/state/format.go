package state

import (
	"fmt"
	"strings"
)

const (
	ProgressLength = 15
	progressFilled = "▓"
	progressEmpty  = "░"
)

// FormatDuration renders ms as mm:ss, or hh:mm:ss past the hour.
func FormatDuration(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	total := ms / 1000
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

func ProgressBar(current, total int64, length int) string {
	if length <= 0 {
		length = ProgressLength
	}
	if total <= 0 {
		return strings.Repeat(progressEmpty, length)
	}
	progress := float64(current) / float64(total)
	progress = max(0, min(progress, 1))
	filled := int(progress*float64(length) + 0.5)
	return strings.Repeat(progressFilled, filled) + strings.Repeat(progressEmpty, length-filled)
}

func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
