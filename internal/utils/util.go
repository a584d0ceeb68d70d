package utils

import (
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
)

func EscapeMd(s string) string {
	repl := []string{"*", "\\*", "_", "\\_", "`", "\\`", "~", "\\~", "|", "\\|"}
	r := strings.NewReplacer(repl...)
	return r.Replace(s)
}

var reDur = regexp.MustCompile(`(?i)^(?:(\d+)h)?(?:(\d+)m)?(?:(\d+)s)?$`)

var reClock = regexp.MustCompile(`^(?:(\d+):)?(\d{1,2}):(\d{2})$`)

// ParseDurationString accepts plain seconds, 1h2m3s style or 1:02:03 clock
// notation and returns seconds. Unparseable input yields -1.
func ParseDurationString(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return -1
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if m := reClock.FindStringSubmatch(s); m != nil {
		return Atoi(m[1])*3600 + Atoi(m[2])*60 + Atoi(m[3])
	}
	m := reDur.FindStringSubmatch(s)
	if m == nil {
		return -1
	}
	h := Atoi(m[1])
	min := Atoi(m[2])
	sec := Atoi(m[3])
	return h*3600 + min*60 + sec
}

func Atoi(s string) int {
	if s == "" {
		return 0
	}
	v, _ := strconv.Atoi(s)
	return v
}

// ShuffleSlice is an in-place Fisher-Yates shuffle. A nil r uses the
// package level source.
func ShuffleSlice[T any](a []T, r *rand.Rand) {
	for i := len(a) - 1; i > 0; i-- {
		var j int
		if r != nil {
			j = r.IntN(i + 1)
		} else {
			j = rand.IntN(i + 1)
		}
		a[i], a[j] = a[j], a[i]
	}
}
