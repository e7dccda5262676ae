package service

import (
	"strconv"
	"strings"
	"time"
)

// parseTimeout parses an eta_max string into whole seconds. It accepts a
// bare integer/float ("90" -> 90s) or a Go-style duration string
// ("1h30m", "45s"), matching the flexible timeout strings workers pass on
// fetch_task's eta_max argument.
func parseTimeout(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, invalidInput("eta_max must not be empty")
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return int(n), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, invalidInput("invalid eta_max %q: %v", s, err)
	}
	return int(d.Seconds()), nil
}
