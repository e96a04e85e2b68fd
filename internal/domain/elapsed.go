package domain

import (
	"fmt"
	"time"
)

// Elapsed is a duration broken into whole days, hours and minutes.
type Elapsed struct {
	Days    int
	Hours   int
	Minutes int
}

// NewElapsed floors d into days, hours and minutes. Negative durations count as zero.
func NewElapsed(d time.Duration) Elapsed {
	if d < 0 {
		d = 0
	}
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	d -= hours * time.Hour
	return Elapsed{Days: int(days), Hours: int(hours), Minutes: int(d / time.Minute)}
}

func (e Elapsed) String() string {
	return fmt.Sprintf("%d %s, %d %s, %d %s",
		e.Days, plural(e.Days, "día", "días"),
		e.Hours, plural(e.Hours, "hora", "horas"),
		e.Minutes, plural(e.Minutes, "minuto", "minutos"))
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
