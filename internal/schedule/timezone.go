package schedule

import (
	"strings"
	"time"

	"github.com/techtuto2024/techtuto-backend/internal/apperr"
)

const (
	// InputTimezone is the zone managers propose class times in.
	InputTimezone = "Asia/Kolkata"
	DateLayout    = "02-01-2006"
	TimeLayout    = "15:04"
)

type LocalView struct {
	Date     string `json:"date"`
	Time     string `json:"time"`
	Zone     string `json:"zone"`
	Timezone string `json:"timezone"`
}

// ResolveLocation loads an IANA zone, falling back to UTC for empty or
// unknown names. "Local" names the host zone, not a user's, and is refused.
func ResolveLocation(name string) *time.Location {
	name = strings.TrimSpace(name)
	if name == "" || name == "Local" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ParseInput reads a DD-MM-YYYY date and HH:mm time as wall clock in
// InputTimezone.
func ParseInput(date, clock string) (time.Time, error) {
	loc, err := time.LoadLocation(InputTimezone)
	if err != nil {
		return time.Time{}, apperr.Internal("input timezone unavailable", err)
	}
	day, err := time.ParseInLocation(DateLayout, strings.TrimSpace(date), loc)
	if err != nil {
		return time.Time{}, apperr.Validation(apperr.CodeInvalidDate, "Class date must be in DD-MM-YYYY format")
	}
	at, err := time.Parse(TimeLayout, strings.TrimSpace(clock))
	if err != nil {
		return time.Time{}, apperr.Validation(apperr.CodeInvalidTime, "Class time must be in HH:mm format")
	}
	return time.Date(day.Year(), day.Month(), day.Day(), at.Hour(), at.Minute(), 0, 0, loc), nil
}

func Localize(instant time.Time, loc *time.Location) LocalView {
	if loc == nil {
		loc = time.UTC
	}
	local := instant.In(loc)
	return LocalView{
		Date:     local.Format(DateLayout),
		Time:     local.Format(TimeLayout),
		Zone:     local.Format("MST"),
		Timezone: loc.String(),
	}
}
