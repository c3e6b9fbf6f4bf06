// Package cadence parses and evaluates the recurrence rules that gate how
// often a source may run.
package cadence

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Frequency is the base recurrence of a rule.
type Frequency string

const (
	Daily   Frequency = "DAILY"
	Weekly  Frequency = "WEEKLY"
	Monthly Frequency = "MONTHLY"
)

// Rule is a recurrence rule in RRULE-style form, e.g.
// "FREQ=WEEKLY;BYDAY=MO;BYHOUR=6;BYMINUTE=30". All times are UTC.
type Rule struct {
	Frequency Frequency
	Hour      int
	Minute    int
	Weekday   time.Weekday // WEEKLY only
	MonthDay  int          // MONTHLY only, 1..28
}

var weekdayCodes = map[string]time.Weekday{
	"SU": time.Sunday,
	"MO": time.Monday,
	"TU": time.Tuesday,
	"WE": time.Wednesday,
	"TH": time.Thursday,
	"FR": time.Friday,
	"SA": time.Saturday,
}

// Parse reads a rule string. The bare words "daily", "weekly" and "monthly"
// are accepted as shorthands.
func Parse(s string) (Rule, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Rule{}, eris.New("cadence: empty rule")
	}
	r := Rule{Weekday: time.Monday, MonthDay: 1}

	switch Frequency(strings.ToUpper(s)) {
	case Daily, Weekly, Monthly:
		r.Frequency = Frequency(strings.ToUpper(s))
		return r, nil
	}

	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return Rule{}, eris.Errorf("cadence: malformed part %q", part)
		}
		k = strings.ToUpper(strings.TrimSpace(k))
		v = strings.ToUpper(strings.TrimSpace(v))

		switch k {
		case "FREQ":
			switch Frequency(v) {
			case Daily, Weekly, Monthly:
				r.Frequency = Frequency(v)
			default:
				return Rule{}, eris.Errorf("cadence: unsupported frequency %q", v)
			}
		case "BYHOUR":
			n, err := boundedInt(v, 0, 23)
			if err != nil {
				return Rule{}, eris.Wrap(err, "cadence: BYHOUR")
			}
			r.Hour = n
		case "BYMINUTE":
			n, err := boundedInt(v, 0, 59)
			if err != nil {
				return Rule{}, eris.Wrap(err, "cadence: BYMINUTE")
			}
			r.Minute = n
		case "BYDAY":
			wd, ok := weekdayCodes[v]
			if !ok {
				return Rule{}, eris.Errorf("cadence: unknown weekday %q", v)
			}
			r.Weekday = wd
		case "BYMONTHDAY":
			n, err := boundedInt(v, 1, 28)
			if err != nil {
				return Rule{}, eris.Wrap(err, "cadence: BYMONTHDAY")
			}
			r.MonthDay = n
		default:
			// Unknown parts (INTERVAL, BYSECOND, ...) are ignored.
		}
	}

	if r.Frequency == "" {
		return Rule{}, eris.New("cadence: missing FREQ")
	}
	return r, nil
}

func boundedInt(v string, lo, hi int) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("%d out of range [%d,%d]", n, lo, hi)
	}
	return n, nil
}

// String renders the rule in canonical form.
func (r Rule) String() string {
	var b strings.Builder
	b.WriteString("FREQ=")
	b.WriteString(string(r.Frequency))
	switch r.Frequency {
	case Weekly:
		b.WriteString(";BYDAY=")
		b.WriteString(weekdayCode(r.Weekday))
	case Monthly:
		b.WriteString(";BYMONTHDAY=")
		b.WriteString(strconv.Itoa(max(r.MonthDay, 1)))
	}
	fmt.Fprintf(&b, ";BYHOUR=%d;BYMINUTE=%d", r.Hour, r.Minute)
	return b.String()
}

func weekdayCode(wd time.Weekday) string {
	for code, d := range weekdayCodes {
		if d == wd {
			return code
		}
	}
	return "MO"
}

// Downgrade returns the next slower rule, preserving the time-of-day fields.
// Daily becomes weekly, weekly becomes monthly. Monthly is already the
// slowest frequency and reports false.
func (r Rule) Downgrade() (Rule, bool) {
	out := r
	switch r.Frequency {
	case Daily:
		out.Frequency = Weekly
		out.Weekday = time.Monday
	case Weekly:
		out.Frequency = Monthly
		out.MonthDay = 1
	default:
		return r, false
	}
	return out, true
}

// Interval is the nominal spacing between two scheduled slots.
func (r Rule) Interval() time.Duration {
	switch r.Frequency {
	case Daily:
		return 24 * time.Hour
	case Weekly:
		return 7 * 24 * time.Hour
	default:
		return 31 * 24 * time.Hour
	}
}

// LastSlot returns the most recent scheduled time at or before now.
func (r Rule) LastSlot(now time.Time) time.Time {
	now = now.UTC()
	switch r.Frequency {
	case Weekly:
		back := (int(now.Weekday()) - int(r.Weekday) + 7) % 7
		slot := time.Date(now.Year(), now.Month(), now.Day()-back, r.Hour, r.Minute, 0, 0, time.UTC)
		if slot.After(now) {
			slot = slot.AddDate(0, 0, -7)
		}
		return slot
	case Monthly:
		day := max(r.MonthDay, 1)
		slot := time.Date(now.Year(), now.Month(), day, r.Hour, r.Minute, 0, 0, time.UTC)
		if slot.After(now) {
			slot = time.Date(now.Year(), now.Month()-1, day, r.Hour, r.Minute, 0, 0, time.UTC)
		}
		return slot
	default:
		slot := time.Date(now.Year(), now.Month(), now.Day(), r.Hour, r.Minute, 0, 0, time.UTC)
		if slot.After(now) {
			slot = slot.AddDate(0, 0, -1)
		}
		return slot
	}
}

// Next returns the first scheduled time strictly after t.
func (r Rule) Next(t time.Time) time.Time {
	t = t.UTC()
	switch r.Frequency {
	case Weekly:
		return r.LastSlot(t).AddDate(0, 0, 7)
	case Monthly:
		last := r.LastSlot(t)
		return time.Date(last.Year(), last.Month()+1, last.Day(), r.Hour, r.Minute, 0, 0, time.UTC)
	default:
		return r.LastSlot(t).AddDate(0, 0, 1)
	}
}

// Due reports whether a run is due: true when the source has never run or
// its last run predates the most recent scheduled slot.
func (r Rule) Due(now time.Time, lastRun *time.Time) bool {
	if lastRun == nil {
		return true
	}
	return lastRun.Before(r.LastSlot(now))
}
