package visit

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Clinic working hours. Slots are one hour wide, the end hour is exclusive.
const (
	slotStartHour = 8
	slotEndHour   = 15
)

// workingWeekdays is the clinic working week, Sunday through Thursday.
var workingWeekdays = map[time.Weekday]bool{
	time.Sunday:    true,
	time.Monday:    true,
	time.Tuesday:   true,
	time.Wednesday: true,
	time.Thursday:  true,
}

// Slots returns the full catalog of bookable time labels for a working
// day, ordered ascending, formatted as zero-padded "HH:00".
func Slots() []string {
	slots := make([]string, 0, slotEndHour-slotStartHour)
	for h := slotStartHour; h < slotEndHour; h++ {
		slots = append(slots, fmt.Sprintf("%02d:00", h))
	}
	return slots
}

// IsSlot reports whether label is a member of the slot catalog.
func IsSlot(label string) bool {
	for _, s := range Slots() {
		if s == label {
			return true
		}
	}
	return false
}

// NormalizeDay strips the time-of-day component and fixes the value to
// UTC midnight. All visit dates are stored and compared in this form.
func NormalizeDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// DayString renders a normalized day as the schedule ledger key format.
func DayString(day time.Time) string {
	return day.UTC().Format("2006-01-02")
}

// ParseDay parses a "YYYY-MM-DD" date string into a normalized day.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse day %q: %w", s, err)
	}
	return NormalizeDay(t), nil
}

// SlotInstant resolves a (day, slot label) pair to the moment the slot
// begins. The label must come from the catalog.
func SlotInstant(day time.Time, label string) (time.Time, error) {
	hh, _, ok := strings.Cut(label, ":")
	if !ok {
		return time.Time{}, fmt.Errorf("malformed slot label %q", label)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed slot label %q: %w", label, err)
	}
	return NormalizeDay(day).Add(time.Duration(hour) * time.Hour), nil
}

// IsWorkingDay reports whether the clinic is open on the given day.
func IsWorkingDay(day time.Time) bool {
	return workingWeekdays[day.UTC().Weekday()]
}

// NextWorkingDays returns the next count working days starting from
// today inclusive.
func NextWorkingDays(from time.Time, count int) []time.Time {
	days := make([]time.Time, 0, count)
	d := NormalizeDay(from)
	for len(days) < count {
		if IsWorkingDay(d) {
			days = append(days, d)
		}
		d = d.AddDate(0, 0, 1)
	}
	return days
}
