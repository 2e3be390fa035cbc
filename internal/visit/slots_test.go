package visit

import (
	"testing"
	"time"
)

func TestSlotsCatalog(t *testing.T) {
	slots := Slots()

	want := []string{"08:00", "09:00", "10:00", "11:00", "12:00", "13:00", "14:00"}
	if len(slots) != len(want) {
		t.Fatalf("expected %d slots, got %d", len(want), len(slots))
	}
	for i, s := range want {
		if slots[i] != s {
			t.Fatalf("slot %d: expected %q, got %q", i, s, slots[i])
		}
	}
}

func TestSlotsDeterministic(t *testing.T) {
	a := Slots()
	b := Slots()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("catalog not deterministic at %d: %q vs %q", i, a[i], b[i])
		}
	}
}

func TestIsSlot(t *testing.T) {
	if !IsSlot("08:00") {
		t.Fatal("08:00 should be a slot")
	}
	if IsSlot("15:00") {
		t.Fatal("15:00 is past the end hour")
	}
	if IsSlot("8:00") {
		t.Fatal("unpadded labels are not catalog members")
	}
	if IsSlot("") {
		t.Fatal("empty label is not a slot")
	}
}

func TestNormalizeDay(t *testing.T) {
	in := time.Date(2025, 6, 2, 14, 35, 12, 99, time.FixedZone("X", 3*3600))
	day := NormalizeDay(in)

	if day.Hour() != 0 || day.Minute() != 0 || day.Second() != 0 || day.Nanosecond() != 0 {
		t.Fatalf("expected midnight, got %v", day)
	}
	if day.Location() != time.UTC {
		t.Fatalf("expected UTC, got %v", day.Location())
	}
	if NormalizeDay(day) != day {
		t.Fatal("normalization must be idempotent")
	}
}

func TestSlotInstant(t *testing.T) {
	day, err := ParseDay("2025-06-02")
	if err != nil {
		t.Fatalf("parse day: %v", err)
	}

	at, err := SlotInstant(day, "09:00")
	if err != nil {
		t.Fatalf("slot instant: %v", err)
	}
	want := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	if !at.Equal(want) {
		t.Fatalf("expected %v, got %v", want, at)
	}

	if _, err := SlotInstant(day, "morning"); err == nil {
		t.Fatal("expected error for malformed label")
	}
}

func TestNextWorkingDays(t *testing.T) {
	// 2025-06-06 is a Friday; the working week is Sunday-Thursday.
	friday, _ := ParseDay("2025-06-06")
	days := NextWorkingDays(friday, 3)

	want := []string{"2025-06-08", "2025-06-09", "2025-06-10"}
	if len(days) != len(want) {
		t.Fatalf("expected %d days, got %d", len(want), len(days))
	}
	for i, w := range want {
		if DayString(days[i]) != w {
			t.Fatalf("day %d: expected %s, got %s", i, w, DayString(days[i]))
		}
	}
}
