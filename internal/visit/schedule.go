package visit

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// ReservedSlot is one reserved entry inside a schedule ledger day.
type ReservedSlot struct {
	Time      string            `json:"time"`
	PatientID uuid.UUID         `json:"patient_id"`
	Status    ReservationStatus `json:"status"`
}

// ScheduleDay is the per-doctor-per-day ledger projection of the visit
// collection, kept for fast availability reads. Visits are the source
// of truth; a day can always be rebuilt from them.
//
// Invariant: AvailableSlots plus the times of pending ReservedSlots
// equal the full slot catalog, with no label in both sets.
type ScheduleDay struct {
	ID             uuid.UUID
	DoctorID       uuid.UUID
	Date           string
	AvailableSlots []string
	ReservedSlots  []ReservedSlot
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewScheduleDay initializes a ledger day with the full catalog open.
func NewScheduleDay(doctorID uuid.UUID, date string) *ScheduleDay {
	return &ScheduleDay{
		ID:             uuid.New(),
		DoctorID:       doctorID,
		Date:           date,
		AvailableSlots: Slots(),
		ReservedSlots:  []ReservedSlot{},
	}
}

// Reserve moves a slot label from available to pending-reserved. Both
// halves are idempotent: a label already absent from AvailableSlots is
// not an error, and an existing pending entry for the same time is not
// duplicated.
func (d *ScheduleDay) Reserve(slot string, patientID uuid.UUID) {
	d.AvailableSlots = removeLabel(d.AvailableSlots, slot)
	for _, r := range d.ReservedSlots {
		if r.Time == slot && r.Status == ReservationPending {
			return
		}
	}
	d.ReservedSlots = append(d.ReservedSlots, ReservedSlot{
		Time:      slot,
		PatientID: patientID,
		Status:    ReservationPending,
	})
}

// Release drops the reserved entry matching (slot, patient) and puts
// the label back into AvailableSlots, kept sorted ascending. Used for
// patient-initiated cancellation.
func (d *ScheduleDay) Release(slot string, patientID uuid.UUID) bool {
	idx := d.findReserved(slot, patientID)
	if idx < 0 {
		return false
	}
	d.ReservedSlots = append(d.ReservedSlots[:idx], d.ReservedSlots[idx+1:]...)
	d.AvailableSlots = insertLabel(d.AvailableSlots, slot)
	return true
}

// Expire marks the reserved entry matching (slot, patient) cancelled
// without removing it. Used by the expiry sweep so the day still shows
// the no-show.
func (d *ScheduleDay) Expire(slot string, patientID uuid.UUID) bool {
	idx := d.findReserved(slot, patientID)
	if idx < 0 {
		return false
	}
	d.ReservedSlots[idx].Status = ReservationCancelled
	return true
}

func (d *ScheduleDay) findReserved(slot string, patientID uuid.UUID) int {
	for i, r := range d.ReservedSlots {
		if r.Time == slot && r.PatientID == patientID && r.Status == ReservationPending {
			return i
		}
	}
	return -1
}

// PendingTimes returns the labels currently held by pending reservations.
func (d *ScheduleDay) PendingTimes() []string {
	var times []string
	for _, r := range d.ReservedSlots {
		if r.Status == ReservationPending {
			times = append(times, r.Time)
		}
	}
	return times
}

func removeLabel(labels []string, label string) []string {
	out := labels[:0]
	for _, l := range labels {
		if l != label {
			out = append(out, l)
		}
	}
	return out
}

func insertLabel(labels []string, label string) []string {
	for _, l := range labels {
		if l == label {
			return labels
		}
	}
	labels = append(labels, label)
	sort.Strings(labels)
	return labels
}
