package visit

import (
	"time"

	"github.com/google/uuid"
)

type VisitStatus string

const (
	StatusPending    VisitStatus = "pending"
	StatusInProgress VisitStatus = "in-progress"
	StatusCompleted  VisitStatus = "completed"
	StatusCancelled  VisitStatus = "cancelled"
)

// ReservationStatus is the per-slot status inside a schedule ledger
// entry. Cancelled reservations stay listed when the sweeper expires
// them, so a freed slot and a no-show stay distinguishable.
type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "pending"
	ReservationCancelled ReservationStatus = "cancelled"
)

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Doctor struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	Specialty *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Treatment struct {
	Name string  `json:"name"`
	Cost float64 `json:"cost"`
}

// Visit is the authoritative record of one patient-doctor appointment.
// Date is always UTC midnight; Time is a slot catalog label.
type Visit struct {
	ID          uuid.UUID
	PatientID   uuid.UUID
	DoctorID    uuid.UUID
	Date        time.Time
	Time        string
	Problem     string
	Treatments  []Treatment
	TotalAmount float64
	Status      VisitStatus
	Paid        bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ScheduledAt is the moment the visit's slot begins.
func (v *Visit) ScheduledAt() (time.Time, error) {
	return SlotInstant(v.Date, v.Time)
}

// TotalOf sums treatment costs. A zero-valued cost counts as zero.
func TotalOf(treatments []Treatment) float64 {
	var total float64
	for _, t := range treatments {
		total += t.Cost
	}
	return total
}

// VisitDetail is a visit hydrated with the joined display names.
type VisitDetail struct {
	Visit
	PatientName string
	DoctorName  string
}

type VisitEvent struct {
	ID        int64
	EventType string
	VisitID   *uuid.UUID
	Payload   []byte
	CreatedAt time.Time
}

// DayAvailability is the read model returned by availability lookups:
// the ledger entry when one exists, otherwise a synthesized open day.
type DayAvailability struct {
	Date           string
	AvailableSlots []string
	ReservedSlots  []ReservedSlot
}

// DoctorAvailability pairs a doctor with their upcoming schedule.
type DoctorAvailability struct {
	Doctor   Doctor
	Schedule []DayAvailability
}
