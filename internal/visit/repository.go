package visit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound  = errors.New("patient not found")
	ErrDoctorNotFound   = errors.New("doctor not found")
	ErrVisitNotFound    = errors.New("visit not found")
	ErrScheduleNotFound = errors.New("schedule not found")
)

// SortOrder selects the ordering of visit search results.
type SortOrder string

const (
	SortDateAsc      SortOrder = "date"
	SortDateDesc     SortOrder = "date_desc"
	SortTimeAsc      SortOrder = "time"
	SortTimeDesc     SortOrder = "time_desc"
	SortDateTimeAsc  SortOrder = "datetime"
	SortDateTimeDesc SortOrder = "datetime_desc"
)

// SearchFilter narrows the visit search surface used by finance.
// Name filters are case-insensitive substring matches on the joined
// display names; Status is an exact match.
type SearchFilter struct {
	DoctorName  string
	PatientName string
	Status      VisitStatus
	VisitID     *uuid.UUID
	SortBy      SortOrder
}

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	ListDoctors(ctx context.Context) ([]Doctor, error)

	// Conflict checks: non-cancelled visits only. Day is a normalized
	// UTC midnight; queries use a same-day range.
	FindActiveVisitByDoctor(ctx context.Context, doctorID uuid.UUID, day time.Time, slot string) (*Visit, error)
	FindActiveVisitByPatient(ctx context.Context, patientID uuid.UUID, day time.Time, slot string) (*Visit, error)
	FindActiveVisit(ctx context.Context, doctorID, patientID uuid.UUID, day time.Time, slot string) (*Visit, error)

	CreateVisit(ctx context.Context, v *Visit) (*Visit, error)
	GetVisitByID(ctx context.Context, id uuid.UUID) (*Visit, error)
	UpdateVisitStatus(ctx context.Context, id uuid.UUID, from, to VisitStatus) (*Visit, error)
	UpdateVisitOutcome(ctx context.Context, id uuid.UUID, problem string, treatments []Treatment, total float64) (*Visit, error)
	UpdateVisitPaid(ctx context.Context, id uuid.UUID, paid bool) (*Visit, error)

	// Expiry sweep
	FindExpiredPending(ctx context.Context, now time.Time) ([]Visit, error)

	// Ledger rebuild
	ListActiveVisitsForDay(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]Visit, error)

	// Read surfaces
	ListVisitsByDoctor(ctx context.Context, doctorID uuid.UUID) ([]VisitDetail, error)
	SearchVisits(ctx context.Context, filter SearchFilter) ([]VisitDetail, error)

	// Schedule ledger
	GetSchedule(ctx context.Context, doctorID uuid.UUID, date string) (*ScheduleDay, error)
	UpsertSchedule(ctx context.Context, day *ScheduleDay) (*ScheduleDay, error)

	// Event logging
	InsertEvent(ctx context.Context, ev VisitEvent) error
}
