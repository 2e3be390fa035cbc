package visit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	redisclient "github.com/clinicdesk/visit-scheduling/internal/redis"
)

const (
	EventVisitReserved  = "VISIT_RESERVED"
	EventVisitCancelled = "VISIT_CANCELLED"
	EventVisitExpired   = "VISIT_EXPIRED"
	EventVisitCompleted = "VISIT_COMPLETED"
	EventVisitPaidSet   = "VISIT_PAID_SET"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrSlotTaken         = errors.New("slot already has a non-cancelled visit")
	ErrPatientConflict   = errors.New("patient already has a visit at that time")
	ErrInvalidState      = errors.New("invalid visit status for this operation")
	ErrSlotBeingReserved = errors.New("slot is currently being reserved, please retry")
)

// Service is the reservation coordinator: it validates requests
// against the visit collection and keeps the schedule ledger
// projection consistent with it. Visits are written first; a failed
// ledger write is logged and left for the rebuild pass, never rolled
// back.
type Service struct {
	repo   Repository
	locker redisclient.Locker
	log    zerolog.Logger
}

func NewService(repo Repository, locker redisclient.Locker, log zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		locker: locker,
		log:    log,
	}
}

// Reserve books a slot for a patient. The conflict checks and the
// visit insert run under a per-slot distributed lock; the partial
// unique indexes on visits are the backstop if two processes race past
// the lock.
func (s *Service) Reserve(ctx context.Context, patientID, doctorID uuid.UUID, date time.Time, slot string) (*Visit, *ScheduleDay, error) {
	if patientID == uuid.Nil {
		return nil, nil, fmt.Errorf("%w: patient id is required", ErrValidation)
	}
	if doctorID == uuid.Nil {
		return nil, nil, fmt.Errorf("%w: doctor id is required", ErrValidation)
	}
	if date.IsZero() {
		return nil, nil, fmt.Errorf("%w: date is required", ErrValidation)
	}
	if !IsSlot(slot) {
		return nil, nil, fmt.Errorf("%w: time %q is not a bookable slot", ErrValidation, slot)
	}

	if _, err := s.repo.GetPatientByID(ctx, patientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("load patient: %w", err)
	}
	if _, err := s.repo.GetDoctorByID(ctx, doctorID); err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("load doctor: %w", err)
	}

	day := NormalizeDay(date)

	var (
		created *Visit
		sched   *ScheduleDay
	)

	err := s.locker.WithSlotLock(ctx, doctorID, day, slot, func(lockCtx context.Context) error {
		// Re-check conflicts inside the critical section.
		if _, err := s.repo.FindActiveVisitByDoctor(lockCtx, doctorID, day, slot); err == nil {
			return ErrSlotTaken
		} else if !errors.Is(err, ErrVisitNotFound) {
			return fmt.Errorf("check doctor conflict: %w", err)
		}

		if _, err := s.repo.FindActiveVisitByPatient(lockCtx, patientID, day, slot); err == nil {
			return ErrPatientConflict
		} else if !errors.Is(err, ErrVisitNotFound) {
			return fmt.Errorf("check patient conflict: %w", err)
		}

		v, err := s.repo.CreateVisit(lockCtx, &Visit{
			ID:        uuid.New(),
			PatientID: patientID,
			DoctorID:  doctorID,
			Date:      day,
			Time:      slot,
			Status:    StatusPending,
		})
		if err != nil {
			return fmt.Errorf("create visit: %w", err)
		}
		created = v

		s.logEvent(lockCtx, v.ID, EventVisitReserved, map[string]any{
			"doctor_id":  doctorID.String(),
			"patient_id": patientID.String(),
			"date":       DayString(day),
			"time":       slot,
		})

		// Ledger upsert happens strictly after the visit write. A
		// failure here leaves a recoverable inconsistency, not a
		// failed reservation.
		sched = s.applyReservation(lockCtx, doctorID, patientID, day, slot)

		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, nil, ErrSlotBeingReserved
		}
		return nil, nil, err
	}

	return created, sched, nil
}

// applyReservation upserts the ledger day for a fresh reservation.
// Errors are logged and the in-memory state returned so the caller
// still sees the intended projection; RebuildSchedule repairs the
// stored row later.
func (s *Service) applyReservation(ctx context.Context, doctorID, patientID uuid.UUID, day time.Time, slot string) *ScheduleDay {
	sched, err := s.repo.GetSchedule(ctx, doctorID, DayString(day))
	if err != nil {
		if !errors.Is(err, ErrScheduleNotFound) {
			s.log.Error().Err(err).
				Str("doctor_id", doctorID.String()).
				Str("date", DayString(day)).
				Msg("load schedule after reserve, ledger left stale")
			return nil
		}
		sched = NewScheduleDay(doctorID, DayString(day))
	}

	sched.Reserve(slot, patientID)

	updated, err := s.repo.UpsertSchedule(ctx, sched)
	if err != nil {
		s.log.Error().Err(err).
			Str("doctor_id", doctorID.String()).
			Str("date", DayString(day)).
			Msg("ledger upsert after reserve failed, ledger left stale")
		return sched
	}
	return updated
}

// Cancel flags the matching visit cancelled and frees its slot in the
// ledger. Only a visit belonging to the requesting patient matches.
func (s *Service) Cancel(ctx context.Context, patientID, doctorID uuid.UUID, date time.Time, slot string) (*ScheduleDay, error) {
	if patientID == uuid.Nil || doctorID == uuid.Nil || date.IsZero() || slot == "" {
		return nil, fmt.Errorf("%w: patient id, doctor id, date and time are required", ErrValidation)
	}

	day := NormalizeDay(date)

	v, err := s.repo.FindActiveVisit(ctx, doctorID, patientID, day, slot)
	if err != nil {
		if errors.Is(err, ErrVisitNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("find visit: %w", err)
	}

	if _, err := s.repo.UpdateVisitStatus(ctx, v.ID, v.Status, StatusCancelled); err != nil {
		return nil, fmt.Errorf("cancel visit: %w", err)
	}

	s.logEvent(ctx, v.ID, EventVisitCancelled, map[string]any{
		"reason": "patient",
	})

	sched, err := s.repo.GetSchedule(ctx, doctorID, DayString(day))
	if err != nil {
		if !errors.Is(err, ErrScheduleNotFound) {
			return nil, fmt.Errorf("load schedule: %w", err)
		}
		// No ledger row yet for this day; rebuild from visits.
		return s.RebuildSchedule(ctx, doctorID, day)
	}

	if !sched.Release(slot, patientID) {
		s.log.Warn().
			Str("visit_id", v.ID.String()).
			Str("time", slot).
			Msg("cancelled visit had no pending ledger entry")
	}

	updated, err := s.repo.UpsertSchedule(ctx, sched)
	if err != nil {
		return nil, fmt.Errorf("update schedule: %w", err)
	}
	return updated, nil
}

// ListAvailability returns one entry per day in [from, to]. Days with
// no ledger row yet are synthesized as fully open.
func (s *Service) ListAvailability(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]DayAvailability, error) {
	if doctorID == uuid.Nil {
		return nil, fmt.Errorf("%w: doctor id is required", ErrValidation)
	}

	start := NormalizeDay(from)
	end := NormalizeDay(to)
	if end.Before(start) {
		return nil, fmt.Errorf("%w: date range end before start", ErrValidation)
	}

	var out []DayAvailability
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		date := DayString(d)
		sched, err := s.repo.GetSchedule(ctx, doctorID, date)
		if err != nil {
			if !errors.Is(err, ErrScheduleNotFound) {
				return nil, fmt.Errorf("load schedule %s: %w", date, err)
			}
			out = append(out, DayAvailability{
				Date:           date,
				AvailableSlots: Slots(),
				ReservedSlots:  []ReservedSlot{},
			})
			continue
		}
		out = append(out, DayAvailability{
			Date:           date,
			AvailableSlots: sched.AvailableSlots,
			ReservedSlots:  sched.ReservedSlots,
		})
	}
	return out, nil
}

// ListDoctors returns every doctor with availability over the next
// count working days.
func (s *Service) ListDoctors(ctx context.Context, now time.Time, count int) ([]DoctorAvailability, error) {
	if count <= 0 {
		count = 7
	}

	doctors, err := s.repo.ListDoctors(ctx)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}

	days := NextWorkingDays(now, count)

	out := make([]DoctorAvailability, 0, len(doctors))
	for _, doc := range doctors {
		var schedule []DayAvailability
		for _, day := range days {
			avail, err := s.ListAvailability(ctx, doc.ID, day, day)
			if err != nil {
				return nil, err
			}
			schedule = append(schedule, avail...)
		}
		out = append(out, DoctorAvailability{Doctor: doc, Schedule: schedule})
	}
	return out, nil
}

// ExpirePendingVisits cancels every pending visit whose slot has
// already started and mirrors the change into the ledger, keeping the
// reserved entry listed as cancelled so the day still shows the
// no-show. One bad visit never aborts the batch, and re-running with
// the same now is a no-op.
func (s *Service) ExpirePendingVisits(ctx context.Context, now time.Time) error {
	expired, err := s.repo.FindExpiredPending(ctx, now)
	if err != nil {
		return fmt.Errorf("find expired pending visits: %w", err)
	}

	for _, v := range expired {
		if _, err := s.repo.UpdateVisitStatus(ctx, v.ID, StatusPending, StatusCancelled); err != nil {
			if !errors.Is(err, ErrVisitNotFound) {
				s.log.Error().Err(err).Str("visit_id", v.ID.String()).Msg("expire visit failed")
				continue
			}
			// Already transitioned by a concurrent run.
			continue
		}

		s.logEvent(ctx, v.ID, EventVisitExpired, map[string]any{
			"reason": "worker",
		})

		s.expireLedgerEntry(ctx, v)
	}

	return nil
}

// expireLedgerEntry marks the reserved slot of an expired visit
// cancelled. A missing ledger row or slot entry is logged, not fatal:
// the visit status change has already committed.
func (s *Service) expireLedgerEntry(ctx context.Context, v Visit) {
	sched, err := s.repo.GetSchedule(ctx, v.DoctorID, DayString(v.Date))
	if err != nil {
		s.log.Warn().Err(err).
			Str("visit_id", v.ID.String()).
			Str("date", DayString(v.Date)).
			Msg("no schedule found for expired visit")
		return
	}

	if !sched.Expire(v.Time, v.PatientID) {
		s.log.Warn().
			Str("visit_id", v.ID.String()).
			Str("time", v.Time).
			Msg("no pending ledger entry for expired visit")
		return
	}

	if _, err := s.repo.UpsertSchedule(ctx, sched); err != nil {
		s.log.Error().Err(err).
			Str("visit_id", v.ID.String()).
			Msg("ledger update for expired visit failed")
	}
}

// AddTreatments records the outcome of a visit and completes it. The
// transition is guarded: only pending or in-progress visits can be
// completed. An empty problem keeps the existing diagnosis text.
func (s *Service) AddTreatments(ctx context.Context, visitID uuid.UUID, problem string, treatments []Treatment) (*Visit, error) {
	v, err := s.repo.GetVisitByID(ctx, visitID)
	if err != nil {
		if errors.Is(err, ErrVisitNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load visit: %w", err)
	}

	if v.Status != StatusPending && v.Status != StatusInProgress {
		return nil, fmt.Errorf("%w: cannot complete a %s visit", ErrInvalidState, v.Status)
	}

	if problem == "" {
		problem = v.Problem
	}
	if treatments == nil {
		treatments = []Treatment{}
	}

	updated, err := s.repo.UpdateVisitOutcome(ctx, visitID, problem, treatments, TotalOf(treatments))
	if err != nil {
		return nil, fmt.Errorf("save treatments: %w", err)
	}

	s.logEvent(ctx, visitID, EventVisitCompleted, map[string]any{
		"total_amount": updated.TotalAmount,
		"treatments":   len(treatments),
	})

	return updated, nil
}

// SetPaid flips the paid flag on a completed visit.
func (s *Service) SetPaid(ctx context.Context, visitID uuid.UUID, paid bool) (*Visit, error) {
	v, err := s.repo.GetVisitByID(ctx, visitID)
	if err != nil {
		if errors.Is(err, ErrVisitNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load visit: %w", err)
	}

	if v.Status != StatusCompleted {
		return nil, fmt.Errorf("%w: visit is %s, paid applies to completed visits only", ErrInvalidState, v.Status)
	}

	updated, err := s.repo.UpdateVisitPaid(ctx, visitID, paid)
	if err != nil {
		return nil, fmt.Errorf("set paid: %w", err)
	}

	s.logEvent(ctx, visitID, EventVisitPaidSet, map[string]any{
		"paid": paid,
	})

	return updated, nil
}

// ListVisits is the finance search surface over visit history.
func (s *Service) ListVisits(ctx context.Context, filter SearchFilter) ([]VisitDetail, error) {
	visits, err := s.repo.SearchVisits(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("search visits: %w", err)
	}
	return visits, nil
}

// ListVisitsByDoctor returns a doctor's visits ordered by date, then time.
func (s *Service) ListVisitsByDoctor(ctx context.Context, doctorID uuid.UUID) ([]VisitDetail, error) {
	if doctorID == uuid.Nil {
		return nil, fmt.Errorf("%w: doctor id is required", ErrValidation)
	}
	visits, err := s.repo.ListVisitsByDoctor(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list visits by doctor: %w", err)
	}
	return visits, nil
}

// RebuildSchedule recomputes a ledger day purely from the visit
// collection and stores it. Every non-cancelled visit becomes a
// pending reservation; everything else is available. Used as the
// repair pass for partial-write inconsistencies.
func (s *Service) RebuildSchedule(ctx context.Context, doctorID uuid.UUID, date time.Time) (*ScheduleDay, error) {
	day := NormalizeDay(date)

	visits, err := s.repo.ListActiveVisitsForDay(ctx, doctorID, day)
	if err != nil {
		return nil, fmt.Errorf("list visits for rebuild: %w", err)
	}

	sched := NewScheduleDay(doctorID, DayString(day))
	for _, v := range visits {
		sched.Reserve(v.Time, v.PatientID)
	}

	updated, err := s.repo.UpsertSchedule(ctx, sched)
	if err != nil {
		return nil, fmt.Errorf("store rebuilt schedule: %w", err)
	}
	return updated, nil
}

func (s *Service) logEvent(ctx context.Context, visitID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("event", eventType).Msg("marshal event payload")
		data = nil
	}

	vid := visitID

	ev := VisitEvent{
		EventType: eventType,
		VisitID:   &vid,
		Payload:   data,
		CreatedAt: time.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Error().Err(err).
			Str("event", eventType).
			Str("visit_id", visitID.String()).
			Msg("insert event log")
	}
}
