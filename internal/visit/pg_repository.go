package visit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Partial unique index names from the schema; a 23505 on either one is
// a booking conflict that raced past the slot lock.
const (
	doctorSlotIndex  = "visits_doctor_slot_active"
	patientSlotIndex = "visits_patient_slot_active"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var email *string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&email,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	p.Email = email
	return &p, nil
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	var email, specialty *string

	err := row.Scan(
		&d.ID,
		&d.Name,
		&email,
		&specialty,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	d.Email = email
	d.Specialty = specialty
	return &d, nil
}

const visitColumns = `id, patient_id, doctor_id, visit_date, slot_time, problem, treatments, total_amount, status, paid, created_at, updated_at`

func scanVisit(row pgx.Row) (*Visit, error) {
	var v Visit

	err := row.Scan(
		&v.ID,
		&v.PatientID,
		&v.DoctorID,
		&v.Date,
		&v.Time,
		&v.Problem,
		&v.Treatments,
		&v.TotalAmount,
		&v.Status,
		&v.Paid,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVisitNotFound
		}
		return nil, err
	}

	v.Date = NormalizeDay(v.Date)
	return &v, nil
}

func scanVisitDetail(row pgx.Row) (*VisitDetail, error) {
	var v VisitDetail

	err := row.Scan(
		&v.ID,
		&v.PatientID,
		&v.DoctorID,
		&v.Date,
		&v.Time,
		&v.Problem,
		&v.Treatments,
		&v.TotalAmount,
		&v.Status,
		&v.Paid,
		&v.CreatedAt,
		&v.UpdatedAt,
		&v.PatientName,
		&v.DoctorName,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVisitNotFound
		}
		return nil, err
	}

	v.Date = NormalizeDay(v.Date)
	return &v, nil
}

func scanSchedule(row pgx.Row) (*ScheduleDay, error) {
	var d ScheduleDay

	err := row.Scan(
		&d.ID,
		&d.DoctorID,
		&d.Date,
		&d.AvailableSlots,
		&d.ReservedSlots,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScheduleNotFound
		}
		return nil, err
	}

	return &d, nil
}

// dayRange converts a normalized day into the half-open range used by
// every date query, so stored timestamps never drift across day
// boundaries.
func dayRange(day time.Time) (time.Time, time.Time) {
	start := NormalizeDay(day)
	return start, start.AddDate(0, 0, 1)
}

// Interface methods

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, specialty, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) ListDoctors(ctx context.Context) ([]Doctor, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, email, specialty, created_at, updated_at
		FROM doctors
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}
	return result, rows.Err()
}

func (r *PgRepository) FindActiveVisitByDoctor(ctx context.Context, doctorID uuid.UUID, day time.Time, slot string) (*Visit, error) {
	start, end := dayRange(day)
	row := r.pool.QueryRow(ctx, `
		SELECT `+visitColumns+`
		FROM visits
		WHERE doctor_id = $1
		  AND visit_date >= $2 AND visit_date < $3
		  AND slot_time = $4
		  AND status <> 'cancelled'
	`, doctorID, start, end, slot)
	return scanVisit(row)
}

func (r *PgRepository) FindActiveVisitByPatient(ctx context.Context, patientID uuid.UUID, day time.Time, slot string) (*Visit, error) {
	start, end := dayRange(day)
	row := r.pool.QueryRow(ctx, `
		SELECT `+visitColumns+`
		FROM visits
		WHERE patient_id = $1
		  AND visit_date >= $2 AND visit_date < $3
		  AND slot_time = $4
		  AND status <> 'cancelled'
	`, patientID, start, end, slot)
	return scanVisit(row)
}

func (r *PgRepository) FindActiveVisit(ctx context.Context, doctorID, patientID uuid.UUID, day time.Time, slot string) (*Visit, error) {
	start, end := dayRange(day)
	row := r.pool.QueryRow(ctx, `
		SELECT `+visitColumns+`
		FROM visits
		WHERE doctor_id = $1
		  AND patient_id = $2
		  AND visit_date >= $3 AND visit_date < $4
		  AND slot_time = $5
		  AND status <> 'cancelled'
	`, doctorID, patientID, start, end, slot)
	return scanVisit(row)
}

func (r *PgRepository) CreateVisit(ctx context.Context, v *Visit) (*Visit, error) {
	treatments := v.Treatments
	if treatments == nil {
		treatments = []Treatment{}
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO visits (id, patient_id, doctor_id, visit_date, slot_time, problem, treatments, total_amount, status, paid, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, false, now(), now())
		RETURNING `+visitColumns+`
	`, v.ID, v.PatientID, v.DoctorID, v.Date, v.Time, v.Problem, treatments, v.TotalAmount, v.Status)

	created, err := scanVisit(row)
	if err != nil {
		return nil, mapUniqueViolation(err)
	}
	return created, nil
}

// mapUniqueViolation translates the partial-index backstop into the
// same conflict errors the in-lock checks produce.
func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		switch pgErr.ConstraintName {
		case doctorSlotIndex:
			return ErrSlotTaken
		case patientSlotIndex:
			return ErrPatientConflict
		}
	}
	return err
}

func (r *PgRepository) GetVisitByID(ctx context.Context, id uuid.UUID) (*Visit, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+visitColumns+`
		FROM visits
		WHERE id = $1
	`, id)
	return scanVisit(row)
}

func (r *PgRepository) UpdateVisitStatus(ctx context.Context, id uuid.UUID, from, to VisitStatus) (*Visit, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE visits
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+visitColumns+`
	`, id, to, from)
	return scanVisit(row)
}

func (r *PgRepository) UpdateVisitOutcome(ctx context.Context, id uuid.UUID, problem string, treatments []Treatment, total float64) (*Visit, error) {
	if treatments == nil {
		treatments = []Treatment{}
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE visits
		SET problem = $2,
		    treatments = $3,
		    total_amount = $4,
		    status = 'completed',
		    updated_at = now()
		WHERE id = $1
		RETURNING `+visitColumns+`
	`, id, problem, treatments, total)
	return scanVisit(row)
}

func (r *PgRepository) UpdateVisitPaid(ctx context.Context, id uuid.UUID, paid bool) (*Visit, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE visits
		SET paid = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+visitColumns+`
	`, id, paid)
	return scanVisit(row)
}

func (r *PgRepository) FindExpiredPending(ctx context.Context, now time.Time) ([]Visit, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+visitColumns+`
		FROM visits
		WHERE status = 'pending'
		  AND visit_date + slot_time::interval <= $1
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *v)
	}
	return result, rows.Err()
}

func (r *PgRepository) ListActiveVisitsForDay(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]Visit, error) {
	start, end := dayRange(day)
	rows, err := r.pool.Query(ctx, `
		SELECT `+visitColumns+`
		FROM visits
		WHERE doctor_id = $1
		  AND visit_date >= $2 AND visit_date < $3
		  AND status <> 'cancelled'
		ORDER BY slot_time
	`, doctorID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *v)
	}
	return result, rows.Err()
}

const visitDetailQuery = `
	SELECT v.id, v.patient_id, v.doctor_id, v.visit_date, v.slot_time, v.problem, v.treatments, v.total_amount, v.status, v.paid, v.created_at, v.updated_at,
	       p.name AS patient_name, d.name AS doctor_name
	FROM visits v
	JOIN patients p ON p.id = v.patient_id
	JOIN doctors d ON d.id = v.doctor_id
`

func (r *PgRepository) ListVisitsByDoctor(ctx context.Context, doctorID uuid.UUID) ([]VisitDetail, error) {
	rows, err := r.pool.Query(ctx, visitDetailQuery+`
		WHERE v.doctor_id = $1
		ORDER BY v.visit_date, v.slot_time
	`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectVisitDetails(rows)
}

func (r *PgRepository) SearchVisits(ctx context.Context, filter SearchFilter) ([]VisitDetail, error) {
	query := visitDetailQuery + ` WHERE 1=1`
	var args []any

	if filter.VisitID != nil {
		args = append(args, *filter.VisitID)
		query += fmt.Sprintf(" AND v.id = $%d", len(args))
	}
	if filter.DoctorName != "" {
		args = append(args, "%"+filter.DoctorName+"%")
		query += fmt.Sprintf(" AND d.name ILIKE $%d", len(args))
	}
	if filter.PatientName != "" {
		args = append(args, "%"+filter.PatientName+"%")
		query += fmt.Sprintf(" AND p.name ILIKE $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND v.status = $%d", len(args))
	}

	query += " ORDER BY " + orderClause(filter.SortBy)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectVisitDetails(rows)
}

// orderClause maps a sort order onto a whitelisted ORDER BY fragment.
func orderClause(sortBy SortOrder) string {
	switch sortBy {
	case SortDateAsc:
		return "v.visit_date"
	case SortDateDesc:
		return "v.visit_date DESC"
	case SortTimeAsc:
		return "v.slot_time"
	case SortTimeDesc:
		return "v.slot_time DESC"
	case SortDateTimeDesc:
		return "v.visit_date DESC, v.slot_time DESC"
	default:
		return "v.visit_date, v.slot_time"
	}
}

func collectVisitDetails(rows pgx.Rows) ([]VisitDetail, error) {
	var result []VisitDetail
	for rows.Next() {
		v, err := scanVisitDetail(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *v)
	}
	return result, rows.Err()
}

func (r *PgRepository) GetSchedule(ctx context.Context, doctorID uuid.UUID, date string) (*ScheduleDay, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, doctor_id, schedule_date, available_slots, reserved_slots, created_at, updated_at
		FROM doctor_schedules
		WHERE doctor_id = $1 AND schedule_date = $2
	`, doctorID, date)
	return scanSchedule(row)
}

func (r *PgRepository) UpsertSchedule(ctx context.Context, day *ScheduleDay) (*ScheduleDay, error) {
	reserved := day.ReservedSlots
	if reserved == nil {
		reserved = []ReservedSlot{}
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO doctor_schedules (id, doctor_id, schedule_date, available_slots, reserved_slots, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		ON CONFLICT (doctor_id, schedule_date) DO UPDATE
		SET available_slots = EXCLUDED.available_slots,
		    reserved_slots = EXCLUDED.reserved_slots,
		    updated_at = now()
		RETURNING id, doctor_id, schedule_date, available_slots, reserved_slots, created_at, updated_at
	`, day.ID, day.DoctorID, day.Date, day.AvailableSlots, reserved)
	return scanSchedule(row)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev VisitEvent) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO visit_events (event_type, visit_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.VisitID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert visit event: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
