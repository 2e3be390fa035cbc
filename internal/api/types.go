package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/visit-scheduling/internal/visit"
)

type ReserveRequest struct {
	DoctorID string `json:"doctor_id"`
	Date     string `json:"date"`
	Time     string `json:"time"`
}

type CancelRequest struct {
	DoctorID string `json:"doctor_id"`
	Date     string `json:"date"`
	Time     string `json:"time"`
}

type TreatmentsRequest struct {
	Problem    string            `json:"problem"`
	Treatments []visit.Treatment `json:"treatments"`
}

type SetPaidRequest struct {
	Paid bool `json:"paid"`
}

type VisitResponse struct {
	ID          uuid.UUID         `json:"id"`
	PatientID   uuid.UUID         `json:"patient_id"`
	DoctorID    uuid.UUID         `json:"doctor_id"`
	Date        string            `json:"date"`
	Time        string            `json:"time"`
	Problem     string            `json:"problem,omitempty"`
	Treatments  []visit.Treatment `json:"treatments"`
	TotalAmount float64           `json:"total_amount"`
	Status      string            `json:"status"`
	Paid        bool              `json:"paid"`
	PatientName string            `json:"patient_name,omitempty"`
	DoctorName  string            `json:"doctor_name,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

type ScheduleResponse struct {
	DoctorID       uuid.UUID            `json:"doctor_id"`
	Date           string               `json:"date"`
	AvailableSlots []string             `json:"available_slots"`
	ReservedSlots  []visit.ReservedSlot `json:"reserved_slots"`
}

type ReserveResponse struct {
	Visit    VisitResponse     `json:"visit"`
	Schedule *ScheduleResponse `json:"schedule,omitempty"`
}

type DayAvailabilityResponse struct {
	Date           string               `json:"date"`
	AvailableSlots []string             `json:"available_slots"`
	ReservedSlots  []visit.ReservedSlot `json:"reserved_slots"`
}

type DoctorResponse struct {
	ID        uuid.UUID                 `json:"id"`
	Name      string                    `json:"name"`
	Email     *string                   `json:"email,omitempty"`
	Specialty *string                   `json:"specialty,omitempty"`
	Schedule  []DayAvailabilityResponse `json:"schedule"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toVisitResponse(v *visit.Visit) VisitResponse {
	return VisitResponse{
		ID:          v.ID,
		PatientID:   v.PatientID,
		DoctorID:    v.DoctorID,
		Date:        visit.DayString(v.Date),
		Time:        v.Time,
		Problem:     v.Problem,
		Treatments:  v.Treatments,
		TotalAmount: v.TotalAmount,
		Status:      string(v.Status),
		Paid:        v.Paid,
		CreatedAt:   v.CreatedAt,
	}
}

func toVisitDetailResponse(v visit.VisitDetail) VisitResponse {
	resp := toVisitResponse(&v.Visit)
	resp.PatientName = v.PatientName
	resp.DoctorName = v.DoctorName
	return resp
}

func toScheduleResponse(s *visit.ScheduleDay) *ScheduleResponse {
	if s == nil {
		return nil
	}
	return &ScheduleResponse{
		DoctorID:       s.DoctorID,
		Date:           s.Date,
		AvailableSlots: s.AvailableSlots,
		ReservedSlots:  s.ReservedSlots,
	}
}

func toDayAvailability(days []visit.DayAvailability) []DayAvailabilityResponse {
	out := make([]DayAvailabilityResponse, 0, len(days))
	for _, d := range days {
		out = append(out, DayAvailabilityResponse{
			Date:           d.Date,
			AvailableSlots: d.AvailableSlots,
			ReservedSlots:  d.ReservedSlots,
		})
	}
	return out
}
