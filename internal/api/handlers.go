package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinicdesk/visit-scheduling/internal/auth"
	redisclient "github.com/clinicdesk/visit-scheduling/internal/redis"
	"github.com/clinicdesk/visit-scheduling/internal/visit"
)

func reserveHandler(svc *visit.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := auth.PrincipalFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "no principal in context")
			return
		}

		var req ReserveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}

		day, err := visit.ParseDay(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		v, sched, err := svc.Reserve(r.Context(), p.ID, doctorID, day, req.Time)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, ReserveResponse{
			Visit:    toVisitResponse(v),
			Schedule: toScheduleResponse(sched),
		})
	}
}

func cancelHandler(svc *visit.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := auth.PrincipalFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "no principal in context")
			return
		}

		var req CancelRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}

		day, err := visit.ParseDay(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		sched, err := svc.Cancel(r.Context(), p.ID, doctorID, day, req.Time)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toScheduleResponse(sched))
	}
}

func listDoctorsHandler(svc *visit.Service, days int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctors, err := svc.ListDoctors(r.Context(), time.Now(), days)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		out := make([]DoctorResponse, 0, len(doctors))
		for _, d := range doctors {
			out = append(out, DoctorResponse{
				ID:        d.Doctor.ID,
				Name:      d.Doctor.Name,
				Email:     d.Doctor.Email,
				Specialty: d.Doctor.Specialty,
				Schedule:  toDayAvailability(d.Schedule),
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func availabilityHandler(svc *visit.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "id must be a valid UUID")
			return
		}

		from := visit.NormalizeDay(time.Now())
		to := from.AddDate(0, 0, 6)

		if s := r.URL.Query().Get("from"); s != "" {
			if from, err = visit.ParseDay(s); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_date", "from must be YYYY-MM-DD")
				return
			}
		}
		if s := r.URL.Query().Get("to"); s != "" {
			if to, err = visit.ParseDay(s); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_date", "to must be YYYY-MM-DD")
				return
			}
		}

		days, err := svc.ListAvailability(r.Context(), doctorID, from, to)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toDayAvailability(days))
	}
}

func myVisitsHandler(svc *visit.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := auth.PrincipalFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "no principal in context")
			return
		}

		visits, err := svc.ListVisitsByDoctor(r.Context(), p.ID)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		out := make([]VisitResponse, 0, len(visits))
		for _, v := range visits {
			out = append(out, toVisitDetailResponse(v))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func addTreatmentsHandler(svc *visit.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		visitID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_visit_id", "id must be a valid UUID")
			return
		}

		var req TreatmentsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		v, err := svc.AddTreatments(r.Context(), visitID, req.Problem, req.Treatments)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toVisitResponse(v))
	}
}

func setPaidHandler(svc *visit.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		visitID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_visit_id", "id must be a valid UUID")
			return
		}

		var req SetPaidRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		v, err := svc.SetPaid(r.Context(), visitID, req.Paid)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toVisitResponse(v))
	}
}

func searchVisitsHandler(svc *visit.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		filter := visit.SearchFilter{
			DoctorName:  q.Get("doctorName"),
			PatientName: q.Get("patientName"),
			Status:      visit.VisitStatus(q.Get("status")),
			SortBy:      visit.SortOrder(q.Get("sortBy")),
		}

		if s := q.Get("visitId"); s != "" {
			id, err := uuid.Parse(s)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_visit_id", "visitId must be a valid UUID")
				return
			}
			filter.VisitID = &id
		}

		visits, err := svc.ListVisits(r.Context(), filter)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		out := make([]VisitResponse, 0, len(visits))
		for _, v := range visits {
			out = append(out, toVisitDetailResponse(v))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func rebuildScheduleHandler(svc *visit.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "id must be a valid UUID")
			return
		}

		day, err := visit.ParseDay(chi.URLParam(r, "date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		sched, err := svc.RebuildSchedule(r.Context(), doctorID, day)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toScheduleResponse(sched))
	}
}

func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, visit.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, visit.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, visit.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, visit.ErrVisitNotFound):
		writeError(w, http.StatusNotFound, "visit_not_found", err.Error())
	case errors.Is(err, visit.ErrScheduleNotFound):
		writeError(w, http.StatusNotFound, "schedule_not_found", err.Error())
	case errors.Is(err, visit.ErrSlotTaken):
		writeError(w, http.StatusConflict, "slot_taken", err.Error())
	case errors.Is(err, visit.ErrPatientConflict):
		writeError(w, http.StatusConflict, "patient_conflict", err.Error())
	case errors.Is(err, visit.ErrInvalidState):
		writeError(w, http.StatusConflict, "invalid_state", err.Error())
	case errors.Is(err, visit.ErrSlotBeingReserved),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "slot_being_reserved", "slot is currently being reserved, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
