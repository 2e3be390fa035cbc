package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	redisclient "github.com/clinicdesk/visit-scheduling/internal/redis"
	"github.com/clinicdesk/visit-scheduling/internal/visit"
)

func TestHandleServiceErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", visit.ErrValidation, http.StatusBadRequest, "validation_failed"},
		{"wrapped validation", fmt.Errorf("%w: time is required", visit.ErrValidation), http.StatusBadRequest, "validation_failed"},
		{"patient not found", visit.ErrPatientNotFound, http.StatusNotFound, "patient_not_found"},
		{"doctor not found", visit.ErrDoctorNotFound, http.StatusNotFound, "doctor_not_found"},
		{"visit not found", visit.ErrVisitNotFound, http.StatusNotFound, "visit_not_found"},
		{"schedule not found", visit.ErrScheduleNotFound, http.StatusNotFound, "schedule_not_found"},
		{"slot taken", visit.ErrSlotTaken, http.StatusConflict, "slot_taken"},
		{"patient conflict", visit.ErrPatientConflict, http.StatusConflict, "patient_conflict"},
		{"invalid state", visit.ErrInvalidState, http.StatusConflict, "invalid_state"},
		{"slot being reserved", visit.ErrSlotBeingReserved, http.StatusConflict, "slot_being_reserved"},
		{"lock not acquired", redisclient.ErrLockNotAcquired, http.StatusConflict, "slot_being_reserved"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handleServiceError(rec, tc.err)

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d", tc.wantStatus, rec.Code)
			}

			var body ErrorResponse
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if body.Error != tc.wantCode {
				t.Fatalf("expected code %q, got %q", tc.wantCode, body.Error)
			}
		})
	}
}

func TestWriteJSONSetsContentType(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusCreated, map[string]string{"ok": "yes"})

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected application/json, got %q", ct)
	}
}
