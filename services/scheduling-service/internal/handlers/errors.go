package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/ruralhealthconnect/telecare/libs/httpx"
	"github.com/ruralhealthconnect/telecare/services/scheduling-service/internal/booking"
	"github.com/ruralhealthconnect/telecare/services/scheduling-service/internal/conflict"
	"github.com/ruralhealthconnect/telecare/services/scheduling-service/internal/lifecycle"
	"github.com/ruralhealthconnect/telecare/services/scheduling-service/internal/model"
	"github.com/ruralhealthconnect/telecare/services/scheduling-service/internal/storage"
)

var (
	errUnauthenticated = errors.New("missing caller identity")
	errForbidden       = errors.New("not allowed for this caller")
)

// windowView is an availability window with its weekday spelled out.
type windowView struct {
	DayOfWeek string      `json:"day_of_week"`
	Start     model.Clock `json:"start_time"`
	End       model.Clock `json:"end_time"`
	Enabled   bool        `json:"is_available"`
}

func newWindowView(w model.AvailabilityWindow) windowView {
	return windowView{DayOfWeek: model.WeekdayName(w.Weekday), Start: w.Start, End: w.End, Enabled: w.Enabled}
}

type outsideDetails struct {
	DayOfWeek string      `json:"day_of_week"`
	Window    *windowView `json:"window,omitempty"`
}

// writeErr maps domain errors onto status codes. Anything unrecognised is a 500.
func writeErr(w http.ResponseWriter, logger *slog.Logger, err error) {
	var outside *conflict.OutsideScheduleError
	switch {
	case errors.Is(err, errUnauthenticated):
		httpx.WriteError(w, http.StatusUnauthorized, "unauthenticated", err.Error())
	case errors.Is(err, errForbidden):
		httpx.WriteError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, booking.ErrInvalidInput):
		httpx.WriteError(w, http.StatusUnprocessableEntity, "invalid_input", err.Error())
	case errors.Is(err, storage.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, conflict.ErrDoctorUnavailable):
		httpx.WriteError(w, http.StatusUnprocessableEntity, "doctor_unavailable", err.Error())
	case errors.Is(err, conflict.ErrPastSlot):
		httpx.WriteError(w, http.StatusUnprocessableEntity, "past_slot", err.Error())
	case errors.As(err, &outside):
		details := outsideDetails{DayOfWeek: model.WeekdayName(outside.Weekday)}
		if outside.Window != nil {
			v := newWindowView(*outside.Window)
			details.Window = &v
		}
		httpx.WriteJSON(w, http.StatusUnprocessableEntity, httpx.ErrorBody{
			Error: "outside_schedule", Message: err.Error(), Details: details,
		})
	case errors.Is(err, conflict.ErrDoctorConflict):
		httpx.WriteError(w, http.StatusConflict, "doctor_conflict", err.Error())
	case errors.Is(err, conflict.ErrPatientConflict):
		httpx.WriteError(w, http.StatusConflict, "patient_conflict", err.Error())
	case errors.Is(err, lifecycle.ErrAlreadyFinalized):
		httpx.WriteError(w, http.StatusConflict, "already_finalized", err.Error())
	case errors.Is(err, lifecycle.ErrIllegalTransition):
		httpx.WriteError(w, http.StatusConflict, "illegal_transition", err.Error())
	case errors.Is(err, booking.ErrNotVideo):
		httpx.WriteError(w, http.StatusConflict, "not_video", err.Error())
	default:
		logger.Error("request failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func badRequest(w http.ResponseWriter, message string) {
	httpx.WriteError(w, http.StatusBadRequest, "bad_request", message)
}
