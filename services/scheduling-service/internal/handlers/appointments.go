// Package handlers exposes the scheduling engine over HTTP JSON.
package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/ruralhealthconnect/telecare/libs/httpx"
	"github.com/ruralhealthconnect/telecare/services/scheduling-service/internal/booking"
	"github.com/ruralhealthconnect/telecare/services/scheduling-service/internal/conflict"
	"github.com/ruralhealthconnect/telecare/services/scheduling-service/internal/lifecycle"
	"github.com/ruralhealthconnect/telecare/services/scheduling-service/internal/meeting"
	"github.com/ruralhealthconnect/telecare/services/scheduling-service/internal/model"
	"github.com/ruralhealthconnect/telecare/services/scheduling-service/internal/storage"
)

type Handler struct {
	mgr    *booking.Manager
	logger *slog.Logger
}

func New(mgr *booking.Manager, logger *slog.Logger) *Handler {
	return &Handler{mgr: mgr, logger: logger}
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("PUT /api/v1/doctors/{doctorID}", h.UpsertDoctor)
	mux.HandleFunc("GET /api/v1/doctors/{doctorID}/schedule", h.ListSchedule)
	mux.HandleFunc("PUT /api/v1/doctors/{doctorID}/schedule/{weekday}", h.SetWindow)
	mux.HandleFunc("DELETE /api/v1/doctors/{doctorID}/schedule/{weekday}", h.DeleteWindow)
	mux.HandleFunc("GET /api/v1/doctors/{doctorID}/slots", h.Slots)

	mux.HandleFunc("POST /api/v1/appointments/check", h.Check)
	mux.HandleFunc("POST /api/v1/appointments", h.Book)
	mux.HandleFunc("GET /api/v1/appointments", h.List)
	mux.HandleFunc("GET /api/v1/appointments/{id}", h.Get)
	mux.HandleFunc("PATCH /api/v1/appointments/{id}", h.UpdateDetails)
	mux.HandleFunc("POST /api/v1/appointments/{id}/reschedule", h.Reschedule)
	mux.HandleFunc("POST /api/v1/appointments/{id}/{action}", h.Transition)
	mux.HandleFunc("GET /api/v1/appointments/{id}/room", h.Room)
	mux.HandleFunc("POST /api/v1/appointments/{id}/room/join", h.JoinRoom)

	mux.HandleFunc("GET /api/v1/reminders/tomorrow", h.DueTomorrow)
}

type bookRequest struct {
	DoctorID  string       `json:"doctor_id"`
	PatientID string       `json:"patient_id"`
	Kind      model.Kind   `json:"appointment_type"`
	Date      model.Date   `json:"scheduled_date"`
	Time      *model.Clock `json:"scheduled_time"`
	Reason    string       `json:"reason"`
	Notes     string       `json:"notes"`
}

// requireTime rejects a missing scheduled_time, which would otherwise decode as midnight.
func requireTime(c *model.Clock) (model.Clock, error) {
	if c == nil {
		return 0, fmt.Errorf("%w: scheduled_time is required", booking.ErrInvalidInput)
	}
	return *c, nil
}

type checkResponse struct {
	Available bool `json:"available"`
}

func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	c, err := caller(r.Context())
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	var req bookRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	patientID, err := bookingPatient(c, strings.TrimSpace(req.PatientID))
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	at, err := requireTime(req.Time)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	err = h.mgr.Check(r.Context(), conflict.Request{
		DoctorID: strings.TrimSpace(req.DoctorID), PatientID: patientID, Date: req.Date, Time: at,
	})
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, checkResponse{Available: true})
}

func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	c, err := caller(r.Context())
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	var req bookRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	patientID, err := bookingPatient(c, strings.TrimSpace(req.PatientID))
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	at, err := requireTime(req.Time)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	appt, err := h.mgr.Book(r.Context(), booking.BookRequest{
		DoctorID:  req.DoctorID,
		PatientID: patientID,
		Kind:      req.Kind,
		Date:      req.Date,
		Time:      at,
		Reason:    req.Reason,
		Notes:     req.Notes,
	})
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, appt)
}

type listResponse struct {
	Appointments []model.Appointment `json:"appointments"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	c, err := caller(r.Context())
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	q := r.URL.Query()
	f := storage.ListFilter{
		DoctorID:  strings.TrimSpace(q.Get("doctor_id")),
		PatientID: strings.TrimSpace(q.Get("patient_id")),
	}
	if s := q.Get("status"); s != "" {
		if f.Status, err = model.ParseStatus(s); err != nil {
			badRequest(w, err.Error())
			return
		}
	}
	if s := q.Get("appointment_type"); s != "" {
		if f.Kind, err = model.ParseKind(s); err != nil {
			badRequest(w, err.Error())
			return
		}
	}
	if s := q.Get("date"); s != "" {
		if f.Date, err = model.ParseDate(s); err != nil {
			badRequest(w, "invalid date, want YYYY-MM-DD")
			return
		}
	}
	if s := q.Get("limit"); s != "" {
		if f.Limit, err = strconv.Atoi(s); err != nil || f.Limit < 0 {
			badRequest(w, "invalid limit")
			return
		}
	}
	// Patients and doctors only ever see their own appointments.
	switch c.Role {
	case httpx.RolePatient:
		f.PatientID = c.UserID
	case httpx.RoleDoctor:
		f.DoctorID = c.UserID
	}

	appts, err := h.mgr.List(r.Context(), f)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	if appts == nil {
		appts = []model.Appointment{}
	}
	httpx.WriteJSON(w, http.StatusOK, listResponse{Appointments: appts})
}

// load fetches the path appointment and checks that the caller may see it.
func (h *Handler) load(r *http.Request) (httpx.Caller, model.Appointment, error) {
	c, err := caller(r.Context())
	if err != nil {
		return c, model.Appointment{}, err
	}
	appt, err := h.mgr.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		return c, model.Appointment{}, err
	}
	if !canView(c, appt) {
		// Hide existence from unrelated callers.
		return c, model.Appointment{}, storage.ErrNotFound
	}
	return c, appt, nil
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	_, appt, err := h.load(r)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, appt)
}

type detailsRequest struct {
	Reason       *string `json:"reason"`
	Notes        *string `json:"notes"`
	Prescription *string `json:"prescription"`
}

func (h *Handler) UpdateDetails(w http.ResponseWriter, r *http.Request) {
	c, appt, err := h.load(r)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	var req detailsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if req.Prescription != nil && !canTreat(c, appt) {
		writeErr(w, h.logger, errForbidden)
		return
	}
	if (req.Reason != nil || req.Notes != nil) && c.Role == httpx.RoleDoctor {
		writeErr(w, h.logger, errForbidden)
		return
	}
	updated, err := h.mgr.UpdateDetails(r.Context(), appt.ID, booking.DetailsPatch{
		Reason: req.Reason, Notes: req.Notes, Prescription: req.Prescription,
	})
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, updated)
}

type rescheduleRequest struct {
	Date model.Date   `json:"scheduled_date"`
	Time *model.Clock `json:"scheduled_time"`
}

func (h *Handler) Reschedule(w http.ResponseWriter, r *http.Request) {
	_, appt, err := h.load(r)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	var req rescheduleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	at, err := requireTime(req.Time)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	moved, err := h.mgr.Reschedule(r.Context(), appt.ID, req.Date, at)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, moved)
}

// Transition serves confirm, start, complete and cancel. Only cancel is open
// to the patient.
func (h *Handler) Transition(w http.ResponseWriter, r *http.Request) {
	action, err := lifecycle.ParseAction(r.PathValue("action"))
	if err != nil {
		httpx.WriteError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	c, appt, err := h.load(r)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	if action != lifecycle.ActionCancel && !canTreat(c, appt) {
		writeErr(w, h.logger, errForbidden)
		return
	}
	updated, err := h.mgr.Transition(r.Context(), appt.ID, action)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, updated)
}

type roomResponse struct {
	AppointmentID string       `json:"appointment_id"`
	RoomID        string       `json:"room_id"`
	MeetingLink   string       `json:"meeting_link,omitempty"`
	Status        model.Status `json:"status"`
}

func (h *Handler) Room(w http.ResponseWriter, r *http.Request) {
	_, appt, err := h.load(r)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	if appt.Kind != model.KindVideo {
		writeErr(w, h.logger, booking.ErrNotVideo)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newRoomResponse(appt))
}

func newRoomResponse(appt model.Appointment) roomResponse {
	return roomResponse{
		AppointmentID: appt.ID,
		RoomID:        meeting.RoomID(appt.ID),
		MeetingLink:   appt.MeetingLink,
		Status:        appt.Status,
	}
}

// JoinRoom is called by the patient or doctor entering the call. The first
// join of a confirmed appointment moves it to in_progress.
func (h *Handler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	c, appt, err := h.load(r)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	if !isParty(c, appt) {
		writeErr(w, h.logger, errForbidden)
		return
	}
	joined, err := h.mgr.JoinRoom(r.Context(), appt.ID)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newRoomResponse(joined))
}

func (h *Handler) DueTomorrow(w http.ResponseWriter, r *http.Request) {
	c, err := caller(r.Context())
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	if c.Role != httpx.RoleAdmin {
		writeErr(w, h.logger, errForbidden)
		return
	}
	appts, err := h.mgr.DueTomorrow(r.Context())
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	if appts == nil {
		appts = []model.Appointment{}
	}
	httpx.WriteJSON(w, http.StatusOK, listResponse{Appointments: appts})
}
