package handlers

import (
	"net/http"
	"strings"

	"github.com/ruralhealthconnect/telecare/libs/httpx"
	"github.com/ruralhealthconnect/telecare/services/scheduling-service/internal/model"
)

type doctorRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Available *bool  `json:"is_available"`
}

func (h *Handler) UpsertDoctor(w http.ResponseWriter, r *http.Request) {
	c, err := caller(r.Context())
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	id := r.PathValue("doctorID")
	if !canManageDoctor(c, id) {
		writeErr(w, h.logger, errForbidden)
		return
	}
	var req doctorRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	available := true
	if req.Available != nil {
		available = *req.Available
	}
	d, err := h.mgr.UpsertDoctor(r.Context(), model.Doctor{
		ID: id, Name: req.Name, Email: strings.TrimSpace(req.Email), Available: available,
	})
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, d)
}

type scheduleResponse struct {
	DoctorID string       `json:"doctor_id"`
	Windows  []windowView `json:"schedule"`
}

func (h *Handler) ListSchedule(w http.ResponseWriter, r *http.Request) {
	if _, err := caller(r.Context()); err != nil {
		writeErr(w, h.logger, err)
		return
	}
	id := r.PathValue("doctorID")
	windows, err := h.mgr.ListWindows(r.Context(), id)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	out := scheduleResponse{DoctorID: id, Windows: make([]windowView, 0, len(windows))}
	for _, win := range windows {
		out.Windows = append(out.Windows, newWindowView(win))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

type windowRequest struct {
	Start   model.Clock `json:"start_time"`
	End     model.Clock `json:"end_time"`
	Enabled *bool       `json:"is_available"`
}

func (h *Handler) SetWindow(w http.ResponseWriter, r *http.Request) {
	c, err := caller(r.Context())
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	id := r.PathValue("doctorID")
	if !canManageDoctor(c, id) {
		writeErr(w, h.logger, errForbidden)
		return
	}
	day, err := model.ParseWeekday(r.PathValue("weekday"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	var req windowRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	win, err := h.mgr.SetWindow(r.Context(), model.AvailabilityWindow{
		DoctorID: id, Weekday: day, Start: req.Start, End: req.End, Enabled: enabled,
	})
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newWindowView(win))
}

func (h *Handler) DeleteWindow(w http.ResponseWriter, r *http.Request) {
	c, err := caller(r.Context())
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	id := r.PathValue("doctorID")
	if !canManageDoctor(c, id) {
		writeErr(w, h.logger, errForbidden)
		return
	}
	day, err := model.ParseWeekday(r.PathValue("weekday"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := h.mgr.DeleteWindow(r.Context(), id, day); err != nil {
		writeErr(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type slotsResponse struct {
	DoctorID string      `json:"doctor_id"`
	Date     model.Date  `json:"date"`
	Weekday  string      `json:"day_of_week"`
	Window   *windowView `json:"schedule,omitempty"`
	Slots    []slotView  `json:"available_slots"`
	Message  string      `json:"message,omitempty"`
}

type slotView struct {
	Time    model.Clock `json:"time"`
	Display string      `json:"display"`
}

func (h *Handler) Slots(w http.ResponseWriter, r *http.Request) {
	if _, err := caller(r.Context()); err != nil {
		writeErr(w, h.logger, err)
		return
	}
	date, err := model.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		badRequest(w, "date query parameter is required, want YYYY-MM-DD")
		return
	}
	list, err := h.mgr.Slots(r.Context(), r.PathValue("doctorID"), date)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	out := slotsResponse{
		DoctorID: list.DoctorID,
		Date:     list.Date,
		Weekday:  list.Weekday,
		Slots:    make([]slotView, 0, len(list.Slots)),
		Message:  list.Message,
	}
	if list.Window != nil {
		v := newWindowView(*list.Window)
		out.Window = &v
	}
	for _, s := range list.Slots {
		out.Slots = append(out.Slots, slotView{Time: s, Display: s.Kitchen()})
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}
