package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"

	"github.com/ruralhealthconnect/telecare/libs/httpx"
	"github.com/ruralhealthconnect/telecare/services/notification-service/internal/storage"
)

// ContactStore is implemented by storage.Repository.
type ContactStore interface {
	GetContact(ctx context.Context, userID string) (storage.Contact, error)
	UpsertContact(ctx context.Context, c storage.Contact) (storage.Contact, error)
}

// ContactHandler lets callers manage where reminders and alerts reach them
// outside the app.
type ContactHandler struct {
	store  ContactStore
	logger *slog.Logger
}

func NewContactHandler(store ContactStore, logger *slog.Logger) *ContactHandler {
	return &ContactHandler{store: store, logger: logger}
}

func (h *ContactHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/notifications/contact", h.Get)
	mux.HandleFunc("PUT /api/v1/notifications/contact", h.Put)
}

func (h *ContactHandler) Get(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	c, err := h.store.GetContact(r.Context(), uid)
	if errors.Is(err, storage.ErrNoContact) {
		httpx.WriteError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	if err != nil {
		h.logger.Error("request failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, c)
}

type contactRequest struct {
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	EmailEnabled *bool  `json:"email_enabled"`
	SMSEnabled   *bool  `json:"sms_enabled"`
}

func (h *ContactHandler) Put(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req contactRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	c := storage.Contact{
		UserID:       uid,
		Email:        strings.TrimSpace(req.Email),
		Phone:        strings.TrimSpace(req.Phone),
		EmailEnabled: req.EmailEnabled == nil || *req.EmailEnabled,
		SMSEnabled:   req.SMSEnabled != nil && *req.SMSEnabled,
	}
	if c.Email != "" {
		if addr, err := mail.ParseAddress(c.Email); err != nil || addr.Address != c.Email {
			httpx.WriteError(w, http.StatusUnprocessableEntity, "invalid_input", "email must be a bare address")
			return
		}
	}
	if c.SMSEnabled && !validPhone(c.Phone) {
		httpx.WriteError(w, http.StatusUnprocessableEntity, "invalid_input", "sms requires a phone number in E.164 form")
		return
	}

	saved, err := h.store.UpsertContact(r.Context(), c)
	if err != nil {
		h.logger.Error("request failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, saved)
}

// validPhone accepts E.164: a plus sign and 8 to 15 digits.
func validPhone(p string) bool {
	if len(p) < 9 || len(p) > 16 || p[0] != '+' {
		return false
	}
	for _, r := range p[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
