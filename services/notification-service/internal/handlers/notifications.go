// Package handlers serves a user's in-app notifications.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ruralhealthconnect/telecare/libs/httpx"
	"github.com/ruralhealthconnect/telecare/services/notification-service/internal/storage"
)

// Store is implemented by storage.Repository.
type Store interface {
	List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]storage.Notification, error)
	MarkRead(ctx context.Context, userID string, id int64) (storage.Notification, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
}

type NotificationHandler struct {
	store  Store
	logger *slog.Logger
}

func NewNotificationHandler(store Store, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{store: store, logger: logger}
}

func (h *NotificationHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/notifications", h.List)
	mux.HandleFunc("GET /api/v1/notifications/unread-count", h.UnreadCount)
	mux.HandleFunc("POST /api/v1/notifications/read-all", h.MarkAllRead)
	mux.HandleFunc("POST /api/v1/notifications/{id}/read", h.MarkRead)
}

// userID returns the caller, writing a 401 when the gateway sent none.
func userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	c := httpx.CallerFromContext(r.Context())
	if c.IsZero() {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthenticated", "missing caller identity")
		return "", false
	}
	return c.UserID, true
}

func (h *NotificationHandler) internal(w http.ResponseWriter, err error) {
	h.logger.Error("request failed", "err", err)
	httpx.WriteError(w, http.StatusInternalServerError, "internal", "internal error")
}

type listResponse struct {
	Notifications []storage.Notification `json:"notifications"`
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	unread, _ := strconv.ParseBool(q.Get("unread"))
	limit := 0
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			httpx.WriteError(w, http.StatusBadRequest, "bad_request", "invalid limit")
			return
		}
		limit = n
	}
	items, err := h.store.List(r.Context(), uid, unread, limit)
	if err != nil {
		h.internal(w, err)
		return
	}
	if items == nil {
		items = []storage.Notification{}
	}
	httpx.WriteJSON(w, http.StatusOK, listResponse{Notifications: items})
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "invalid notification id")
		return
	}
	n, err := h.store.MarkRead(r.Context(), uid, id)
	if errors.Is(err, storage.ErrNotFound) {
		httpx.WriteError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	if err != nil {
		h.internal(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, n)
}

type markAllResponse struct {
	Updated int64 `json:"updated"`
}

func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	n, err := h.store.MarkAllRead(r.Context(), uid)
	if err != nil {
		h.internal(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, markAllResponse{Updated: n})
}

type unreadResponse struct {
	UnreadCount int `json:"unread_count"`
}

func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	n, err := h.store.UnreadCount(r.Context(), uid)
	if err != nil {
		h.internal(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, unreadResponse{UnreadCount: n})
}
