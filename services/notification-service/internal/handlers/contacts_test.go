package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ruralhealthconnect/telecare/libs/httpx"
	"github.com/ruralhealthconnect/telecare/services/notification-service/internal/storage"
)

type memContacts map[string]storage.Contact

func (m memContacts) GetContact(_ context.Context, userID string) (storage.Contact, error) {
	c, ok := m[userID]
	if !ok {
		return storage.Contact{}, storage.ErrNoContact
	}
	return c, nil
}

func (m memContacts) UpsertContact(_ context.Context, c storage.Contact) (storage.Contact, error) {
	m[c.UserID] = c
	return c, nil
}

func contactServer() (http.Handler, memContacts) {
	store := memContacts{}
	mux := http.NewServeMux()
	NewContactHandler(store, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(mux)
	return httpx.Chain(mux, httpx.WithCaller), store
}

func putContact(h http.Handler, user, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPut, "/api/v1/notifications/contact", strings.NewReader(body))
	if user != "" {
		req.Header.Set(httpx.UserIDHeader, user)
		req.Header.Set(httpx.RoleHeader, "patient")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestContactRoundTrip(t *testing.T) {
	h, store := contactServer()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications/contact", nil)
	req.Header.Set(httpx.UserIDHeader, "pat-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before any contact is saved, got %d", rec.Code)
	}

	rec = putContact(h, "pat-1", `{"email":"pat@example.com","phone":"+2348012345678","sms_enabled":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	c := store["pat-1"]
	if c.Email != "pat@example.com" || !c.EmailEnabled || !c.SMSEnabled {
		t.Fatalf("unexpected stored contact %+v", c)
	}
}

func TestContactValidation(t *testing.T) {
	h, store := contactServer()
	if rec := putContact(h, "", `{"email":"a@b.co"}`); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if rec := putContact(h, "pat-1", `{"email":"Pat <pat@example.com>"}`); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for display-name address, got %d", rec.Code)
	}
	if rec := putContact(h, "pat-1", `{"phone":"0801","sms_enabled":true}`); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for non-E.164 phone, got %d", rec.Code)
	}
	if len(store) != 0 {
		t.Fatalf("invalid requests must not be stored: %v", store)
	}
}
