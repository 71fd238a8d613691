package main

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/ruralhealthconnect/telecare/libs/auth"
	"github.com/ruralhealthconnect/telecare/libs/config"
	"github.com/ruralhealthconnect/telecare/libs/httpx"
)

type upstreams struct {
	scheduling   *url.URL
	notification *url.URL
}

func upstreamsFromConfig() (upstreams, error) {
	scheduling, err := url.Parse(config.String("SCHEDULING_URL", "http://scheduling-service:8085"))
	if err != nil {
		return upstreams{}, err
	}
	notification, err := url.Parse(config.String("NOTIFICATION_URL", "http://notification-service:8086"))
	if err != nil {
		return upstreams{}, err
	}
	return upstreams{scheduling: scheduling, notification: notification}, nil
}

var knownRoles = []string{string(httpx.RolePatient), string(httpx.RoleDoctor), string(httpx.RoleAdmin)}

func registerRoutes(mux *http.ServeMux, u upstreams, verifier *auth.Verifier, transport http.RoundTripper) {
	scheduling := httputil.NewSingleHostReverseProxy(u.scheduling)
	notification := httputil.NewSingleHostReverseProxy(u.notification)
	scheduling.Transport = transport
	notification.Transport = transport

	authed := func(h http.Handler) http.Handler {
		return requireAuth(requireRole(h, knownRoles...), verifier)
	}
	registerProxy(mux, "/api/v1/doctors", authed(scheduling))
	registerProxy(mux, "/api/v1/appointments", authed(scheduling))
	registerProxy(mux, "/api/v1/reminders", requireAuth(requireRole(scheduling, string(httpx.RoleAdmin)), verifier))
	registerProxy(mux, "/api/v1/notifications", authed(notification))
}

func registerProxy(mux *http.ServeMux, prefix string, handler http.Handler) {
	if !strings.HasSuffix(prefix, "/") {
		mux.Handle(prefix, handler)
		mux.Handle(prefix+"/", handler)
		return
	}
	mux.Handle(prefix, handler)
}

// requireAuth replaces any client-supplied identity headers with the verified claims.
func requireAuth(next http.Handler, verifier *auth.Verifier) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Header.Del(httpx.UserIDHeader)
		r.Header.Del(httpx.RoleHeader)

		token, ok := auth.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			httpx.WriteError(w, http.StatusUnauthorized, "unauthenticated", "missing or invalid Authorization header")
			return
		}
		claims, err := verifier.Verify(r.Context(), token)
		if err != nil {
			httpx.WriteError(w, http.StatusUnauthorized, "unauthenticated", "invalid token")
			return
		}

		r.Header.Set(httpx.UserIDHeader, claims.Sub)
		r.Header.Set(httpx.RoleHeader, strings.ToLower(claims.Role))
		r.Header.Del("Authorization")
		next.ServeHTTP(w, r)
	})
}

func requireRole(next http.Handler, roles ...string) http.Handler {
	allowed := map[string]struct{}{}
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := allowed[r.Header.Get(httpx.RoleHeader)]; !ok {
			httpx.WriteError(w, http.StatusForbidden, "forbidden", "role not permitted")
			return
		}
		next.ServeHTTP(w, r)
	})
}
