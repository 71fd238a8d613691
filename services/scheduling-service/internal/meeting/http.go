package meeting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ruralhealthconnect/telecare/services/scheduling-service/internal/model"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// HTTPProvisioner talks to a calendar webhook service:
//
//	POST   {base}/events        create, returns {"id": ..., "join_url": ...}
//	PATCH  {base}/events/{id}   move
//	DELETE {base}/events/{id}   remove
type HTTPProvisioner struct {
	base  string
	token string
	loc   *time.Location
	http  *http.Client
}

func NewHTTPProvisioner(baseURL, token string, loc *time.Location, timeout time.Duration) *HTTPProvisioner {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if loc == nil {
		loc = time.UTC
	}
	return &HTTPProvisioner{
		base:  strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token: strings.TrimSpace(token),
		loc:   loc,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type eventRequest struct {
	Summary     string   `json:"summary,omitempty"`
	Description string   `json:"description,omitempty"`
	Start       string   `json:"start"`
	End         string   `json:"end"`
	TimeZone    string   `json:"time_zone"`
	Attendees   []string `json:"attendees,omitempty"`
	RoomID      string   `json:"room_id,omitempty"`
}

type eventResponse struct {
	ID      string `json:"id"`
	JoinURL string `json:"join_url"`
}

func (p *HTTPProvisioner) window(appt model.Appointment) (string, string) {
	start := appt.Date.At(appt.Time, p.loc)
	end := start.Add(model.SlotMinutes * time.Minute)
	return start.Format(time.RFC3339), end.Format(time.RFC3339)
}

func (p *HTTPProvisioner) Provision(ctx context.Context, appt model.Appointment, doctor model.Doctor) (Meeting, error) {
	start, end := p.window(appt)
	body := eventRequest{
		Summary:     "Medical Consultation - Dr. " + doctor.Name,
		Description: appt.Reason,
		Start:       start,
		End:         end,
		TimeZone:    p.loc.String(),
		RoomID:      RoomID(appt.ID),
	}
	if doctor.Email != "" {
		body.Attendees = []string{doctor.Email}
	}

	var out eventResponse
	if err := p.do(ctx, http.MethodPost, "/events", body, &out); err != nil {
		return Meeting{}, err
	}
	if out.ID == "" {
		return Meeting{}, fmt.Errorf("%w: provider returned no event id", ErrUnavailable)
	}
	return Meeting{Ref: out.ID, Link: out.JoinURL}, nil
}

func (p *HTTPProvisioner) Reschedule(ctx context.Context, appt model.Appointment) error {
	if appt.ExternalMeetingRef == "" {
		return nil
	}
	start, end := p.window(appt)
	return p.do(ctx, http.MethodPatch, "/events/"+url.PathEscape(appt.ExternalMeetingRef),
		eventRequest{Start: start, End: end, TimeZone: p.loc.String()}, nil)
}

func (p *HTTPProvisioner) Cancel(ctx context.Context, appt model.Appointment) error {
	if appt.ExternalMeetingRef == "" {
		return nil
	}
	return p.do(ctx, http.MethodDelete, "/events/"+url.PathEscape(appt.ExternalMeetingRef), nil, nil)
}

func (p *HTTPProvisioner) do(ctx context.Context, method, path string, in, out any) error {
	if p.base == "" {
		return ErrUnavailable
	}
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound && method == http.MethodDelete {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("meeting provider %s %s returned %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
