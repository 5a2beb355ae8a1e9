package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/roadguard/go-roadguard/internal/httpc"
	"github.com/roadguard/go-roadguard/pkg/trip"
)

// APIError is returned when the backend answers with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("sink: backend returned %d: %s", e.StatusCode, e.Body)
}

// HTTP talks to the roadguard backend API. It posts events to
// POST {base}/api/trips/{trip_id}/events and can open and close the trip
// the events belong to.
type HTTP struct {
	base   string
	client *http.Client
}

// NewHTTP creates an HTTP sink. A nil client uses the shared httpc client.
func NewHTTP(baseURL string, client *http.Client) *HTTP {
	return &HTTP{base: strings.TrimRight(baseURL, "/"), client: client}
}

// Emit implements Sink.
func (h *HTTP) Emit(ctx context.Context, ev trip.Event) error {
	endpoint := fmt.Sprintf("%s/api/trips/%s/events", h.base, url.PathEscape(ev.TripID))
	if err := h.post(ctx, endpoint, ev, nil); err != nil {
		return fmt.Errorf("sink: post event: %w", err)
	}
	return nil
}

// StartTrip opens a trip on the backend.
func (h *HTTP) StartTrip(ctx context.Context, start time.Time) (*trip.Trip, error) {
	var t trip.Trip
	req := struct {
		StartTime time.Time `json:"start_time"`
	}{start}
	if err := h.post(ctx, h.base+"/api/trips", req, &t); err != nil {
		return nil, fmt.Errorf("sink: start trip: %w", err)
	}
	return &t, nil
}

// EndTrip closes a trip on the backend.
func (h *HTTP) EndTrip(ctx context.Context, id string, end time.Time) (*trip.Trip, error) {
	var t trip.Trip
	req := struct {
		EndTime time.Time `json:"end_time"`
	}{end}
	endpoint := fmt.Sprintf("%s/api/trips/%s/end", h.base, url.PathEscape(id))
	if err := h.post(ctx, endpoint, req, &t); err != nil {
		return nil, fmt.Errorf("sink: end trip: %w", err)
	}
	return &t, nil
}

// Name implements Named.
func (h *HTTP) Name() string {
	return "http"
}

func (h *HTTP) post(ctx context.Context, endpoint string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}

	resp, err := httpc.PostJSON(ctx, h.client, endpoint, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
