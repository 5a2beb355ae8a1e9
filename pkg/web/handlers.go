package web

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/roadguard/go-roadguard/pkg/monitor"
	"github.com/roadguard/go-roadguard/pkg/trip"
)

// MessageNoTrips is the body of /api/trip/latest on an empty store.
const MessageNoTrips = "No trips recorded yet"

// StartTripRequest is the body of POST /api/trips.
type StartTripRequest struct {
	StartTime *time.Time `json:"start_time"`
}

// EndTripRequest is the body of POST /api/trips/:id/end.
type EndTripRequest struct {
	EndTime *time.Time `json:"end_time"`
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	if s.cfg.Status == nil {
		return c.JSON(monitor.Status{})
	}
	return c.JSON(s.cfg.Status())
}

func (s *Server) handleLatestTrip(c *fiber.Ctx) error {
	if s.cfg.Store == nil {
		return fiber.NewError(fiber.StatusNotFound, MessageNoTrips)
	}
	t, err := s.cfg.Store.LatestTrip(c.UserContext())
	if errors.Is(err, trip.ErrNoTrips) {
		return fiber.NewError(fiber.StatusNotFound, MessageNoTrips)
	}
	if err != nil {
		return err
	}
	return c.JSON(t)
}

func (s *Server) handleListTrips(c *fiber.Ctx) error {
	if s.cfg.Store == nil {
		return c.JSON([]*trip.Trip{})
	}
	trips, err := s.cfg.Store.ListTrips(c.UserContext())
	if err != nil {
		return err
	}
	if trips == nil {
		trips = []*trip.Trip{}
	}
	return c.JSON(trips)
}

func (s *Server) handleStartTrip(c *fiber.Ctx) error {
	if err := s.requireStore(); err != nil {
		return err
	}

	var req StartTripRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid trip: "+err.Error())
		}
	}
	start := s.cfg.Now()
	if req.StartTime != nil {
		start = *req.StartTime
	}

	t, err := s.cfg.Store.StartTrip(c.UserContext(), start)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(t)
}

func (s *Server) handleEndTrip(c *fiber.Ctx) error {
	if err := s.requireStore(); err != nil {
		return err
	}

	var req EndTripRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request: "+err.Error())
		}
	}
	end := s.cfg.Now()
	if req.EndTime != nil {
		end = *req.EndTime
	}

	t, err := s.cfg.Store.EndTrip(c.UserContext(), c.Params("id"), end)
	if err != nil {
		return storeError(err)
	}
	return c.JSON(t)
}

func (s *Server) handleAddEvent(c *fiber.Ctx) error {
	if err := s.requireStore(); err != nil {
		return err
	}

	var ev trip.Event
	if err := c.BodyParser(&ev); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid event: "+err.Error())
	}
	ev.TripID = c.Params("id")
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = s.cfg.Now()
	}
	if err := ev.Validate(); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	if err := s.cfg.Store.AddEvent(c.UserContext(), &ev); err != nil {
		return storeError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(ev)
}

func (s *Server) requireStore() error {
	if s.cfg.Store == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "no trip store configured")
	}
	return nil
}

func storeError(err error) error {
	switch {
	case errors.Is(err, trip.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, trip.ErrAlreadyEnded):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, trip.ErrInvalidEvent):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	default:
		return err
	}
}
