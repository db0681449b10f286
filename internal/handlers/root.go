package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const serviceName = "payments-svc"

// RootHandler describes the service and reports its health.
type RootHandler struct {
	db      *gorm.DB
	version string
}

func NewRootHandler(db *gorm.DB, version string) *RootHandler {
	return &RootHandler{db: db, version: version}
}

func (h *RootHandler) Root(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service": serviceName,
		"status":  "UP",
		"version": h.version,
		"endpoints": fiber.Map{
			"health":        "/health",
			"booking":       "/api/payments/booking/{bookingId}",
			"paymentIntent": "/api/payments/intent",
			"transaction":   "/api/payments/tx/{hash}",
			"walletAddress": "/api/payments/wallet-address",
		},
	})
}

// Health pings the database; a failed ping reports DOWN with 503.
func (h *RootHandler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	database := "UP"
	if h.db == nil {
		database = "UNKNOWN"
	} else if sqlDB, err := h.db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		database = "DOWN"
	}

	status := fiber.StatusOK
	overall := "UP"
	if database == "DOWN" {
		status, overall = fiber.StatusServiceUnavailable, "DOWN"
	}
	return c.Status(status).JSON(fiber.Map{
		"status":   overall,
		"database": database,
	})
}
