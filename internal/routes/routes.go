package routes

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/stayescrow/internal/config"
	"github.com/example/stayescrow/internal/handlers"
	"github.com/example/stayescrow/internal/messaging"
	"github.com/example/stayescrow/internal/middleware"
	"github.com/example/stayescrow/internal/services"
)

// Version is reported by the root endpoint.
const Version = "1.0.0"

// Dependencies are the services the HTTP layer calls into.
type Dependencies struct {
	DB         *gorm.DB
	Settlement *services.SettlementService
	Reputation *services.ReputationService
	Queue      *messaging.BookingQueue
}

// Register wires up all HTTP routes.
func Register(app *fiber.App, cfg *config.Config, deps Dependencies) {
	rootHandler := handlers.NewRootHandler(deps.DB, Version)
	paymentHandler := handlers.NewPaymentHandler(deps.Settlement, deps.Queue)
	userHandler := handlers.NewUserHandler(deps.Reputation)

	// Mutations that touch wallets or user standing need a token when security is on.
	guard := func(c *fiber.Ctx) error { return c.Next() }
	if cfg.SecurityEnabled {
		guard = middleware.AuthMiddleware(cfg)
	}

	app.Get("/", rootHandler.Root)
	app.Get("/health", rootHandler.Health)

	api := app.Group("/api")

	payments := api.Group("/payments")
	payments.Post("/intent", paymentHandler.CreateIntent)
	payments.Get("/booking-id", paymentHandler.LastBookingID)
	payments.Get("/booking/:bookingId", paymentHandler.GetBooking)
	payments.Get("/booking/:bookingId/chain", paymentHandler.GetOnChainBooking)
	payments.Post("/booking/:bookingId/complete", paymentHandler.CompleteBooking)
	payments.Put("/booking/:bookingId/tx-hash", paymentHandler.UpdateTxHash)
	payments.Get("/properties/:id", paymentHandler.GetPropertyInfo)
	payments.Put("/wallet-address", guard, paymentHandler.UpdateWalletAddress)
	payments.Get("/tx/:hash", paymentHandler.GetTxStatus)
	payments.Get("/transactions", paymentHandler.ListTransactions)

	reclamation := payments.Group("/reclamation")
	reclamation.Post("/refund", paymentHandler.ReclamationRefund)
	reclamation.Post("/partial-refund", paymentHandler.PartialRefund)
	reclamation.Post("/set-active", paymentHandler.SetActiveReclamation)
	reclamation.Get("/:bookingId", paymentHandler.GetReclamation)

	users := api.Group("/users")
	users.Get("/:userId", userHandler.GetUser)
	users.Post("/:userId/penalty", guard, userHandler.ApplyPenalty)
	users.Post("/:userId/suspend", guard, userHandler.Suspend)
	users.Post("/:userId/unsuspend", guard, userHandler.Unsuspend)
}
