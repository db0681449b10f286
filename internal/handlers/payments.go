package handlers

import (
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/example/stayescrow/internal/messaging"
	"github.com/example/stayescrow/internal/middleware"
	"github.com/example/stayescrow/internal/models"
	"github.com/example/stayescrow/internal/services"
	"github.com/example/stayescrow/internal/utils"
)

// bookingIDWait is how long GET /booking-id waits for a booking-created event.
const bookingIDWait = 5 * time.Second

// PaymentHandler serves the payment intent, settlement and reclamation endpoints.
type PaymentHandler struct {
	settlement *services.SettlementService
	queue      *messaging.BookingQueue
	wait       time.Duration
}

func NewPaymentHandler(settlement *services.SettlementService, queue *messaging.BookingQueue) *PaymentHandler {
	return &PaymentHandler{settlement: settlement, queue: queue, wait: bookingIDWait}
}

type paymentIntentRequest struct {
	BookingID int64 `json:"bookingId"`
}

// CreateIntent handles POST /payments/intent.
func (h *PaymentHandler) CreateIntent(c *fiber.Ctx) error {
	var req paymentIntentRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	intent, err := h.settlement.CreatePaymentIntent(c.UserContext(), req.BookingID)
	if err != nil {
		return writeBusinessError(c, err)
	}
	return c.JSON(intent)
}

func (h *PaymentHandler) GetBooking(c *fiber.Ctx) error {
	bookingID, err := paramID(c, "bookingId")
	if err != nil {
		return err
	}

	details, err := h.settlement.BookingDetails(c.UserContext(), bookingID)
	if err != nil {
		return writeBusinessError(c, err)
	}
	return c.JSON(details)
}

func (h *PaymentHandler) GetOnChainBooking(c *fiber.Ctx) error {
	bookingID, err := paramID(c, "bookingId")
	if err != nil {
		return err
	}

	booking, err := h.settlement.OnChainBooking(c.UserContext(), bookingID)
	if err != nil {
		return writeBusinessError(c, err)
	}
	return c.JSON(booking)
}

// CompleteBooking releases escrowed funds. It blocks until the chain confirms.
func (h *PaymentHandler) CompleteBooking(c *fiber.Ctx) error {
	bookingID, err := paramID(c, "bookingId")
	if err != nil {
		return err
	}

	hash, err := h.settlement.CompleteBooking(c.UserContext(), bookingID)
	if err != nil {
		return writeBusinessError(c, err)
	}
	return c.JSON(fiber.Map{
		"status":  "success",
		"message": "Booking completed successfully on blockchain",
		"txHash":  hash,
	})
}

type txHashRequest struct {
	TxHash string `json:"txHash"`
}

// UpdateTxHash records the hash the guest's wallet reported and confirms the booking.
func (h *PaymentHandler) UpdateTxHash(c *fiber.Ctx) error {
	bookingID, err := paramID(c, "bookingId")
	if err != nil {
		return err
	}
	var req txHashRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.settlement.ConfirmPayment(c.UserContext(), bookingID, req.TxHash); err != nil {
		return writeBusinessError(c, err)
	}
	return c.JSON(fiber.Map{"status": "success"})
}

// LastBookingID returns the most recent booking-created id, waiting briefly
// for one when none has been seen.
func (h *PaymentHandler) LastBookingID(c *fiber.Ctx) error {
	if h.queue == nil {
		return c.SendStatus(fiber.StatusNoContent)
	}

	bookingID, ok := h.queue.WaitForBookingID(c.UserContext(), h.wait)
	if !ok {
		return c.SendStatus(fiber.StatusNoContent)
	}
	return c.JSON(fiber.Map{"status": "success", "bookingId": bookingID})
}

func (h *PaymentHandler) GetPropertyInfo(c *fiber.Ctx) error {
	info, err := h.settlement.PropertyInfo(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeBusinessError(c, err)
	}
	return c.JSON(info)
}

type walletAddressRequest struct {
	UserID        int64  `json:"userId"`
	WalletAddress string `json:"walletAddress"`
}

// UpdateWalletAddress stores a user's wallet. Authenticated callers may only
// change their own.
func (h *PaymentHandler) UpdateWalletAddress(c *fiber.Ctx) error {
	var req walletAddressRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.UserID <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "userId is required")
	}
	if current, ok := middleware.GetCurrentUserID(c); ok && current != req.UserID {
		return fiber.NewError(fiber.StatusForbidden, "cannot change another user's wallet")
	}

	user, err := h.settlement.UpdateWalletAddress(c.UserContext(), req.UserID, req.WalletAddress)
	if err != nil {
		return writeBusinessError(c, err)
	}
	return c.JSON(fiber.Map{
		"status": "success",
		"data": fiber.Map{
			"userId":        user.ID,
			"walletAddress": user.WalletAddress,
		},
	})
}

func (h *PaymentHandler) GetTxStatus(c *fiber.Ctx) error {
	status, err := h.settlement.TxStatus(c.UserContext(), c.Params("hash"))
	if err != nil {
		return writeBusinessError(c, err)
	}
	return c.JSON(status)
}

// ListTransactions handles GET /payments/transactions?bookingId=&userId=&status=&page=&limit=.
func (h *PaymentHandler) ListTransactions(c *fiber.Ctx) error {
	var filter services.TransactionFilter
	if raw := c.Query("bookingId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid bookingId")
		}
		filter.BookingID = &id
	}
	if raw := c.Query("userId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid userId")
		}
		filter.UserID = &id
	}
	if raw := c.Query("status"); raw != "" {
		filter.Status = models.TransactionStatus(strings.ToUpper(raw))
	}

	pg := utils.ParsePagination(c)
	records, total, err := h.settlement.ListTransactions(c.UserContext(), filter, pg)
	if err != nil {
		return writeBusinessError(c, err)
	}
	return c.JSON(fiber.Map{
		"success":    true,
		"data":       records,
		"pagination": pg.Meta(total),
	})
}

type reclamationRefundRequest struct {
	BookingID        int64  `json:"bookingId"`
	RecipientAddress string `json:"recipientAddress"`
	RefundAmountWei  string `json:"refundAmountWei"`
	PenaltyAmountWei string `json:"penaltyAmountWei"`
	RefundFromRent   bool   `json:"refundFromRent"`
}

func (h *PaymentHandler) ReclamationRefund(c *fiber.Ctx) error {
	var req reclamationRefundRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	refund, ok := parseWei(req.RefundAmountWei)
	if !ok {
		return fiber.NewError(fiber.StatusBadRequest, "refundAmountWei must be an integer")
	}
	penalty, ok := parseWei(req.PenaltyAmountWei)
	if !ok {
		return fiber.NewError(fiber.StatusBadRequest, "penaltyAmountWei must be an integer")
	}

	hash, err := h.settlement.ProcessReclamationRefund(c.UserContext(), services.ReclamationRefundRequest{
		BookingID:        req.BookingID,
		RecipientAddress: req.RecipientAddress,
		RefundAmountWei:  refund,
		PenaltyAmountWei: penalty,
		RefundFromRent:   req.RefundFromRent,
	})
	if err != nil {
		return writeBusinessError(c, err)
	}
	return c.JSON(fiber.Map{
		"status":  "success",
		"message": "Reclamation refund processed successfully",
		"txHash":  hash,
	})
}

func (h *PaymentHandler) PartialRefund(c *fiber.Ctx) error {
	var req reclamationRefundRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	refund, ok := parseWei(req.RefundAmountWei)
	if !ok {
		return fiber.NewError(fiber.StatusBadRequest, "refundAmountWei must be an integer")
	}

	hash, err := h.settlement.ProcessPartialRefund(c.UserContext(), req.BookingID, req.RecipientAddress, refund, req.RefundFromRent)
	if err != nil {
		return writeBusinessError(c, err)
	}
	return c.JSON(fiber.Map{
		"status":  "success",
		"message": "Partial refund processed successfully",
		"txHash":  hash,
	})
}

type setActiveReclamationRequest struct {
	BookingID int64 `json:"bookingId"`
	Active    bool  `json:"active"`
}

func (h *PaymentHandler) SetActiveReclamation(c *fiber.Ctx) error {
	var req setActiveReclamationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	hash, err := h.settlement.SetActiveReclamation(c.UserContext(), req.BookingID, req.Active)
	if err != nil {
		return writeBusinessError(c, err)
	}
	return c.JSON(fiber.Map{
		"status":  "success",
		"message": "Active reclamation status updated",
		"txHash":  hash,
	})
}

func (h *PaymentHandler) GetReclamation(c *fiber.Ctx) error {
	bookingID, err := paramID(c, "bookingId")
	if err != nil {
		return err
	}

	refund, err := h.settlement.ReclamationRefund(c.UserContext(), bookingID)
	if err != nil {
		return writeBusinessError(c, err)
	}
	return c.JSON(refund)
}

func parseWei(raw string) (*big.Int, bool) {
	return new(big.Int).SetString(strings.TrimSpace(raw), 10)
}
