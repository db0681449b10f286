package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/example/stayescrow/internal/services"
)

// UserHandler exposes reputation scores and suspensions.
type UserHandler struct {
	reputation *services.ReputationService
}

func NewUserHandler(reputation *services.ReputationService) *UserHandler {
	return &UserHandler{reputation: reputation}
}

func (h *UserHandler) GetUser(c *fiber.Ctx) error {
	userID, err := paramID(c, "userId")
	if err != nil {
		return err
	}

	user, err := h.reputation.User(c.UserContext(), userID)
	if err != nil {
		return writeBusinessError(c, err)
	}
	return c.JSON(user)
}

type penaltyRequest struct {
	PenaltyPoints int `json:"penaltyPoints"`
}

func (h *UserHandler) ApplyPenalty(c *fiber.Ctx) error {
	userID, err := paramID(c, "userId")
	if err != nil {
		return err
	}
	var req penaltyRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.reputation.ApplyPenalty(c.UserContext(), userID, req.PenaltyPoints)
	if err != nil {
		return writeBusinessError(c, err)
	}
	return c.JSON(fiber.Map{
		"status":  "success",
		"message": "Penalty points deducted from score successfully",
		"data":    result,
	})
}

type suspendRequest struct {
	Reason         string `json:"reason"`
	SuspensionDays int    `json:"suspensionDays"`
}

func (h *UserHandler) Suspend(c *fiber.Ctx) error {
	userID, err := paramID(c, "userId")
	if err != nil {
		return err
	}
	var req suspendRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}

	user, err := h.reputation.Suspend(c.UserContext(), userID, req.Reason, req.SuspensionDays)
	if err != nil {
		return writeBusinessError(c, err)
	}
	return c.JSON(fiber.Map{
		"status":          "success",
		"message":         "User suspended successfully",
		"userId":          user.ID,
		"suspensionUntil": user.SuspensionUntil,
	})
}

func (h *UserHandler) Unsuspend(c *fiber.Ctx) error {
	userID, err := paramID(c, "userId")
	if err != nil {
		return err
	}

	user, err := h.reputation.Unsuspend(c.UserContext(), userID)
	if err != nil {
		return writeBusinessError(c, err)
	}
	return c.JSON(fiber.Map{
		"status":  "success",
		"message": "User unsuspended successfully",
		"userId":  user.ID,
	})
}
