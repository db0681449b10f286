package handlers

import (
	"errors"
	"log"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/example/stayescrow/internal/services"
)

var businessStatus = map[services.ErrorCode]int{
	services.CodeBookingNotFound:        fiber.StatusNotFound,
	services.CodePropertyNotFound:       fiber.StatusNotFound,
	services.CodeOwnerNotFound:          fiber.StatusNotFound,
	services.CodeGuestNotFound:          fiber.StatusNotFound,
	services.CodeUserNotFound:           fiber.StatusNotFound,
	services.CodeTransactionNotFound:    fiber.StatusNotFound,
	services.CodeTxNotFound:             fiber.StatusNotFound,
	services.CodeBookingNotOnBlockchain: fiber.StatusNotFound,
	services.CodeInvalidRequest:         fiber.StatusBadRequest,
	services.CodeInvalidOwnerID:         fiber.StatusUnprocessableEntity,
	services.CodeWalletAddressMissing:   fiber.StatusUnprocessableEntity,
	services.CodeBookingPriceMissing:    fiber.StatusUnprocessableEntity,
	services.CodeInvalidBookingPrice:    fiber.StatusUnprocessableEntity,
	services.CodeContractNotConfigured:  fiber.StatusServiceUnavailable,
	services.CodeBlockchainError:        fiber.StatusBadGateway,
	services.CodeDatabaseError:          fiber.StatusInternalServerError,
}

// writeBusinessError renders a BusinessError with its code; anything else is
// left to the app error handler.
func writeBusinessError(c *fiber.Ctx, err error) error {
	var be *services.BusinessError
	if !errors.As(err, &be) {
		return err
	}

	status, ok := businessStatus[be.Code]
	if !ok {
		status = fiber.StatusInternalServerError
	}
	if status >= fiber.StatusInternalServerError {
		log.Printf("[API] %s %s failed: %s: %s", c.Method(), c.Path(), be.Code, be.Message)
	}

	return c.Status(status).JSON(fiber.Map{
		"status":  "error",
		"code":    be.Code,
		"message": be.Message,
	})
}

// ErrorHandler renders fiber errors and unexpected failures as JSON.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var be *services.BusinessError
	if errors.As(err, &be) {
		return writeBusinessError(c, err)
	}

	status := fiber.StatusInternalServerError
	message := "internal server error"
	var fe *fiber.Error
	if errors.As(err, &fe) {
		status, message = fe.Code, fe.Message
	} else {
		log.Printf("[API] %s %s failed: %v", c.Method(), c.Path(), err)
	}

	return c.Status(status).JSON(fiber.Map{
		"status":  "error",
		"message": message,
	})
}

func paramID(c *fiber.Ctx, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}
