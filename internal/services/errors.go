package services

import (
	"errors"
	"fmt"
)

// ErrorCode is a stable machine-readable failure code returned to API callers.
type ErrorCode string

const (
	CodeBookingNotFound        ErrorCode = "BOOKING_NOT_FOUND"
	CodePropertyNotFound       ErrorCode = "PROPERTY_NOT_FOUND"
	CodeOwnerNotFound          ErrorCode = "OWNER_NOT_FOUND"
	CodeInvalidOwnerID         ErrorCode = "INVALID_OWNER_ID"
	CodeWalletAddressMissing   ErrorCode = "WALLET_ADDRESS_MISSING"
	CodeBookingPriceMissing    ErrorCode = "BOOKING_PRICE_MISSING"
	CodeInvalidBookingPrice    ErrorCode = "INVALID_BOOKING_PRICE"
	CodeGuestNotFound          ErrorCode = "GUEST_NOT_FOUND"
	CodeContractNotConfigured  ErrorCode = "CONTRACT_NOT_CONFIGURED"
	CodeBookingNotOnBlockchain ErrorCode = "BOOKING_NOT_ON_BLOCKCHAIN"
	CodeBlockchainError        ErrorCode = "BLOCKCHAIN_ERROR"
	CodeDatabaseError          ErrorCode = "DATABASE_ERROR"
	CodeTransactionNotFound    ErrorCode = "TRANSACTION_NOT_FOUND"
	CodeTxNotFound             ErrorCode = "TX_NOT_FOUND"
	CodeUserNotFound           ErrorCode = "USER_NOT_FOUND"
	CodeInvalidRequest         ErrorCode = "INVALID_REQUEST"
)

// BusinessError is a failure the caller can act on: a stable code plus a
// message naming the identifiers involved.
type BusinessError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func businessError(code ErrorCode, format string, args ...any) *BusinessError {
	return &BusinessError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func wrapBusinessError(code ErrorCode, err error, format string, args ...any) *BusinessError {
	return &BusinessError{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf returns the business code carried by err, or "" when err is not a BusinessError.
func CodeOf(err error) ErrorCode {
	var be *BusinessError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}
