package errors

import (
	"errors"
)

var (
	ErrUserNotFound            = errors.New("user not found")
	ErrUsernameExists          = errors.New("username or email already exists")
	ErrInvalidCredentials      = errors.New("invalid credentials")
	ErrUnauthorized            = errors.New("user not authenticated")
	ErrForbidden               = errors.New("forbidden")
	ErrNilUser                 = errors.New("user is nil")
	ErrNilOrder                = errors.New("order is nil")
	ErrNilDeposit              = errors.New("deposit is nil")
	ErrWalletNotFound          = errors.New("wallet not found")
	ErrDepositNotFound         = errors.New("deposit not found")
	ErrOrderNotFound           = errors.New("order not found")
	ErrProductNotFound         = errors.New("product not found")
	ErrInsufficientFunds       = errors.New("insufficient funds")
	ErrAlreadyProcessed        = errors.New("already processed")
	ErrInvalidTransition       = errors.New("invalid status transition")
	ErrOrderNotFulfilled       = errors.New("order is not completed yet")
	ErrRequestAlreadyProcessed = errors.New("request already processed")
	ErrInvalidInput            = errors.New("invalid input")
	ErrStoreUnavailable        = errors.New("store unavailable")
	ErrInternal                = errors.New("internal error")
)
