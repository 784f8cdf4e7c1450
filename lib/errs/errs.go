package errs

import "errors"

var ErrNotFound = errors.New("not found")

var ErrAlreadyExists = errors.New("already exists")

var ErrInsufficientFunds = errors.New("insufficient funds")

var ErrInsufficientShares = errors.New("insufficient shares")

var ErrInvalidSymbol = errors.New("invalid symbol")

var ErrInvalidQuantity = errors.New("invalid quantity")

var ErrInvalidAmount = errors.New("invalid amount")

var ErrQuoteUnavailable = errors.New("quote unavailable")

var ErrCredentialPolicy = errors.New("password must be at least 8 characters and contain a digit and an uppercase letter")

var ErrCredentialMismatch = errors.New("credentials do not match")

var ErrInvalidCredentials = errors.New("invalid username and/or password")

var ErrInvalidToken = errors.New("invalid token")

var ErrInvalidSide = errors.New("side must be buy or sell")

var ErrInvalidBatch = errors.New("batch must be non-empty with at most one item per symbol")

var ErrMissingField = errors.New("missing required field")
