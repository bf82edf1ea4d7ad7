package apperr

import (
	"errors"
	"net/http"
)

// Code 对外暴露的稳定错误码
type Code string

const (
	FromAddressMissing Code = "FROM_ADDRESS_MISSING"
	ToAddressMissing   Code = "TO_ADDRESS_MISSING"
	TransferFailed     Code = "TRANSFER_FAILED"
	InsufficientFunds  Code = "INSUFFICIENT_FUNDS"
	InvalidAmount      Code = "INVALID_AMOUNT"
	TxHashNotFound     Code = "TX_HASH_NOT_FOUND"
	DuplicatePlatform  Code = "DUPLICATE_PLATFORM"
	OAuth              Code = "OAUTH"
	Locked             Code = "LOCKED"
	Unauthorized       Code = "UNAUTHORIZED"
	BadRequest         Code = "BAD_REQUEST"
	ChainUnavailable   Code = "CHAIN_UNAVAILABLE"
)

var humanized = map[Code]string{
	FromAddressMissing: "From address is missing.",
	ToAddressMissing:   "To address is missing.",
	TransferFailed:     "Transfer failed.",
	InsufficientFunds:  "Insufficient funds.",
	InvalidAmount:      "Invalid amount. Must be positive and contain no more than 18 decimal places.",
	TxHashNotFound:     "Could not find the transaction",
	DuplicatePlatform:  "This platform account is already linked.",
	OAuth:              "Could not authenticate with the platform.",
	Locked:             "Another request for this account is in progress, retry shortly.",
	Unauthorized:       "Authentication required.",
	BadRequest:         "Malformed request.",
	ChainUnavailable:   "Could not read from the blockchain, retry shortly.",
}

// Error 业务错误
type Error struct {
	Code   Code
	Status int
	cause  error
}

// New 创建业务错误, 状态码默认 400
func New(code Code) *Error {
	return &Error{Code: code, Status: http.StatusBadRequest}
}

// Wrap 创建携带底层原因的业务错误, 原因只用于日志
func Wrap(code Code, cause error) *Error {
	return &Error{Code: code, Status: http.StatusBadRequest, cause: cause}
}

// NotFound 创建 404 业务错误
func NotFound(code Code) *Error {
	return &Error{Code: code, Status: http.StatusNotFound}
}

// Conflict 创建 409 业务错误
func Conflict(code Code, cause error) *Error {
	return &Error{Code: code, Status: http.StatusConflict, cause: cause}
}

// Unavailable 上游不可用, 502
func Unavailable(code Code, cause error) *Error {
	return &Error{Code: code, Status: http.StatusBadGateway, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return string(e.Code) + ": " + e.cause.Error()
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is 按错误码匹配
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Humanized 面向用户的描述
func (e *Error) Humanized() string {
	return Humanize(e.Code)
}

// Humanize 错误码对应的描述
func Humanize(code Code) string {
	if msg, ok := humanized[code]; ok {
		return msg
	}
	return string(code)
}

// From 提取业务错误, 其他错误视为 500
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Code: TransferFailed, Status: http.StatusInternalServerError, cause: err}
}
