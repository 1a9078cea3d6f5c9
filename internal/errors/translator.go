package errors

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/golang-migrate/migrate/v4"
)

// ErrorTranslator 错误转换器
type ErrorTranslator struct{}

// NewErrorTranslator 创建错误转换器
func NewErrorTranslator() *ErrorTranslator {
	return &ErrorTranslator{}
}

// Translate 将各种类型的错误转换为AppError
func (t *ErrorTranslator) Translate(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		return t.translateValidationErrors(validationErrs)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return NewSystemError(ErrCodeConnectionFailed, "Network operation failed").WithCause(err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewEmbeddingError("operation timed out", err)
	}

	if t.isDatabaseError(err) {
		return t.translateDatabaseError(err)
	}

	errMsg := err.Error()
	if strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "timeout") {
		return NewSystemError(ErrCodeExternalService, "External service unavailable").WithCause(err)
	}

	return NewSystemError(ErrCodeInternalServer, "Internal server error").WithCause(err)
}

// translateValidationErrors 转换参数验证错误
func (t *ErrorTranslator) translateValidationErrors(errs validator.ValidationErrors) *AppError {
	if len(errs) == 0 {
		return NewValidationError("validation failed")
	}

	details := make([]map[string]string, 0, len(errs))
	for _, fe := range errs {
		details = append(details, map[string]string{
			"field": fe.Field(),
			"rule":  fe.Tag(),
			"param": fe.Param(),
		})
	}

	first := errs[0]
	return NewInvalidInputError(first.Field(), first.Tag()).WithDetails(details)
}

// isDatabaseError 判断是否为数据库相关错误
func (t *ErrorTranslator) isDatabaseError(err error) bool {
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, sql.ErrConnDone) || errors.Is(err, sql.ErrTxDone) {
		return true
	}
	if errors.Is(err, migrate.ErrNoChange) || errors.Is(err, migrate.ErrNilVersion) {
		return true
	}
	errMsg := strings.ToLower(err.Error())
	return strings.Contains(errMsg, "sqlstate") || strings.Contains(errMsg, "duplicate key")
}

// translateDatabaseError 转换数据库错误
func (t *ErrorTranslator) translateDatabaseError(err error) *AppError {
	if errors.Is(err, sql.ErrNoRows) {
		return NewNotFoundError("record")
	}
	if strings.Contains(strings.ToLower(err.Error()), "duplicate key") {
		return NewBusinessError(ErrCodeConflict, "Record already exists").WithCause(err)
	}
	return NewSystemError(ErrCodeDatabaseError, "Database operation failed").WithCause(err)
}
