package services

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// Виды ошибок сервисного слоя. HTTP-статус выбирается в api.respondError через errors.Is
var (
	ErrValidation       = errors.New("validation error")
	ErrNotFound         = errors.New("not found")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrForbidden        = errors.New("forbidden")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrUpstream         = errors.New("upstream error")
)

// ValidationError ошибка валидации, текст отдается клиенту как есть
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Is позволяет проверять errors.Is(err, ErrValidation)
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func validationErrorf(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// notFound превращает gorm.ErrRecordNotFound в ErrNotFound, остальное оборачивает
func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s не найден: %w", what, ErrNotFound)
	}
	return fmt.Errorf("ошибка загрузки (%s): %w", what, err)
}
