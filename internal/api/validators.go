package api

import (
	"fmt"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"giftspa/server/internal/models"
	"giftspa/server/internal/services"
)

var (
	validatorsOnce sync.Once
	validatorsErr  error
)

// RegisterValidators подключает кастомные теги к валидатору gin: phone, certtype
func RegisterValidators() error {
	validatorsOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			validatorsErr = fmt.Errorf("binding validator is not go-playground/validator")
			return
		}
		if err := v.RegisterValidation("phone", validatePhone); err != nil {
			validatorsErr = err
			return
		}
		if err := v.RegisterValidation("certtype", validateCertificateType); err != nil {
			validatorsErr = err
		}
	})
	return validatorsErr
}

// validatePhone 10-15 цифр после нормализации
func validatePhone(fl validator.FieldLevel) bool {
	digits := services.NormalizePhone(fl.Field().String())
	return len(digits) >= 10 && len(digits) <= 15
}

func validateCertificateType(fl validator.FieldLevel) bool {
	return models.CertificateType(fl.Field().String()).Valid()
}
