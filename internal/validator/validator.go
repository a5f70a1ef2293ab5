// Package validator provides custom validation functions for Gin's binding engine.
package validator

import (
	"regexp"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	nicknameRegex = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
	phoneRegex    = regexp.MustCompile(`^[\+]?[(]?[0-9]{1,4}[)]?[-\s\.]?[(]?[0-9]{1,4}[)]?[-\s\.]?[0-9]{1,9}$`)
)

// Register registers all custom validators with the Gin binding engine.
func Register() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("nickname", validateNickname)
		_ = v.RegisterValidation("phone", validatePhone)
		_ = v.RegisterValidation("chat_status", validateChatStatus)
		_ = v.RegisterValidation("positive_decimal", validatePositiveDecimal)
	}
}

func validateNickname(fl validator.FieldLevel) bool {
	return nicknameRegex.MatchString(fl.Field().String())
}

// validatePhone accepts an empty value so the field can be cleared.
func validatePhone(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	return s == "" || phoneRegex.MatchString(s)
}

func validateChatStatus(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "pending", "active", "closed":
		return true
	}
	return false
}

// validatePositiveDecimal checks a decimal amount passed as a string.
func validatePositiveDecimal(fl validator.FieldLevel) bool {
	return positiveDecimalRegex.MatchString(fl.Field().String()) && !zeroDecimalRegex.MatchString(fl.Field().String())
}

var (
	positiveDecimalRegex = regexp.MustCompile(`^[0-9]+(\.[0-9]{1,8})?$`)
	zeroDecimalRegex     = regexp.MustCompile(`^0+(\.0+)?$`)
)
