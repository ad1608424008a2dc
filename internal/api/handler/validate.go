package handler

import (
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// validationMessages flattens validator errors into a field to message map
// for 400 responses.
func validationMessages(err error) any {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}

	messages := make(map[string]string)
	for _, e := range validationErrors {
		field := e.Field()
		switch e.Tag() {
		case "required":
			messages[field] = "field is required"
		case "url":
			messages[field] = "must be a valid URL"
		case "oneof":
			messages[field] = "must be one of: " + e.Param()
		case "min":
			messages[field] = "must be at least " + e.Param() + " characters"
		case "max":
			messages[field] = "must be at most " + e.Param() + " characters"
		default:
			messages[field] = "validation failed on " + e.Tag()
		}
	}
	return messages
}
