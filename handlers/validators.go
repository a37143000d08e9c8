package handlers

import (
	"canteen-runner-api/models"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// RegisterValidators adds the campus tags used in request bodies.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	if err := v.RegisterValidation("canteen", func(fl validator.FieldLevel) bool {
		return models.IsCanteen(fl.Field().String())
	}); err != nil {
		return err
	}
	return v.RegisterValidation("campus_location", func(fl validator.FieldLevel) bool {
		return models.IsLocation(fl.Field().String())
	})
}
