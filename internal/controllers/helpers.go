package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/TOOL2U/Application---Property-Management--sub002/internal/constants"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/dtos"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/middleware"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/models"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/utils"
)

var validate = validator.New()

// formatValidationErrors converts validator errors into a user-friendly format.
func formatValidationErrors(errs validator.ValidationErrors) []dtos.ValidationErrorDetail {
	var details []dtos.ValidationErrorDetail
	for _, err := range errs {
		var message string
		switch err.Tag() {
		case "required", "required_with":
			message = fmt.Sprintf("Field '%s' is required", err.Field())
		case "max":
			message = fmt.Sprintf("Field '%s' must not exceed %s", err.Field(), err.Param())
		case "oneof":
			message = fmt.Sprintf("Field '%s' must be one of [%s]", err.Field(), err.Param())
		default:
			message = fmt.Sprintf("Field validation for '%s' failed on the '%s' tag", err.Field(), err.Tag())
		}
		details = append(details, dtos.ValidationErrorDetail{
			Field:   err.Field(),
			Message: message,
			Code:    "validation_" + err.Tag(),
		})
	}
	return details
}

// decodeAndValidate reads a JSON body into dst. On failure it has already written the response.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxRequestBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeInvalidPayload, "Invalid JSON payload", nil, err)
		return false
	}
	if err := validate.StructCtx(r.Context(), dst); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeValidation, "Validation error", formatValidationErrors(validationErrs), err)
		} else {
			utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeValidation, "Validation error", nil, err)
		}
		return false
	}
	return true
}

func staffFromRequest(w http.ResponseWriter, r *http.Request) (models.Staff, bool) {
	staff, ok := middleware.StaffFromContext(r.Context())
	if !ok || staff.ID == "" {
		utils.RespondErrorWithCode(w, http.StatusUnauthorized, utils.ErrCodeUnauthorized, "No staff in context", nil)
		return models.Staff{}, false
	}
	return staff, true
}

func respondJobError(w http.ResponseWriter, err error) {
	utils.RespondLifecycleError(w, err, func(c *utils.ConflictError) any {
		return dtos.ConflictDetails{CurrentJob: c.Current}
	})
}
