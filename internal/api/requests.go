// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package api

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// validateInput runs struct validation on a request and maps the first
// failure to the InvalidInput error code.
func validateInput(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		f := verrs[0]
		return fmt.Errorf("InvalidInput: field %s fails constraint %q", f.Field(), f.Tag())
	}
	return fmt.Errorf("InvalidInput: %s", err)
}

// registerRequest validates the registerUser mutation arguments.
type registerRequest struct {
	Username string `validate:"required,min=3,max=100"`
	Password string `validate:"required,min=8,max=100"`
}

// reviewRequest validates the postReview mutation arguments. The rating
// upper bound depends on the user's review scale and is checked during
// normalization, not here.
type reviewRequest struct {
	EntityID   string   `validate:"required"`
	Visibility string   `validate:"required,oneof=public private"`
	Rating     *float64 `validate:"omitempty,min=0"`
	Text       string   `validate:"omitempty,max=20000"`
}

// workoutRequest validates the createOrUpdateUserWorkout mutation
// arguments. Set-level shapes are checked by the fitness engine.
type workoutRequest struct {
	Name string `validate:"required,min=1,max=200"`
}
