// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"
)

// fieldValidator checks single values such as email addresses.
var fieldValidator = validator.New()

// SignupValidator decides whether a signup request may reach the store.
type SignupValidator interface {
	ValidateSignup(req Signup) error
}

// PasswordPolicy describes the minimum strength of a new password.
type PasswordPolicy struct {
	MinLength    int
	RequireUpper bool
	RequireLower bool
	RequireDigit bool
}

// DefaultPasswordPolicy requires eight characters with mixed case and a digit.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:    8,
		RequireUpper: true,
		RequireLower: true,
		RequireDigit: true,
	}
}

// Check reports whether password satisfies the policy.
func (p PasswordPolicy) Check(password string) bool {
	if len([]rune(password)) < p.MinLength {
		return false
	}
	var upper, lower, digit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return (upper || !p.RequireUpper) &&
		(lower || !p.RequireLower) &&
		(digit || !p.RequireDigit)
}

// PolicyValidator validates signups with struct tags on Signup plus a
// password policy registered as the "password" tag.
type PolicyValidator struct {
	validate *validator.Validate
}

// NewPolicyValidator creates a PolicyValidator enforcing policy.
func NewPolicyValidator(policy PasswordPolicy) *PolicyValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	// RegisterValidation only fails for empty tag names or reserved tags.
	_ = v.RegisterValidation("password", func(fl validator.FieldLevel) bool { //nolint:errcheck // static tag name
		return policy.Check(fl.Field().String())
	})
	return &PolicyValidator{validate: v}
}

// ValidateSignup returns ErrInvalidSignup naming every failing field.
func (v *PolicyValidator) ValidateSignup(req Signup) error {
	err := v.validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return oops.Code("AUTH_INVALID_SIGNUP").Wrap(errors.Join(ErrInvalidSignup, err))
	}

	fields := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields[fe.Field()] = fe.Tag()
	}
	return oops.Code("AUTH_INVALID_SIGNUP").With("fields", fields).Wrap(ErrInvalidSignup)
}
