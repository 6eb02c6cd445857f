// Package validation checks request bodies before any side effect runs.
// Failures carry one message per failing field, keyed by the JSON field
// name.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/MrEthical07/otpauth"
	"github.com/go-playground/validator/v10"
)

const (
	TagRequired = "required"
	TagEmail    = "email"
	TagMin      = "min"
	TagMax      = "max"
	TagOTP      = "otp"
)

// SignupRequestOTP is the body of POST /signup/email/request-otp.
type SignupRequestOTP struct {
	Email string `json:"email" validate:"required,email,max=254"`
	Name  string `json:"name" validate:"required,min=2,max=60"`
}

// SignupVerifyOTP is the body of POST /signup/email/verify-otp.
type SignupVerifyOTP struct {
	Email string `json:"email" validate:"required,email,max=254"`
	OTP   string `json:"otp" validate:"required,otp"`
	Name  string `json:"name" validate:"required,min=2,max=60"`
}

// LoginRequestOTP is the body of POST /login/email/request-otp.
type LoginRequestOTP struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

// LoginVerifyOTP is the body of POST /login/email/verify-otp.
type LoginVerifyOTP struct {
	Email string `json:"email" validate:"required,email,max=254"`
	OTP   string `json:"otp" validate:"required,otp"`
}

// Validator wraps the go-playground validator with the code-length rule.
type Validator struct {
	validator *validator.Validate
	digits    int
}

// New returns a Validator accepting codes of exactly digits numeric
// characters.
func New(digits int) *Validator {
	if digits <= 0 {
		digits = 6
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	_ = validate.RegisterValidation(TagOTP, func(fl validator.FieldLevel) bool {
		code := fl.Field().String()
		if len(code) != digits {
			return false
		}
		for i := 0; i < len(code); i++ {
			if code[i] < '0' || code[i] > '9' {
				return false
			}
		}
		return true
	})

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Validator{validator: validate, digits: digits}
}

// Normalize trims every field and lowercases emails in place. It accepts
// pointers to the request types of this package.
func Normalize(req any) {
	switch r := req.(type) {
	case *SignupRequestOTP:
		r.Email = otpauth.NormalizeEmail(r.Email)
		r.Name = strings.TrimSpace(r.Name)
	case *SignupVerifyOTP:
		r.Email = otpauth.NormalizeEmail(r.Email)
		r.OTP = strings.TrimSpace(r.OTP)
		r.Name = strings.TrimSpace(r.Name)
	case *LoginRequestOTP:
		r.Email = otpauth.NormalizeEmail(r.Email)
	case *LoginVerifyOTP:
		r.Email = otpauth.NormalizeEmail(r.Email)
		r.OTP = strings.TrimSpace(r.OTP)
	}
}

// Validate normalizes req and checks it. The returned error is an *Error.
func (v *Validator) Validate(req any) error {
	Normalize(req)

	err := v.validator.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return v.newError(verrs)
	}
	return &Error{Fields: map[string]string{"body": "body is invalid"}}
}

// Error lists a message per failing field.
type Error struct {
	Fields map[string]string `json:"details"`
}

func (e *Error) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	messages := make([]string, 0, len(keys))
	for _, k := range keys {
		messages = append(messages, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, ", "))
}

func (e *Error) Unwrap() error {
	return otpauth.ErrValidation
}

func (v *Validator) newError(errs validator.ValidationErrors) *Error {
	fields := make(map[string]string, len(errs))

	for _, err := range errs {
		field := err.Field()

		switch err.Tag() {
		case TagRequired:
			fields[field] = fmt.Sprintf("%s is required", field)
		case TagEmail:
			fields[field] = fmt.Sprintf("%s must be a valid email address", field)
		case TagMin:
			fields[field] = fmt.Sprintf("%s must be at least %s characters long", field, err.Param())
		case TagMax:
			fields[field] = fmt.Sprintf("%s must be at most %s characters long", field, err.Param())
		case TagOTP:
			fields[field] = fmt.Sprintf("%s must be exactly %s digits", field, strconv.Itoa(v.digits))
		default:
			fields[field] = fmt.Sprintf("%s is invalid", field)
		}
	}

	return &Error{Fields: fields}
}
