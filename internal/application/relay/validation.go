package relay

import (
	"errors"
	"reflect"
	"strings"

	"github.com/erp/mikrosync/internal/domain/relay"
	"github.com/go-playground/validator/v10"
)

// FieldError names one payload field that failed validation.
type FieldError struct {
	Field string // JSON path, e.g. Mikro.evraklar[0].evrak_aciklamalari
	Tag   string // failed rule, e.g. required
}

// ValidationError lists every field a payload is missing.
type ValidationError struct {
	Fields []FieldError
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + " (" + f.Tag + ")"
	}
	return relay.ErrValidationFailed.Error() + ": " + strings.Join(parts, ", ")
}

// Unwrap lets errors.Is match ErrValidationFailed
func (e *ValidationError) Unwrap() error {
	return relay.ErrValidationFailed
}

// PayloadValidator checks wire payloads against their struct tags.
type PayloadValidator struct {
	validate *validator.Validate
}

// NewPayloadValidator creates a validator that reports fields by their JSON names.
func NewPayloadValidator() *PayloadValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &PayloadValidator{validate: v}
}

// Validate returns a *ValidationError wrapping ErrValidationFailed, or nil.
func (pv *PayloadValidator) Validate(payload any) error {
	err := pv.validate.Struct(payload)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errors.Join(relay.ErrValidationFailed, err)
	}

	out := &ValidationError{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{
			Field: trimRootType(fe.Namespace()),
			Tag:   fe.Tag(),
		})
	}
	return out
}

// trimRootType drops the Go type name validator puts in front of the namespace.
func trimRootType(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
