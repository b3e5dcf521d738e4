// Package validation checks request payloads with go-playground/validator and
// renders failures as per-field French messages.
//
// Structs are tagged with `json` names, which become the field keys of the
// result, and with `validate` rules:
//
//	type registerInput struct {
//	    Nom   string `json:"nom" validate:"required,max=255"`
//	    Email string `json:"email" validate:"required,email"`
//	}
//
// Messages override the default text for a "field.tag" pair, mirroring the
// per-request message tables of the API.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Fields maps a json field name to its error messages.
type Fields map[string][]string

// Add appends a message for field.
func (f Fields) Add(field, message string) {
	f[field] = append(f[field], message)
}

// Has reports whether field already carries an error.
func (f Fields) Has(field string) bool {
	return len(f[field]) > 0
}

// Names returns the failing field names in sorted order.
func (f Fields) Names() []string {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Messages overrides default messages, keyed by "field.tag".
type Messages map[string]string

// Validator returns the shared validator instance.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return field.Name
			}
			return name
		})
	})
	return validate
}

// Struct validates s and returns the failing fields, or an empty map when s
// is valid. Errors other than field failures are returned as-is.
func Struct(s any, messages Messages) (Fields, error) {
	fields := Fields{}
	err := Validator().Struct(s)
	if err == nil {
		return fields, nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil, fmt.Errorf("validate %T: %w", s, err)
	}
	for _, fe := range validationErrors {
		field := fe.Field()
		key := field + "." + fe.Tag()
		if message, ok := messages[key]; ok {
			fields.Add(field, message)
			continue
		}
		fields.Add(field, defaultMessage(fe))
	}
	return fields, nil
}

func defaultMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("Le champ %s est obligatoire.", field)
	case "email":
		return fmt.Sprintf("Le champ %s doit être une adresse email valide.", field)
	case "max":
		return fmt.Sprintf("Le champ %s ne peut pas dépasser %s caractères.", field, fe.Param())
	case "min":
		if fe.Param() == "1" {
			return fmt.Sprintf("Le champ %s ne peut pas être vide.", field)
		}
		return fmt.Sprintf("Le champ %s doit contenir au moins %s caractères.", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("Le champ %s doit être l'une des valeurs suivantes : %s.", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "eqfield":
		return fmt.Sprintf("La confirmation du champ %s ne correspond pas.", strings.TrimSuffix(field, "_confirmation"))
	case "url", "http_url":
		return fmt.Sprintf("Le champ %s doit être une URL valide.", field)
	default:
		return fmt.Sprintf("Le champ %s est invalide.", field)
	}
}
