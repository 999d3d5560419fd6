// Package request decodes and validates admin API request bodies.
package request

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 64 * 1024

var validate = validator.New()

var siteKeyRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

func init() {
	validate.RegisterValidation("sitekey", func(fl validator.FieldLevel) bool {
		return siteKeyRegex.MatchString(fl.Field().String())
	})
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
}

// SiteKey is the body of the single-site billing actions.
type SiteKey struct {
	SiteKey string `json:"siteKey" validate:"required,sitekey"`
}

// ValidSiteKey reports whether key is a well-formed site key.
func ValidSiteKey(key string) bool {
	return siteKeyRegex.MatchString(key)
}

// Decode reads a JSON body into v and validates it.
func Decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}
	return nil
}

// MissingField returns the JSON name of the first field that failed a
// "required" rule, or "" when err is not such a failure.
func MissingField(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return ""
	}
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			return fe.Field()
		}
	}
	return ""
}
