package dto

import (
	"html"
	"reflect"
	"regexp"
	"strings"

	"wallet-ledger/internal/core/domain"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var safeStringRe = regexp.MustCompile(`^[a-zA-Z0-9_\-\.]+$`)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("permission", validatePermission)
		_ = v.RegisterValidation("expiry", validateExpiry)
		_ = v.RegisterValidation("walletnumber", validateWalletNumber)
	}
}

func validatePermission(fl validator.FieldLevel) bool {
	_, err := domain.ParsePermission(fl.Field().String())
	return err == nil
}

func validateExpiry(fl validator.FieldLevel) bool {
	_, err := domain.ParseExpirySpec(fl.Field().String())
	return err == nil
}

func validateWalletNumber(fl validator.FieldLevel) bool {
	return domain.IsValidWalletNumber(fl.Field().String())
}

// IsSafeID reports whether s only holds alphanumerics, underscore, dash and dot.
// Path parameters such as references are checked with it before any lookup.
func IsSafeID(s string) bool {
	return len(s) <= 100 && safeStringRe.MatchString(s)
}

// SanitizeStruct trims whitespace and HTML-escapes every exported string
// field (including *string) of a struct pointer.
func SanitizeStruct(v interface{}) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return
	}
	sanitizeFields(rv.Elem())
}

func sanitizeFields(rv reflect.Value) {
	for i := 0; i < rv.NumField(); i++ {
		f := rv.Field(i)
		if !f.CanSet() {
			continue
		}
		switch f.Kind() {
		case reflect.String:
			f.SetString(sanitize(f.String()))
		case reflect.Ptr:
			if f.IsNil() {
				continue
			}
			elem := f.Elem()
			if elem.Kind() == reflect.String {
				elem.SetString(sanitize(elem.String()))
			}
		}
	}
}

func sanitize(s string) string {
	return html.EscapeString(strings.TrimSpace(s))
}
