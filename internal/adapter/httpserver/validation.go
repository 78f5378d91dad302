package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/ai-device-compare/internal/domain"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 << 10

// ValidationError describes one rejected field.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() {
		vld = validator.New(validator.WithRequiredStructEnabled())
		// Report JSON field names.
		vld.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = vld.RegisterValidation("kind", func(fl validator.FieldLevel) bool {
			return knownKind(domain.Kind(fl.Field().String()))
		})
	})
	return vld
}

// knownKind reports whether k is accepted by POST /api/queue.
func knownKind(k domain.Kind) bool {
	return k.Queueable() || k == domain.KindCompatibility || k == domain.KindCompleteness
}

// decodeJSON reads a bounded JSON body into v and validates it. Validation failures
// come back as ErrInvalidArgument with per-field details.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) ([]ValidationError, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return nil, fmt.Errorf("%w: body exceeds %d bytes", domain.ErrInvalidArgument, maxBodyBytes)
		case errors.Is(err, io.EOF):
			return nil, fmt.Errorf("%w: empty body", domain.ErrInvalidArgument)
		}
		return nil, fmt.Errorf("%w: invalid json: %v", domain.ErrInvalidArgument, err)
	}
	if err := getValidator().Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
		}
		out := make([]ValidationError, 0, len(verrs))
		for _, fe := range verrs {
			out = append(out, ValidationError{
				Field:   fieldPath(fe),
				Code:    strings.ToUpper(fe.Tag()),
				Message: fieldMessage(fe),
			})
		}
		return out, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument)
	}
	return nil, nil
}

// fieldPath drops the top-level struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "exceeds the maximum of " + fe.Param()
	case "min":
		return "is below the minimum of " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "kind":
		return "unknown request type"
	}
	return "is invalid"
}
