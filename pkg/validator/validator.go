package validator

import (
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	once     sync.Once
	validate *validator.Validate
)

// DateLayout is the calendar date format accepted by the "date" rule.
const DateLayout = "2006-01-02"

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Field string `json:"field"`
	Tag   string `json:"tag"`
	Param string `json:"param"`
}

// ValidationErrors collects multiple validation failures.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return "validation failed"
	}

	parts := make([]string, len(v))
	for i, err := range v {
		if err.Param != "" {
			parts[i] = err.Field + " failed on " + err.Tag + "=" + err.Param
		} else {
			parts[i] = err.Field + " failed on " + err.Tag
		}
	}
	return strings.Join(parts, "; ")
}

// ValidateStruct validates a struct using registered rules.
func ValidateStruct(s any) error {
	err := getValidator().Struct(s)
	if err == nil {
		return nil
	}

	if ve, ok := err.(validator.ValidationErrors); ok {
		failures := make(ValidationErrors, 0, len(ve))
		for _, fe := range ve {
			failures = append(failures, ValidationError{
				Field: fe.Field(),
				Tag:   fe.Tag(),
				Param: fe.Param(),
			})
		}
		return failures
	}

	return err
}

// RegisterValidation exposes underlying validator custom rules.
func RegisterValidation(tag string, fn validator.Func) error {
	return getValidator().RegisterValidation(tag, fn)
}

func getValidator() *validator.Validate {
	once.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := fld.Tag.Get("json")
			if name == "" {
				return fld.Name
			}

			if comma := strings.Index(name, ","); comma != -1 {
				name = name[:comma]
			}

			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
		_ = validate.RegisterValidation("date", validateDate)
	})
	return validate
}

func validateDate(fl validator.FieldLevel) bool {
	value := strings.TrimSpace(fl.Field().String())
	if value == "" {
		return true
	}
	_, err := time.Parse(DateLayout, value)
	return err == nil
}

// Describe renders validation failures as a short human readable sentence.
func Describe(err error) string {
	if err == nil {
		return "invalid request payload"
	}

	ve, ok := err.(ValidationErrors)
	if !ok || len(ve) == 0 {
		return "invalid request payload"
	}

	messages := make([]string, 0, len(ve))
	for _, failure := range ve {
		field := strings.ToLower(strings.ReplaceAll(failure.Field, "_", " "))
		if field == "" {
			field = "field"
		}
		switch failure.Tag {
		case "required":
			messages = append(messages, field+" is required")
		case "min":
			messages = append(messages, field+" must be at least "+failure.Param+" characters")
		case "max":
			messages = append(messages, field+" must be at most "+failure.Param+" characters")
		case "gt":
			messages = append(messages, field+" must be greater than "+failure.Param)
		case "gte":
			messages = append(messages, field+" must be at least "+failure.Param)
		case "lte":
			messages = append(messages, field+" must be at most "+failure.Param)
		case "oneof":
			messages = append(messages, field+" must be one of: "+strings.ReplaceAll(failure.Param, " ", ", "))
		case "date":
			messages = append(messages, field+" must be a date formatted as YYYY-MM-DD")
		default:
			if failure.Param != "" {
				messages = append(messages, field+" failed validation: "+failure.Tag+"="+failure.Param)
			} else {
				messages = append(messages, field+" failed validation: "+failure.Tag)
			}
		}
	}
	return strings.Join(messages, "; ")
}
