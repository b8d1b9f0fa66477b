// Package validation checks task input and normalizes it into a
// models.TaskCreate. Every violated field is reported, not just the first.
package validation

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"task-manager/api/internal/models"

	"github.com/go-playground/validator/v10"
)

const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 1000
	MaxCategoryLength    = 50
)

// Error maps a JSON field name to one or more human-readable messages.
type Error struct {
	Fields map[string][]string
}

func (e *Error) Error() string {
	fields := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f, strings.Join(e.Fields[f], "; ")))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func (e *Error) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

func (e *Error) empty() bool {
	return len(e.Fields) == 0
}

// lengths mirrors the column constraints; max counts runes, not bytes.
type lengths struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=1000"`
	Category    string `json:"category" validate:"max=50"`
}

var (
	validate = newValidator()

	fieldLabels = map[string]string{
		"title":       "Title",
		"description": "Description",
		"category":    "Category",
	}

	dateLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04",
		"2006-01-02",
	}
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidateTask checks a create/update body and returns the normalized record.
func ValidateTask(req models.TaskRequest) (models.TaskCreate, error) {
	verr := &Error{}

	title := strings.TrimSpace(req.Title)
	description := normalizeOptional(req.Description)
	category := normalizeOptional(req.Category)

	fields := lengths{Title: title, Description: deref(description), Category: deref(category)}
	if err := validate.Struct(fields); err != nil {
		fieldErrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return models.TaskCreate{}, fmt.Errorf("validate task fields: %w", err)
		}
		for _, fe := range fieldErrs {
			verr.add(fe.Field(), lengthMessage(fe))
		}
	}

	priority, msg := parsePriority(req.Priority)
	if msg != "" {
		verr.add("priority", msg)
	}

	status, msg := parseStatus(req.Status)
	if msg != "" {
		verr.add("status", msg)
	}

	dueDate, msg := parseDueDate(req.DueDate)
	if msg != "" {
		verr.add("dueDate", msg)
	}

	if !verr.empty() {
		return models.TaskCreate{}, verr
	}

	return models.TaskCreate{
		Title:       title,
		Description: description,
		DueDate:     dueDate,
		Priority:    priority,
		Status:      status,
		Category:    category,
	}, nil
}

// ValidateStatus applies the status rule on its own, for status-only updates.
func ValidateStatus(raw *string) (models.Status, error) {
	status, msg := parseStatus(raw)
	if msg != "" {
		verr := &Error{}
		verr.add("status", msg)
		return 0, verr
	}
	return status, nil
}

func lengthMessage(fe validator.FieldError) string {
	label := fieldLabels[fe.Field()]
	switch fe.Tag() {
	case "required":
		return label + " is required"
	case "max":
		return fmt.Sprintf("%s cannot exceed %s characters", label, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", label)
	}
}

func parsePriority(raw *string) (models.Priority, string) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return 0, "Priority is required"
	}
	p, ok := models.ParsePriority(*raw)
	if !ok {
		return 0, "Invalid priority value. Must be Low, Medium, or High."
	}
	return p, ""
}

func parseStatus(raw *string) (models.Status, string) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return 0, "Status is required"
	}
	s, ok := models.ParseStatus(*raw)
	if !ok {
		return 0, "Invalid status value. Must be Todo, InProgress, or Done."
	}
	return s, ""
}

// Past dates are accepted; they represent overdue tasks.
func parseDueDate(raw *string) (*time.Time, string) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, ""
	}
	value := strings.TrimSpace(*raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			utc := t.UTC()
			return &utc, ""
		}
	}
	return nil, fmt.Sprintf("Due date %q is not a valid date-time", value)
}

func normalizeOptional(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := *s
	return &v
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
