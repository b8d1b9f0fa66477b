package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// Priority is ordered by rank: Low < Medium < High.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
)

var priorityNames = [...]string{"Low", "Medium", "High"}

// Priorities lists every priority in rank order.
func Priorities() []Priority {
	return []Priority{PriorityLow, PriorityMedium, PriorityHigh}
}

// ParsePriority matches s case-insensitively against the priority names.
func ParsePriority(s string) (Priority, bool) {
	s = strings.TrimSpace(s)
	for i, name := range priorityNames {
		if strings.EqualFold(s, name) {
			return Priority(i), true
		}
	}
	return 0, false
}

func (p Priority) Valid() bool {
	return p >= PriorityLow && p <= PriorityHigh
}

func (p Priority) String() string {
	if !p.Valid() {
		return fmt.Sprintf("Priority(%d)", int(p))
	}
	return priorityNames[p]
}

func (p Priority) MarshalJSON() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("invalid priority %d", int(p))
	}
	return json.Marshal(p.String())
}

func (p *Priority) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, ok := ParsePriority(s)
	if !ok {
		return fmt.Errorf("invalid priority %q", s)
	}
	*p = parsed
	return nil
}

// Value stores the canonical name so no other string reaches the column.
func (p Priority) Value() (driver.Value, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("invalid priority %d", int(p))
	}
	return p.String(), nil
}

func (p *Priority) Scan(src interface{}) error {
	s, err := scanString(src)
	if err != nil {
		return fmt.Errorf("scan priority: %w", err)
	}
	parsed, ok := ParsePriority(s)
	if !ok {
		return fmt.Errorf("scan priority: unknown value %q", s)
	}
	*p = parsed
	return nil
}

// Status has no inherent order; the constant order is the display order.
type Status int

const (
	StatusTodo Status = iota
	StatusInProgress
	StatusDone
)

var statusNames = [...]string{"Todo", "InProgress", "Done"}

// Statuses lists every status in display order.
func Statuses() []Status {
	return []Status{StatusTodo, StatusInProgress, StatusDone}
}

// ParseStatus matches s case-insensitively against the status names.
func ParseStatus(s string) (Status, bool) {
	s = strings.TrimSpace(s)
	for i, name := range statusNames {
		if strings.EqualFold(s, name) {
			return Status(i), true
		}
	}
	return 0, false
}

func (s Status) Valid() bool {
	return s >= StatusTodo && s <= StatusDone
}

func (s Status) String() string {
	if !s.Valid() {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}

// Toggle flips Done back to Todo and anything else straight to Done.
func (s Status) Toggle() Status {
	if s == StatusDone {
		return StatusTodo
	}
	return StatusDone
}

func (s Status) MarshalJSON() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid status %d", int(s))
	}
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	parsed, ok := ParseStatus(str)
	if !ok {
		return fmt.Errorf("invalid status %q", str)
	}
	*s = parsed
	return nil
}

func (s Status) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid status %d", int(s))
	}
	return s.String(), nil
}

func (s *Status) Scan(src interface{}) error {
	str, err := scanString(src)
	if err != nil {
		return fmt.Errorf("scan status: %w", err)
	}
	parsed, ok := ParseStatus(str)
	if !ok {
		return fmt.Errorf("scan status: unknown value %q", str)
	}
	*s = parsed
	return nil
}

func scanString(src interface{}) (string, error) {
	switch v := src.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", fmt.Errorf("unsupported type %T", src)
	}
}
