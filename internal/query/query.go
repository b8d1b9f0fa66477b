// Package query filters and orders task collections. Everything here is pure:
// callers hand in the rows in their natural (id ascending) order and get a new
// slice back.
package query

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"task-manager/api/internal/models"
)

type SortKey int

const (
	SortByDueDate SortKey = iota
	SortByPriority
	SortByCreatedAt
	SortByTitle
)

var sortKeyNames = map[string]SortKey{
	"duedate":   SortByDueDate,
	"priority":  SortByPriority,
	"createdat": SortByCreatedAt,
	"title":     SortByTitle,
}

// ParseSortKey is case-insensitive; unknown or empty keys sort by due date.
func ParseSortKey(s string) SortKey {
	if key, ok := sortKeyNames[strings.ToLower(strings.TrimSpace(s))]; ok {
		return key
	}
	return SortByDueDate
}

func (k SortKey) String() string {
	switch k {
	case SortByPriority:
		return "priority"
	case SortByCreatedAt:
		return "createdAt"
	case SortByTitle:
		return "title"
	default:
		return "dueDate"
	}
}

// Params holds the optional filters plus the sort key. A nil enum filter or
// empty category means "no constraint".
type Params struct {
	Status   *models.Status
	Priority *models.Priority
	Category string
	SortBy   SortKey
}

// ParseParams builds Params from raw query-string values. Enum values that do
// not parse are dropped rather than rejected.
func ParseParams(status, priority, category, sortBy string) Params {
	var p Params
	if s, ok := models.ParseStatus(status); ok {
		p.Status = &s
	}
	if pr, ok := models.ParsePriority(priority); ok {
		p.Priority = &pr
	}
	p.Category = category
	p.SortBy = ParseSortKey(sortBy)
	return p
}

// Key is a stable identifier for the parameter set, used for cache keys.
func (p Params) Key() string {
	status, priority := "*", "*"
	if p.Status != nil {
		status = p.Status.String()
	}
	if p.Priority != nil {
		priority = p.Priority.String()
	}
	return fmt.Sprintf("%s:%s:%s:%s", status, priority, p.Category, p.SortBy)
}

// Matches reports whether an active task satisfies every supplied filter.
func (p Params) Matches(t models.Task) bool {
	if t.IsDeleted {
		return false
	}
	if p.Status != nil && t.Status != *p.Status {
		return false
	}
	if p.Priority != nil && t.Priority != *p.Priority {
		return false
	}
	if p.Category != "" && (t.Category == nil || *t.Category != p.Category) {
		return false
	}
	return true
}

// Filter drops soft-deleted tasks, then applies the filters conjunctively.
func Filter(tasks []models.Task, p Params) []models.Task {
	out := make([]models.Task, 0, len(tasks))
	for _, t := range tasks {
		if p.Matches(t) {
			out = append(out, t)
		}
	}
	return out
}

var comparators = map[SortKey]func(a, b models.Task) int{
	SortByDueDate:   compareDueDate,
	SortByPriority:  comparePriority,
	SortByCreatedAt: compareCreatedAtDesc,
	SortByTitle:     compareTitle,
}

// Sort orders tasks in place. Equal elements keep their input order.
func Sort(tasks []models.Task, key SortKey) {
	cmpFn, ok := comparators[key]
	if !ok {
		cmpFn = compareDueDate
	}
	slices.SortStableFunc(tasks, cmpFn)
}

// Apply filters then sorts, leaving the input untouched.
func Apply(tasks []models.Task, p Params) []models.Task {
	out := Filter(tasks, p)
	Sort(out, p.SortBy)
	return out
}

// A missing due date sorts after every dated task.
func compareDueDate(a, b models.Task) int {
	switch {
	case a.DueDate == nil && b.DueDate == nil:
		return 0
	case a.DueDate == nil:
		return 1
	case b.DueDate == nil:
		return -1
	default:
		return a.DueDate.Compare(*b.DueDate)
	}
}

func comparePriority(a, b models.Task) int {
	if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
		return c
	}
	return compareDueDate(a, b)
}

func compareCreatedAtDesc(a, b models.Task) int {
	return b.CreatedAt.Compare(a.CreatedAt)
}

// Ordinal byte-wise comparison: "Banana" < "Cherry" < "apple".
func compareTitle(a, b models.Task) int {
	return strings.Compare(a.Title, b.Title)
}

type Summary struct {
	Total      int `json:"total"`
	Todo       int `json:"todo"`
	InProgress int `json:"inProgress"`
	Done       int `json:"done"`
	Overdue    int `json:"overdue"`
}

// Summarize counts active tasks per status. A task is overdue when its due
// date is before now and it is not Done.
func Summarize(tasks []models.Task, now time.Time) Summary {
	var s Summary
	for _, t := range tasks {
		if t.IsDeleted {
			continue
		}
		s.Total++
		switch t.Status {
		case models.StatusTodo:
			s.Todo++
		case models.StatusInProgress:
			s.InProgress++
		case models.StatusDone:
			s.Done++
		}
		if t.Status != models.StatusDone && t.DueDate != nil && t.DueDate.Before(now) {
			s.Overdue++
		}
	}
	return s
}
