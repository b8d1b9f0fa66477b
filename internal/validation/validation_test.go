package validation

import (
	"errors"
	"strings"
	"testing"
	"time"

	"task-manager/api/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func validRequest() models.TaskRequest {
	req := models.NewTaskRequest()
	req.Title = "Write report"
	return req
}

func TestValidateTask_Defaults(t *testing.T) {
	out, err := ValidateTask(validRequest())
	require.NoError(t, err)

	assert.Equal(t, "Write report", out.Title)
	assert.Equal(t, models.PriorityMedium, out.Priority)
	assert.Equal(t, models.StatusTodo, out.Status)
	assert.Nil(t, out.Description)
	assert.Nil(t, out.DueDate)
	assert.Nil(t, out.Category)
}

func TestValidateTask_NormalizesFields(t *testing.T) {
	req := validRequest()
	req.Title = "   Plan sprint  "
	req.Priority = strPtr("hIgH")
	req.Status = strPtr("inprogress")
	req.Description = strPtr("   ")
	req.Category = strPtr("Backend")
	req.DueDate = strPtr("2024-03-05T09:30:00+02:00")

	out, err := ValidateTask(req)
	require.NoError(t, err)

	assert.Equal(t, "Plan sprint", out.Title)
	assert.Equal(t, models.PriorityHigh, out.Priority)
	assert.Equal(t, models.StatusInProgress, out.Status)
	assert.Nil(t, out.Description, "whitespace-only description is treated as absent")
	require.NotNil(t, out.Category)
	assert.Equal(t, "Backend", *out.Category)
	require.NotNil(t, out.DueDate)
	assert.True(t, out.DueDate.Equal(time.Date(2024, 3, 5, 7, 30, 0, 0, time.UTC)))
	assert.Equal(t, time.UTC, out.DueDate.Location())
}

func TestValidateTask_DateOnlyAndPastDates(t *testing.T) {
	req := validRequest()
	req.DueDate = strPtr("1999-12-31")

	out, err := ValidateTask(req)
	require.NoError(t, err)
	require.NotNil(t, out.DueDate)
	assert.Equal(t, 1999, out.DueDate.Year())
}

func TestValidateTask_CollectsEveryFailure(t *testing.T) {
	req := models.TaskRequest{
		Title:       "  ",
		Description: strPtr(strings.Repeat("d", MaxDescriptionLength+1)),
		Category:    strPtr(strings.Repeat("c", MaxCategoryLength+1)),
		Priority:    strPtr("urgent"),
		Status:      nil,
		DueDate:     strPtr("next tuesday"),
	}

	_, err := ValidateTask(req)
	require.Error(t, err)

	var verr *Error
	require.True(t, errors.As(err, &verr))

	assert.Equal(t, []string{"Title is required"}, verr.Fields["title"])
	assert.Equal(t, []string{"Description cannot exceed 1000 characters"}, verr.Fields["description"])
	assert.Equal(t, []string{"Category cannot exceed 50 characters"}, verr.Fields["category"])
	assert.Equal(t, []string{"Invalid priority value. Must be Low, Medium, or High."}, verr.Fields["priority"])
	assert.Equal(t, []string{"Status is required"}, verr.Fields["status"])
	assert.Len(t, verr.Fields["dueDate"], 1)
	assert.Len(t, verr.Fields, 6)
}

func TestValidateTask_MissingVersusInvalidPriority(t *testing.T) {
	req := validRequest()
	req.Priority = strPtr("")
	_, err := ValidateTask(req)
	var missing *Error
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{"Priority is required"}, missing.Fields["priority"])

	req.Priority = strPtr("critical")
	_, err = ValidateTask(req)
	var invalid *Error
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, []string{"Invalid priority value. Must be Low, Medium, or High."}, invalid.Fields["priority"])
}

func TestValidateTask_TitleLengthCountsCharacters(t *testing.T) {
	req := validRequest()
	req.Title = strings.Repeat("é", MaxTitleLength)
	_, err := ValidateTask(req)
	assert.NoError(t, err)

	req.Title = strings.Repeat("a", MaxTitleLength+1)
	_, err = ValidateTask(req)
	var verr *Error
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"Title cannot exceed 200 characters"}, verr.Fields["title"])
}

func TestValidateStatus(t *testing.T) {
	s, err := ValidateStatus(strPtr("done"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusDone, s)

	_, err = ValidateStatus(strPtr("finished"))
	var verr *Error
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "status")

	_, err = ValidateStatus(nil)
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"Status is required"}, verr.Fields["status"])
}

func TestError_MessageIsDeterministic(t *testing.T) {
	verr := &Error{}
	verr.add("title", "Title is required")
	verr.add("priority", "Priority is required")

	assert.Equal(t, "validation failed: priority: Priority is required, title: Title is required", verr.Error())
}
