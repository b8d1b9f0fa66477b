package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"task-manager/api/internal/handlers"
	"task-manager/api/internal/logging"
	"task-manager/api/internal/models"
	"task-manager/api/internal/query"
	"task-manager/api/internal/repositories"
	"task-manager/api/internal/services"
	"task-manager/api/internal/validation"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var errDatabase = errors.New("database is on fire")

// MockTaskService returns canned results and records the last arguments.
type MockTaskService struct {
	tasks      []models.Task
	err        error
	lastParams query.Params
	lastID     int64
	lastReq    models.TaskRequest
}

func (m *MockTaskService) ListTasks(_ context.Context, params query.Params) ([]models.Task, error) {
	m.lastParams = params
	return m.tasks, m.err
}

func (m *MockTaskService) GetTask(_ context.Context, id int64) (models.Task, error) {
	m.lastID = id
	if m.err != nil {
		return models.Task{}, m.err
	}
	return models.Task{ID: id, Title: "Test Task", Priority: models.PriorityHigh}, nil
}

func (m *MockTaskService) CreateTask(_ context.Context, req models.TaskRequest) (models.Task, error) {
	m.lastReq = req
	if m.err != nil {
		return models.Task{}, m.err
	}
	return models.Task{ID: 7, Title: req.Title}, nil
}

func (m *MockTaskService) UpdateTask(_ context.Context, id int64, req models.TaskRequest) (models.Task, error) {
	m.lastID, m.lastReq = id, req
	if m.err != nil {
		return models.Task{}, m.err
	}
	return models.Task{ID: id, Title: req.Title}, nil
}

func (m *MockTaskService) UpdateTaskStatus(_ context.Context, id int64, _ models.StatusRequest) (models.Task, error) {
	m.lastID = id
	if m.err != nil {
		return models.Task{}, m.err
	}
	return models.Task{ID: id, Status: models.StatusDone}, nil
}

func (m *MockTaskService) ToggleTaskStatus(_ context.Context, id int64) (models.Task, error) {
	m.lastID = id
	if m.err != nil {
		return models.Task{}, m.err
	}
	return models.Task{ID: id, Status: models.StatusDone}, nil
}

func (m *MockTaskService) DeleteTask(_ context.Context, id int64) error {
	m.lastID = id
	return m.err
}

func (m *MockTaskService) GetStats(context.Context) (query.Summary, error) {
	return query.Summary{Total: 3, Todo: 1, InProgress: 1, Done: 1}, m.err
}

func setupTaskHandler() (*MockTaskService, *gin.Engine) {
	gin.SetMode(gin.TestMode)
	mockService := &MockTaskService{}
	handler := handlers.NewTaskHandler(mockService, logging.Discard())
	router := gin.New()
	handler.RegisterRoutes(router)
	return mockService, router
}

func perform(router http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func TestGetTasks_PassesQueryParams(t *testing.T) {
	mockService, router := setupTaskHandler()
	mockService.tasks = []models.Task{{ID: 1, Title: "Task 1"}, {ID: 2, Title: "Task 2"}}

	w := perform(router, "GET", "/api/tasks?status=done&priority=bogus&category=Ops&sortBy=title", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var tasks []models.TaskResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tasks))
	assert.Len(t, tasks, 2)

	require.NotNil(t, mockService.lastParams.Status)
	assert.Equal(t, models.StatusDone, *mockService.lastParams.Status)
	assert.Nil(t, mockService.lastParams.Priority, "unparseable priority is ignored")
	assert.Equal(t, "Ops", mockService.lastParams.Category)
	assert.Equal(t, query.SortByTitle, mockService.lastParams.SortBy)
}

func TestGetTasks_EmptyListIsArray(t *testing.T) {
	_, router := setupTaskHandler()

	w := perform(router, "GET", "/api/tasks", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", w.Body.String())
}

func TestGetTaskByID(t *testing.T) {
	mockService, router := setupTaskHandler()

	w := perform(router, "GET", "/api/tasks/12", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "Test Task", body["title"])
	assert.Equal(t, "High", body["priority"])
	assert.Nil(t, body["dueDate"])
	assert.NotContains(t, body, "isDeleted")
	assert.Equal(t, int64(12), mockService.lastID)
}

func TestGetTaskByID_NotFound(t *testing.T) {
	mockService, router := setupTaskHandler()
	mockService.err = repositories.ErrTaskNotFound

	w := perform(router, "GET", "/api/tasks/99", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Task with ID 99 not found", decode(t, w)["message"])
}

func TestNonIntegerIDIsNotFound(t *testing.T) {
	_, router := setupTaskHandler()

	for _, method := range []string{"GET", "PUT", "DELETE"} {
		w := perform(router, method, "/api/tasks/abc", []byte(`{"title":"x"}`))
		assert.Equal(t, http.StatusNotFound, w.Code, method)
		assert.Equal(t, "Task with ID abc not found", decode(t, w)["message"], method)
	}
}

func TestCreateTask(t *testing.T) {
	mockService, router := setupTaskHandler()

	w := perform(router, "POST", "/api/tasks", []byte(`{"title":"New Task"}`))

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "/api/tasks/7", w.Header().Get("Location"))
	assert.Equal(t, "New Task", decode(t, w)["title"])

	require.NotNil(t, mockService.lastReq.Priority)
	assert.Equal(t, "Medium", *mockService.lastReq.Priority, "absent priority defaults to Medium")
}

func TestCreateTask_InvalidJSON(t *testing.T) {
	_, router := setupTaskHandler()

	for _, body := range [][]byte{[]byte("invalid json"), nil, []byte(`{"title":42}`)} {
		w := perform(router, "POST", "/api/tasks", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.NotEmpty(t, decode(t, w)["message"])
	}
}

func TestCreateTask_ValidationErrors(t *testing.T) {
	mockService, router := setupTaskHandler()
	mockService.err = &validation.Error{Fields: map[string][]string{"title": {"Title is required"}}}

	w := perform(router, "POST", "/api/tasks", []byte(`{"title":""}`))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, "One or more validation errors occurred.", body["message"])
	assert.Equal(t, map[string]interface{}{"title": []interface{}{"Title is required"}}, body["errors"])
}

func TestInternalErrorsAreGeneric(t *testing.T) {
	mockService, router := setupTaskHandler()
	mockService.err = errDatabase

	w := perform(router, "DELETE", "/api/tasks/3", nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode(t, w)
	assert.Equal(t, "An error occurred while deleting the task", body["message"])
	assert.NotContains(t, w.Body.String(), "fire")
}

func TestInternalErrorMessagesPerAction(t *testing.T) {
	tests := []struct {
		method  string
		path    string
		body    string
		message string
	}{
		{"GET", "/api/tasks", "", "An error occurred while fetching tasks"},
		{"GET", "/api/tasks/3", "", "An error occurred while fetching the task"},
		{"POST", "/api/tasks", `{"title":"x"}`, "An error occurred while creating the task"},
		{"PUT", "/api/tasks/3", `{"title":"x"}`, "An error occurred while updating the task"},
		{"PATCH", "/api/tasks/3/status", `{"status":"Done"}`, "An error occurred while updating the task status"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			mockService, router := setupTaskHandler()
			mockService.err = errDatabase

			var body []byte
			if tt.body != "" {
				body = []byte(tt.body)
			}
			w := perform(router, tt.method, tt.path, body)

			assert.Equal(t, http.StatusInternalServerError, w.Code)
			assert.Equal(t, tt.message, decode(t, w)["message"])
		})
	}
}

func TestUpdateTaskStatus(t *testing.T) {
	mockService, router := setupTaskHandler()

	w := perform(router, "PATCH", "/api/tasks/5/status", []byte(`{"status":"Done"}`))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Done", decode(t, w)["status"])
	assert.Equal(t, int64(5), mockService.lastID)
}

func TestToggleTask(t *testing.T) {
	_, router := setupTaskHandler()

	w := perform(router, "POST", "/api/tasks/5/toggle", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Done", decode(t, w)["status"])
}

func TestDeleteTask(t *testing.T) {
	_, router := setupTaskHandler()

	w := perform(router, "DELETE", "/api/tasks/5", nil)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestGetStats(t *testing.T) {
	_, router := setupTaskHandler()

	w := perform(router, "GET", "/api/tasks/stats", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(3), body["total"])
	assert.Equal(t, float64(1), body["inProgress"])
}

// End to end over the real service and an in-memory database.
func setupRealRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&models.Task{}))

	svc := services.NewTaskService(repositories.NewGormTaskRepository(db, nil))
	router := gin.New()
	handlers.NewTaskHandler(svc, logging.Discard()).RegisterRoutes(router)
	return router
}

func TestTaskLifecycle(t *testing.T) {
	router := setupRealRouter(t)

	w := perform(router, "POST", "/api/tasks", []byte(`{
		"title": "Prepare release notes",
		"description": "Summarize the sprint",
		"dueDate": "2030-01-15T10:00:00Z",
		"priority": "high",
		"category": "Docs"
	}`))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode(t, w)
	assert.Equal(t, "High", created["priority"])
	assert.Equal(t, "Todo", created["status"])
	assert.Equal(t, created["createdAt"], created["updatedAt"])
	location := w.Header().Get("Location")

	w = perform(router, "PUT", location, []byte(`{"title":"","priority":"urgent"}`))
	require.Equal(t, http.StatusBadRequest, w.Code)
	errs := decode(t, w)["errors"].(map[string]interface{})
	assert.Contains(t, errs, "title")
	assert.Contains(t, errs, "priority")

	w = perform(router, "PATCH", location+"/status", []byte(`{"status":"InProgress"}`))
	require.Equal(t, http.StatusOK, w.Code)
	patched := decode(t, w)
	assert.Equal(t, "InProgress", patched["status"])
	assert.Equal(t, "Prepare release notes", patched["title"])

	updatedAt, err := time.Parse(time.RFC3339Nano, patched["updatedAt"].(string))
	require.NoError(t, err)
	createdAt, err := time.Parse(time.RFC3339Nano, patched["createdAt"].(string))
	require.NoError(t, err)
	assert.True(t, updatedAt.After(createdAt))

	w = perform(router, "GET", "/api/tasks?status=inprogress&category=Docs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listed []models.TaskResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	assert.Len(t, listed, 1)

	w = perform(router, "DELETE", location, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = perform(router, "DELETE", location, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = perform(router, "PUT", location, []byte(`{"title":""}`))
	assert.Equal(t, http.StatusNotFound, w.Code, "missing task is reported before validation")

	w = perform(router, "GET", "/api/tasks", nil)
	assert.Equal(t, "[]", w.Body.String())
}
