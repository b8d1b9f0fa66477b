package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"task-manager/api/internal/middleware"
	"task-manager/api/internal/models"
	"task-manager/api/internal/query"
	"task-manager/api/internal/repositories"
	"task-manager/api/internal/services"
	"task-manager/api/internal/validation"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
)

const (
	validationMessage  = "One or more validation errors occurred."
	malformedBodyError = "The request body is missing or is not valid JSON."
)

type TaskHandler struct {
	taskService services.TaskService
	logger      *log.Logger
}

func NewTaskHandler(taskService services.TaskService, logger *log.Logger) *TaskHandler {
	return &TaskHandler{taskService: taskService, logger: logger}
}

// RegisterRoutes mounts the task endpoints under /api/tasks.
func (h *TaskHandler) RegisterRoutes(r gin.IRouter) {
	tasks := r.Group("/api/tasks")
	tasks.GET("", h.GetTasks)
	tasks.GET("/stats", h.GetStats)
	tasks.GET("/:id", h.GetTaskByID)
	tasks.POST("", h.CreateTask)
	tasks.PUT("/:id", h.UpdateTask)
	tasks.PATCH("/:id/status", h.UpdateTaskStatus)
	tasks.POST("/:id/toggle", h.ToggleTask)
	tasks.DELETE("/:id", h.DeleteTask)
}

func (h *TaskHandler) GetTasks(c *gin.Context) {
	params := query.ParseParams(
		c.Query("status"),
		c.Query("priority"),
		c.Query("category"),
		c.Query("sortBy"),
	)

	tasks, err := h.taskService.ListTasks(c.Request.Context(), params)
	if err != nil {
		h.handleTaskError(c, err, "", "fetching tasks")
		return
	}
	c.JSON(http.StatusOK, models.NewTaskResponses(tasks))
}

func (h *TaskHandler) GetStats(c *gin.Context) {
	stats, err := h.taskService.GetStats(c.Request.Context())
	if err != nil {
		h.handleTaskError(c, err, "", "fetching task statistics")
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *TaskHandler) GetTaskByID(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}

	task, err := h.taskService.GetTask(c.Request.Context(), id)
	if err != nil {
		h.handleTaskError(c, err, c.Param("id"), "fetching the task")
		return
	}
	c.JSON(http.StatusOK, models.NewTaskResponse(task))
}

func (h *TaskHandler) CreateTask(c *gin.Context) {
	req := models.NewTaskRequest()
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": malformedBodyError})
		return
	}

	task, err := h.taskService.CreateTask(c.Request.Context(), req)
	if err != nil {
		h.handleTaskError(c, err, "", "creating the task")
		return
	}

	c.Header("Location", fmt.Sprintf("/api/tasks/%d", task.ID))
	c.JSON(http.StatusCreated, models.NewTaskResponse(task))
}

func (h *TaskHandler) UpdateTask(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}

	req := models.NewTaskRequest()
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": malformedBodyError})
		return
	}

	task, err := h.taskService.UpdateTask(c.Request.Context(), id, req)
	if err != nil {
		h.handleTaskError(c, err, c.Param("id"), "updating the task")
		return
	}
	c.JSON(http.StatusOK, models.NewTaskResponse(task))
}

func (h *TaskHandler) UpdateTaskStatus(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}

	var req models.StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": malformedBodyError})
		return
	}

	task, err := h.taskService.UpdateTaskStatus(c.Request.Context(), id, req)
	if err != nil {
		h.handleTaskError(c, err, c.Param("id"), "updating the task status")
		return
	}
	c.JSON(http.StatusOK, models.NewTaskResponse(task))
}

func (h *TaskHandler) ToggleTask(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}

	task, err := h.taskService.ToggleTaskStatus(c.Request.Context(), id)
	if err != nil {
		h.handleTaskError(c, err, c.Param("id"), "toggling the task status")
		return
	}
	c.JSON(http.StatusOK, models.NewTaskResponse(task))
}

func (h *TaskHandler) DeleteTask(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}

	if err := h.taskService.DeleteTask(c.Request.Context(), id); err != nil {
		h.handleTaskError(c, err, c.Param("id"), "deleting the task")
		return
	}
	c.Status(http.StatusNoContent)
}

// taskID parses the :id segment. An id that is not an integer cannot name a
// task, so it gets the same 404 as a missing one.
func taskID(c *gin.Context) (int64, bool) {
	raw := c.Param("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, notFoundBody(raw))
		return 0, false
	}
	return id, true
}

func notFoundBody(rawID string) gin.H {
	return gin.H{"message": fmt.Sprintf("Task with ID %s not found", rawID)}
}

func (h *TaskHandler) handleTaskError(c *gin.Context, err error, rawID, action string) {
	var verr *validation.Error
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{
			"message": validationMessage,
			"errors":  verr.Fields,
		})
	case errors.Is(err, repositories.ErrTaskNotFound):
		c.JSON(http.StatusNotFound, notFoundBody(rawID))
	default:
		if h.logger != nil {
			h.logger.Error("request failed",
				"action", action,
				"task_id", rawID,
				"request_id", middleware.GetRequestID(c),
				"err", err,
			)
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"message": "An error occurred while " + action,
		})
	}
}
