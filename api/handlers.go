package api

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/Resized/todo-list/domain"
)

// routePrefixes lists the mount points of the task routes. Browser clients
// historically talk to /api/tasks.
var routePrefixes = []string{"", "/api"}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, svc TaskService, reg Registry, cfg StreamConfig, logger *log.Logger) {
	if logger == nil {
		panic("Logger is not initialized")
	}
	for _, prefix := range routePrefixes {
		g := e.Group(prefix)
		g.GET("/tasks", listTasks(svc, logger))
		g.POST("/tasks", createTask(svc, logger))
		g.PATCH("/tasks/:id", updateTask(svc, logger))
		g.DELETE("/tasks/:id", deleteTask(svc, logger))
		g.GET("/tasks/events", streamEvents(reg, cfg, logger))
		g.GET("/healthz", healthz(reg))
	}
}

func healthz(reg Registry) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, healthResponse{Status: "ok", Clients: reg.Len()})
	}
}

// observe wraps a task handler with request metrics and a span.
func observe(logger *log.Logger, op string, h func(echo.Context, *taskRequestMetrics) error) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics, spanCtx := newTaskRequestMetrics(c.Request().Context(), logger)
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
		}
		metrics.SetRoute(c.Request().Method, c.Path())
		metrics.SetOperation(op)
		metrics.SetClientID(clientID(c))
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()
		return h(c, metrics)
	}
}

func listTasks(svc TaskService, logger *log.Logger) echo.HandlerFunc {
	return observe(logger, "list", func(c echo.Context, m *taskRequestMetrics) error {
		start := time.Now()
		tasks, err := svc.List(c.Request().Context())
		m.ObserveStore(time.Since(start))
		if err != nil {
			m.Fail(errorStage(err), err)
			return writeError(c, err)
		}
		m.SetTasksReturned(len(tasks))
		return c.JSON(http.StatusOK, tasks)
	})
}

func createTask(svc TaskService, logger *log.Logger) echo.HandlerFunc {
	return observe(logger, "create", func(c echo.Context, m *taskRequestMetrics) error {
		var req createTaskRequest
		if err := decodeBody(c, &req); err != nil {
			m.Fail(errorStage(err), err)
			return writeError(c, err)
		}
		start := time.Now()
		task, err := svc.Create(c.Request().Context(), clientID(c), req.Content)
		m.ObserveStore(time.Since(start))
		if err != nil {
			m.Fail(errorStage(err), err)
			return writeError(c, err)
		}
		m.SetTasksReturned(1)
		return c.JSON(http.StatusCreated, task)
	})
}

func updateTask(svc TaskService, logger *log.Logger) echo.HandlerFunc {
	return observe(logger, "update", func(c echo.Context, m *taskRequestMetrics) error {
		var patch domain.TaskPatch
		if err := decodeBody(c, &patch); err != nil {
			m.Fail(errorStage(err), err)
			return writeError(c, err)
		}
		start := time.Now()
		task, err := svc.Update(c.Request().Context(), clientID(c), c.Param("id"), patch)
		m.ObserveStore(time.Since(start))
		if err != nil {
			m.Fail(errorStage(err), err)
			return writeError(c, err)
		}
		m.SetTasksReturned(1)
		return c.JSON(http.StatusOK, task)
	})
}

func deleteTask(svc TaskService, logger *log.Logger) echo.HandlerFunc {
	return observe(logger, "delete", func(c echo.Context, m *taskRequestMetrics) error {
		start := time.Now()
		task, err := svc.Delete(c.Request().Context(), clientID(c), c.Param("id"))
		m.ObserveStore(time.Since(start))
		if err != nil {
			m.Fail(errorStage(err), err)
			return writeError(c, err)
		}
		m.SetTasksReturned(1)
		return c.JSON(http.StatusOK, task)
	})
}

func clientID(c echo.Context) string {
	return c.Request().Header.Get(HeaderClientID)
}

// decodeBody reads a JSON object into v. An empty body leaves v untouched.
func decodeBody(c echo.Context, v any) error {
	body := c.Request().Body
	if body == nil {
		return nil
	}
	data, err := io.ReadAll(io.LimitReader(body, requestMaxSize+1))
	if err != nil {
		return errInvalidBody
	}
	if len(data) > requestMaxSize {
		return errBodyTooLarge
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := sonic.ConfigStd.Unmarshal(data, v); err != nil {
		return errInvalidBody
	}
	return nil
}
