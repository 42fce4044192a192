package controllers

import (
	"net/http"
	"strconv"

	"statistics-workflow-api/config"
	"statistics-workflow-api/middleware"
	"statistics-workflow-api/services"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

// errorStatus maps a workflow error kind to its HTTP status and wire name.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrInvalidTransition):
		return http.StatusBadRequest, "InvalidTransition"
	case errors.Is(err, services.ErrMissingRemarks):
		return http.StatusBadRequest, "MissingRemarks"
	case errors.Is(err, services.ErrInvalidInput):
		return http.StatusBadRequest, "InvalidInput"
	case errors.Is(err, services.ErrPermissionDenied):
		return http.StatusForbidden, "PermissionDenied"
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound, "NotFound"
	case errors.Is(err, services.ErrPersistence):
		return http.StatusServiceUnavailable, "PersistenceError"
	default:
		return http.StatusInternalServerError, "InternalError"
	}
}

// respondError writes the error body. Infrastructure causes are logged, never returned.
func respondError(c *gin.Context, err error) {
	status, kind := errorStatus(err)
	body := gin.H{
		"success": false,
		"error":   kind,
		"message": "internal server error",
	}

	var wfErr *services.WorkflowError
	if errors.As(err, &wfErr) {
		body["message"] = wfErr.Message
		if wfErr.CurrentStatus != 0 {
			body["current_status"] = wfErr.CurrentStatus
		}
		if wfErr.Action != "" {
			body["action"] = wfErr.Action
		}
		if wfErr.RequiredRole != services.RoleNone {
			body["required_role"] = wfErr.RequiredRole.String()
		}
	}

	if status >= http.StatusInternalServerError {
		config.Log.WithField("request_id", c.GetString("requestID")).
			WithField("path", c.FullPath()).
			Errorf("request failed: %+v", err)
	}
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   "InvalidInput",
		"message": message,
	})
}

func requireActor(c *gin.Context) (services.Actor, bool) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error":   "Unauthorized",
			"message": "User not authenticated",
		})
	}
	return actor, ok
}

func parseRecordID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		badRequest(c, "Invalid record ID")
		return 0, false
	}
	return id, true
}

func optionalIntQuery(c *gin.Context, key string) (*int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return nil, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		badRequest(c, "Invalid "+key+" parameter")
		return nil, false
	}
	return &value, true
}
