package controllers

import (
	"net/http"

	"statistics-workflow-api/config"
	"statistics-workflow-api/services"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

type WorkflowActionRequest struct {
	Action  string `json:"action" binding:"required"`
	Remarks string `json:"remarks"`
}

// WorkflowController serves the workflow endpoints of governed screens.
type WorkflowController struct {
	workflow *services.WorkflowService
	screens  *config.ScreenCatalog
}

func NewWorkflowController(workflow *services.WorkflowService, screens *config.ScreenCatalog) *WorkflowController {
	return &WorkflowController{workflow: workflow, screens: screens}
}

// PerformAction applies one workflow action to a screen.
func (w *WorkflowController) PerformAction(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var req WorkflowActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: action is required")
		return
	}
	action, ok := services.ParseAction(req.Action)
	if !ok {
		badRequest(c, "Unknown workflow action: "+req.Action)
		return
	}

	result, err := w.workflow.Apply(c.Request.Context(), services.ActionRequest{
		ScreenCode: c.Param("code"),
		Action:     action,
		Remarks:    req.Remarks,
		Actor:      actor,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	config.Log.WithField("screen_code", c.Param("code")).
		WithField("action", action).
		WithField("user_id", actor.UserID).
		WithField("new_status_id", result.NewStatusID).
		Info("workflow action applied")
	c.JSON(http.StatusOK, result)
}

func (w *WorkflowController) GetStatus(c *gin.Context) {
	status, err := w.workflow.CurrentStatus(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":           true,
		"screen_code":       status.ScreenCode,
		"status_id":         status.StatusID,
		"status_name":       status.StatusName,
		"status_code":       status.StatusCode,
		"version":           status.Version,
		"available_actions": status.AvailableActions,
	})
}

// GetHistory returns the full audit trail of a screen, oldest first.
func (w *WorkflowController) GetHistory(c *gin.Context) {
	code, err := w.workflow.ResolveScreen(c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}
	entries, err := w.workflow.Audit().Collect(c.Request.Context(), code)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"screen_code": code,
		"entries":     entries,
		"total":       len(entries),
	})
}

// GetAccess evaluates whether the caller may edit the screen's data right now.
func (w *WorkflowController) GetAccess(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	decision, err := w.workflow.Access(c.Request.Context(), c.Param("code"), actor.Role)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"status_id":     decision.StatusID,
		"status_name":   w.workflow.Statuses().Name(decision.StatusID),
		"can_edit":      decision.CanEdit,
		"assigned_role": decision.AssignedRole,
		"lock_reason":   decision.LockReason,
		"caller_role":   actor.Role,
	})
}

func (w *WorkflowController) ListStatuses(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"statuses": w.workflow.Statuses().AllOrdered(),
	})
}

func (w *WorkflowController) ListRoles(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"roles":   services.AllRoles(),
		"actions": services.AllActions(),
	})
}

// ListScreens returns the governed screen catalogue.
func (w *WorkflowController) ListScreens(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"screens": w.screens.All(),
	})
}

// CheckConsistency reports whether the latest audit entry agrees with the stored status.
func (w *WorkflowController) CheckConsistency(c *gin.Context) {
	err := w.workflow.CheckConsistency(c.Request.Context(), c.Param("code"))
	var wfErr *services.WorkflowError
	if errors.As(err, &wfErr) {
		respondError(c, err)
		return
	}
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"success": true, "consistent": false, "detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "consistent": true})
}
