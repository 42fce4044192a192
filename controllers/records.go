package controllers

import (
	"io"
	"net/http"

	"statistics-workflow-api/services"

	"github.com/gin-gonic/gin"
)

const maxRecordBody = 1 << 20

// RecordController serves dataset rows of screens bound to a table.
type RecordController struct {
	records *services.RecordService
}

func NewRecordController(records *services.RecordService) *RecordController {
	return &RecordController{records: records}
}

func (r *RecordController) List(c *gin.Context) {
	offset, ok := optionalIntQuery(c, "offset")
	if !ok {
		return
	}
	limit, ok := optionalIntQuery(c, "limit")
	if !ok {
		return
	}
	page, err := r.records.List(c.Request.Context(), c.Param("code"), offset, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": page})
}

func (r *RecordController) Get(c *gin.Context) {
	id, ok := parseRecordID(c)
	if !ok {
		return
	}
	record, err := r.records.Get(c.Request.Context(), c.Param("code"), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "record": record})
}

func (r *RecordController) Create(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	body, ok := readBody(c)
	if !ok {
		return
	}
	result, err := r.records.Create(c.Request.Context(), c.Param("code"), actor, body)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": result})
}

func (r *RecordController) Update(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := parseRecordID(c)
	if !ok {
		return
	}
	body, ok := readBody(c)
	if !ok {
		return
	}
	result, err := r.records.Update(c.Request.Context(), c.Param("code"), id, actor, body)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": result})
}

func (r *RecordController) Delete(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := parseRecordID(c)
	if !ok {
		return
	}
	result, err := r.records.Delete(c.Request.Context(), c.Param("code"), id, actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": result})
}

// History returns the audit trail of one dataset row, oldest first.
func (r *RecordController) History(c *gin.Context) {
	id, ok := parseRecordID(c)
	if !ok {
		return
	}
	target, entries, err := r.records.History(c.Request.Context(), c.Param("code"), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"target":  target,
		"entries": entries,
		"total":   len(entries),
	})
}

func readBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxRecordBody))
	if err != nil || len(body) == 0 {
		badRequest(c, "Request body is required")
		return nil, false
	}
	return body, true
}
