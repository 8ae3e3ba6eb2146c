package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pulsefeed/npcmind/internal/db"
)

const (
	defaultQueueLimit = 20
	maxQueueLimit     = 100
)

// listQueueHandler returns a paginated queue listing, optionally filtered by
// persona and status
func (r *Router) listQueueHandler(c *gin.Context) {
	filter := db.QueueFilter{
		Status: c.Query("status"),
		Page:   intQuery(c, "page", 1),
		Limit:  intQuery(c, "limit", defaultQueueLimit),
	}
	if filter.Limit > maxQueueLimit {
		filter.Limit = maxQueueLimit
	}
	if raw := c.Query("npc_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			abortWithError(c, http.StatusBadRequest, "invalid npc_id")
			return
		}
		filter.PersonaID = id
	}

	items, total, err := r.queue.List(c.Request.Context(), filter)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items": items,
		"total": total,
		"page":  filter.Page,
		"limit": filter.Limit,
	})
}

type deleteQueueRequest struct {
	ID  int64   `json:"id"`
	IDs []int64 `json:"ids"`
}

// deleteQueueHandler hard-deletes one or more queue items
func (r *Router) deleteQueueHandler(c *gin.Context) {
	var req deleteQueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	switch {
	case req.ID > 0:
		deleted, err := r.queue.Delete(c.Request.Context(), req.ID)
		if err != nil {
			abortWithError(c, http.StatusInternalServerError, err.Error())
			return
		}
		if deleted == 0 {
			abortWithError(c, http.StatusNotFound, "queue item not found")
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": deleted})
	case len(req.IDs) > 0:
		deleted, err := r.queue.BulkDelete(c.Request.Context(), req.IDs)
		if err != nil {
			abortWithError(c, http.StatusInternalServerError, err.Error())
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": deleted})
	default:
		abortWithError(c, http.StatusBadRequest, "id or ids is required")
	}
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return fallback
	}
	return value
}
