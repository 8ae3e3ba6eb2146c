package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pulsefeed/npcmind/internal/generator"
	"github.com/pulsefeed/npcmind/internal/scheduler"
)

const maxGenerateCount = 50

type generateRequest struct {
	NPCID int64 `json:"npc_id"`
	Count int   `json:"count"`
}

// generateHandler synchronously generates posts for one persona and enqueues
// them
func (r *Router) generateHandler(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.NPCID <= 0 {
		abortWithError(c, http.StatusBadRequest, "npc_id is required")
		return
	}
	if req.Count < 1 || req.Count > maxGenerateCount {
		abortWithError(c, http.StatusBadRequest, "count must be between 1 and 50")
		return
	}

	result, err := r.gen.GeneratePostsForNPC(c.Request.Context(), req.NPCID, req.Count)
	if err != nil {
		switch {
		case errors.Is(err, generator.ErrPersonaNotFound):
			abortWithError(c, http.StatusNotFound, "persona not found")
		case errors.Is(err, generator.ErrPersonaInactive):
			abortWithError(c, http.StatusBadRequest, "persona is inactive")
		case errors.Is(err, scheduler.ErrInvalidConfiguration):
			abortWithError(c, http.StatusBadRequest, err.Error())
		default:
			abortWithError(c, http.StatusInternalServerError, err.Error())
		}
		return
	}

	c.JSON(http.StatusOK, result)
}
