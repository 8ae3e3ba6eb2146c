package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pulsefeed/npcmind/internal/generator"
	"github.com/pulsefeed/npcmind/internal/models"
)

// listPersonasHandler returns all personas
func (r *Router) listPersonasHandler(c *gin.Context) {
	personas, err := r.personas.List(c.Request.Context())
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"personas": personas})
}

// createPersonaHandler creates a new persona
func (r *Router) createPersonaHandler(c *gin.Context) {
	var persona models.Persona
	if err := c.ShouldBindJSON(&persona); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	persona.ID = 0
	if persona.UserID <= 0 || persona.PersonaName == "" || persona.PersonaPrompt == "" {
		abortWithError(c, http.StatusBadRequest, "user_id, persona_name and persona_prompt are required")
		return
	}

	if err := r.personas.Create(c.Request.Context(), &persona); err != nil {
		abortWithError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusCreated, persona)
}

// getPersonaHandler returns one persona
func (r *Router) getPersonaHandler(c *gin.Context) {
	id, ok := personaID(c)
	if !ok {
		return
	}

	persona, err := r.personas.GetByID(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, err.Error())
		return
	}
	if persona == nil {
		abortWithError(c, http.StatusNotFound, "persona not found")
		return
	}
	c.JSON(http.StatusOK, persona)
}

// updatePersonaHandler applies a full update to one persona
func (r *Router) updatePersonaHandler(c *gin.Context) {
	id, ok := personaID(c)
	if !ok {
		return
	}

	persona, err := r.personas.GetByID(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, err.Error())
		return
	}
	if persona == nil {
		abortWithError(c, http.StatusNotFound, "persona not found")
		return
	}

	if err := c.ShouldBindJSON(persona); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	persona.ID = id

	if err := r.personas.Update(c.Request.Context(), persona); err != nil {
		abortWithError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, persona)
}

// deletePersonaHandler removes a persona and its queue items
func (r *Router) deletePersonaHandler(c *gin.Context) {
	id, ok := personaID(c)
	if !ok {
		return
	}

	persona, err := r.personas.GetByID(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, err.Error())
		return
	}
	if persona == nil {
		abortWithError(c, http.StatusNotFound, "persona not found")
		return
	}

	if err := r.personas.Delete(c.Request.Context(), id); err != nil {
		abortWithError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.Status(http.StatusNoContent)
}

// visualPersonaHandler derives and stores a visual descriptor for the persona
func (r *Router) visualPersonaHandler(c *gin.Context) {
	id, ok := personaID(c)
	if !ok {
		return
	}

	vp, err := r.gen.DeriveVisualPersona(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, generator.ErrPersonaNotFound) {
			abortWithError(c, http.StatusNotFound, "persona not found")
			return
		}
		abortWithError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"visual_persona": vp})
}

// referenceImageHandler renders, uploads and binds a reference image
func (r *Router) referenceImageHandler(c *gin.Context) {
	id, ok := personaID(c)
	if !ok {
		return
	}

	url, err := r.gen.GenerateReferenceImage(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, generator.ErrPersonaNotFound) {
			abortWithError(c, http.StatusNotFound, "persona not found")
			return
		}
		abortWithError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"reference_image_url": url})
}

func personaID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		abortWithError(c, http.StatusBadRequest, "invalid persona id")
		return 0, false
	}
	return id, true
}
