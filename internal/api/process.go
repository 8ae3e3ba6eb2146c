package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// processHandler triggers one processing pass. Authorized by a shared bearer
// secret; with no secret configured the endpoint stays closed unless
// allow_open_trigger is set.
func (r *Router) processHandler(c *gin.Context) {
	if !r.authorizeTrigger(c) {
		abortWithError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	result, err := r.proc.Run(c.Request.Context())
	if err != nil {
		r.logger.Error("Processing pass aborted", zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, "processing failed: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, result)
}

func (r *Router) authorizeTrigger(c *gin.Context) bool {
	secret := r.processor.CronSecret
	if secret == "" {
		return r.processor.AllowOpenTrigger
	}

	header := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(secret)) == 1
}
