package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// scheduleHandler returns the coverage grid in the requested timezone
func (r *Router) scheduleHandler(c *gin.Context) {
	tz := c.DefaultQuery("timezone", "UTC")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "unknown timezone: "+tz)
		return
	}

	data, err := r.reporter.GetScheduleData(c.Request.Context(), loc)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, data)
}
