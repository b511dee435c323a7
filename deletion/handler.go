package deletion

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Espresso-Aficionados/sprobot/apperr"
	"github.com/Espresso-Aficionados/sprobot/authorization"
)

// RegisterRoutes mounts the confirmation endpoints under /api/deletions.
func RegisterRoutes(router *gin.Engine, guard *authorization.Guard, flow *Flow) {
	group := router.Group("/api/deletions")
	group.Use(guard.RequireAuthenticated())

	group.POST("", func(c *gin.Context) {
		var req Request
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
			return
		}
		session, err := flow.Request(c.Request.Context(), req)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"session": session})
	})

	group.GET("/:id", func(c *gin.Context) {
		session, err := flow.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"session": session})
	})

	group.POST("/:id/confirm", func(c *gin.Context) {
		session, err := flow.Confirm(c.Request.Context(), c.Param("id"))
		if err != nil {
			if session.ID != "" {
				c.AbortWithStatusJSON(apperr.HTTPStatus(err), gin.H{"error": apperr.UserMessage(err), "session": session})
				return
			}
			apperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"session": session})
	})

	group.POST("/:id/cancel", func(c *gin.Context) {
		session, err := flow.Cancel(c.Request.Context(), c.Param("id"))
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"session": session})
	})
}
