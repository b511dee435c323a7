package audit

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Espresso-Aficionados/sprobot/authorization"
)

// RegisterRoutes mounts the admin-only audit listing.
func RegisterRoutes(router *gin.Engine, guard *authorization.Guard, lister Lister) {
	group := router.Group("/api/audit")
	group.Use(guard.RequireAuthenticated(), guard.RequireRole(authorization.RoleAdmin))

	group.GET("/:community", func(c *gin.Context) {
		limit := 0
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
				return
			}
			limit = parsed
		}

		events, err := lister.List(c.Request.Context(), c.Param("community"), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list audit events"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"events": events})
	})
}
