package profiles

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Espresso-Aficionados/sprobot/apperr"
	"github.com/Espresso-Aficionados/sprobot/authorization"
	"github.com/Espresso-Aficionados/sprobot/templates"
)

// Handler serves the profile API.
type Handler struct {
	service  *Service
	registry *templates.Registry
}

type saveRequest struct {
	Fields map[string]string `json:"fields" binding:"required"`
}

// RegisterRoutes mounts the template and profile endpoints under /api.
func RegisterRoutes(router *gin.Engine, guard *authorization.Guard, service *Service, registry *templates.Registry) *Handler {
	h := &Handler{service: service, registry: registry}

	api := router.Group("/api")
	api.Use(guard.RequireAuthenticated())
	api.GET("/communities/:community/templates", h.handleListTemplates)
	api.GET("/cache/stats", h.handleCacheStats)

	profiles := api.Group("/profiles/:community/:template/:user")
	profiles.GET("", h.handleFetch)
	profiles.PUT("", h.handleSave)
	profiles.DELETE("", h.handleDelete)
	profiles.DELETE("/image", h.handleDeleteImage)

	return h
}

// Template resolves a community's template by short name.
func (h *Handler) Template(communityID, shortName string) (templates.Template, error) {
	tmpl, ok := h.registry.ByShortName(communityID, shortName)
	if !ok {
		return templates.Template{}, apperr.NotFound("Unknown template.")
	}
	return tmpl, nil
}

func (h *Handler) handleListTemplates(c *gin.Context) {
	result := h.registry.Search(c.Param("community"), c.Query("q"))
	if result == nil {
		result = []templates.Template{}
	}
	c.JSON(http.StatusOK, gin.H{"templates": result})
}

func (h *Handler) handleCacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"cache": h.service.CacheStats()})
}

func (h *Handler) handleFetch(c *gin.Context) {
	tmpl, err := h.Template(c.Param("community"), c.Param("template"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	communityID, userID := c.Param("community"), c.Param("user")

	doc, err := h.service.Fetch(c.Request.Context(), tmpl, communityID, userID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	key := Key{Template: tmpl.Name, CommunityID: communityID, UserID: userID}
	c.JSON(http.StatusOK, gin.H{
		"template": tmpl.Name,
		"fields":   doc,
		"url":      h.service.ViewerURL(key),
	})
}

func (h *Handler) handleSave(c *gin.Context) {
	tmpl, err := h.Template(c.Param("community"), c.Param("template"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	var req saveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	result, err := h.service.Save(c.Request.Context(), tmpl, c.Param("community"), c.Param("user"), req.Fields)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) handleDelete(c *gin.Context) {
	tmpl, err := h.Template(c.Param("community"), c.Param("template"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	if err := h.service.Delete(c.Request.Context(), tmpl, c.Param("community"), c.Param("user")); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) handleDeleteImage(c *gin.Context) {
	tmpl, err := h.Template(c.Param("community"), c.Param("template"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	if err := h.service.DeleteImageOnly(c.Request.Context(), tmpl, c.Param("community"), c.Param("user")); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
