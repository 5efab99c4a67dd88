package handler

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"oc-search-go/internal/schema"
	"oc-search-go/internal/service"
	"oc-search-go/pkg/log"
	"oc-search-go/pkg/token"
)

// AdminHandler serves the schema administration routes.
type AdminHandler struct {
	adminService service.AdminService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(adminService service.AdminService) *AdminHandler {
	return &AdminHandler{adminService: adminService}
}

// SetDisabledRequest is the body of PUT /admin/searches/:id/disabled.
type SetDisabledRequest struct {
	Disabled *bool `json:"disabled" binding:"required"`
}

func operator(c *gin.Context) string {
	if v, ok := c.Get("claims"); ok {
		if claims, ok := v.(*token.AdminClaims); ok {
			return claims.Username
		}
	}
	return "unknown"
}

// ListSearches returns every configured application.
func (h *AdminHandler) ListSearches(c *gin.Context) {
	searches, err := h.adminService.ListSearches(c.Request.Context())
	if err != nil {
		respondError(c, "en", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": searches})
}

// ExportDefinition downloads one application definition as JSON.
func (h *AdminHandler) ExportDefinition(c *gin.Context) {
	id := c.Param("id")
	def, err := h.adminService.ExportDefinition(c.Request.Context(), id)
	if err != nil {
		respondError(c, "en", err)
		return
	}
	var buf bytes.Buffer
	if err := schema.WriteDefinition(&buf, def); err != nil {
		respondError(c, "en", err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id+".json"))
	c.Data(http.StatusOK, "application/json; charset=utf-8", buf.Bytes())
}

// ImportDefinition replaces an application with the JSON definition in the body.
func (h *AdminHandler) ImportDefinition(c *gin.Context) {
	def, err := h.adminService.ImportDefinition(c.Request.Context(), c.Request.Body)
	if err != nil {
		log.Warnf("[AdminHandler] definition rejected: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": err.Error(), "data": nil})
		return
	}
	log.Infof("[AdminHandler] '%s' imported definition '%s'", operator(c), def.Search.SearchID)
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": summary(def)})
}

// ImportCKAN builds an application from a CKAN scheming YAML body. The query
// parameters search_id, title_en and title_fr name it.
func (h *AdminHandler) ImportCKAN(c *gin.Context) {
	opts := schema.CKANOptions{
		SearchID: c.Query("search_id"),
		TitleEN:  c.Query("title_en"),
		TitleFR:  c.Query("title_fr"),
	}
	if opts.SearchID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "search_id is required", "data": nil})
		return
	}
	def, err := h.adminService.ImportCKAN(c.Request.Context(), c.Request.Body, opts)
	if err != nil {
		log.Warnf("[AdminHandler] ckan schema rejected: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": err.Error(), "data": nil})
		return
	}
	log.Infof("[AdminHandler] '%s' imported ckan schema '%s'", operator(c), def.Search.SearchID)
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": summary(def)})
}

// DeleteSearch removes an application definition.
func (h *AdminHandler) DeleteSearch(c *gin.Context) {
	id := c.Param("id")
	if err := h.adminService.DeleteSearch(c.Request.Context(), id); err != nil {
		respondError(c, "en", err)
		return
	}
	log.Infof("[AdminHandler] '%s' deleted search '%s'", operator(c), id)
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": nil})
}

// SetDisabled switches an application off or back on.
func (h *AdminHandler) SetDisabled(c *gin.Context) {
	var req SetDisabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "invalid request payload", "data": nil})
		return
	}
	id := c.Param("id")
	if err := h.adminService.SetDisabled(c.Request.Context(), id, *req.Disabled); err != nil {
		respondError(c, "en", err)
		return
	}
	log.Infof("[AdminHandler] '%s' set search '%s' disabled=%t", operator(c), id, *req.Disabled)
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": gin.H{"search_id": id, "disabled": *req.Disabled}})
}

func summary(def schema.Definition) gin.H {
	return gin.H{"search_id": def.Search.SearchID, "fields": len(def.Fields), "codes": len(def.Codes)}
}
