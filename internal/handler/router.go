package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"oc-search-go/internal/metrics"
	"oc-search-go/internal/middleware"
	"oc-search-go/pkg/token"
)

// NewRouter registers every route on a fresh engine.
func NewRouter(search *SearchHandler, admin *AdminHandler, jwtManager *token.JWTManager) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestLogger(), metrics.Middleware(), gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s := r.Group("/search/:lang/:search")
	{
		s.GET("", search.Search)
		s.GET("/record/:id", search.Record)
		s.GET("/similar/:id", search.MoreLikeThis)
		s.GET("/export", search.Export)
		s.GET("/export/:task", search.ExportStatus)
		s.GET("/download/:task", search.Download)
	}

	a := r.Group("/api/v1/admin")
	a.Use(middleware.AuthMiddleware(jwtManager), middleware.AdminAuthMiddleware())
	{
		a.GET("/searches", admin.ListSearches)
		a.POST("/searches", admin.ImportDefinition)
		a.POST("/searches/ckan", admin.ImportCKAN)
		a.GET("/searches/:id", admin.ExportDefinition)
		a.DELETE("/searches/:id", admin.DeleteSearch)
		a.PUT("/searches/:id/disabled", admin.SetDisabled)
	}
	return r
}
