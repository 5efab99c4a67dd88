// Package handler contains the gin handlers of the search and admin APIs.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"oc-search-go/internal/engine"
	"oc-search-go/internal/query"
	"oc-search-go/internal/schema"
	"oc-search-go/internal/service"
	"oc-search-go/pkg/log"
)

var unavailableMessage = map[string]string{
	"en": "The search service is temporarily unavailable. Please try again later.",
	"fr": "Le service de recherche est temporairement indisponible. Veuillez réessayer plus tard.",
}

// respondError maps service errors to status codes and a JSON body.
func respondError(c *gin.Context, lang string, err error) {
	var (
		paramErr    *query.ParamError
		disabledErr *service.DisabledError
		status      int
		message     string
	)
	switch {
	case errors.As(err, &paramErr):
		status, message = http.StatusBadRequest, paramErr.Error()
	case errors.As(err, &disabledErr):
		status, message = http.StatusServiceUnavailable, disabledErr.Message
		if message == "" {
			message = localized(unavailableMessage, lang)
		}
	case errors.Is(err, schema.ErrNotFound), errors.Is(err, query.ErrMLTDisabled), errors.Is(err, service.ErrTaskNotFound):
		status, message = http.StatusNotFound, err.Error()
	case errors.Is(err, engine.ErrTransport):
		status, message = http.StatusServiceUnavailable, localized(unavailableMessage, lang)
	default:
		status, message = http.StatusInternalServerError, "internal error"
	}
	if status >= http.StatusInternalServerError {
		log.Errorf("[Handler] %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{"code": status, "message": message, "data": nil})
}

func localized(m map[string]string, lang string) string {
	if v, ok := m[lang]; ok {
		return v
	}
	return m["en"]
}
