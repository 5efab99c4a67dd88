package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"oc-search-go/internal/schema"
	"oc-search-go/internal/service"
	"oc-search-go/internal/shaper"
	"oc-search-go/pkg/log"
)

// Output formats selected with the search_format parameter.
const (
	FormatJSON = "json"
	FormatRaw  = "raw"
	FormatSolr = "solr"
)

// SearchHandler serves the public search routes.
type SearchHandler struct {
	searchService service.SearchService
	exportService service.ExportService
}

// NewSearchHandler creates a new SearchHandler.
func NewSearchHandler(searchService service.SearchService, exportService service.ExportService) *SearchHandler {
	return &SearchHandler{searchService: searchService, exportService: exportService}
}

// SearchPage is the default search response.
type SearchPage struct {
	Search         string               `json:"search"`
	Title          string               `json:"title"`
	About          string               `json:"about,omitempty"`
	ShowAllResults bool                 `json:"show_all_results"`
	MLTEnabled     bool                 `json:"mlt_enabled"`
	DownloadURL    string               `json:"dataset_download_url,omitempty"`
	DownloadText   string               `json:"dataset_download_text,omitempty"`
	Results        *shaper.Presentation `json:"results"`
}

func newSearchPage(s *schema.Schema, lang string, pres *shaper.Presentation) SearchPage {
	return SearchPage{
		Search:       s.ID(),
		Title:        s.Label(lang),
		About:        schema.Localized(lang, s.Search.AboutMessageEN, s.Search.AboutMessageFR),
		MLTEnabled:   s.Search.MLTEnabled,
		DownloadURL:  schema.Localized(lang, s.Search.DatasetDownloadURLEN, s.Search.DatasetDownloadURLFR),
		DownloadText: schema.Localized(lang, s.Search.DatasetDownloadTextEN, s.Search.DatasetDownloadTextFR),
		Results:      pres,
	}
}

// Search handles GET /search/:lang/:search.
func (h *SearchHandler) Search(c *gin.Context) {
	lang := c.Param("lang")
	params := c.Request.URL.Query()
	res, err := h.searchService.Search(c.Request.Context(), service.SearchRequest{
		Name:    c.Param("search"),
		Lang:    lang,
		Params:  params,
		Referer: c.GetHeader("Referer"),
	})
	if err != nil {
		respondError(c, lang, err)
		return
	}

	switch format := params.Get("search_format"); {
	case format == FormatJSON && res.Schema.Search.JSONResponse:
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.Schema.ID()+"_"+lang+".json"))
		c.JSON(http.StatusOK, res.Presentation.JSON())
		return
	case (format == FormatRaw || format == FormatSolr) && res.Schema.Search.RawResponse:
		c.JSON(http.StatusOK, gin.H{"params": res.Descriptor.Params(), "response": json.RawMessage(rawOrEmpty(res.Response.Raw))})
		return
	}

	page := newSearchPage(res.Schema, lang, res.Presentation)
	page.ShowAllResults = res.ShowAllResults
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": page})
}

// Record handles GET /search/:lang/:search/record/:id.
func (h *SearchHandler) Record(c *gin.Context) {
	lang := c.Param("lang")
	res, err := h.searchService.Record(c.Request.Context(), service.RecordRequest{
		Name:     c.Param("search"),
		Lang:     lang,
		RecordID: c.Param("id"),
	})
	if err != nil {
		respondError(c, lang, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": newSearchPage(res.Schema, lang, res.Presentation)})
}

// MoreLikeThis handles GET /search/:lang/:search/similar/:id.
func (h *SearchHandler) MoreLikeThis(c *gin.Context) {
	lang := c.Param("lang")
	res, err := h.searchService.MoreLikeThis(c.Request.Context(), service.RecordRequest{
		Name:     c.Param("search"),
		Lang:     lang,
		RecordID: c.Param("id"),
	})
	if err != nil {
		respondError(c, lang, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": newSearchPage(res.Schema, lang, res.Presentation)})
}

// Export handles GET /search/:lang/:search/export. It answers 200 with the
// file link when a fresh file exists and 202 with a task id otherwise.
func (h *SearchHandler) Export(c *gin.Context) {
	lang := c.Param("lang")
	st, err := h.exportService.Request(c.Request.Context(), service.SearchRequest{
		Name:   c.Param("search"),
		Lang:   lang,
		Params: c.Request.URL.Query(),
	})
	if err != nil {
		respondError(c, lang, err)
		return
	}
	writeExportStatus(c, st)
}

// ExportStatus handles GET /search/:lang/:search/export/:task.
func (h *SearchHandler) ExportStatus(c *gin.Context) {
	st, err := h.exportService.Status(c.Request.Context(), c.Param("task"))
	if err != nil {
		respondError(c, c.Param("lang"), err)
		return
	}
	writeExportStatus(c, st)
}

// Download handles GET /search/:lang/:search/download/:task by redirecting
// to the generated file.
func (h *SearchHandler) Download(c *gin.Context) {
	st, err := h.exportService.Status(c.Request.Context(), c.Param("task"))
	if err != nil {
		respondError(c, c.Param("lang"), err)
		return
	}
	if !st.Done() {
		writeExportStatus(c, st)
		return
	}
	log.Infof("[SearchHandler] redirecting download of task %s", st.TaskID)
	c.Redirect(http.StatusFound, st.FileURL)
}

// writeExportStatus answers 202 while a task is pending or running.
func writeExportStatus(c *gin.Context, st *service.ExportStatus) {
	status := http.StatusOK
	if st.Status == service.TaskPending || st.Status == service.TaskStarted {
		status = http.StatusAccepted
	}
	c.JSON(status, gin.H{"code": status, "message": "success", "data": st})
}

func rawOrEmpty(raw []byte) []byte {
	if len(raw) == 0 {
		return []byte("{}")
	}
	return raw
}
