package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appnb "github.com/turtacn/molecule-search/internal/application/notebook"
	"github.com/turtacn/molecule-search/internal/domain/notebook"
	"github.com/turtacn/molecule-search/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/molecule-search/pkg/errors"
)

type NotebookHandler struct {
	svc    appnb.Service
	logger logging.Logger
}

func NewNotebookHandler(svc appnb.Service, log logging.Logger) *NotebookHandler {
	return &NotebookHandler{svc: svc, logger: orNop(log).Named("notebook_handler")}
}

func (h *NotebookHandler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/notebooks", h.List)
	r.GET("/notebooks/authors", h.Authors)
	r.GET("/notebooks/:id", h.Get)
}

// NotebookSummary is a notebook as the browser list renders it.
type NotebookSummary struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	GCSPath     string    `json:"gcsPath"`
	Description string    `json:"description"`
	Date        string    `json:"date"`
	Author      *string   `json:"author"`
	Tags        []string  `json:"tags"`
}

func summarize(n *notebook.Notebook) NotebookSummary {
	return NotebookSummary{
		ID:          n.ID,
		Title:       n.DisplayTitle(),
		GCSPath:     n.GCSPath,
		Description: n.Description,
		Date:        n.CreatedAt.UTC().Format(time.RFC3339),
		Tags:        []string{},
	}
}

// List handles GET /notebooks?search=&author=&date_from=&date_to=&limit=.
func (h *NotebookHandler) List(c *gin.Context) {
	f := notebook.ListFilter{
		Search: c.Query("search"),
		Author: c.Query("author"),
	}
	var err error
	if f.DateFrom, err = notebook.ParseDate("date_from", c.Query("date_from")); err != nil {
		writeAppError(c, h.logger, err)
		return
	}
	if f.DateTo, err = notebook.ParseDate("date_to", c.Query("date_to")); err != nil {
		writeAppError(c, h.logger, err)
		return
	}
	if v := c.Query("limit"); v != "" {
		if f.Limit, err = strconv.Atoi(v); err != nil {
			badRequest(c, "limit must be an integer")
			return
		}
	}

	nbs, err := h.svc.List(c.Request.Context(), f)
	if err != nil {
		writeAppError(c, h.logger, err)
		return
	}
	out := make([]NotebookSummary, 0, len(nbs))
	for _, n := range nbs {
		out = append(out, summarize(n))
	}
	c.JSON(http.StatusOK, gin.H{"notebooks": out})
}

func (h *NotebookHandler) Authors(c *gin.Context) {
	authors, err := h.svc.Authors(c.Request.Context())
	if err != nil {
		writeAppError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"authors": authors})
}

// Get returns one notebook with its synthesis hierarchy.
func (h *NotebookHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeAppError(c, h.logger, errors.New(errors.ErrCodeNotebookInvalidFilter, "notebook id must be a UUID"))
		return
	}
	n, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		writeAppError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, n)
}
