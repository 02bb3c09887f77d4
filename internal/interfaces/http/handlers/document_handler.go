package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/molecule-search/internal/application/document"
	"github.com/turtacn/molecule-search/internal/infrastructure/monitoring/logging"
)

type DocumentHandler struct {
	svc    document.Service
	logger logging.Logger
}

func NewDocumentHandler(svc document.Service, log logging.Logger) *DocumentHandler {
	return &DocumentHandler{svc: svc, logger: orNop(log).Named("document_handler")}
}

func (h *DocumentHandler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/documents", h.List)
	r.GET("/documents/url", h.URL)
}

// List handles GET /documents?prefix=.
func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.svc.ListDocuments(c.Request.Context(), c.Query("prefix"))
	if err != nil {
		writeAppError(c, h.logger, err)
		return
	}
	if docs == nil {
		docs = []document.Document{}
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs, "total": len(docs)})
}

// URL handles GET /documents/url?name=.
func (h *DocumentHandler) URL(c *gin.Context) {
	u, err := h.svc.DocumentURL(c.Request.Context(), c.Query("name"))
	if err != nil {
		writeAppError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, u)
}
