package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	appmol "github.com/turtacn/molecule-search/internal/application/molecule"
	"github.com/turtacn/molecule-search/internal/infrastructure/monitoring/logging"
)

// MoleculeHandler serves reverse structure search: which notebooks use a
// molecule.
type MoleculeHandler struct {
	svc    appmol.Service
	logger logging.Logger
}

func NewMoleculeHandler(svc appmol.Service, log logging.Logger) *MoleculeHandler {
	return &MoleculeHandler{svc: svc, logger: orNop(log).Named("molecule_handler")}
}

func (h *MoleculeHandler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/molecules/search", h.SearchQuery)
	r.POST("/molecules/search", h.SearchBody)
}

// SearchQuery handles GET /molecules/search. smiles may repeat or hold a
// comma-separated list.
func (h *MoleculeHandler) SearchQuery(c *gin.Context) {
	in := &appmol.SearchInput{Type: c.Query("type")}
	for _, v := range c.QueryArray("smiles") {
		in.SMILES = append(in.SMILES, strings.Split(v, ",")...)
	}
	if v := c.Query("require_all"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			badRequest(c, "require_all must be a boolean")
			return
		}
		in.RequireAll = b
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			badRequest(c, "limit must be an integer")
			return
		}
		in.Limit = n
	}
	h.search(c, in)
}

// SearchBody handles POST /molecules/search.
func (h *MoleculeHandler) SearchBody(c *gin.Context) {
	var in appmol.SearchInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "request body must be a JSON object")
		return
	}
	h.search(c, &in)
}

func (h *MoleculeHandler) search(c *gin.Context, in *appmol.SearchInput) {
	empty := true
	for _, s := range in.SMILES {
		if strings.TrimSpace(s) != "" {
			empty = false
			break
		}
	}
	if empty {
		badRequest(c, "at least one SMILES is required")
		return
	}
	res, err := h.svc.Search(c.Request.Context(), in)
	if err != nil {
		writeAppError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
