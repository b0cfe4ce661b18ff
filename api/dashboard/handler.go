package dashboard

import (
	"bytes"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/kilianp07/eta/core/dataset"
	"github.com/kilianp07/eta/core/pipeline"
	"github.com/kilianp07/eta/infra/logger"
)

// Overviewer provides the dataset summary.
type Overviewer interface {
	Overview() (*dataset.Summary, error)
}

// Handler serves the chart page.
type Handler struct {
	overview Overviewer
	coefs    []pipeline.Coefficient
	logger   logger.Logger
}

// NewHandler renders summaries from overview and the coefficients of the
// served pipeline.
func NewHandler(overview Overviewer, coefs []pipeline.Coefficient) *Handler {
	return &Handler{overview: overview, coefs: coefs, logger: logger.New("dashboard")}
}

// RegisterRoutes mounts GET /dashboard on g.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/dashboard", h.Page)
}

// Page renders the charts.
func (h *Handler) Page(c echo.Context) error {
	s, err := h.overview.Overview()
	if err != nil {
		h.logger.Errorf("dashboard overview: %v", err)
		return c.String(http.StatusServiceUnavailable, "dataset unavailable")
	}
	var buf bytes.Buffer
	if err := Render(&buf, s, h.coefs); err != nil {
		h.logger.Errorf("render dashboard: %v", err)
		return c.String(http.StatusInternalServerError, "render failed")
	}
	return c.HTMLBlob(http.StatusOK, buf.Bytes())
}
