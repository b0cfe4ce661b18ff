package predict

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/kilianp07/eta/core/dataset"
	"github.com/kilianp07/eta/core/metrics"
	"github.com/kilianp07/eta/core/model"
	"github.com/kilianp07/eta/core/predlog"
	"github.com/kilianp07/eta/core/prediction"
	"github.com/kilianp07/eta/core/regression"
	"github.com/kilianp07/eta/infra/logger"
	"github.com/kilianp07/eta/pkg/export"
)

// RequestIDHeader optionally carries a caller supplied request id.
const RequestIDHeader = "X-Request-ID"

// Overviewer provides the dataset summary.
type Overviewer interface {
	Overview() (*dataset.Summary, error)
}

// Handler serves the prediction API.
type Handler struct {
	engine   prediction.Engine
	store    predlog.Store
	schema   SchemaInfo
	overview Overviewer
	token    string
	logger   logger.Logger
}

// Option customizes a Handler.
type Option func(*Handler)

// WithStore exposes the prediction log on GET /predictions.
func WithStore(s predlog.Store) Option { return func(h *Handler) { h.store = s } }

// WithOverview exposes the dataset summary on GET /overview.
func WithOverview(o Overviewer) Option { return func(h *Handler) { h.overview = o } }

// WithToken requires "Bearer <token>" on GET /predictions.
func WithToken(token string) Option { return func(h *Handler) { h.token = token } }

// NewHandler returns a Handler answering with engine.
func NewHandler(engine prediction.Engine, schema SchemaInfo, opts ...Option) *Handler {
	h := &Handler{engine: engine, schema: schema, logger: logger.New("api")}
	for _, o := range opts {
		o(h)
	}
	return h
}

// RegisterRoutes mounts the API on g.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/predict", h.Predict)
	g.GET("/schema", h.Schema)
	g.GET("/overview", h.Overview)

	var mw []echo.MiddlewareFunc
	if h.token != "" {
		mw = append(mw, middleware.KeyAuth(func(key string, _ echo.Context) (bool, error) {
			return key == h.token, nil
		}))
	}
	g.GET("/predictions", h.Predictions, mw...)
}

// Predict estimates the delivery time of the FeatureRow in the body.
func (h *Handler) Predict(c echo.Context) error {
	var row model.FeatureRow
	if err := c.Bind(&row); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Message: "invalid request body"})
	}
	res, err := h.engine.Predict(c.Request().Context(), prediction.Request{
		RequestID: c.Request().Header.Get(RequestIDHeader),
		Source:    metrics.SourceHTTP,
		Row:       row,
	})
	if err != nil {
		switch {
		case errors.Is(err, model.ErrInvalidFeature), errors.Is(err, regression.ErrShapeMismatch):
			return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Message: err.Error()})
		default:
			h.logger.Errorf("predict: %v", err)
			return c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "prediction failed"})
		}
	}
	c.Response().Header().Set(RequestIDHeader, res.RequestID)
	return c.JSON(http.StatusOK, PredictResponse{RequestID: res.RequestID, Minutes: res.Minutes, Display: res.Display})
}

// Schema returns the accepted inputs and the slider ranges.
func (h *Handler) Schema(c echo.Context) error {
	return c.JSON(http.StatusOK, h.schema)
}

// Overview returns the dataset summary.
func (h *Handler) Overview(c echo.Context) error {
	if h.overview == nil {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Message: "dataset overview not configured"})
	}
	s, err := h.overview.Overview()
	if err != nil {
		h.logger.Errorf("overview: %v", err)
		if errors.Is(err, dataset.ErrDatasetLoad) {
			return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Message: err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "failed to summarize dataset"})
	}
	return c.JSON(http.StatusOK, s)
}

// Predictions lists logged predictions as JSON or CSV. Filters: start and end
// (RFC3339), vehicle_type, source and limit.
func (h *Handler) Predictions(c echo.Context) error {
	if h.store == nil {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Message: "prediction log not configured"})
	}
	format := c.QueryParam("format")
	if format != "" && format != "json" && format != "csv" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Message: "format must be json or csv"})
	}
	q, err := parseQuery(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Message: err.Error()})
	}
	records, err := h.store.Query(c.Request().Context(), q)
	if err != nil {
		h.logger.Errorf("query predictions: %v", err)
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "failed to query predictions"})
	}
	w := c.Response()
	if format == "csv" {
		w.Header().Set(echo.HeaderContentType, "text/csv")
		w.Header().Set(echo.HeaderContentDisposition, `attachment; filename="predictions.csv"`)
		w.WriteHeader(http.StatusOK)
		return export.WriteCSV(w, records)
	}
	w.Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	w.WriteHeader(http.StatusOK)
	return export.WriteJSON(w, records)
}

func parseQuery(c echo.Context) (predlog.Query, error) {
	q := predlog.Query{
		VehicleType: c.QueryParam("vehicle_type"),
		Source:      c.QueryParam("source"),
	}
	if s := c.QueryParam("start"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return q, errors.New("start must be RFC3339")
		}
		q.Start = t
	}
	if s := c.QueryParam("end"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return q, errors.New("end must be RFC3339")
		}
		q.End = t
	}
	if s := c.QueryParam("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return q, errors.New("limit must be a non-negative integer")
		}
		q.Limit = n
	}
	return q, nil
}
