package dashboard

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/eta/core/dataset"
	"github.com/kilianp07/eta/core/model"
	"github.com/kilianp07/eta/core/pipeline"
)

const sample = "Order_ID;Distance_km;Weather;Traffic_Level;Time_of_Day;Vehicle_Type;Preparation_Time_min;Courier_Experience_yrs;Delivery_Time_min\n" +
	"522;7,93;Windy;Low;Afternoon;Scooter;12;1;43\n" +
	"738;16,42;Clear;Medium;Evening;Bike;20;2;84\n" +
	"741;9,52;Foggy;Low;Night;Scooter;28;1;59\n" +
	"661;7,44;Rainy;Medium;Afternoon;Car;5;1;37\n"

type overviewFunc func() (*dataset.Summary, error)

func (f overviewFunc) Overview() (*dataset.Summary, error) { return f() }

func summary(t *testing.T) *dataset.Summary {
	t.Helper()
	ds, err := dataset.Read(strings.NewReader(sample), dataset.LoadOptions{})
	require.NoError(t, err)
	return dataset.Summarize(ds)
}

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	coefs := []pipeline.Coefficient{{Feature: "intercept", Weight: 50}, {Feature: model.ColDistance, Weight: 12}}
	require.NoError(t, Render(&buf, summary(t), coefs))
	html := buf.String()
	assert.Contains(t, html, "<title>"+PageTitle+"</title>")
	assert.Contains(t, html, "Distribution of "+model.ColDistance)
	assert.Contains(t, html, "Orders by weather and traffic")
	assert.Contains(t, html, "Delivery time by "+model.ColVehicle)
	assert.Contains(t, html, "Model coefficients")
}

func TestPage(t *testing.T) {
	s := summary(t)
	e := echo.New()
	NewHandler(overviewFunc(func() (*dataset.Summary, error) { return s, nil }), nil).RegisterRoutes(e.Group(""))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "text/html")
	assert.NotContains(t, rec.Body.String(), "Model coefficients")

	e = echo.New()
	NewHandler(overviewFunc(func() (*dataset.Summary, error) { return nil, errors.New("no data") }), nil).RegisterRoutes(e.Group(""))
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
