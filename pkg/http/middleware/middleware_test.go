package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	applogger "OptionsFlow/pkg/logger"
)

func serve(e *echo.Echo, method, target string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func newCORSEcho(origins ...string) *echo.Echo {
	e := echo.New()
	e.Use(CORS(CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{echo.HeaderContentType},
		MaxAge:       time.Minute,
	}))
	e.GET("/ping", func(c echo.Context) error { return c.String(http.StatusOK, "pong") })
	return e
}

func TestCORS_Preflight(t *testing.T) {
	e := newCORSEcho("https://desk.example")

	rec := serve(e, http.MethodOptions, "/ping", map[string]string{echo.HeaderOrigin: "https://desk.example"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://desk.example", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	assert.Equal(t, "GET, POST", rec.Header().Get(echo.HeaderAccessControlAllowMethods))
	assert.Equal(t, "60", rec.Header().Get(echo.HeaderAccessControlMaxAge))
}

func TestCORS_Origins(t *testing.T) {
	e := newCORSEcho("https://desk.example")

	rec := serve(e, http.MethodGet, "/ping", map[string]string{echo.HeaderOrigin: "https://other.example"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))

	rec = serve(e, http.MethodGet, "/ping", nil)
	assert.Empty(t, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))

	e = newCORSEcho("*")
	rec = serve(e, http.MethodGet, "/ping", map[string]string{echo.HeaderOrigin: "https://other.example"})
	assert.Equal(t, "pong", rec.Body.String())
	assert.Equal(t, "https://other.example", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}

func TestRecover(t *testing.T) {
	e := echo.New()
	e.Use(Recover(applogger.Nop()))
	e.GET("/boom", func(c echo.Context) error { panic("boom") })

	rec := serve(e, http.MethodGet, "/boom", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"status":500,"message":"Internal Server Error"}`, rec.Body.String())
}

func TestMetrics_RouteLabel(t *testing.T) {
	e := echo.New()
	e.Use(Metrics(applogger.Nop(), time.Second))
	e.GET("/api/flow/:symbol", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/api/flow/GME", nil).Code)
	assert.Equal(t, http.StatusNotFound, serve(e, http.MethodGet, "/nope", nil).Code)
}
