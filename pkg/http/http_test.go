package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_PostJSON(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "flow-test", r.Header.Get("User-Agent"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := NewClient(WithTimeout(time.Second), WithUserAgent("flow-test"))
	require.NoError(t, c.PostJSON(context.Background(), srv.URL, map[string]string{"id": "a1"}))
	assert.Equal(t, "a1", got["id"])
}

func TestClient_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, strings.Repeat("x", 2*maxErrorBody), http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := NewClient().PostJSON(context.Background(), srv.URL, struct{}{})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusServiceUnavailable, se.Code)
	assert.True(t, se.Temporary())
	assert.Len(t, se.Body, maxErrorBody)

	assert.False(t, (&StatusError{Code: http.StatusBadRequest}).Temporary())
}

type pageRequest struct {
	Symbol string `param:"symbol" validate:"required,max=4"`
	Limit  int    `query:"limit" json:"limit" default:"10" validate:"gte=1,lte=100"`
}

func bindPage(t *testing.T, target string) (*pageRequest, []ValidationError) {
	t.Helper()
	var (
		req   *pageRequest
		verrs []ValidationError
	)
	e := echo.New()
	e.GET("/page/:symbol", func(c echo.Context) error {
		req = &pageRequest{}
		verrs = ReadAndValidateRequest(c, req)
		return nil
	})
	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, target, nil))
	require.NotNil(t, req, "route not matched")
	return req, verrs
}

func TestReadAndValidateRequest(t *testing.T) {
	req, verrs := bindPage(t, "/page/GME")
	require.Nil(t, verrs)
	assert.Equal(t, "GME", req.Symbol)
	assert.Equal(t, 10, req.Limit)

	_, verrs = bindPage(t, "/page/TOOLONG?limit=500")
	require.Len(t, verrs, 2)
	assert.Equal(t, ValidationError{Code: "ERR_MAX", Field: "symbol", Message: "symbol must be at most 4 characters", Param: "4"}, verrs[0])
	assert.Equal(t, "limit", verrs[1].Field)
	assert.Equal(t, "ERR_LTE", verrs[1].Code)

	_, verrs = bindPage(t, "/page/GME?limit=abc")
	require.Len(t, verrs, 1)
	assert.Equal(t, "ERR_BIND", verrs[0].Code)
}

func TestAppErrorResponse(t *testing.T) {
	e := echo.New()

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	require.NoError(t, AppErrorResponse(c, NotFoundErrorf("alert %s not found", "a1")))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"status":404,"message":"Not Found","data":[{"code":"ERR_NOT_FOUND","message":"alert a1 not found"}]}`, rec.Body.String())

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	require.NoError(t, AppErrorResponse(c, errors.New("db down")))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "db down")
}
