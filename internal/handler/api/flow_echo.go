package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"OptionsFlow/internal/domain/models"
	"OptionsFlow/internal/domain/repository"
	"OptionsFlow/internal/service/ratelimit"
	"OptionsFlow/internal/usecase"
	xhttp "OptionsFlow/pkg/http"
	xlogger "OptionsFlow/pkg/logger"
	"OptionsFlow/pkg/util"
)

var darkPoolWindows = map[string]time.Duration{
	"1m":  time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
}

// FlowEchoHandler serves the engine's ingest and query surface over Echo.
type FlowEchoHandler struct {
	logger  *xlogger.Logger
	engine  *usecase.Engine
	archive repository.AlertArchive
	rl      *ratelimit.Limiter
}

// NewFlowEchoHandler wires the handler. archive may be nil when ClickHouse is
// disabled; ingestRPS <= 0 turns the per-client ingest limit off.
func NewFlowEchoHandler(logger *xlogger.Logger, engine *usecase.Engine, archive repository.AlertArchive, ingestRPS float64) *FlowEchoHandler {
	h := &FlowEchoHandler{logger: logger, engine: engine, archive: archive}
	if ingestRPS > 0 {
		h.rl = ratelimit.New(ingestRPS, int(ingestRPS)+1)
	}
	return h
}

func (h *FlowEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api")
	g.POST("/trades", h.SubmitTrade)
	g.GET("/flow/:symbol", h.Flow)
	g.GET("/flow/:symbol/strikes", h.Strikes)
	g.GET("/flow/:symbol/darkpool", h.DarkPool)
	g.GET("/flow/:symbol/window", h.PatternWindow)
	g.GET("/institutional", h.Institutional)
	g.GET("/market-maker/:symbol", h.MarketMaker)
	g.GET("/alerts", h.Alerts)
	g.GET("/alerts/history", h.AlertHistory)
	g.POST("/alerts/:id/ack", h.Acknowledge)
	g.POST("/alerts/:id/deactivate", h.Deactivate)
	g.GET("/patterns", h.Patterns)
	g.GET("/dispatch-log", h.DispatchLog)
	g.GET("/stats", h.Stats)
	g.POST("/stats/reset", h.ResetStats)
}

func (h *FlowEchoHandler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

func (h *FlowEchoHandler) SubmitTrade(c echo.Context) error {
	if h.rl != nil && !h.rl.Allow(c.RealIP()+":trades") {
		h.logger.Warn("trades rate_limited", xlogger.String("remote", c.RealIP()))
		return xhttp.DataResponse(c, http.StatusTooManyRequests, "rate limited")
	}
	req := &models.OptionsTrade{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.engine.ProcessTrade(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, usecase.ErrInvalidTrade) {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()).WithError(err))
		}
		h.logger.Error("process trade error", xlogger.Error(err), xlogger.String("trade_id", req.ID))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *FlowEchoHandler) Flow(c echo.Context) error {
	req := &models.SymbolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return xhttp.SuccessResponse(c, h.engine.OrderFlowSummary(req.Symbol))
}

func (h *FlowEchoHandler) Strikes(c echo.Context) error {
	req := &models.SymbolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rows := h.engine.FlowByStrike(req.Symbol)
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *FlowEchoHandler) PatternWindow(c echo.Context) error {
	req := &models.SymbolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return xhttp.SuccessResponse(c, h.engine.PatternWindow(req.Symbol))
}

func (h *FlowEchoHandler) DarkPool(c echo.Context) error {
	req := &models.DarkPoolVolumeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"symbol":    req.Symbol,
		"window":    req.Window,
		"contracts": h.engine.DarkPoolVolume(req.Symbol, darkPoolWindows[req.Window]),
	})
}

func (h *FlowEchoHandler) Institutional(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.engine.InstitutionalFlow())
}

func (h *FlowEchoHandler) MarketMaker(c echo.Context) error {
	req := &models.SymbolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return xhttp.SuccessResponse(c, h.engine.MarketMakerPosition(req.Symbol))
}

func (h *FlowEchoHandler) Alerts(c echo.Context) error {
	req := &models.AlertsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	var floor *models.Severity
	if req.MinSeverity != "" {
		s, err := models.ParseSeverity(req.MinSeverity)
		if err != nil {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
		}
		floor = &s
	}

	rows, err := h.engine.ActiveAlerts(c.Request().Context(), floor)
	if err != nil {
		h.logger.Error("active alerts error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *FlowEchoHandler) AlertHistory(c echo.Context) error {
	if h.archive == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("alert archive is disabled"))
	}
	req := &models.AlertHistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	to := util.ParseTimeDefault(req.To, time.Now().UTC())
	from := util.ParseTimeDefault(req.From, to.Add(-24*time.Hour))
	if !from.Before(to) {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("from must be before to"))
	}

	rows, err := h.archive.Query(c.Request().Context(), req.Underlying, from, to, req.Limit)
	if err != nil {
		h.logger.Error("alert history error", xlogger.Error(err), xlogger.String("underlying", req.Underlying))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *FlowEchoHandler) Acknowledge(c echo.Context) error {
	req := &models.AlertActionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.engine.AcknowledgeAlert(c.Request().Context(), req.ID, req.Actor) {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("alert %s not found", req.ID))
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{"id": req.ID, "acknowledged": true})
}

func (h *FlowEchoHandler) Deactivate(c echo.Context) error {
	req := &models.AlertActionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.engine.DeactivateAlert(c.Request().Context(), req.ID) {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("alert %s not found", req.ID))
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{"id": req.ID, "active": false})
}

func (h *FlowEchoHandler) Patterns(c echo.Context) error {
	req := &models.LimitRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rows := h.engine.RecentPatterns(req.Limit)
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *FlowEchoHandler) DispatchLog(c echo.Context) error {
	req := &models.LimitRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rows := h.engine.DispatchLog(req.Limit)
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *FlowEchoHandler) Stats(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.engine.Statistics(c.Request().Context()))
}

func (h *FlowEchoHandler) ResetStats(c echo.Context) error {
	h.engine.ResetStatistics()
	h.logger.Info("statistics reset", xlogger.String("remote", c.RealIP()))
	return xhttp.NoContentResponse(c)
}
