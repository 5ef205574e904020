// Package server exposes the JSON API and the liveness endpoint polled by
// the container health check.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"coinspread/internal/aggregate"
	"coinspread/internal/cache"
	"coinspread/internal/config"
	"coinspread/internal/exchange"
	"coinspread/internal/logger"
	"coinspread/internal/market"
	"coinspread/internal/monitor"
	"coinspread/internal/paper"
	"coinspread/internal/scanner"
)

// Server wires the HTTP layer to the domain services.
type Server struct {
	echo       *echo.Echo
	scanner    *scanner.Scanner
	aggregator *aggregate.Aggregator
	engine     *paper.Engine
	store      cache.Cache
	monitor    *monitor.Monitor
	cfg        *config.Config
}

// New builds the server and registers all routes.
func New(cfg *config.Config, sc *scanner.Scanner, agg *aggregate.Aggregator, engine *paper.Engine, store cache.Cache, mon *monitor.Monitor) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLogger())

	s := &Server{
		echo:       e,
		scanner:    sc,
		aggregator: agg,
		engine:     engine,
		store:      store,
		monitor:    mon,
		cfg:        cfg,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	// The probe path matches what the deployment's HEALTHCHECK is wired
	// against; /healthz is the conventional alias.
	s.echo.GET("/_stcore/health", s.handleHealth)
	s.echo.GET("/healthz", s.handleHealth)

	api := s.echo.Group("/api")
	api.GET("/symbols", s.handleSymbols)
	api.GET("/exchanges", s.handleExchanges)
	api.GET("/tickers", s.handleTickers)
	api.GET("/quotes", s.handleQuotes)
	api.GET("/best", s.handleBest)
	api.GET("/opportunities", s.handleOpportunities)
	api.GET("/overview", s.handleOverview)
	api.GET("/trend", s.handleTrend)
	api.GET("/trades", s.handleListTrades)
	api.POST("/trades", s.handleExecuteTrade)
	api.GET("/stats", s.handleStats)
}

// Start runs the listener until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Address, s.cfg.Server.Port)

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("http server listening")
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.echo.Shutdown(shutdownCtx)
	}
}

// Handler exposes the routing tree, used by tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Debug().
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Int("status", c.Response().Status).
				Dur("elapsed", time.Since(start)).
				Msg("request")
			return err
		}
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": s.monitor.Uptime().Round(time.Second).String(),
	})
}

func (s *Server) handleSymbols(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"symbols":    s.scanner.Symbols(),
		"aggregated": aggregate.SupportedSymbols(),
	})
}

func (s *Server) handleExchanges(c echo.Context) error {
	return c.JSON(http.StatusOK, s.scanner.States())
}

func (s *Server) handleTickers(c echo.Context) error {
	symbol := c.QueryParam("symbol")
	if symbol == "" {
		return jsonError(c, http.StatusBadRequest, "symbol parameter is required")
	}

	tickers, err := s.scanner.Tickers(c.Request().Context(), symbol)
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(http.StatusOK, tickers)
}

func (s *Server) handleQuotes(c echo.Context) error {
	symbol := c.QueryParam("symbol")
	if symbol == "" {
		return jsonError(c, http.StatusBadRequest, "symbol parameter is required")
	}

	quotes, err := s.aggregator.Quotes(c.Request().Context(), symbol)
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"quotes": quotes,
		"best":   quotes[0],
	})
}

func (s *Server) handleBest(c echo.Context) error {
	symbol := c.QueryParam("symbol")
	if symbol == "" {
		return jsonError(c, http.StatusBadRequest, "symbol parameter is required")
	}

	tickers, err := s.scanner.Tickers(c.Request().Context(), symbol)
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(http.StatusOK, market.BestQuote(tickers))
}

func (s *Server) handleOpportunities(c echo.Context) error {
	f := market.Filter{MinProfitPct: s.cfg.Trading.MinProfitThreshold}

	if v := c.QueryParam("min_profit"); v != "" {
		p, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return jsonError(c, http.StatusBadRequest, "min_profit must be a number")
		}
		f.MinProfitPct = p
	}
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return jsonError(c, http.StatusBadRequest, "limit must be a positive integer")
		}
		f.Limit = n
	}
	if v := c.QueryParams()["exchange"]; len(v) > 0 {
		f.Exchanges = v
	}

	ops, err := s.scanner.Opportunities(c.Request().Context(), c.QueryParam("symbol"), f)
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(http.StatusOK, ops)
}

func (s *Server) handleOverview(c echo.Context) error {
	ov, err := s.scanner.Overview()
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(http.StatusOK, ov)
}

func (s *Server) handleTrend(c echo.Context) error {
	hours := 24
	if v := c.QueryParam("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return jsonError(c, http.StatusBadRequest, "hours must be a positive integer")
		}
		hours = n
	}
	return c.JSON(http.StatusOK, s.scanner.Trend(time.Duration(hours)*time.Hour))
}

func (s *Server) handleListTrades(c echo.Context) error {
	trades, err := s.engine.Trades()
	if err != nil {
		return domainError(c, err)
	}
	summary, err := s.engine.Summarize()
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"summary": summary,
		"trades":  trades,
	})
}

type executeRequest struct {
	Symbol       string  `json:"symbol"`
	BuyExchange  string  `json:"buy_exchange"`
	SellExchange string  `json:"sell_exchange"`
	PositionUSD  float64 `json:"position_usd"`
}

func (s *Server) handleExecuteTrade(c echo.Context) error {
	var req executeRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid request body")
	}
	if req.Symbol == "" || req.BuyExchange == "" || req.SellExchange == "" {
		return jsonError(c, http.StatusBadRequest, "symbol, buy_exchange and sell_exchange are required")
	}

	// Re-derive the opportunity from live data so stale submissions are
	// rejected rather than executed at prices that no longer exist.
	ops, err := s.scanner.Opportunities(c.Request().Context(), req.Symbol, market.Filter{})
	if err != nil {
		return domainError(c, err)
	}
	for _, op := range ops {
		if op.BuyExchange == req.BuyExchange && op.SellExchange == req.SellExchange {
			trade, err := s.engine.Execute(op, req.PositionUSD)
			if err != nil {
				return domainError(c, err)
			}
			return c.JSON(http.StatusAccepted, trade)
		}
	}
	return jsonError(c, http.StatusConflict, "opportunity no longer available")
}

func (s *Server) handleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"cache":      s.store.Stats(),
		"operations": s.monitor.Ops(),
		"runtime":    s.monitor.Samples(time.Now().Add(-30 * time.Minute)),
		"uptime":     s.monitor.Uptime().Round(time.Second).String(),
	})
}

func jsonError(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]string{"error": msg})
}

// domainError maps domain sentinel errors onto HTTP statuses.
func domainError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, exchange.ErrUnsupportedSymbol), errors.Is(err, aggregate.ErrUnknownSymbol):
		return jsonError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, scanner.ErrNoData), errors.Is(err, aggregate.ErrNoQuotes):
		return jsonError(c, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, paper.ErrPositionTooLarge), errors.Is(err, paper.ErrInvalidPosition):
		return jsonError(c, http.StatusBadRequest, err.Error())
	default:
		logger.Error().Err(err).Str("path", c.Request().URL.Path).Msg("request failed")
		return jsonError(c, http.StatusInternalServerError, "internal error")
	}
}
