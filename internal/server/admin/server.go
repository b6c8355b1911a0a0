package admin

import (
	"context"
	"net/http"
	"strconv"

	"model-api/apiconfig"
	"model-api/internal/server/middleware"
	"model-api/registration"
	"model-api/store"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

type Server struct {
	e             *echo.Echo
	registrar     *registration.Service
	store         *store.Store
	configManager *apiconfig.ConfigManager
}

func NewServer(
	registrar *registration.Service,
	st *store.Store,
	configManager *apiconfig.ConfigManager) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = middleware.ErrorHandler
	s := &Server{
		e:             e,
		registrar:     registrar,
		store:         st,
		configManager: configManager,
	}

	e.Use(middleware.LoggingMiddleware)
	g := e.Group("/admin/v1/")

	g.POST("models", s.registerModel)
	g.GET("models", s.getModels)
	g.GET("models/:id", s.getModel)
	g.POST("models/:id/activate", s.activateModel)
	g.POST("models/:id/deactivate", s.deactivateModel)
	g.GET("models/:id/metrics", s.getModelMetrics)

	// Return current config as JSON; secrets are stripped before encoding
	g.GET("config", s.getConfig)

	return s
}

func (s *Server) Start(addr string) {
	go func() {
		if err := s.e.Start(addr); err != nil && err != http.ErrServerClosed {
			s.e.Logger.Error(err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}

func (s *Server) registerModel(c echo.Context) error {
	var req registration.Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	result, err := s.registrar.RegisterModel(c.Request().Context(), req)
	if err != nil {
		return registrationError(err)
	}
	return c.JSON(http.StatusCreated, result)
}

// registrationError maps saga failures to HTTP statuses. Messages stay
// generic: wallet addresses and secret refs belong in the logs, not in API
// responses.
func registrationError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, registration.ErrInvalidRequest):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, registration.ErrTopicUnavailable):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, registration.ErrTreasuryUnavailable),
		errors.Is(err, registration.ErrFunding):
		return echo.NewHTTPError(http.StatusBadGateway, "registration could not be completed, no changes were made")
	case errors.Is(err, registration.ErrWorkerRegistration),
		errors.Is(err, registration.ErrModelNotPersisted):
		return echo.NewHTTPError(http.StatusInternalServerError, "registration failed after funding, contact the operator")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "registration failed")
	}
}

type modelResponse struct {
	Id           string  `json:"id"`
	UserId       string  `json:"user_id"`
	TopicId      uint64  `json:"topic_id"`
	WebhookUrl   string  `json:"webhook_url"`
	IsInferer    bool    `json:"is_inferer"`
	IsForecaster bool    `json:"is_forecaster"`
	MaxGasPrice  *string `json:"max_gas_price,omitempty"`
	Active       bool    `json:"active"`
}

func toModelResponse(m store.Model) modelResponse {
	return modelResponse{
		Id:           m.Id,
		UserId:       m.UserId,
		TopicId:      m.TopicId,
		WebhookUrl:   m.WebhookUrl,
		IsInferer:    m.IsInferer,
		IsForecaster: m.IsForecaster,
		MaxGasPrice:  m.MaxGasPrice,
		Active:       m.Active,
	}
}

func (s *Server) getModels(c echo.Context) error {
	models, err := s.store.ListModels(c.Request().Context())
	if err != nil {
		return err
	}
	out := make([]modelResponse, 0, len(models))
	for _, m := range models {
		out = append(out, toModelResponse(m))
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) getModel(c echo.Context) error {
	m, ok, err := s.store.GetModel(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "model not found")
	}
	return c.JSON(http.StatusOK, toModelResponse(m))
}

func (s *Server) activateModel(c echo.Context) error {
	return s.setModelActive(c, true)
}

func (s *Server) deactivateModel(c echo.Context) error {
	return s.setModelActive(c, false)
}

func (s *Server) setModelActive(c echo.Context, active bool) error {
	ok, err := s.store.SetModelActive(c.Request().Context(), c.Param("id"), active)
	if err != nil {
		return err
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "model not found")
	}
	return c.JSON(http.StatusOK, map[string]any{"id": c.Param("id"), "active": active})
}

func (s *Server) getModelMetrics(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	if _, ok, err := s.store.GetModel(ctx, id); err != nil {
		return err
	} else if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "model not found")
	}

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
		limit = parsed
	}

	samples, err := s.store.ListPerformanceMetrics(ctx, id, limit)
	if err != nil {
		return err
	}
	if samples == nil {
		samples = []store.PerformanceMetric{}
	}
	return c.JSON(http.StatusOK, samples)
}

func (s *Server) getConfig(c echo.Context) error {
	cfg := s.configManager.GetConfig()
	cfg.Secrets.Passphrase = ""
	return c.JSONPretty(http.StatusOK, cfg, "  ")
}
