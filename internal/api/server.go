package api

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/depointe/govforecast/internal/cache"
	"github.com/depointe/govforecast/internal/db"
	"github.com/depointe/govforecast/internal/forecast"
	"github.com/depointe/govforecast/internal/models"
	"github.com/depointe/govforecast/internal/scan"
)

// ScanRunner runs a batch LRAF scan. Satisfied by *forecast.Aggregator.
type ScanRunner interface {
	ScanAllLRAFs(ctx context.Context, scanType string) (models.ScanResult, error)
}

// RecompeteForecaster analyzes expiring contracts. Satisfied by
// *forecast.Analyzer.
type RecompeteForecaster interface {
	ForecastRecompetes(ctx context.Context, monthsAhead int) (models.ForecastAnalysis, error)
}

// ForecastStore is the persistence surface the handlers need.
type ForecastStore interface {
	SaveForecasts(ctx context.Context, opps []models.ForecastedOpportunity) error
	GetByAgency(ctx context.Context, agency string) ([]models.ForecastedOpportunity, error)
	GetWOSBEligible(ctx context.Context) ([]models.ForecastedOpportunity, error)
	Stats(ctx context.Context) (db.Stats, error)
}

// ReportCache stores the latest published forecast report.
type ReportCache interface {
	GetJSON(ctx context.Context, key string, dest any) error
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

const latestReportKey = "forecast:latest"

type Server struct {
	Echo       *echo.Echo
	Scanner    *scan.Scanner
	Aggregator ScanRunner
	Analyzer   RecompeteForecaster
	Store      ForecastStore
	Cache      ReportCache

	log zerolog.Logger
}

var (
	adminSecretOnce    sync.Once
	adminSecretRuntime string
	adminSecretErr     error
)

func NewServer(scanner *scan.Scanner, aggregator ScanRunner, analyzer RecompeteForecaster, store ForecastStore, reportCache ReportCache, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	allowedOrigins := []string{"http://localhost:4200"}
	if extra := os.Getenv("CORS_ORIGINS"); extra != "" {
		for _, o := range strings.Split(extra, ",") {
			o = strings.TrimSpace(o)
			if o != "" {
				allowedOrigins = append(allowedOrigins, o)
			}
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "X-Admin-Secret"},
	}))

	s := &Server{
		Echo:       e,
		Scanner:    scanner,
		Aggregator: aggregator,
		Analyzer:   analyzer,
		Store:      store,
		Cache:      reportCache,
		log:        logger.With().Str("component", "api").Logger(),
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.Echo.GET("/health", s.handleHealth)

	api := s.Echo.Group("/api/v1")
	api.GET("/stats", s.handleStats)
	api.GET("/forecasts", s.handleForecastsByAgency)
	api.GET("/forecasts/wosb", s.handleWOSBForecasts)
	api.GET("/forecast/latest", s.handleLatestForecast)
	api.GET("/forecast/scan", s.handleQuickScan)

	admin := api.Group("")
	admin.Use(s.adminMiddleware)
	admin.POST("/forecast/scan", s.handleForecastScan)
	admin.POST("/forecast/upload", s.handleForecastUpload)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// scanRequest is the POST /forecast/scan body.
type scanRequest struct {
	ScanType    string `json:"scanType"`
	MonthsAhead int    `json:"monthsAhead"`
}

// forecastEnvelope is the response for scan requests. Failures keep HTTP 200
// with success=false so browser clients get a uniform shape.
type forecastEnvelope struct {
	Success        bool           `json:"success"`
	DataSource     string         `json:"dataSource"`
	ForecastedAt   time.Time      `json:"forecastedAt"`
	ForecastPeriod string         `json:"forecastPeriod"`
	Sources        envelopeSource `json:"sources"`
	Forecast       envelopeBody   `json:"forecast"`
	Metadata       map[string]any `json:"metadata"`
	Error          string         `json:"error,omitempty"`
	Guidance       string         `json:"guidance,omitempty"`
}

type envelopeSource struct {
	LRAF                lrafSummary             `json:"lraf"`
	ContractExpirations models.ForecastAnalysis `json:"contractExpirations"`
}

type lrafSummary struct {
	SourcesScanned int      `json:"sourcesScanned"`
	ForecastsFound int      `json:"forecastsFound"`
	Errors         []string `json:"errors"`
}

type envelopeBody struct {
	Periods              []models.QuarterBucket         `json:"periods"`
	OpportunityForecasts []models.ForecastedOpportunity `json:"opportunityForecasts"`
	Summary              forecast.Summary               `json:"summary"`
}

func emptyEnvelope(period string, errMsg, guidance string) forecastEnvelope {
	return forecastEnvelope{
		Success:        false,
		DataSource:     "LRAF + Contract Expiration Analysis",
		ForecastedAt:   time.Now(),
		ForecastPeriod: period,
		Sources: envelopeSource{
			LRAF: lrafSummary{Errors: []string{}},
			ContractExpirations: models.ForecastAnalysis{
				ExpiringContracts: []models.ExpiringContract{},
			},
		},
		Forecast: envelopeBody{
			Periods:              []models.QuarterBucket{},
			OpportunityForecasts: []models.ForecastedOpportunity{},
		},
		Metadata: map[string]any{"forecastCount": 0},
		Error:    errMsg,
		Guidance: guidance,
	}
}

func (s *Server) handleForecastScan(c echo.Context) error {
	var req scanRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusOK, emptyEnvelope("", "invalid request body",
			"Send JSON with optional scanType and monthsAhead fields."))
	}
	return s.runForecast(c, req)
}

// handleQuickScan is the GET convenience wrapper: critical sources only.
func (s *Server) handleQuickScan(c echo.Context) error {
	return s.runForecast(c, scanRequest{ScanType: "critical"})
}

func (s *Server) runForecast(c echo.Context, req scanRequest) error {
	if req.MonthsAhead <= 0 {
		req.MonthsAhead = 12
	}
	ctx := c.Request().Context()
	period := fmt.Sprintf("%d months", req.MonthsAhead)

	scanResult, err := s.Aggregator.ScanAllLRAFs(ctx, req.ScanType)
	if err != nil {
		s.log.Error().Err(err).Msg("LRAF scan failed")
		return c.JSON(http.StatusOK, emptyEnvelope(period, err.Error(),
			"Scan results could not be saved. Create the forecasts table by running migrations and verify the database is reachable, then retry."))
	}

	analysis, err := s.Analyzer.ForecastRecompetes(ctx, req.MonthsAhead)
	if err != nil {
		s.log.Error().Err(err).Msg("recompete forecast failed")
		return c.JSON(http.StatusOK, emptyEnvelope(period, err.Error(),
			"Contract expiration analysis is unavailable. Verify the award data provider and database are reachable, then retry."))
	}

	merged := forecast.MergeAndSort(scanResult.Forecasts, analysis.ExpiringContracts)
	now := time.Now()

	envelope := forecastEnvelope{
		Success:        true,
		DataSource:     "LRAF + Contract Expiration Analysis",
		ForecastedAt:   now,
		ForecastPeriod: period,
		Sources: envelopeSource{
			LRAF: lrafSummary{
				SourcesScanned: scanResult.SourcesScanned,
				ForecastsFound: scanResult.TotalForecasts,
				Errors:         scanResult.Errors,
			},
			ContractExpirations: analysis,
		},
		Forecast: envelopeBody{
			Periods:              forecast.QuarterlyBreakdown(merged, req.MonthsAhead, now),
			OpportunityForecasts: merged,
			Summary:              forecast.Summarize(merged),
		},
		Metadata: map[string]any{
			"forecastCount": len(merged),
			"scanType":      req.ScanType,
			"monthsAhead":   req.MonthsAhead,
		},
	}

	if s.Cache != nil {
		if err := s.Cache.SetJSON(ctx, latestReportKey, envelope, 24*time.Hour); err != nil {
			s.log.Warn().Err(err).Msg("caching latest report failed")
		}
	}

	return c.JSON(http.StatusOK, envelope)
}

func (s *Server) handleLatestForecast(c echo.Context) error {
	if s.Cache == nil {
		return c.JSON(http.StatusOK, emptyEnvelope("", "report cache not configured",
			"Run POST /api/v1/forecast/scan to generate a forecast."))
	}

	var envelope forecastEnvelope
	err := s.Cache.GetJSON(c.Request().Context(), latestReportKey, &envelope)
	if errors.Is(err, cache.ErrMiss) {
		return c.JSON(http.StatusOK, emptyEnvelope("", "no forecast published yet",
			"Run POST /api/v1/forecast/scan to generate a forecast."))
	}
	if err != nil {
		return c.JSON(http.StatusOK, emptyEnvelope("", err.Error(),
			"The report cache is unreachable. Retry once Redis is available."))
	}

	return c.JSON(http.StatusOK, envelope)
}

func (s *Server) handleForecastUpload(c echo.Context) error {
	agency := strings.TrimSpace(c.FormValue("agency"))
	agencyCode := strings.TrimSpace(c.FormValue("agencyCode"))
	if agency == "" || agencyCode == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "agency and agencyCode are required"})
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "file is required"})
	}

	f, err := fileHeader.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "cannot open uploaded file"})
	}
	defer f.Close()

	content, err := io.ReadAll(io.LimitReader(f, 64*1024*1024))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "cannot read uploaded file"})
	}

	items, err := scan.ExtractForecastsFromPDF(content)
	if err != nil {
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": fmt.Sprintf("pdf extraction failed: %v", err)})
	}

	source := scan.Source{
		ID:         strings.ToLower(agencyCode) + "_upload",
		Agency:     agency,
		AgencyCode: strings.ToUpper(agencyCode),
		Strategy:   "upload",
	}
	opps := s.Scanner.MapItems(source, items)

	if len(opps) > 0 {
		if err := s.Store.SaveForecasts(c.Request().Context(), opps); err != nil {
			s.log.Error().Err(err).Msg("persisting uploaded forecasts failed")
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to persist forecasts"})
		}
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success":            true,
		"opportunitiesFound": len(opps),
		"fileName":           fileHeader.Filename,
	})
}

func (s *Server) handleForecastsByAgency(c echo.Context) error {
	agency := strings.TrimSpace(c.QueryParam("agency"))
	if agency == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "agency query parameter is required"})
	}

	opps, err := s.Store.GetByAgency(c.Request().Context(), agency)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if opps == nil {
		opps = []models.ForecastedOpportunity{}
	}

	return c.JSON(http.StatusOK, map[string]any{"agency": agency, "forecasts": opps, "count": len(opps)})
}

func (s *Server) handleWOSBForecasts(c echo.Context) error {
	opps, err := s.Store.GetWOSBEligible(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if opps == nil {
		opps = []models.ForecastedOpportunity{}
	}

	return c.JSON(http.StatusOK, map[string]any{"forecasts": opps, "count": len(opps)})
}

func (s *Server) handleStats(c echo.Context) error {
	stats, err := s.Store.Stats(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, stats)
}

func (s *Server) Start(port string) error {
	return s.Echo.Start(":" + port)
}

func (s *Server) adminMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		secret, err := adminSecret()
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Server admin configuration error"})
		}

		authHeader := c.Request().Header.Get("Authorization")
		adminHeader := c.Request().Header.Get("X-Admin-Secret")

		if adminHeader == secret {
			return next(c)
		}
		if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
			if authHeader[7:] == secret {
				return next(c)
			}
		}

		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized admin access"})
	}
}

func adminSecret() (string, error) {
	adminSecretOnce.Do(func() {
		secret := strings.TrimSpace(os.Getenv("ADMIN_SECRET"))
		if secret != "" {
			adminSecretRuntime = secret
			return
		}

		buf := make([]byte, 48)
		if _, err := rand.Read(buf); err != nil {
			adminSecretErr = fmt.Errorf("failed to generate ADMIN_SECRET fallback: %w", err)
			return
		}

		adminSecretRuntime = base64.RawURLEncoding.EncodeToString(buf)
	})

	if adminSecretErr != nil {
		return "", adminSecretErr
	}
	if adminSecretRuntime == "" {
		return "", fmt.Errorf("admin secret unavailable")
	}

	return adminSecretRuntime, nil
}
