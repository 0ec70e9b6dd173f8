package api

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/satriahrh/aidoctor/domain"
	"github.com/satriahrh/aidoctor/domain/entities"
	"github.com/satriahrh/aidoctor/internal/auth"
	"github.com/satriahrh/aidoctor/internal/websocket"
	"github.com/satriahrh/aidoctor/usecase"
)

const (
	sessionIDKey       = "session_id"
	defaultMaxUpload   = 20 << 20
	defaultHistorySize = 20
)

// Handler serves the consultation wizard API
type Handler struct {
	service   *usecase.ConsultationService
	issuer    *auth.TokenIssuer
	hub       *websocket.Hub
	gatherer  prometheus.Gatherer
	maxUpload int64
	logger    *zap.Logger
}

// NewHandler creates the API handler. gatherer may be nil to skip /metrics.
func NewHandler(service *usecase.ConsultationService, issuer *auth.TokenIssuer, hub *websocket.Hub, gatherer prometheus.Gatherer, maxUpload int64, logger *zap.Logger) *Handler {
	if maxUpload <= 0 {
		maxUpload = defaultMaxUpload
	}
	return &Handler{
		service:   service,
		issuer:    issuer,
		hub:       hub,
		gatherer:  gatherer,
		maxUpload: maxUpload,
		logger:    logger,
	}
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, h *Handler) {
	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "aidoctor",
		})
	})
	if h.gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
	}

	// API v1 routes
	v1 := e.Group("/api/v1")
	v1.GET("/catalog", h.getCatalog)
	v1.POST("/consultations", h.createConsultation)

	// Every consultation route needs the token issued for that session
	consultation := v1.Group("/consultations/:id", h.requireSession)
	consultation.GET("", h.getConsultation)
	consultation.PUT("/persona", h.setPersona)
	consultation.PUT("/language", h.setLanguage)
	consultation.PUT("/image", h.attachImage)
	consultation.DELETE("/image", h.detachImage)
	consultation.PUT("/audio", h.attachAudio)
	consultation.DELETE("/audio", h.detachAudio)
	consultation.PUT("/text", h.setText)
	consultation.POST("/analyze", h.analyze)
	consultation.GET("/result", h.getResult)
	consultation.GET("/result/audio", h.getResultAudio)
	consultation.GET("/report", h.getReport)
	consultation.GET("/history", h.getHistory)
	consultation.POST("/reset", h.reset)

	// WebSocket endpoint for progress events
	if h.hub != nil {
		e.GET("/ws/consultations/:id", h.websocketWithAuth, h.requireSession)
	}
}

// requireSession validates the bearer token (or ?token= for websockets) and
// checks that it was issued for the session in the path
func (h *Handler) requireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		var token string
		authHeader := c.Request().Header.Get("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		}
		if token == "" {
			token = c.QueryParam("token")
		}

		if token == "" {
			return c.JSON(http.StatusUnauthorized, ErrorResponse{
				Error:   "missing_token",
				Message: "JWT token is required in Authorization header",
			})
		}

		claims, err := h.issuer.ValidateToken(token)
		if err != nil {
			h.logger.Warn("Request rejected: invalid token", zap.Error(err))
			return c.JSON(http.StatusUnauthorized, ErrorResponse{
				Error:   "invalid_token",
				Message: "Invalid or expired JWT token",
			})
		}

		if claims.SessionID != c.Param("id") {
			h.logger.Warn("Request rejected: token issued for another session",
				zap.String("tokenSession", claims.SessionID),
				zap.String("pathSession", c.Param("id")))
			return c.JSON(http.StatusForbidden, ErrorResponse{
				Error:   "session_mismatch",
				Message: "Token does not grant access to this consultation",
			})
		}

		c.Set(sessionIDKey, claims.SessionID)
		return next(c)
	}
}

func sessionID(c echo.Context) string {
	if id, ok := c.Get(sessionIDKey).(string); ok {
		return id
	}
	return c.Param("id")
}

func (h *Handler) getCatalog(c echo.Context) error {
	catalog := h.service.Catalog()
	language := entities.LanguageCode(c.QueryParam("lang"))
	if language == "" {
		language = catalog.DefaultLanguage().Code
	}
	if _, ok := catalog.Language(language); !ok {
		return respondError(c, h.logger, fmt.Errorf("%w: language %q", domain.ErrUnsupportedOption, language))
	}

	return c.JSON(http.StatusOK, CatalogResponse{
		Language:  language,
		Personas:  catalog.Personas(),
		Languages: catalog.Languages(),
		Labels:    catalog.Labels(language),
	})
}

func (h *Handler) createConsultation(c echo.Context) error {
	var req CreateConsultationRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			h.logger.Error("Failed to bind consultation request", zap.Error(err))
			return c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_request",
				Message: "Invalid request format",
			})
		}
	}

	ctx := c.Request().Context()
	session, err := h.service.CreateSession(ctx, req.Persona, req.Language)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	token, expiresAt, err := h.issuer.GenerateSessionToken(session.ID)
	if err != nil {
		h.logger.Error("Failed to generate session token",
			zap.String("sessionID", session.ID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate authentication token",
		})
	}

	return c.JSON(http.StatusCreated, CreateConsultationResponse{
		SessionID: session.ID,
		Token:     token,
		ExpiresAt: expiresAt,
		Session:   session,
	})
}

func (h *Handler) getConsultation(c echo.Context) error {
	session, err := h.service.GetSession(c.Request().Context(), sessionID(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, session)
}

// respondSession renders the outcome of a session mutation
func (h *Handler) respondSession(c echo.Context, session *entities.Session, err error) error {
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, session)
}

func (h *Handler) setPersona(c echo.Context) error {
	var req PersonaRequest
	if err := c.Bind(&req); err != nil || req.Persona == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: "persona is required"})
	}
	session, err := h.service.SetPersona(c.Request().Context(), sessionID(c), req.Persona)
	return h.respondSession(c, session, err)
}

func (h *Handler) setLanguage(c echo.Context) error {
	var req LanguageRequest
	if err := c.Bind(&req); err != nil || req.Language == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: "language is required"})
	}
	session, err := h.service.SetLanguage(c.Request().Context(), sessionID(c), req.Language)
	return h.respondSession(c, session, err)
}

func (h *Handler) setText(c echo.Context) error {
	var req TextRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: "Invalid request format"})
	}
	session, err := h.service.SetText(c.Request().Context(), sessionID(c), req.Text)
	return h.respondSession(c, session, err)
}

// readUpload reads a multipart file field, bounded by the upload limit
func (h *Handler) readUpload(c echo.Context, field string) ([]byte, string, error) {
	header, err := c.FormFile(field)
	if err != nil {
		return nil, "", fmt.Errorf("%w: multipart field %q is required", domain.ErrUnsupportedMedia, field)
	}
	if header.Size > h.maxUpload {
		return nil, "", fmt.Errorf("%w: file exceeds %d bytes", domain.ErrUnsupportedMedia, h.maxUpload)
	}
	data, err := readFormFile(header, h.maxUpload)
	if err != nil {
		return nil, "", err
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}
	return data, mimeType, nil
}

func readFormFile(header *multipart.FileHeader, limit int64) ([]byte, error) {
	file, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: file exceeds %d bytes", domain.ErrUnsupportedMedia, limit)
	}
	return data, nil
}

func (h *Handler) attachImage(c echo.Context) error {
	data, _, err := h.readUpload(c, "image")
	if err != nil {
		return respondError(c, h.logger, err)
	}
	session, err := h.service.AttachImage(c.Request().Context(), sessionID(c), data)
	return h.respondSession(c, session, err)
}

func (h *Handler) detachImage(c echo.Context) error {
	session, err := h.service.DetachImage(c.Request().Context(), sessionID(c))
	return h.respondSession(c, session, err)
}

func (h *Handler) attachAudio(c echo.Context) error {
	data, mimeType, err := h.readUpload(c, "audio")
	if err != nil {
		return respondError(c, h.logger, err)
	}
	session, err := h.service.AttachAudio(c.Request().Context(), sessionID(c), data, mimeType)
	return h.respondSession(c, session, err)
}

func (h *Handler) detachAudio(c echo.Context) error {
	session, err := h.service.DetachAudio(c.Request().Context(), sessionID(c))
	return h.respondSession(c, session, err)
}

func (h *Handler) analyze(c echo.Context) error {
	id := sessionID(c)
	result, err := h.service.Consult(c.Request().Context(), id)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, resultResponse(id, result))
}

func resultResponse(id string, result *entities.ConsultationResult) ResultResponse {
	base := "/api/v1/consultations/" + id
	resp := ResultResponse{
		ConsultationResult: result,
		ReportURL:          base + "/report",
	}
	if result.HasAudio {
		resp.AudioURL = base + "/result/audio"
	}
	return resp
}

func (h *Handler) getResult(c echo.Context) error {
	id := sessionID(c)
	result, err := h.service.Result(c.Request().Context(), id)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, resultResponse(id, result))
}

func (h *Handler) getResultAudio(c echo.Context) error {
	audio, err := h.service.ResultAudio(c.Request().Context(), sessionID(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.Blob(http.StatusOK, "audio/mpeg", audio)
}

func (h *Handler) getReport(c echo.Context) error {
	report, err := h.service.Report(c.Request().Context(), sessionID(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", report.FileName))
	return c.Blob(http.StatusOK, "text/plain; charset=utf-8", []byte(report.Content))
}

func (h *Handler) getHistory(c echo.Context) error {
	limit := defaultHistorySize
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: "limit must be a positive integer"})
		}
		limit = n
	}

	results, err := h.service.History(c.Request().Context(), sessionID(c), limit)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	if results == nil {
		results = []*entities.ConsultationResult{}
	}
	return c.JSON(http.StatusOK, HistoryResponse{Consultations: results})
}

func (h *Handler) reset(c echo.Context) error {
	session, err := h.service.Reset(c.Request().Context(), sessionID(c))
	return h.respondSession(c, session, err)
}

// websocketWithAuth streams progress events of an authorized session
func (h *Handler) websocketWithAuth(c echo.Context) error {
	id := sessionID(c)
	if _, err := h.service.GetSession(c.Request().Context(), id); err != nil {
		return respondError(c, h.logger, err)
	}

	h.logger.Info("WebSocket connection authenticated", zap.String("sessionID", id))
	return websocket.HandleWebSocketWithAuth(h.hub, c, id, h.logger)
}
