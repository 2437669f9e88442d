// Package dataplane is the client-facing HTTP surface: the canonical
// chat-completions endpoint clients actually call, translated into an
// internal/canonical.Request and handed to internal/dispatch.Pipeline.
// Embeddings, image, STT, and TTS share the same auth/error envelope but
// are not yet wired to a dispatch path.
package dataplane

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	gmw "github.com/Laisky/gin-middlewares/v6"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	gwimage "github.com/gateway/multiapi/common/image"
	"github.com/gateway/multiapi/internal/canonical"
	"github.com/gateway/multiapi/internal/dispatch"
	"github.com/gateway/multiapi/internal/quota"
	"github.com/gateway/multiapi/internal/streaminghub"
	"github.com/gateway/multiapi/middleware"
	relaymodel "github.com/gateway/multiapi/relay/model"
)

// Server binds the dispatch pipeline to the client-facing routes.
type Server struct {
	Pipeline *dispatch.Pipeline
}

// Register mounts every data-plane route onto engine, behind TenantAuth.
func (s *Server) Register(engine *gin.Engine) {
	grp := engine.Group("/api/v1/ai", middleware.TenantAuth())
	grp.POST("/chat/completions", s.chatCompletions)
	grp.POST("/embeddings", s.notImplemented)
	grp.POST("/images/generations", s.notImplemented)
	grp.POST("/audio/transcriptions", s.notImplemented)
	grp.POST("/audio/speech", s.notImplemented)

	engine.POST("/v1/messages", middleware.TenantAuth(), s.claudeMessages)
}

// errorBody is the taxonomy-coded shape every client-visible failure
// uses; Window and RetryAfter are only populated for quota.exceeded.
type errorBody struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Window     string `json:"window,omitempty"`
	RetryAfter int64  `json:"retryAfter,omitempty"`
}

func writeError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{"error": errorBody{Code: code, Message: message}})
}

// writeQuotaError surfaces a retryAfter hint alongside the usual envelope,
// also set as a Retry-After header so standard HTTP clients can back off
// without parsing the body.
func writeQuotaError(c *gin.Context, code, message, window string, retryAfterSeconds int64) {
	if retryAfterSeconds > 0 {
		c.Writer.Header().Set("Retry-After", strconv.FormatInt(retryAfterSeconds, 10))
	}
	c.JSON(http.StatusTooManyRequests, gin.H{"error": errorBody{
		Code:       code,
		Message:    message,
		Window:     window,
		RetryAfter: retryAfterSeconds,
	}})
}

// validateImages rejects remote image references that fail a content-type
// or size check up front, before the request is ever dispatched upstream;
// inline data: URLs are left for the adaptor to decode as-is.
func validateImages(messages []relaymodel.Message) error {
	for _, msg := range messages {
		for _, part := range msg.ParseContent() {
			if part.Type != "image_url" || part.ImageURL == nil {
				continue
			}
			url := part.ImageURL.URL
			if url == "" || strings.HasPrefix(url, "data:") {
				continue
			}
			if _, err := gwimage.IsImageUrl(url); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Server) chatCompletions(c *gin.Context) {
	tenantKey := middleware.GetTenantKey(c)
	if tenantKey == nil {
		writeError(c, http.StatusUnauthorized, "auth.missing", "no tenant key resolved")
		return
	}

	var body relaymodel.GeneralOpenAIRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "validation.invalid", err.Error())
		return
	}
	if body.Model == "" {
		writeError(c, http.StatusBadRequest, "validation.invalid", "model is required")
		return
	}
	if !tenantKey.IsModelAllowed(body.Model) {
		writeError(c, http.StatusForbidden, "permission.denied", "model not allowed for this key")
		return
	}
	if err := validateImages(body.Messages); err != nil {
		writeError(c, http.StatusBadRequest, "validation.invalid", err.Error())
		return
	}

	req := &canonical.Request{
		TenantID:    tenantKey.TenantID,
		TenantKeyId: tenantKey.Id,
		Model:       body.Model,
		Messages:    body.Messages,
		MaxTokens:   body.MaxTokens,
		Temperature: body.Temperature,
		Stream:      body.Stream,
		Raw:         &body,
		Wire:        "openai",
	}

	outcome := s.Pipeline.Dispatch(c, tenantKey, req)
	if outcome.Err != nil {
		writeDispatchError(c, outcome)
		return
	}

	// Fresh responses have already been written directly to c.Writer by the
	// selected adaptor, and Dispatch writes cache hits itself; outcome.Body
	// is written here only if nothing has reached c.Writer yet.
	if len(outcome.Body) > 0 && !c.Writer.Written() {
		if outcome.ContentType != "" {
			c.Writer.Header().Set("Content-Type", outcome.ContentType)
		}
		c.Writer.WriteHeader(outcome.StatusCode)
		_, _ = c.Writer.Write(outcome.Body)
	}
}

func (s *Server) claudeMessages(c *gin.Context) {
	tenantKey := middleware.GetTenantKey(c)
	if tenantKey == nil {
		writeError(c, http.StatusUnauthorized, "auth.missing", "no tenant key resolved")
		return
	}

	var body relaymodel.ClaudeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "validation.invalid", err.Error())
		return
	}
	if body.Model == "" {
		writeError(c, http.StatusBadRequest, "validation.invalid", "model is required")
		return
	}
	if !tenantKey.IsModelAllowed(body.Model) {
		writeError(c, http.StatusForbidden, "permission.denied", "model not allowed for this key")
		return
	}
	if err := validateImages(body.Messages); err != nil {
		writeError(c, http.StatusBadRequest, "validation.invalid", err.Error())
		return
	}

	req := &canonical.Request{
		TenantID:    tenantKey.TenantID,
		TenantKeyId: tenantKey.Id,
		Model:       body.Model,
		Messages:    body.Messages,
		MaxTokens:   body.MaxTokens,
		Temperature: body.Temperature,
		Stream:      body.Stream,
		Raw:         &body,
		Wire:        "claude",
	}

	outcome := s.Pipeline.Dispatch(c, tenantKey, req)
	if outcome.Err != nil {
		writeDispatchError(c, outcome)
		return
	}
	if len(outcome.Body) > 0 && !c.Writer.Written() {
		if outcome.ContentType != "" {
			c.Writer.Header().Set("Content-Type", outcome.ContentType)
		}
		c.Writer.WriteHeader(outcome.StatusCode)
		_, _ = c.Writer.Write(outcome.Body)
	}
}

// notImplemented covers the embeddings/image/STT/TTS surface spec.md notes
// as following the same envelope as chat completions; no provider family
// wired to these kinds has a dispatch path yet.
func (s *Server) notImplemented(c *gin.Context) {
	writeError(c, http.StatusNotImplemented, "internal.unexpected", "this operation is not yet wired to a provider")
}

func writeDispatchError(c *gin.Context, outcome dispatch.Outcome) {
	lg := gmw.GetLogger(c)
	lg.Warn("dispatch failed", zap.Error(outcome.Err))

	var qe *quota.QuotaExceeded
	if errors.As(outcome.Err, &qe) {
		retryAfter := int64(qe.RetryAfter.Round(time.Second) / time.Second)
		if retryAfter < 0 {
			retryAfter = 0
		}
		writeQuotaError(c, "quota.exceeded", qe.Error(), qe.Window, retryAfter)
		return
	}

	switch {
	case errors.Is(outcome.Err, quota.ErrQuotaExhausted), errors.Is(outcome.Err, quota.ErrRateLimited):
		writeError(c, http.StatusTooManyRequests, "quota.exceeded", outcome.Err.Error())
	case errors.Is(outcome.Err, streaminghub.ErrTenantStreamLimitExceeded):
		writeError(c, http.StatusTooManyRequests, "quota.exceeded", outcome.Err.Error())
	default:
		status := outcome.StatusCode
		if status == 0 {
			status = http.StatusBadGateway
		}
		code := "upstream.unavailable"
		switch {
		case status >= 400 && status < 500:
			code = "upstream.client_error"
		case status >= 500:
			code = "upstream.server_error"
		}
		writeError(c, status, code, outcome.Err.Error())
	}
}
