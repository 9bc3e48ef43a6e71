package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"imagegate/internal/pipeline"
	"imagegate/internal/storage"
)

type regenerateBody struct {
	RequestID  *string `json:"requestId"`
	ProviderID string  `json:"providerId"`
}

type generateBody struct {
	Platform      string   `json:"platform"`
	Category      string   `json:"category"`
	Aspect        string   `json:"aspect"`
	Mode          string   `json:"mode"`
	Energy        string   `json:"energy"`
	TextAllowance string   `json:"textAllowance"`
	Industry      string   `json:"industry"`
	Vibe          string   `json:"vibe"`
	NegativeRules []string `json:"negativeRules"`
	BusinessName  string   `json:"businessName"`
	UserText      string   `json:"userText"`
	ProviderID    string   `json:"providerId"`
	ModelTier     string   `json:"modelTier"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) regenerate(c *gin.Context) {
	var body regenerateBody
	if err := c.ShouldBindJSON(&body); err != nil || body.RequestID == nil {
		c.JSON(http.StatusOK, errorCodeResponse(pipeline.CodeMissingRequestID))
		return
	}

	out := s.engine.Regenerate(c.Request.Context(), pipeline.RegenerateRequest{
		RequestID:        *body.RequestID,
		ProviderOverride: body.ProviderID,
	})
	c.JSON(http.StatusOK, fromOutcome(out, false))
}

func (s *Server) generate(c *gin.Context) {
	var body generateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusOK, errorCodeResponse(CodeInvalidRequest))
		return
	}

	out := s.engine.Generate(c.Request.Context(), pipeline.GenerateRequest{
		Platform:      body.Platform,
		Category:      body.Category,
		Aspect:        body.Aspect,
		Mode:          body.Mode,
		Energy:        body.Energy,
		TextAllowance: body.TextAllowance,
		Industry:      body.Industry,
		Vibe:          body.Vibe,
		NegativeRules: body.NegativeRules,
		BusinessName:  body.BusinessName,
		UserText:      body.UserText,
		ProviderID:    body.ProviderID,
		ModelTier:     body.ModelTier,
	})
	c.JSON(http.StatusOK, fromOutcome(out, true))
}

func (s *Server) getRequest(c *gin.Context) {
	requestID := c.Param("requestId")
	limit, _ := strconv.Atoi(c.Query("limit"))

	rec, events, err := s.engine.Lookup(c.Request.Context(), requestID, limit)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusOK, errorCodeResponse(pipeline.CodeNotFound))
			return
		}
		s.logger.Error().Err(err).Str("request_id", requestID).Msg("lookup failed")
		c.JSON(http.StatusOK, errorCodeResponse(CodeInternal))
		return
	}
	if events == nil {
		events = []storage.EngineEvent{}
	}
	c.JSON(http.StatusOK, lookupResponse{OK: true, Request: newRequestView(rec), Events: events})
}
