package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lightnote/admission"
	"github.com/lightnote/admission/internal/ai"
)

// StrikeReader reports recent rejections of an identity.
type StrikeReader interface {
	Strikes(identity string) int64
}

type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type analyzeBody struct {
	Content string `json:"content"`
}

type rewriteBody struct {
	Text        string `json:"text"`
	Instruction string `json:"instruction"`
}

type handlers struct {
	limiter   *admission.Limiter
	generator ai.Generator
	strikes   StrikeReader
	logger    *zap.Logger
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) analyze(c *gin.Context) {
	var body analyzeBody
	if err := c.ShouldBindJSON(&body); err != nil || strings.TrimSpace(body.Content) == "" {
		c.JSON(http.StatusBadRequest, errorBody{Error: "content is required"})
		return
	}

	res, err := h.generator.Analyze(c.Request.Context(), ai.AnalyzeRequest{Content: body.Content})
	if err != nil {
		h.providerFailure(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "analysis": res.Analysis, "model": res.Model})
}

func (h *handlers) rewrite(c *gin.Context) {
	var body rewriteBody
	if err := c.ShouldBindJSON(&body); err != nil || strings.TrimSpace(body.Text) == "" {
		c.JSON(http.StatusBadRequest, errorBody{Error: "text is required"})
		return
	}

	res, err := h.generator.Rewrite(c.Request.Context(), ai.RewriteRequest{
		Text:        body.Text,
		Instruction: body.Instruction,
	})
	if err != nil {
		h.providerFailure(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "rewritten": res.Rewritten, "model": res.Model})
}

func (h *handlers) providerFailure(c *gin.Context, err error) {
	_ = c.Error(err)

	msg := "AI service is unavailable, please try again later"
	var perr *ai.ProviderError
	if errors.As(err, &perr) {
		h.logger.Warn("ai provider error", zap.Int("status", perr.StatusCode), zap.Error(err))
	} else {
		h.logger.Error("ai call failed", zap.Error(err))
	}
	c.JSON(http.StatusBadGateway, errorBody{Error: msg})
}

// status reports the caller's usage of every action without consuming any.
func (h *handlers) status(c *gin.Context) {
	identity := admission.Identity(c.Request)

	limits := make(map[admission.Action]admission.Status)
	for _, action := range h.limiter.Actions() {
		s, err := h.limiter.Status(c.Request.Context(), action, identity)
		if err != nil {
			_ = c.Error(err)
			continue
		}
		limits[action] = s
	}

	resp := gin.H{"success": true, "identity": identity, "limits": limits}
	if h.strikes != nil {
		resp["strikes"] = h.strikes.Strikes(identity)
	}
	c.JSON(http.StatusOK, resp)
}
