package handlers

import (
	"encoding/json"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/upb/llm-gateway/middleware"
	"github.com/upb/llm-gateway/models"
	"github.com/upb/llm-gateway/services"
	"github.com/upb/llm-gateway/services/pipeline"
	"github.com/upb/llm-gateway/services/providers"
	"github.com/upb/llm-gateway/utils"
	"go.uber.org/zap"
)

// ChatHandler serves the governed chat completions endpoint.
type ChatHandler struct {
	pipeline *pipeline.Service
	logger   *zap.Logger
}

func NewChatHandler(p *pipeline.Service, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{pipeline: p, logger: logger}
}

// chatRequest is the inbound payload: an OpenAI-compatible completion
// request plus the governance contract.
type chatRequest struct {
	providers.ChatRequest
	Contract contractPayload `json:"contract"`
}

type contractPayload struct {
	Feature     string `json:"feature" validate:"required"`
	Action      string `json:"action"`
	Environment string `json:"environment" validate:"required,oneof=dev staging prod"`
	UserEmail   string `json:"user_email" validate:"omitempty,email"`
}

type chatResponse struct {
	*providers.ChatResponse
	Warnings []string                 `json:"warnings,omitempty"`
	Decision *pipeline.DecisionRecord `json:"decision,omitempty"`
}

// Completions handles POST /v1/chat/completions. X-Dry-Run runs every
// check without calling a provider; X-Debug attaches the decision trace.
func (h *ChatHandler) Completions(w http.ResponseWriter, r *http.Request) {
	app := middleware.ApplicationFrom(r.Context())

	var body chatRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.WriteDomainError(w, services.NewInputValidation("request body is not valid JSON", err))
		return
	}
	if body.Model == "" || len(body.Messages) == 0 {
		utils.WriteDomainError(w, services.NewInputValidation("model and messages are required", nil))
		return
	}
	if err := utils.ValidateStruct(body.Contract); err != nil {
		utils.WriteDomainError(w, services.NewInputValidation(err.Error(), nil))
		return
	}

	// Token-limit rules need a token count even when the client leaves
	// max_tokens unset; fall back to an estimate of the prompt itself.
	maxTokens := body.MaxTokens
	if maxTokens == 0 {
		maxTokens = pipeline.EstimateTokens(body.Model, body.Messages)
	}

	req := &pipeline.Request{
		RequestID: chimiddleware.GetReqID(r.Context()),
		App:       app,
		Chat:      &body.ChatRequest,
		DryRun:    r.Header.Get("X-Dry-Run") == "true",
		Debug:     r.Header.Get("X-Debug") == "true",
		Contract: &models.Contract{
			Feature:     body.Contract.Feature,
			Action:      body.Contract.Action,
			Environment: models.Environment(body.Contract.Environment),
			UserEmail:   body.Contract.UserEmail,
			Model:       body.Model,
			MaxTokens:   maxTokens,
		},
	}
	if app != nil {
		req.Contract.AppID = app.ID
	}

	ctx := r.Context()
	if key := r.Header.Get("X-Provider-Key"); key != "" {
		ctx = providers.WithKeyOverride(ctx, key)
	}

	if body.Stream && !req.DryRun {
		h.streamCompletions(w, r.WithContext(ctx), req)
		return
	}

	resp, dry, err := h.pipeline.Process(ctx, req)
	if err != nil {
		utils.WriteDomainError(w, err)
		return
	}
	if dry != nil {
		utils.WriteJSON(w, http.StatusOK, dry)
		return
	}
	utils.WriteJSON(w, http.StatusOK, &chatResponse{
		ChatResponse: resp.Chat,
		Warnings:     resp.Warnings,
		Decision:     resp.Decision,
	})
}

func (h *ChatHandler) streamCompletions(w http.ResponseWriter, r *http.Request, req *pipeline.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.WriteDomainError(w, services.NewInternalError("streaming unsupported by server", nil))
		return
	}

	headersSent := false
	sendHeaders := func() {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		headersSent = true
	}

	_, _, err := h.pipeline.ProcessStream(r.Context(), req, func(chunk *providers.ChatChunk) error {
		if !headersSent {
			sendHeaders()
		}
		payload, err := json.Marshal(chunk)
		if err != nil {
			return err
		}
		if _, err := w.Write([]byte("data: ")); err != nil {
			return err
		}
		if _, err := w.Write(payload); err != nil {
			return err
		}
		if _, err := w.Write([]byte("\n\n")); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		// Denials surface as a normal error response as long as no bytes
		// have gone out; mid-stream failures can only drop the connection.
		if !headersSent {
			utils.WriteDomainError(w, err)
			return
		}
		h.logger.Warn("stream aborted mid-flight", zap.Error(err))
		return
	}
	if !headersSent {
		sendHeaders()
	}
	w.Write([]byte("data: [DONE]\n\n"))
	flusher.Flush()
}
