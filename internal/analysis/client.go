// Package analysis talks to the language model that reads clinical notes. It
// builds prompts, decodes the model's JSON into compliance findings, enforces
// the rule-based invariants on those findings and synthesises treatment goals.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"note-auditor/internal/config"
	"note-auditor/internal/logger"
	"note-auditor/internal/types"
)

// ChatModel is the part of an eino chat model the analyzer needs.
type ChatModel interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// NewChatModel creates an OpenAI-compatible chat model from cfg.
func NewChatModel(ctx context.Context, cfg *config.Config) (ChatModel, error) {
	mc := &openai.ChatModelConfig{
		Model:   cfg.OpenAIModel,
		APIKey:  cfg.OpenAIAPIKey,
		Timeout: cfg.RequestTimeout.Std(),
	}
	if cfg.OpenAIBaseURL != "" {
		mc.BaseURL = cfg.OpenAIBaseURL
	}

	cm, err := openai.NewChatModel(ctx, mc)
	if err != nil {
		logger.Error("failed to create chat model", err, logger.String("model", cfg.OpenAIModel))
		return nil, types.NewAppError(types.ErrConfig, "failed to create chat model", err)
	}
	logger.Debug("chat model ready",
		logger.String("model", cfg.OpenAIModel),
		logger.String("baseURL", cfg.OpenAIBaseURL))
	return cm, nil
}

// complete sends one system+user exchange and returns the reply text.
func complete(ctx context.Context, cm ChatModel, system, user string, temperature float32) (string, error) {
	msg, err := cm.Generate(ctx, []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(user),
	}, model.WithTemperature(temperature))
	if err != nil {
		return "", handleModelError(err)
	}
	if msg == nil || msg.Content == "" {
		return "", types.NewAppError(types.ErrAPICall, "model returned an empty response", nil)
	}
	return msg.Content, nil
}

var statusCodeRe = regexp.MustCompile(`status code:?\s*(\d{3})`)

// handleModelError maps a chat model failure onto an AppError.
func handleModelError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.NewAppError(types.ErrNetwork, "analysis request timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return types.NewAppError(types.ErrNetwork, "analysis request failed", err)
	}
	if m := statusCodeRe.FindStringSubmatch(err.Error()); m != nil {
		code, _ := strconv.Atoi(m[1])
		appErr := handleAPIHTTPError(code, []byte(err.Error())).(*types.AppError)
		appErr.Cause = err
		return appErr
	}
	return types.NewAppError(types.ErrAPICall, "analysis request failed", err)
}

// handleAPIHTTPError creates an appropriate AppError based on the HTTP status code and response body.
func handleAPIHTTPError(statusCode int, body []byte) error {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	details := string(body)
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		details = errResp.Error.Message
	}

	switch statusCode {
	case http.StatusUnauthorized:
		return types.NewAppErrorWithDetails(types.ErrAPICall, "API authentication failed",
			"invalid API key or unauthorized access", nil)
	case http.StatusTooManyRequests:
		return types.NewAppErrorWithDetails(types.ErrAPIRateLimit, "API rate limit exceeded", details, nil)
	case http.StatusBadRequest:
		return types.NewAppErrorWithDetails(types.ErrAPICall, "invalid API request", details, nil)
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return types.NewAppErrorWithDetails(types.ErrAPICall, "API server error",
			fmt.Sprintf("status %d: %s", statusCode, details), nil)
	default:
		return types.NewAppErrorWithDetails(types.ErrAPICall, "API request failed",
			fmt.Sprintf("status %d: %s", statusCode, details), nil)
	}
}

// IsRetryable reports whether an analysis error is worth retrying later.
func IsRetryable(err error) bool {
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		return false
	}
	switch appErr.Code {
	case types.ErrNetwork, types.ErrAPIRateLimit:
		return true
	case types.ErrAPICall:
		return strings.Contains(appErr.Details, "status 5")
	}
	return false
}
