package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"call-automation/internal/calls"
	"call-automation/internal/config"
	"call-automation/pkg/utils"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const temperature = 0.7

// OpenAIAnalyzer judges transcripts with a chat completion model.
type OpenAIAnalyzer struct {
	client openai.Client
	model  string
	log    *slog.Logger
}

var _ calls.Analyzer = (*OpenAIAnalyzer)(nil)

func NewOpenAIAnalyzer(cfg config.OpenAIConfig, log *slog.Logger, opts ...option.RequestOption) (*OpenAIAnalyzer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("analysis: openai api key is required")
	}
	if log == nil {
		log = slog.Default()
	}
	model := cfg.Model
	if model == "" {
		model = string(openai.ChatModelGPT4oMini)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		base := cfg.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		reqOpts = append(reqOpts, option.WithBaseURL(base))
	}
	if cfg.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(cfg.Timeout))
	}
	reqOpts = append(reqOpts, opts...)

	return &OpenAIAnalyzer{
		client: openai.NewClient(reqOpts...),
		model:  model,
		log:    log.With("component", "analysis", "model", model),
	}, nil
}

// Analyze never fails: transport errors and unusable answers yield Fallback().
func (a *OpenAIAnalyzer) Analyze(ctx context.Context, in calls.AnalysisInput) calls.Judgement {
	content, err := a.complete(ctx, in)
	if err != nil {
		a.log.Error("analysis request failed", "err", err)
		return Fallback()
	}
	j, err := parseJudgement(content, strings.TrimSpace(in.FunnelGoal) != "")
	if err != nil {
		a.log.Warn("analysis output rejected", "err", err, "content", utils.Truncate(content, 300))
		return Fallback()
	}
	return j
}

func (a *OpenAIAnalyzer) complete(ctx context.Context, in calls.AnalysisInput) (string, error) {
	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(buildPrompt(in)),
		},
		Model:       openai.ChatModel(a.model),
		Temperature: openai.Float(temperature),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", ErrMalformed)
	}
	return resp.Choices[0].Message.Content, nil
}
