package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"call-automation/internal/config"
	"call-automation/pkg/utils"

	"golang.org/x/time/rate"
)

// ScenarioCredentials are forwarded to the VoxEngine scenario, which talks to the
// speech providers directly.
type ScenarioCredentials struct {
	OpenAIAPIKey      string
	ElevenLabsAPIKey  string
	ElevenLabsAgentID string
	YandexAPIKey      string
	YandexFolderID    string
}

// ScenarioData is serialized into script_custom_data. Field names are read by the
// scenario script and must not change.
type ScenarioData struct {
	CallID          string `json:"call_id"`
	WebhookURL      string `json:"webhook_url"`
	Phone           string `json:"phone"`
	CallerID        string `json:"caller_id"`
	Language        string `json:"language"`
	TTSProvider     string `json:"tts_provider"`
	Voice           string `json:"voice"`
	GreetingMessage string `json:"greeting_message"`
	Prompt          string `json:"prompt"`
	FunnelGoal      string `json:"funnel_goal"`

	OpenAIAPIKey      string `json:"openai_api_key"`
	ElevenLabsAPIKey  string `json:"elevenlabs_api_key"`
	ElevenLabsAgentID string `json:"elevenlabs_agent_id"`
	YandexAPIKey      string `json:"yandex_api_key"`
	YandexFolderID    string `json:"yandex_folder_id"`

	Stability       *float64 `json:"stability"`
	Speed           *float64 `json:"speed"`
	SimilarityBoost *float64 `json:"similarity_boost"`
}

// VoximplantGateway starts outbound calls through the Voximplant Management API
// (StartScenarios on a routing rule).
type VoximplantGateway struct {
	cfg     config.VoximplantConfig
	creds   ScenarioCredentials
	http    *http.Client
	limiter *rate.Limiter
	log     *slog.Logger
}

func NewVoximplantGateway(cfg config.VoximplantConfig, creds ScenarioCredentials, log *slog.Logger) (*VoximplantGateway, error) {
	if !cfg.Enabled() {
		return nil, ErrNotConfigured
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("telephony: voximplant base url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	perSec := cfg.RatePerSecond
	if perSec <= 0 {
		perSec = 5
	}
	burst := int(perSec)
	if burst < 1 {
		burst = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &VoximplantGateway{
		cfg:     cfg,
		creds:   creds,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(perSec), burst),
		log:     log.With("provider", "voximplant"),
	}, nil
}

func (g *VoximplantGateway) Name() string { return "voximplant" }

func (g *VoximplantGateway) StartCall(ctx context.Context, req StartCallRequest) (StartCallResult, error) {
	if req.CallID == "" || req.Phone == "" {
		return StartCallResult{}, fmt.Errorf("%w: call_id and phone are required", ErrRejected)
	}

	data := ScenarioData{
		CallID:            req.CallID,
		WebhookURL:        g.cfg.WebhookURL,
		Phone:             req.Phone,
		CallerID:          g.cfg.CallerID,
		Language:          req.Language,
		TTSProvider:       req.TTSProvider,
		Voice:             req.Voice,
		GreetingMessage:   req.GreetingMessage,
		Prompt:            req.Prompt,
		FunnelGoal:        req.FunnelGoal,
		OpenAIAPIKey:      g.creds.OpenAIAPIKey,
		ElevenLabsAPIKey:  g.creds.ElevenLabsAPIKey,
		ElevenLabsAgentID: g.creds.ElevenLabsAgentID,
		YandexAPIKey:      g.creds.YandexAPIKey,
		YandexFolderID:    g.creds.YandexFolderID,
		Stability:         req.Stability,
		Speed:             req.Speed,
		SimilarityBoost:   req.SimilarityBoost,
	}
	custom, err := json.Marshal(data)
	if err != nil {
		return StartCallResult{}, fmt.Errorf("%w: encode scenario data: %v", ErrProvider, err)
	}

	form := url.Values{}
	form.Set("account_id", g.cfg.AccountID)
	form.Set("api_key", g.cfg.APIKey)
	form.Set("rule_id", g.cfg.RuleID)
	form.Set("script_custom_data", string(custom))

	var out startScenariosResponse
	if err := g.post(ctx, "StartScenarios", form, &out); err != nil {
		return StartCallResult{}, err
	}
	if !out.Result.True() {
		msg := "no result"
		if out.Error != nil {
			msg = fmt.Sprintf("code %d: %s", out.Error.Code, out.Error.Msg)
		}
		return StartCallResult{}, fmt.Errorf("%w: %s", ErrRejected, msg)
	}

	g.log.Info("scenario started", "call_id", req.CallID, "tts_provider", req.TTSProvider)
	return StartCallResult{SessionID: out.MediaSessionAccessURL}, nil
}

func (g *VoximplantGateway) CallHistory(ctx context.Context, sessionID string) (CallHistory, error) {
	if sessionID == "" {
		return CallHistory{}, fmt.Errorf("%w: session id is required", ErrRejected)
	}
	form := url.Values{}
	form.Set("account_id", g.cfg.AccountID)
	form.Set("api_key", g.cfg.APIKey)
	form.Set("call_session_history_id", sessionID)

	var out callHistoryResponse
	if err := g.post(ctx, "GetCallHistory", form, &out); err != nil {
		return CallHistory{}, err
	}
	if out.Error != nil {
		return CallHistory{}, fmt.Errorf("%w: code %d: %s", ErrRejected, out.Error.Code, out.Error.Msg)
	}
	return CallHistory{SessionID: sessionID, TotalCount: out.TotalCount, Records: out.Result}, nil
}

// post sends a form-encoded Management API request and decodes the JSON body into out.
func (g *VoximplantGateway) post(ctx context.Context, method string, form url.Values, out any) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %s: rate limit wait: %v", ErrProvider, method, err)
	}

	endpoint := strings.TrimRight(g.cfg.BaseURL, "/") + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrProvider, method, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrProvider, method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %s: read body: %v", ErrProvider, method, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s: http %d: %s", ErrProvider, method, resp.StatusCode, utils.Truncate(string(body), 256))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %s: decode: %v", ErrProvider, method, err)
	}
	return nil
}

type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

type startScenariosResponse struct {
	Result                truthy    `json:"result"`
	MediaSessionAccessURL string    `json:"media_session_access_url"`
	Error                 *apiError `json:"error"`
}

type callHistoryResponse struct {
	Result     []json.RawMessage `json:"result"`
	TotalCount int               `json:"total_count"`
	Error      *apiError         `json:"error"`
}

// truthy accepts the mixed 1/true/"1" encodings the API uses for result flags.
type truthy json.RawMessage

func (t *truthy) UnmarshalJSON(b []byte) error {
	*t = append((*t)[:0], b...)
	return nil
}

func (t truthy) True() bool {
	v := bytes.TrimSpace(t)
	switch string(v) {
	case "", "null", "false", "0", `""`, `"0"`, `"false"`:
		return false
	}
	return true
}

