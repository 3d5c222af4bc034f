// Package tts talks to the Gemini generateContent API: speech synthesis for prebuilt voices
// and multimodal analysis of captured reference clips.
package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/text"
	"golang.org/x/time/rate"
)

// API endpoints and paths.
const (
	DefaultBaseURL       = "https://generativelanguage.googleapis.com"
	DefaultSpeechModel   = "gemini-2.5-flash-preview-tts"
	DefaultAnalysisModel = "gemini-3-flash-preview"
	apiGenerateContent   = "/v1beta/models/%s:generateContent"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAPIKey      = "x-goog-api-key"
	contentTypeJSON   = "application/json"
)

// Default values.
const (
	DefaultTimeout           = 60 * time.Second
	DefaultRequestsPerMinute = 30
	modalityAudio            = "AUDIO"
	schemaTypeObject         = "OBJECT"
	schemaTypeString         = "STRING"
	analysisPrompt           = "Analyze this voice. Provide a short description (pitch, tone, etc.) " +
		"and identify if the speaker is Male or Female."
	fallbackDescription = "Standard neutral voice"
	maxErrorBodyBytes   = 4096
)

// Error messages.
const (
	errFmtServiceErrorWithCode = "gemini error (%s): %s (status: %s)"
	errFmtServiceNonOKStatus   = "gemini returned non-OK status: %s, body: %s"
)

var (
	// ErrAPIKeyRequired is returned when the client is built without credentials.
	ErrAPIKeyRequired = errors.New("api key is required")
	// ErrNoAudio is returned when a generation response carries no inline audio.
	ErrNoAudio = errors.New("no audio data returned")
	// ErrTextEmpty is returned for an empty generation request.
	ErrTextEmpty = errors.New("text cannot be empty")
	// ErrAudioEmpty is returned when analysing an empty clip.
	ErrAudioEmpty = errors.New("audio cannot be empty")
)

// ClientOptions configure a GeminiClient.
type ClientOptions struct {
	APIKey        string
	BaseURL       string
	SpeechModel   string
	AnalysisModel string
	Timeout       time.Duration
	// RequestsPerMinute bounds outgoing calls. Zero uses DefaultRequestsPerMinute, a negative
	// value disables limiting.
	RequestsPerMinute int
	HTTPClient        *http.Client
}

// GeminiClient implements core.SpeechGenerator and core.VoiceAnalyzer.
type GeminiClient struct {
	httpClient    *http.Client
	limiter       *rate.Limiter
	baseURL       string
	apiKey        string
	speechModel   string
	analysisModel string
}

var (
	_ core.SpeechGenerator = (*GeminiClient)(nil)
	_ core.VoiceAnalyzer   = (*GeminiClient)(nil)
)

// NewGeminiClient creates a client. Empty options fall back to the package defaults.
func NewGeminiClient(opts ClientOptions) (*GeminiClient, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, ErrAPIKeyRequired
	}

	client := &GeminiClient{
		httpClient:    opts.HTTPClient,
		baseURL:       strings.TrimRight(orDefault(opts.BaseURL, DefaultBaseURL), "/"),
		apiKey:        opts.APIKey,
		speechModel:   orDefault(opts.SpeechModel, DefaultSpeechModel),
		analysisModel: orDefault(opts.AnalysisModel, DefaultAnalysisModel),
	}

	if client.httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}

		client.httpClient = &http.Client{Timeout: timeout}
	}

	perMinute := opts.RequestsPerMinute
	if perMinute == 0 {
		perMinute = DefaultRequestsPerMinute
	}

	if perMinute > 0 {
		client.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	}

	return client, nil
}

// GenerateSpeech synthesizes req.Text with a prebuilt voice and returns the base64 encoded
// raw PCM payload exactly as the API delivered it. Every failure wraps core.ErrBackendFailure.
func (c *GeminiClient) GenerateSpeech(ctx context.Context, req core.SpeechRequest) (string, error) {
	if strings.TrimSpace(req.Text) == "" {
		return "", fmt.Errorf("%w: %w", core.ErrBackendFailure, ErrTextEmpty)
	}

	voice := req.Voice
	if voice == "" {
		voice = core.DefaultPreset().Voice
	}

	body := generateContentRequest{
		Contents: []content{{Parts: []part{{Text: text.StylePrompt(req.Style, req.Text)}}}},
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{modalityAudio},
			SpeechConfig: &speechConfig{
				VoiceConfig: voiceConfig{PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: string(voice)}},
			},
		},
	}

	resp, err := c.generateContent(ctx, c.speechModel, body)
	if err != nil {
		return "", err
	}

	inline := resp.firstPart().InlineData
	if inline == nil || inline.Data == "" {
		return "", fmt.Errorf("%w: %w", core.ErrBackendFailure, ErrNoAudio)
	}

	return inline.Data, nil
}

// AnalyzeVoice describes a captured clip. Transport and status failures wrap
// core.ErrBackendFailure; a response body that is not the expected JSON yields a neutral
// fallback analysis.
func (c *GeminiClient) AnalyzeVoice(ctx context.Context, audio []byte, mimeType string) (core.VoiceAnalysis, error) {
	if len(audio) == 0 {
		return core.VoiceAnalysis{}, fmt.Errorf("%w: %w", core.ErrBackendFailure, ErrAudioEmpty)
	}

	body := generateContentRequest{
		Contents: []content{{Parts: []part{
			{InlineData: &inlineData{MimeType: mimeType, Data: base64.StdEncoding.EncodeToString(audio)}},
			{Text: analysisPrompt},
		}}},
		GenerationConfig: &generationConfig{
			ResponseMimeType: contentTypeJSON,
			ResponseSchema: &schema{
				Type: schemaTypeObject,
				Properties: map[string]schema{
					"description": {Type: schemaTypeString},
					"gender": {Type: schemaTypeString, Enum: []string{
						string(core.GenderMale), string(core.GenderFemale), string(core.GenderNeutral),
					}},
				},
				Required: []string{"description", "gender"},
			},
		},
	}

	resp, err := c.generateContent(ctx, c.analysisModel, body)
	if err != nil {
		return core.VoiceAnalysis{}, err
	}

	return parseAnalysis(resp.firstPart().Text), nil
}

// FallbackAnalysis is used when the analysis response cannot be understood.
func FallbackAnalysis() core.VoiceAnalysis {
	return core.VoiceAnalysis{Description: fallbackDescription, Gender: core.GenderNeutral}
}

func parseAnalysis(raw string) core.VoiceAnalysis {
	var parsed struct {
		Description string `json:"description"`
		Gender      string `json:"gender"`
	}

	err := parseJSON([]byte(raw), &parsed)
	if err != nil || strings.TrimSpace(parsed.Description) == "" {
		return FallbackAnalysis()
	}

	return core.VoiceAnalysis{
		Description: strings.TrimSpace(parsed.Description),
		Gender:      core.ParseGender(parsed.Gender),
	}
}

func (c *GeminiClient) generateContent(
	ctx context.Context,
	model string,
	body generateContentRequest,
) (*generateContentResponse, error) {
	if c.limiter != nil {
		waitErr := c.limiter.Wait(ctx)
		if waitErr != nil {
			return nil, fmt.Errorf("%w: rate limiter: %w", core.ErrBackendFailure, waitErr)
		}
	}

	requestBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + fmt.Sprintf(apiGenerateContent, model)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAPIKey, c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to send request to %s: %w", core.ErrBackendFailure, c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %w", core.ErrBackendFailure, c.parseErrorResponse(resp))
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %w", core.ErrBackendFailure, err)
	}

	var decoded generateContentResponse

	err = parseJSON(payload, &decoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrBackendFailure, err)
	}

	return &decoded, nil
}

// parseErrorResponse attempts to decode a structured JSON error from the API.
// If structured parsing fails, it falls back to returning the raw response body.
func (c *GeminiClient) parseErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

	var errorResp apiErrorResponse

	err := json.Unmarshal(body, &errorResp)
	if err == nil && errorResp.Error.Message != "" {
		return fmt.Errorf(errFmtServiceErrorWithCode, resp.Status, errorResp.Error.Message, errorResp.Error.Status)
	}

	return fmt.Errorf(errFmtServiceNonOKStatus, resp.Status, strings.TrimSpace(string(body)))
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}

	return value
}
