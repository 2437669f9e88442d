// Package gemini adapts Google's generateContent wire format.
package gemini

import (
	"io"
	"net/http"
	"strings"

	"github.com/Laisky/errors/v2"
	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	"github.com/gateway/multiapi/relay/adaptor"
	"github.com/gateway/multiapi/relay/meta"
	"github.com/gateway/multiapi/relay/model"
)

// Adaptor implements adaptor.Adaptor for Google's Gemini API.
type Adaptor struct {
	adaptor.DefaultPricingMethods
	meta *meta.Meta
}

func (a *Adaptor) Init(m *meta.Meta) { a.meta = m }

func (a *Adaptor) GetChannelName() string { return "gemini" }

func (a *Adaptor) GetModelList() []string {
	return adaptor.GetModelListFromPricing(a.GetDefaultModelPricing())
}

func (a *Adaptor) GetRequestURL(m *meta.Meta) (string, error) {
	base := strings.TrimRight(m.BaseURL, "/")
	if base == "" {
		return "", errors.New("empty base url")
	}
	action := "generateContent"
	if m.IsStream {
		action = "streamGenerateContent?alt=sse"
	}
	return base + "/v1beta/models/" + m.ActualModelName + ":" + action, nil
}

func (a *Adaptor) SetupRequestHeader(c *gin.Context, req *http.Request, m *meta.Meta) error {
	adaptor.SetupCommonRequestHeader(c, req, m)
	req.Header.Set("x-goog-api-key", m.APIKey)
	return nil
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"system_instruction,omitempty"`
	GenerationConfig  struct {
		Temperature     *float64 `json:"temperature,omitempty"`
		TopP            *float64 `json:"topP,omitempty"`
		MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	} `json:"generationConfig"`
}

func (a *Adaptor) ConvertRequest(c *gin.Context, relayMode int, request *model.GeneralOpenAIRequest) (any, error) {
	if request == nil {
		return nil, errors.New("request is nil")
	}
	return convertMessages(request.Messages, request.Temperature, request.TopP, request.MaxTokens), nil
}

func (a *Adaptor) ConvertClaudeRequest(c *gin.Context, request *model.ClaudeRequest) (any, error) {
	if request == nil {
		return nil, errors.New("request is nil")
	}
	messages := request.Messages
	if sys, ok := request.System.(string); ok && sys != "" {
		messages = append([]model.Message{{Role: "system", Content: sys}}, messages...)
	}
	return convertMessages(messages, request.Temperature, request.TopP, request.MaxTokens), nil
}

func (a *Adaptor) ConvertImageRequest(c *gin.Context, request *model.ImageRequest) (any, error) {
	return nil, errors.New("image generation not supported by the Gemini adaptor")
}

func convertMessages(messages []model.Message, temperature, topP *float64, maxTokens int) *geminiRequest {
	req := &geminiRequest{}
	req.GenerationConfig.Temperature = temperature
	req.GenerationConfig.TopP = topP
	req.GenerationConfig.MaxOutputTokens = maxTokens

	for _, msg := range messages {
		role := "user"
		if msg.Role == "assistant" {
			role = "model"
		}

		var text strings.Builder
		for _, part := range msg.ParseContent() {
			if part.Type == "text" {
				text.WriteString(part.Text)
			}
		}

		if msg.Role == "system" {
			req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: text.String()}}}
			continue
		}
		req.Contents = append(req.Contents, geminiContent{Role: role, Parts: []geminiPart{{Text: text.String()}}})
	}
	return req
}

func (a *Adaptor) DoRequest(c *gin.Context, m *meta.Meta, requestBody io.Reader) (*http.Response, error) {
	return adaptor.DoRequestHelper(a, c, m, requestBody)
}

func (a *Adaptor) DoResponse(c *gin.Context, resp *http.Response, m *meta.Meta) (*model.Usage, *model.ErrorWithStatusCode) {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, wrapErr(errors.Wrap(err, "read response body"), http.StatusInternalServerError)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, wrapErr(errors.Errorf("upstream error: %s", string(body)), resp.StatusCode)
	}

	if m.IsStream {
		return a.relayStream(c, body)
	}

	c.Writer.Header().Set("Content-Type", "application/json")
	c.Writer.WriteHeader(http.StatusOK)
	_, _ = c.Writer.Write(body)

	return usageFromJSON(body), nil
}

// relayStream re-emits Gemini's server-sent chunks verbatim as SSE while
// accumulating usage metadata read cheaply with gjson instead of a full
// struct decode per chunk.
func (a *Adaptor) relayStream(c *gin.Context, body []byte) (*model.Usage, *model.ErrorWithStatusCode) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.WriteHeader(http.StatusOK)
	_, _ = c.Writer.Write(body)

	usage := &model.Usage{}
	for _, line := range strings.Split(string(body), "\n") {
		data := strings.TrimPrefix(strings.TrimSpace(line), "data:")
		if data == "" {
			continue
		}
		meta := gjson.Parse(data).Get("usageMetadata")
		if meta.Exists() {
			usage.PromptTokens = int(meta.Get("promptTokenCount").Int())
			usage.CompletionTokens = int(meta.Get("candidatesTokenCount").Int())
			usage.TotalTokens = int(meta.Get("totalTokenCount").Int())
		}
	}
	return usage, nil
}

func usageFromJSON(body []byte) *model.Usage {
	parsed := gjson.ParseBytes(body).Get("usageMetadata")
	return &model.Usage{
		PromptTokens:     int(parsed.Get("promptTokenCount").Int()),
		CompletionTokens: int(parsed.Get("candidatesTokenCount").Int()),
		TotalTokens:      int(parsed.Get("totalTokenCount").Int()),
	}
}

func wrapErr(err error, status int) *model.ErrorWithStatusCode {
	return &model.ErrorWithStatusCode{
		Error: model.Error{
			Message:  err.Error(),
			Type:     "upstream_error",
			RawError: err,
		},
		StatusCode: status,
	}
}
