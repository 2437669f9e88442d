// Package anthropic adapts Anthropic's native /v1/messages wire format.
package anthropic

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/Laisky/errors/v2"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/gin-gonic/gin"

	"github.com/gateway/multiapi/relay/adaptor"
	"github.com/gateway/multiapi/relay/meta"
	"github.com/gateway/multiapi/relay/model"
)

const anthropicVersion = "2023-06-01"

// Adaptor implements adaptor.Adaptor for the Anthropic Messages API.
type Adaptor struct {
	adaptor.DefaultPricingMethods
	meta *meta.Meta
}

func (a *Adaptor) Init(m *meta.Meta) { a.meta = m }

func (a *Adaptor) GetChannelName() string { return "anthropic" }

func (a *Adaptor) GetModelList() []string {
	return adaptor.GetModelListFromPricing(a.GetDefaultModelPricing())
}

func (a *Adaptor) GetRequestURL(m *meta.Meta) (string, error) {
	base := strings.TrimRight(m.BaseURL, "/")
	if base == "" {
		return "", errors.New("empty base url")
	}
	return base + "/v1/messages", nil
}

func (a *Adaptor) SetupRequestHeader(c *gin.Context, req *http.Request, m *meta.Meta) error {
	adaptor.SetupCommonRequestHeader(c, req, m)
	req.Header.Set("x-api-key", m.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	return nil
}

// ConvertRequest translates a chat-completions style request into Anthropic's
// native messages shape, pulling any leading system message out into the
// top-level system field Anthropic expects.
func (a *Adaptor) ConvertRequest(c *gin.Context, relayMode int, request *model.GeneralOpenAIRequest) (any, error) {
	if request == nil {
		return nil, errors.New("request is nil")
	}

	claude := &model.ClaudeRequest{
		Model:       a.meta.ActualModelName,
		Stream:      request.Stream,
		MaxTokens:   request.MaxTokens,
		Temperature: request.Temperature,
		TopP:        request.TopP,
		Tools:       request.Tools,
		ToolChoice:  request.ToolChoice,
	}
	if claude.MaxTokens == 0 {
		claude.MaxTokens = 4096
	}

	messages := request.Messages
	if len(messages) > 0 && messages[0].Role == "system" {
		claude.System = messages[0].Content
		messages = messages[1:]
	}
	claude.Messages = messages

	return claude, nil
}

func (a *Adaptor) ConvertImageRequest(c *gin.Context, request *model.ImageRequest) (any, error) {
	return nil, errors.New("image generation not supported by the Anthropic adaptor")
}

// ConvertClaudeRequest passes the request through unchanged; this is the
// adaptor's native format.
func (a *Adaptor) ConvertClaudeRequest(c *gin.Context, request *model.ClaudeRequest) (any, error) {
	if request == nil {
		return nil, errors.New("request is nil")
	}
	request.Model = a.meta.ActualModelName
	if request.MaxTokens == 0 {
		request.MaxTokens = 4096
	}
	return request, nil
}

func (a *Adaptor) DoRequest(c *gin.Context, m *meta.Meta, requestBody io.Reader) (*http.Response, error) {
	return adaptor.DoRequestHelper(a, c, m, requestBody)
}

func (a *Adaptor) DoResponse(c *gin.Context, resp *http.Response, m *meta.Meta) (*model.Usage, *model.ErrorWithStatusCode) {
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, wrapErr(errors.Errorf("upstream error: %s", string(body)), resp.StatusCode)
	}

	if m.IsStream {
		return a.streamResponse(c, resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, wrapErr(errors.Wrap(err, "read response body"), http.StatusInternalServerError)
	}
	c.Writer.Header().Set("Content-Type", "application/json")
	c.Writer.WriteHeader(http.StatusOK)
	_, _ = c.Writer.Write(body)

	var parsed anthropic.Message
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, wrapErr(errors.Wrap(err, "parse anthropic response"), http.StatusInternalServerError)
	}
	return usageFromAnthropic(parsed.Usage), nil
}

func (a *Adaptor) streamResponse(c *gin.Context, resp *http.Response) (*model.Usage, *model.ErrorWithStatusCode) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.WriteHeader(http.StatusOK)

	usage := &model.Usage{}
	flusher, _ := c.Writer.(http.Flusher)
	scanner := newLineScanner(resp.Body)

	for scanner.Scan() {
		line := scanner.Text()
		if _, err := c.Writer.Write([]byte(line + "\n")); err != nil {
			return usage, wrapErr(errors.Wrap(err, "write stream chunk"), http.StatusInternalServerError)
		}
		if flusher != nil {
			flusher.Flush()
		}

		data := strings.TrimPrefix(line, "data: ")
		if data == line {
			continue
		}
		var event struct {
			Type    string `json:"type"`
			Usage   *anthropic.MessageDeltaUsage `json:"usage"`
			Message *struct {
				Usage anthropic.Usage `json:"usage"`
			} `json:"message"`
		}
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			continue
		}
		if event.Message != nil {
			usage.PromptTokens = int(event.Message.Usage.InputTokens)
		}
		if event.Usage != nil {
			usage.CompletionTokens = int(event.Usage.OutputTokens)
		}
	}
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	return usage, nil
}

func usageFromAnthropic(u anthropic.Usage) *model.Usage {
	return &model.Usage{
		PromptTokens:       int(u.InputTokens),
		CompletionTokens:   int(u.OutputTokens),
		TotalTokens:        int(u.InputTokens + u.OutputTokens),
		CacheWrite5mTokens: int(u.CacheCreationInputTokens),
		PromptTokensDetails: &model.UsagePromptTokensDetails{
			CachedTokens: int(u.CacheReadInputTokens),
		},
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
