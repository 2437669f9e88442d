// Package openaicompat adapts the OpenAI chat-completions wire format,
// spoken natively by OpenAI and mirrored closely enough by most
// third-party aggregators and self-hosted OpenAI-compatible servers that a
// single adaptor can serve all of them, keyed off model.Provider.BaseURL.
package openaicompat

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/Laisky/errors/v2"
	"github.com/gin-gonic/gin"

	"github.com/gateway/multiapi/relay/adaptor"
	"github.com/gateway/multiapi/relay/meta"
	"github.com/gateway/multiapi/relay/model"
)

// Adaptor implements adaptor.Adaptor for OpenAI and OpenAI-compatible upstreams.
type Adaptor struct {
	adaptor.DefaultPricingMethods
	meta *meta.Meta
}

func (a *Adaptor) Init(m *meta.Meta) { a.meta = m }

func (a *Adaptor) GetChannelName() string { return "openai" }

func (a *Adaptor) GetModelList() []string {
	return adaptor.GetModelListFromPricing(a.GetDefaultModelPricing())
}

// GetRequestURL builds the upstream chat-completions endpoint, honoring a
// base URL that already carries a /v1 suffix (some aggregators route that
// way already) without ever doubling the segment.
func (a *Adaptor) GetRequestURL(m *meta.Meta) (string, error) {
	base := strings.TrimRight(m.BaseURL, "/")
	if base == "" {
		return "", errors.New("empty base url")
	}
	path := "/v1/chat/completions"
	if strings.HasSuffix(base, "/v1") {
		path = strings.TrimPrefix(path, "/v1")
	}
	return base + path, nil
}

func (a *Adaptor) SetupRequestHeader(c *gin.Context, req *http.Request, m *meta.Meta) error {
	adaptor.SetupCommonRequestHeader(c, req, m)
	req.Header.Set("Authorization", "Bearer "+m.APIKey)
	return nil
}

func (a *Adaptor) ConvertRequest(c *gin.Context, relayMode int, request *model.GeneralOpenAIRequest) (any, error) {
	if request == nil {
		return nil, errors.New("request is nil")
	}
	request.Model = a.meta.ActualModelName
	return request, nil
}

func (a *Adaptor) ConvertImageRequest(c *gin.Context, request *model.ImageRequest) (any, error) {
	if request == nil {
		return nil, errors.New("request is nil")
	}
	request.Model = a.meta.ActualModelName
	return request, nil
}

// ConvertClaudeRequest translates an Anthropic-shaped request into the
// OpenAI chat-completions body this adaptor natively speaks, so clients can
// call any provider through the /v1/messages surface.
func (a *Adaptor) ConvertClaudeRequest(c *gin.Context, request *model.ClaudeRequest) (any, error) {
	if request == nil {
		return nil, errors.New("request is nil")
	}

	out := &model.GeneralOpenAIRequest{
		Model:       a.meta.ActualModelName,
		Messages:    request.Messages,
		Stream:      request.Stream,
		MaxTokens:   request.MaxTokens,
		Temperature: request.Temperature,
		TopP:        request.TopP,
		Tools:       request.Tools,
		ToolChoice:  request.ToolChoice,
	}
	if sys, ok := request.System.(string); ok && sys != "" {
		out.Messages = append([]model.Message{{Role: "system", Content: sys}}, out.Messages...)
	}
	return out, nil
}

func (a *Adaptor) DoRequest(c *gin.Context, m *meta.Meta, requestBody io.Reader) (*http.Response, error) {
	return adaptor.DoRequestHelper(a, c, m, requestBody)
}

func (a *Adaptor) DoResponse(c *gin.Context, resp *http.Response, m *meta.Meta) (*model.Usage, *model.ErrorWithStatusCode) {
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, errorFromBody(body, resp.StatusCode)
	}

	if m.IsStream {
		return streamResponse(c, resp, m)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, wrapErr(errors.Wrap(err, "read response body"), http.StatusInternalServerError)
	}
	c.Writer.Header().Set("Content-Type", "application/json")
	c.Writer.WriteHeader(http.StatusOK)
	_, _ = c.Writer.Write(body)

	var parsed struct {
		Usage model.Usage `json:"usage"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, wrapErr(errors.Wrap(err, "parse usage"), http.StatusInternalServerError)
	}
	return &parsed.Usage, nil
}

func streamResponse(c *gin.Context, resp *http.Response, m *meta.Meta) (*model.Usage, *model.ErrorWithStatusCode) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)

	usage := &model.Usage{}
	scanner := newSSEScanner(resp.Body)
	flusher, _ := c.Writer.(http.Flusher)

	for scanner.Scan() {
		line := scanner.Text()
		if _, err := c.Writer.Write([]byte(line + "\n\n")); err != nil {
			return usage, wrapErr(errors.Wrap(err, "write stream chunk"), http.StatusInternalServerError)
		}
		if flusher != nil {
			flusher.Flush()
		}

		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			break
		}
		var chunk struct {
			Usage *model.Usage `json:"usage"`
		}
		if err := json.Unmarshal([]byte(data), &chunk); err == nil && chunk.Usage != nil {
			usage = chunk.Usage
		}
	}
	return usage, nil
}

func errorFromBody(body []byte, status int) *model.ErrorWithStatusCode {
	var parsed struct {
		Error model.Error `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		return &model.ErrorWithStatusCode{Error: parsed.Error, StatusCode: status}
	}
	return wrapErr(errors.Errorf("upstream error: %s", string(body)), status)
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
