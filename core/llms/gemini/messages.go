package gemini

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/koscakluka/ema-referrals/core/llms"
)

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

type requestBody struct {
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	Contents          []content         `json:"contents"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type responseBody struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason,omitempty"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata,omitempty"`
	Error *apiErrorBody `json:"error,omitempty"`
}

type apiErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

func (r responseBody) text() string {
	var text strings.Builder
	for _, candidate := range r.Candidates {
		for _, p := range candidate.Content.Parts {
			text.WriteString(p.Text)
		}
		// Only the first candidate is requested.
		break
	}
	return text.String()
}

func (r responseBody) finishReason() *string {
	if len(r.Candidates) == 0 || r.Candidates[0].FinishReason == "" {
		return nil
	}
	reason := r.Candidates[0].FinishReason
	return &reason
}

func (r responseBody) usage() *llms.Usage {
	if r.UsageMetadata == nil {
		return nil
	}
	return &llms.Usage{
		InputTokens:  r.UsageMetadata.PromptTokenCount,
		OutputTokens: r.UsageMetadata.CandidatesTokenCount,
		TotalTokens:  r.UsageMetadata.TotalTokenCount,
	}
}

func toRequestBody(prompt string, options llms.PromptOptions) requestBody {
	body := requestBody{}
	if options.Instructions != "" {
		body.SystemInstruction = &content{Parts: []part{{Text: options.Instructions}}}
	}

	for _, message := range options.History {
		role := "user"
		if message.Role == llms.MessageRoleAssistant {
			role = "model"
		}
		body.Contents = append(body.Contents, content{Role: role, Parts: []part{{Text: message.Content}}})
	}
	body.Contents = append(body.Contents, content{Role: "user", Parts: []part{{Text: prompt}}})

	if options.Temperature != nil || options.MaxOutputTokens > 0 {
		body.GenerationConfig = &generationConfig{
			Temperature:     options.Temperature,
			MaxOutputTokens: options.MaxOutputTokens,
		}
	}

	return body
}

func parseAPIError(resp *http.Response) error {
	apiErr := &llms.APIError{StatusCode: resp.StatusCode, Provider: provider}

	errorBody, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		apiErr.Message = resp.Status
		return apiErr
	}

	var parsed struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(errorBody, &parsed); err == nil && parsed.Error.Message != "" {
		apiErr.Message = parsed.Error.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(errorBody))
	}

	return apiErr
}
