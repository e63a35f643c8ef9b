package summary

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/paperhub/course-chat/internal/types"
)

const systemPrompt = "You summarize course chat discussions. " +
	"Write a concise paragraph covering the main topics discussed, " +
	"questions raised and any conclusions reached. Mention shared files by name."

// OllamaSummarizer generates summaries through an Ollama-compatible
// /api/chat endpoint.
type OllamaSummarizer struct {
	baseURL string
	model   string
	client  *http.Client
}

func NewOllamaSummarizer(baseURL, model string, timeout time.Duration) *OllamaSummarizer {
	return &OllamaSummarizer{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

// Summarize implements Summarizer using Ollama /api/chat.
func (s *OllamaSummarizer) Summarize(ctx context.Context, transcript []types.Message, participants []types.User) (Result, error) {
	model := strings.TrimSpace(s.model)
	if model == "" {
		return Result{}, fmt.Errorf("generation model required")
	}

	reqBody := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: renderTranscript(transcript)},
		},
		Stream: false,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return Result{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := s.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("summarize: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("summarize: unexpected status %d", httpResp.StatusCode)
	}

	var resp chatResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return Result{}, fmt.Errorf("decode response: %w", err)
	}

	text := strings.TrimSpace(resp.Message.Content)
	if text == "" {
		return Result{}, fmt.Errorf("empty response from summarizer")
	}

	return Result{
		Text:             text,
		ParticipantCount: len(participants),
		MessageCount:     len(transcript),
	}, nil
}

// renderTranscript flattens the ordered message log into prompt lines.
func renderTranscript(transcript []types.Message) string {
	var b strings.Builder
	for _, msg := range transcript {
		b.WriteString(msg.Sender.Username)
		b.WriteString(": ")
		b.WriteString(msg.Content)
		for _, att := range msg.Attachments {
			b.WriteString(" [file: ")
			b.WriteString(att.Filename)
			b.WriteString("]")
		}
		b.WriteString("\n")
	}
	return b.String()
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
}
