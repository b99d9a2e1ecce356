package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"vizor/internal/infra"
)

// DescriberOptions controls how the GenAI describer is configured.
type DescriberOptions struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// GenAIDescriber summarizes fetched content through a hosted language model.
// Without an API key, or when the remote call fails, it builds a
// deterministic local description so the pipeline keeps working offline.
type GenAIDescriber struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     infra.Logger
}

// NewGenAIDescriber constructs the describer with sane defaults.
func NewGenAIDescriber(opts DescriberOptions) *GenAIDescriber {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	model := opts.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}
	logger := zerolog.New(io.Discard)
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &GenAIDescriber{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		httpClient: client,
		logger:     logger,
	}
}

// Describe summarizes the content behind the target into a generation prompt.
func (d *GenAIDescriber) Describe(ctx context.Context, target string, content []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if d.apiKey == "" {
		return d.localDescription(target, content), nil
	}
	description, err := d.remoteDescribe(ctx, target, content)
	if err != nil {
		d.logger.Warn().Err(err).Str("model", d.model).Msg("describe: remote summarization failed, using local description")
		return d.localDescription(target, content), nil
	}
	return description, nil
}

func (d *GenAIDescriber) localDescription(target string, content []byte) string {
	host := target
	if u, err := url.Parse(target); err == nil && u.Host != "" {
		host = u.Host
	}
	excerpt := textExcerpt(content, 160)
	if excerpt == "" {
		return fmt.Sprintf("An abstract visual impression of the web resource at %s.", host)
	}
	return fmt.Sprintf("An abstract visual impression of the web resource at %s, themed around: %s", host, excerpt)
}

type describeContent struct {
	Parts []describePart `json:"parts"`
}

type describePart struct {
	Text string `json:"text,omitempty"`
}

type describeRequest struct {
	Contents []describeContent `json:"contents"`
}

type describeResponse struct {
	Candidates []struct {
		Content describeContent `json:"content"`
	} `json:"candidates"`
	Error struct {
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

func (d *GenAIDescriber) remoteDescribe(ctx context.Context, target string, content []byte) (string, error) {
	prompt := fmt.Sprintf(
		"Summarize the following web content from %s into one vivid sentence suitable as an image generation prompt:\n\n%s",
		target, textExcerpt(content, 4000),
	)
	payload := describeRequest{Contents: []describeContent{{Parts: []describePart{{Text: prompt}}}}}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("describe: marshal request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", d.baseURL, url.PathEscape(d.model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("describe: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", d.apiKey)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("describe: call endpoint: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("describe: read response: %w", err)
	}
	var decoded describeResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("describe: decode response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := decoded.Error.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return "", fmt.Errorf("describe: endpoint returned %d: %s", resp.StatusCode, msg)
	}
	for _, candidate := range decoded.Candidates {
		for _, part := range candidate.Content.Parts {
			if text := strings.TrimSpace(part.Text); text != "" {
				return text, nil
			}
		}
	}
	return "", fmt.Errorf("describe: endpoint returned no text")
}

// textExcerpt extracts a printable, whitespace-collapsed excerpt from raw
// content, capped at limit bytes.
func textExcerpt(content []byte, limit int) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range string(content) {
		if b.Len() >= limit {
			break
		}
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		case r >= 32 && r < 127:
			b.WriteRune(r)
			lastSpace = false
		}
	}
	return strings.TrimSpace(b.String())
}

var _ Describer = (*GenAIDescriber)(nil)
