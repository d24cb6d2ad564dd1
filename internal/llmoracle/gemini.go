package llmoracle

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/mmprotest/openevolve/internal/obslog"
)

// GeminiOracle implements Oracle against Google's Gemini API. The Oracle
// interface itself is provider-agnostic.
type GeminiOracle struct {
	client *genai.Client
	model  string
}

// DefaultGeminiModel is the oracle's model when NewGeminiOracle is given an
// empty model; a Request with an empty Model uses the oracle's model.
const DefaultGeminiModel = "gemini-2.5-flash"

// NewGeminiOracle constructs a Gemini-backed oracle with the given API key
// and default model (overridable per request).
func NewGeminiOracle(ctx context.Context, apiKey, model string) (*GeminiOracle, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini oracle: API key is required")
	}
	if model == "" {
		model = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("gemini oracle: failed to create client: %w", err)
	}
	return &GeminiOracle{client: client, model: model}, nil
}

// Generate asks Gemini for n candidate patch strings. Each candidate in the
// response is the model's raw text; hunk parsing happens downstream via
// ParseHunks.
func (o *GeminiOracle) Generate(ctx context.Context, req Request) (Response, error) {
	timer := obslog.StartTimer(obslog.CategoryLLM, "Gemini.Generate")
	defer timer.Stop()

	model := req.Model
	if model == "" {
		model = o.model
	}
	n := req.N
	if n < 1 {
		n = 1
	}

	config := &genai.GenerateContentConfig{
		Temperature:       genai.Ptr(float32(req.Temperature)),
		CandidateCount:    int32(n),
		SystemInstruction: genai.NewContentFromText(req.System, genai.RoleUser),
	}

	contents := []*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)}
	for _, m := range req.ExtraMessages {
		contents = append(contents, genai.NewContentFromText(m.Content, genai.Role(m.Role)))
	}

	result, err := o.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return Response{}, &TransientError{Err: err}
	}

	var candidates []string
	for _, cand := range result.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.Text != "" {
				candidates = append(candidates, part.Text)
			}
		}
	}

	return Response{Candidates: candidates, RawResponse: result.Text()}, nil
}
