package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// ScriptService drafts per-scene prompts for a scenario from a short story
// brief, using Gemini. It is only consulted when a scenario is created with
// auto-scripting; user-supplied scene prompts bypass it entirely.
type ScriptService struct {
	Client *genai.Client
	model  string
}

// NewScriptService initializes the Gemini client.
func NewScriptService(apiKey string) (*ScriptService, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &ScriptService{Client: client, model: "gemini-1.5-flash"}, nil
}

// Close releases the underlying Gemini client.
func (s *ScriptService) Close() error {
	return s.Client.Close()
}

// DraftScenePrompts asks Gemini for sceneCount consecutive video scene
// prompts telling the story in the brief. The response is requested as a
// bare JSON array of strings and parsed defensively.
func (s *ScriptService) DraftScenePrompts(ctx context.Context, brief string, sceneCount int) ([]string, error) {
	if sceneCount < 1 {
		return nil, fmt.Errorf("scene count must be at least 1, got %d", sceneCount)
	}

	model := s.Client.GenerativeModel(s.model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(fmt.Sprintf(`
			You write shooting scripts for short AI-generated videos.
			Given a story brief, produce exactly %d consecutive scene prompts.
			Each prompt describes one 5-10 second clip; scenes must flow into
			each other because each clip starts from the last frame of the
			previous one. Reply with ONLY a JSON array of %d strings.
		`, sceneCount, sceneCount))},
	}

	res, err := model.GenerateContent(ctx, genai.Text(brief))
	if err != nil {
		return nil, fmt.Errorf("error generating scene script: %w", err)
	}

	if len(res.Candidates) == 0 || len(res.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("empty response from model")
	}

	text, ok := res.Candidates[0].Content.Parts[0].(genai.Text)
	if !ok {
		return nil, fmt.Errorf("unexpected response part type %T", res.Candidates[0].Content.Parts[0])
	}

	prompts, err := parsePromptArray(string(text))
	if err != nil {
		return nil, err
	}
	if len(prompts) != sceneCount {
		return nil, fmt.Errorf("expected %d scene prompts, got %d", sceneCount, len(prompts))
	}

	return prompts, nil
}

// parsePromptArray extracts a JSON string array from model output, tolerating
// markdown code fences around the JSON.
func parsePromptArray(raw string) ([]string, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var prompts []string
	if err := json.Unmarshal([]byte(cleaned), &prompts); err != nil {
		return nil, fmt.Errorf("failed to parse scene prompts: %w", err)
	}

	for i, p := range prompts {
		if strings.TrimSpace(p) == "" {
			return nil, fmt.Errorf("scene prompt %d is empty", i+1)
		}
	}

	return prompts, nil
}
