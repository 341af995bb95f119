package summarizer

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// DefaultGeminiModel is used when no model name is configured.
const DefaultGeminiModel = "gemini-1.5-flash"

const maxPromptRunes = 6000

var languageNames = map[string]string{
	"zh": "Simplified Chinese",
	"en": "English",
	"ja": "Japanese",
	"de": "German",
	"fr": "French",
	"ru": "Russian",
	"uk": "Ukrainian",
}

// Gemini summarizes through the Google Gemini API.
type Gemini struct {
	client   *genai.Client
	generate func(ctx context.Context, prompt string) (string, error)
}

// NewGemini creates a Gemini backend.
func NewGemini(ctx context.Context, apiKey, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is empty")
	}
	if modelName == "" {
		modelName = DefaultGeminiModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	model := client.GenerativeModel(modelName)
	model.SetTemperature(0.2)

	g := &Gemini{client: client}
	g.generate = func(ctx context.Context, prompt string) (string, error) {
		resp, err := model.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			return "", fmt.Errorf("generate content: %w", err)
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			return "", nil
		}
		var sb strings.Builder
		for _, part := range resp.Candidates[0].Content.Parts {
			if t, ok := part.(genai.Text); ok {
				sb.WriteString(string(t))
			}
		}
		return sb.String(), nil
	}
	return g, nil
}

// Close releases the underlying client.
func (g *Gemini) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

// Summarize implements Summarizer. An empty answer is returned as is so the
// caller can fall back.
func (g *Gemini) Summarize(ctx context.Context, text, lang string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	out, err := g.generate(ctx, buildPrompt(text, lang))
	if err != nil {
		return "", err
	}
	return cleanAnswer(out), nil
}

func buildPrompt(text, lang string) string {
	if utf8.RuneCountInString(text) > maxPromptRunes {
		runes := []rune(text)
		text = string(runes[:maxPromptRunes])
	}
	name, ok := languageNames[lang]
	if !ok {
		name = lang
	}
	return fmt.Sprintf(`Summarize the news below in %s.

Requirements:
- two to four sentences, at most 500 characters;
- keep names of people, companies and products as written;
- no introductory phrases, no markdown, answer with the summary only.

NEWS:
%s`, name, text)
}

// cleanAnswer strips a leading label and markdown emphasis models add despite
// instructions.
func cleanAnswer(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"Summary:", "SUMMARY:", "摘要：", "摘要:"} {
		s = strings.TrimSpace(strings.TrimPrefix(s, prefix))
	}
	s = strings.ReplaceAll(s, "**", "")
	return strings.Join(strings.Fields(s), " ")
}
