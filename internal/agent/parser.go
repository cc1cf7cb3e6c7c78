package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiGenerator is the Generator backed by the Gemini API.
type GeminiGenerator struct {
	client      *genai.Client
	model       string
	temperature float32
}

// NewGeminiGenerator creates a Gemini client. An empty apiKey lets the SDK
// fall back to GEMINI_API_KEY / GOOGLE_API_KEY from the environment.
func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	if model == "" {
		model = DefaultModelName
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiGenerator: create genai client: %w", err)
	}
	return &GeminiGenerator{client: client, model: model, temperature: 0.2}, nil
}

// ModelName implements Generator.
func (g *GeminiGenerator) ModelName() string { return g.model }

// GenerateText implements Generator.
func (g *GeminiGenerator) GenerateText(ctx context.Context, system, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), g.baseConfig(system))
	if err != nil {
		return "", fmt.Errorf("GenerateText: generate content: %w", err)
	}
	return strings.TrimSpace(resp.Text()), nil
}

// GenerateObject implements Generator. The response is constrained by a
// JSON schema derived from fields.
func (g *GeminiGenerator) GenerateObject(ctx context.Context, system, prompt string, fields []FieldSpec) (any, error) {
	config := g.baseConfig(system)
	config.ResponseMIMEType = "application/json"
	config.ResponseSchema = ResponseSchema(fields)

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), config)
	if err != nil {
		return nil, fmt.Errorf("GenerateObject: generate content: %w", err)
	}
	return DecodeObject(resp.Text())
}

func (g *GeminiGenerator) baseConfig(system string) *genai.GenerateContentConfig {
	temperature := g.temperature
	return &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Temperature:       &temperature,
	}
}

// ResponseSchema converts the field table into a Gemini response schema.
// Optional fields are left out of Required; nullable ones stay required so
// the model writes an explicit null.
func ResponseSchema(fields []FieldSpec) *genai.Schema {
	schema := &genai.Schema{
		Type:       genai.TypeObject,
		Properties: make(map[string]*genai.Schema, len(fields)),
	}
	for _, f := range fields {
		prop := &genai.Schema{Description: f.Description}
		switch f.Kind {
		case KindNumber:
			prop.Type = genai.TypeNumber
		case KindBoolean:
			prop.Type = genai.TypeBoolean
		case KindEnum:
			prop.Type = genai.TypeString
			prop.Enum = append([]string(nil), f.Enum...)
		default:
			prop.Type = genai.TypeString
		}
		if f.Nullable {
			nullable := true
			prop.Nullable = &nullable
		}
		schema.Properties[f.Name] = prop
		schema.PropertyOrdering = append(schema.PropertyOrdering, f.Name)
		if !f.Optional {
			schema.Required = append(schema.Required, f.Name)
		}
	}
	return schema
}

// DecodeObject parses the model's JSON text, keeping numbers as json.Number
// so amounts survive without float rounding.
func DecodeObject(raw string) (any, error) {
	clean := cleanModelJSON(raw)
	if clean == "" || clean == "null" || clean == "{}" {
		return nil, ErrEmptyObject
	}

	dec := json.NewDecoder(strings.NewReader(clean))
	dec.UseNumber()
	var parsed any
	if err := dec.Decode(&parsed); err != nil {
		return nil, fmt.Errorf("DecodeObject: unmarshal JSON: %w\nraw response: %s", err, raw)
	}
	return parsed, nil
}

func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	// Handle ```json ... ``` or ``` ... ``` wrappers.
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return ""
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	// Keep only the outermost object if the model added prose around it.
	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}

	return s
}
