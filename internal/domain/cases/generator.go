package cases

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/casecare/casecare/internal/platform/genai"
)

// InsightGenerator turns case fields into one structured insight via a single
// external model call. Implementations must treat missing keys in the model
// output as empty fields, not an error.
type InsightGenerator interface {
	Generate(ctx context.Context, cs *Case) (*InsightData, error)
}

// GeminiGenerator generates insights through the generative language API in
// JSON mode.
type GeminiGenerator struct {
	client *genai.Client
}

func NewGeminiGenerator(client *genai.Client) *GeminiGenerator {
	return &GeminiGenerator{client: client}
}

const analysisPromptFormat = `You are a specialized medical reasoning agent "Case → Care".
Analyze the following patient case data.

Patient: %s, Age: %s
Clinical Notes: %s
Patient Voice Transcript: %s

Your task:
1. Synthesize a brief clinical summary.
2. Identify diagnostic blind spots or potential biases (e.g., anchoring bias, premature closure).
3. Generate 3-5 clear, relevant follow-up questions for the clinician to ask the patient or check.
4. Detect the primary language of the transcript.

Return the output as valid JSON with this structure:
{
  "summary": "...",
  "blindSpots": ["..."],
  "questions": ["..."],
  "originalLanguage": "..."
}`

func buildAnalysisPrompt(cs *Case) string {
	age := "Unknown"
	if cs.PatientAge != nil {
		age = fmt.Sprintf("%d", *cs.PatientAge)
	}
	notes := "None"
	if cs.ClinicalNotes != nil && *cs.ClinicalNotes != "" {
		notes = *cs.ClinicalNotes
	}
	transcript := "None"
	if cs.Transcript != nil && *cs.Transcript != "" {
		transcript = *cs.Transcript
	}
	return fmt.Sprintf(analysisPromptFormat, cs.PatientName, age, notes, transcript)
}

// Generate runs one analysis call. A model response that is not valid JSON is
// an error; valid JSON with keys missing yields empty fields.
func (g *GeminiGenerator) Generate(ctx context.Context, cs *Case) (*InsightData, error) {
	resp, err := g.client.GenerateContent(ctx, genai.GenerateContentRequest{
		Contents: []genai.Content{{
			Role:  "user",
			Parts: []genai.Part{{Text: buildAnalysisPrompt(cs)}},
		}},
		GenerationConfig: &genai.GenerationConfig{
			ResponseMIMEType: "application/json",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("generate insight: %w", err)
	}

	text := resp.Text()
	if text == "" {
		text = "{}"
	}

	var data InsightData
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return nil, fmt.Errorf("parse insight response: %w", err)
	}
	return &data, nil
}
