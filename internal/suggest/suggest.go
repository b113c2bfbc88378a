// Package suggest proposes document classifications from page content using
// a Vertex AI generative model. Suggestions feed the review queue only; the
// pipeline never acts on them automatically.
package suggest

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
)

const systemPrompt = "You are a loan-document classification assistant. You are shown the first page of a document from a loan file and must name its document type. Answer with the document type only, in title case, with no preamble or punctuation."

const userPrompt = `Identify the document type of the attached page. Typical types include Promissory Note, Deed Of Trust, Closing Disclosure, Appraisal Report, Credit Report, W-2, Bank Statement, Insurance Policy and Tax Return, but answer with whatever type best fits the page even if it is not on that list. If the page is unreadable or you cannot tell, answer exactly: Unknown`

// refusalPhrases mark model output that is a refusal rather than an answer.
var refusalPhrases = []string{
	"i am unable to",
	"i cannot fulfill",
	"i cannot answer",
	"i cannot provide",
	"as a large language model",
}

// Client wraps a pre-configured classification model.
type Client struct {
	model      *genai.GenerativeModel
	baseClient *genai.Client
}

// New creates the suggester against the given project and region.
func New(ctx context.Context, projectID, region string) (*Client, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("suggest.New: projectID and region cannot be empty")
	}
	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	model := baseClient.GenerativeModel("gemini-1.5-pro")
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt)},
	}
	model.GenerationConfig = genai.GenerationConfig{
		Temperature: genai.Ptr[float32](0.0),
	}
	model.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
	}

	return &Client{model: model, baseClient: baseClient}, nil
}

func (c *Client) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}

// SuggestClassification names the document type of the given single-page PDF.
// An empty string means the model had no usable answer.
func (c *Client) SuggestClassification(ctx context.Context, firstPage []byte) (string, error) {
	pagePart := genai.Blob{
		MIMEType: "application/pdf",
		Data:     firstPage,
	}
	resp, err := c.model.GenerateContent(ctx, pagePart, genai.Text(userPrompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate classification: %w", err)
	}

	answer := extractText(resp)
	lower := strings.ToLower(answer)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			return "", fmt.Errorf("model refused to classify: %q", answer)
		}
	}
	if answer == "" || strings.EqualFold(answer, "unknown") {
		return "", nil
	}
	return answer, nil
}

func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return strings.TrimSpace(sb.String())
}
