package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/HacksterAman/Clean-Bounty/internal/imageprocessor"
	"github.com/HacksterAman/Clean-Bounty/internal/waste"
)

// DefaultGeminiModel serves both the vision and the text prompt.
const DefaultGeminiModel = "gemini-1.5-flash"

const classifyPrompt = `Analyze this image and return a JSON object with the following structure:

{
  "waste_types": [
    {
      "type": string,
      "confidence": number,
      "description": string,
      "points": number
    }
  ]
}

Rules:
- "type" is one of "Plastic", "Paper", "Organic", "Metal", "Glass", "Electronic".
- "confidence" is between 0 and 1 and reflects how likely that waste type is present; the confidences of all entries must add up to at most 1.
- "description" is a short description of the waste of that type found in the image.
- "points" is the reward for the type: Plastic 10, Paper 5, Organic 3, Metal 15, Glass 8, Electronic 20.
- Order entries from the most to the least likely.
- If no waste is visible return an empty array for "waste_types".

Only return valid JSON. Do not include any explanation or markdown.`

const describePrompt = `Given the following waste analysis JSON, generate a bounty description as a JSON object with these fields:

{
  "bounty_title": string,
  "target_waste": string[],
  "potential_hazards": string,
  "cleanup_approach": string,
  "reward_points": object
}

"bounty_title" is a catchy title for the cleanup, "target_waste" lists every waste type worth collecting, "potential_hazards" warns volunteers, "cleanup_approach" recommends how to clean up, and "reward_points" maps each waste type to its points.

Only return valid JSON. Do not include any explanation or markdown. Here is the analysis:
`

// generator is the slice of *genai.GenerativeModel the client uses.
type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// GeminiClient classifies images and writes bounty descriptions with Google
// Gemini. It implements both Classifier and Describer.
type GeminiClient struct {
	client *genai.Client
	model  string
	vision generator
	text   generator
	logger *zap.Logger
}

// NewGeminiClient dials the Gemini API. The returned client must be closed.
func NewGeminiClient(ctx context.Context, apiKey, model string, logger *zap.Logger) (*GeminiClient, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini: api key is empty")
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = DefaultGeminiModel
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}

	vision := cl.GenerativeModel(model)
	vision.GenerationConfig = genai.GenerationConfig{
		Temperature:      ptrFloat32(0),
		ResponseMIMEType: "application/json",
	}
	text := cl.GenerativeModel(model)
	text.GenerationConfig = genai.GenerationConfig{
		Temperature:      ptrFloat32(0.4),
		ResponseMIMEType: "application/json",
	}

	return &GeminiClient{
		client: cl,
		model:  model,
		vision: vision,
		text:   text,
		logger: logger.Named("gemini"),
	}, nil
}

// Close releases the underlying connection.
func (g *GeminiClient) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

// Model returns the Gemini model name in use.
func (g *GeminiClient) Model() string { return g.model }

// Classify sends the image with the classification prompt. It does not retry.
func (g *GeminiClient) Classify(ctx context.Context, img imageprocessor.Image) (waste.ClassificationResult, error) {
	if len(img.Data) == 0 {
		return waste.ClassificationResult{}, fmt.Errorf("gemini classify: %w: no image data", waste.ErrEncoding)
	}
	parts := []genai.Part{
		genai.Text(classifyPrompt),
		genai.Blob{MIMEType: img.MIMEType, Data: img.Data},
	}

	start := time.Now()
	resp, err := g.vision.GenerateContent(ctx, parts...)
	g.logger.Debug("classify call finished",
		zap.String("image", img.Ref()),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(err),
	)
	if err != nil {
		return waste.ClassificationResult{}, upstream("gemini classify", err)
	}
	txt, err := firstText(resp)
	if err != nil {
		return waste.ClassificationResult{}, upstream("gemini classify", err)
	}
	res, err := ParseClassification(txt)
	if err != nil {
		return waste.ClassificationResult{}, fmt.Errorf("gemini classify: %w", err)
	}
	return res, nil
}

// Describe asks the text model for a bounty brief covering every candidate
// of result.
func (g *GeminiClient) Describe(ctx context.Context, result waste.ClassificationResult) (waste.BountyDescription, error) {
	analysis, err := EncodeResult(result)
	if err != nil {
		return waste.BountyDescription{}, fmt.Errorf("gemini describe: %w: %v", waste.ErrSchema, err)
	}

	start := time.Now()
	resp, err := g.text.GenerateContent(ctx, genai.Text(describePrompt+analysis))
	g.logger.Debug("describe call finished",
		zap.Int("candidates", len(result.Candidates)),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(err),
	)
	if err != nil {
		return waste.BountyDescription{}, upstream("gemini describe", err)
	}
	txt, err := firstText(resp)
	if err != nil {
		return waste.BountyDescription{}, upstream("gemini describe", err)
	}
	bounty, err := ParseBounty(txt)
	if err != nil {
		return waste.BountyDescription{}, fmt.Errorf("gemini describe: %w", err)
	}
	return bounty, nil
}

func firstText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
			return "", fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason)
		}
		return "", errors.New("empty response")
	}
	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		var b strings.Builder
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		if s := strings.TrimSpace(b.String()); s != "" {
			return s, nil
		}
	}
	return "", errors.New("empty response")
}

func upstream(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, waste.ErrUpstream, err)
}

func ptrFloat32(v float32) *float32 { return &v }
