package vertexaiadapter

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"milestonepay/contexts/engagement-finance/milestone-escrow/domain/entities"
	domainerrors "milestonepay/contexts/engagement-finance/milestone-escrow/domain/errors"

	"cloud.google.com/go/vertexai/genai"
)

const DefaultModel = "gemini-1.5-flash-002"

type Config struct {
	ProjectID string
	Location  string
	Model     string
}

// contentGenerator is the slice of the Gemini model the verifier calls.
type contentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Verifier evaluates deliverables with a Gemini model on Vertex AI.
type Verifier struct {
	client *genai.Client
	model  contentGenerator
	logger *slog.Logger
}

func NewVerifier(ctx context.Context, cfg Config, logger *slog.Logger) (*Verifier, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, errors.New("vertex ai project id is required")
	}
	location := strings.TrimSpace(cfg.Location)
	if location == "" {
		location = "us-central1"
	}
	modelName := strings.TrimSpace(cfg.Model)
	if modelName == "" {
		modelName = DefaultModel
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, cfg.ProjectID, location)
	if err != nil {
		return nil, err
	}
	model := client.GenerativeModel(modelName)
	model.SetTemperature(0.2)
	model.ResponseMIMEType = "application/json"
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemInstruction)}}

	return &Verifier{client: client, model: model, logger: logger}, nil
}

func (v *Verifier) Close() error {
	if v.client == nil {
		return nil
	}
	return v.client.Close()
}

// Evaluate returns an Upstream error only when the model could not be
// called. An answer that cannot be parsed is an uncertain result.
func (v *Verifier) Evaluate(
	ctx context.Context,
	requirements entities.Requirements,
	deliverables entities.Deliverables,
	blobs []entities.AttachmentBlob,
) (entities.VerificationResult, error) {
	parts := make([]genai.Part, 0, len(blobs)+1)
	parts = append(parts, genai.Text(buildPrompt(requirements, deliverables, len(blobs))))
	for _, blob := range blobs {
		parts = append(parts, genai.Blob{MIMEType: blob.MIMEType, Data: blob.Data})
	}

	resp, err := v.model.GenerateContent(ctx, parts...)
	if err != nil {
		return entities.VerificationResult{}, domainerrors.Upstream("verify deliverable", err)
	}

	text := responseText(resp)
	if text == "" {
		v.logger.Warn("verification model returned no text",
			"event", "milestone_escrow_verifier_empty_response",
			"module", "engagement-finance/milestone-escrow",
			"layer", "adapter",
		)
	}
	return parseVerification(text), nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
		if b.Len() > 0 {
			break
		}
	}
	return b.String()
}
