package vertexaiadapter

import (
	"context"
	"errors"
	"strings"
	"testing"

	"milestonepay/contexts/engagement-finance/milestone-escrow/domain/entities"
	domainerrors "milestonepay/contexts/engagement-finance/milestone-escrow/domain/errors"

	"cloud.google.com/go/vertexai/genai"
)

type fakeModel struct {
	text  string
	err   error
	parts []genai.Part
}

func (m *fakeModel) GenerateContent(_ context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	m.parts = parts
	if m.err != nil {
		return nil, m.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text(m.text)}},
		}},
	}, nil
}

func TestExtractJSONStripsFences(t *testing.T) {
	raw, ok := extractJSON("```json\n{\"status\":\"approved\"}\n```")
	if !ok || raw != `{"status":"approved"}` {
		t.Fatalf("unexpected extraction: %q %v", raw, ok)
	}
	if _, ok := extractJSON("no object here"); ok {
		t.Fatalf("expected extraction to fail without braces")
	}
}

func TestParseVerification(t *testing.T) {
	result := parseVerification(`Sure! {"status":"APPROVED","confidence":0.92,"feedback":{"strengths":["clean"],"issues":[],"suggestions":[]},"requirementsSatisfied":true,"recommendedAction":"approve"}`)
	if result.Status != entities.VerificationApproved || result.Confidence != 0.92 || !result.RequirementsSatisfied {
		t.Fatalf("unexpected parsed result: %+v", result)
	}

	fallback := parseVerification("the model rambled")
	if fallback.Status != entities.VerificationUncertain || fallback.Confidence != 0.5 {
		t.Fatalf("expected uncertain fallback, got %+v", fallback)
	}
	broken := parseVerification(`{"status": "approved", "confidence": }`)
	if broken.Status != entities.VerificationUncertain {
		t.Fatalf("expected uncertain for invalid json, got %+v", broken)
	}
}

func TestBuildPromptIncludesBrandOnlyWhenSet(t *testing.T) {
	requirements := entities.Requirements{Title: "Logo", DeliverableTypes: []string{"svg"}}
	prompt := buildPrompt(requirements, entities.Deliverables{Description: "v1"}, 0)
	if strings.Contains(prompt, "Brand Requirements") {
		t.Fatalf("expected no brand section without brand data")
	}
	requirements.Brand = entities.BrandSpec{BrandName: "Bean There"}
	prompt = buildPrompt(requirements, entities.Deliverables{Description: "v1"}, 2)
	if !strings.Contains(prompt, "Brand Name: Bean There") || !strings.Contains(prompt, "Attached Images: 2") {
		t.Fatalf("expected brand and image lines in prompt:\n%s", prompt)
	}
}

func TestEvaluateSendsImagesAndParsesAnswer(t *testing.T) {
	model := &fakeModel{text: `{"status":"rejected","confidence":0.9,"feedback":{"issues":["wrong colors"]}}`}
	verifier := &Verifier{model: model}

	result, err := verifier.Evaluate(context.Background(), entities.Requirements{Title: "Logo"}, entities.Deliverables{Description: "v1"}, []entities.AttachmentBlob{
		{Name: "logo.png", MIMEType: "image/png", Data: []byte{0x89, 0x50}},
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if result.Status != entities.VerificationRejected {
		t.Fatalf("expected rejected, got %s", result.Status)
	}
	if len(model.parts) != 2 {
		t.Fatalf("expected prompt plus one image part, got %d", len(model.parts))
	}
	if _, ok := model.parts[1].(genai.Blob); !ok {
		t.Fatalf("expected image blob part, got %T", model.parts[1])
	}
}

func TestEvaluateReportsUpstreamFailure(t *testing.T) {
	verifier := &Verifier{model: &fakeModel{err: errors.New("quota exceeded")}}
	_, err := verifier.Evaluate(context.Background(), entities.Requirements{}, entities.Deliverables{}, nil)
	if !errors.Is(err, domainerrors.ErrUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}
