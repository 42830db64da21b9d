package memory

import (
	"context"
	"sync"

	"milestonepay/contexts/engagement-finance/milestone-escrow/domain/entities"
	domainerrors "milestonepay/contexts/engagement-finance/milestone-escrow/domain/errors"
)

// ScriptedVerifier answers every evaluation with a preset result. With no
// result set it is uncertain, so every submission goes to manual review.
type ScriptedVerifier struct {
	mu     sync.Mutex
	result *entities.VerificationResult
	err    error
	calls  int
}

func NewScriptedVerifier() *ScriptedVerifier {
	return &ScriptedVerifier{}
}

func (v *ScriptedVerifier) Respond(result entities.VerificationResult) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.result = &result
	v.err = nil
}

func (v *ScriptedVerifier) Fail(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.err = err
}

func (v *ScriptedVerifier) Calls() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls
}

func (v *ScriptedVerifier) Evaluate(
	_ context.Context,
	_ entities.Requirements,
	_ entities.Deliverables,
	_ []entities.AttachmentBlob,
) (entities.VerificationResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	if v.err != nil {
		return entities.VerificationResult{}, domainerrors.Upstream("verify deliverable", v.err)
	}
	if v.result == nil {
		return entities.VerificationResult{
			Status:            entities.VerificationUncertain,
			Confidence:        0,
			Feedback:          entities.Feedback{Strengths: []string{}, Issues: []string{}, Suggestions: []string{}},
			RecommendedAction: "manual-review",
		}, nil
	}
	return *v.result, nil
}
