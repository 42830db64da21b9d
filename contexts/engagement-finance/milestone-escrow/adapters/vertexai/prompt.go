package vertexaiadapter

import (
	"encoding/json"
	"fmt"
	"strings"

	"milestonepay/contexts/engagement-finance/milestone-escrow/domain/entities"
	"milestonepay/contexts/engagement-finance/milestone-escrow/domain/services"
)

const systemInstruction = "You review freelance deliverables against milestone requirements. " +
	"Answer with a single JSON object and nothing else."

func notSpecified(value string) string {
	if strings.TrimSpace(value) == "" {
		return "Not specified"
	}
	return value
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "None"
	}
	return strings.Join(items, ", ")
}

func buildPrompt(requirements entities.Requirements, deliverables entities.Deliverables, imageCount int) string {
	var b strings.Builder

	b.WriteString("# Project Requirements\n")
	fmt.Fprintf(&b, "Project: %s\n", notSpecified(requirements.ProjectTitle))
	fmt.Fprintf(&b, "Project Description: %s\n", notSpecified(requirements.ProjectDescription))
	if len(requirements.ProjectRequirements) > 0 {
		fmt.Fprintf(&b, "Project Requirements: %s\n", strings.Join(requirements.ProjectRequirements, "; "))
	}
	fmt.Fprintf(&b, "Milestone: %s\n", notSpecified(requirements.Title))
	fmt.Fprintf(&b, "Milestone Description: %s\n", notSpecified(requirements.Description))

	if !requirements.Brand.IsZero() {
		b.WriteString("\n# Brand Requirements\n")
		fmt.Fprintf(&b, "Brand Name: %s\n", notSpecified(requirements.Brand.BrandName))
		fmt.Fprintf(&b, "Color Scheme: %s\n", notSpecified(requirements.Brand.ColorScheme))
		fmt.Fprintf(&b, "Style Preferences: %s\n", notSpecified(requirements.Brand.StylePreferences))
		fmt.Fprintf(&b, "Industry: %s\n", notSpecified(requirements.Brand.Industry))
		fmt.Fprintf(&b, "Target Audience: %s\n", notSpecified(requirements.Brand.TargetAudience))
	}
	fmt.Fprintf(&b, "Required Formats: %s\n", joinOrNone(requirements.DeliverableTypes))

	b.WriteString("\n# Submitted Deliverables\n")
	fmt.Fprintf(&b, "Submission Description: %s\n", notSpecified(deliverables.Description))
	fmt.Fprintf(&b, "Number of Attachments: %d\n", deliverables.AttachmentCount)
	fmt.Fprintf(&b, "Attachment Types: %s\n", joinOrNone(deliverables.AttachmentTypes))
	fmt.Fprintf(&b, "File Names: %s\n", joinOrNone(deliverables.AttachmentNames))
	if imageCount > 0 {
		fmt.Fprintf(&b, "Attached Images: %d (inline after this prompt)\n", imageCount)
	}

	b.WriteString(`
# Task
1. Decide whether the submitted work meets the requirements.
2. For visual work, compare colors and style against the brand requirements.
3. Check that every required file format is present.
4. Set status to "approved", "rejected" or "uncertain" and confidence between 0 and 1.

Respond with JSON in exactly this shape:
{
  "status": "approved|rejected|uncertain",
  "confidence": 0.0,
  "feedback": {
    "strengths": [],
    "issues": [],
    "suggestions": []
  },
  "requirementsSatisfied": true,
  "recommendedAction": "approve|reject|manual-review"
}
`)
	return b.String()
}

type verificationResponse struct {
	Status     string  `json:"status"`
	Confidence float64 `json:"confidence"`
	Feedback   struct {
		Strengths   []string `json:"strengths"`
		Issues      []string `json:"issues"`
		Suggestions []string `json:"suggestions"`
	} `json:"feedback"`
	RequirementsSatisfied bool   `json:"requirementsSatisfied"`
	RecommendedAction     string `json:"recommendedAction"`
}

// extractJSON trims code fences and keeps the outermost object.
func extractJSON(content string) (string, bool) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return content[start : end+1], true
}

// parseVerification never fails: text without a usable object becomes an
// uncertain result that goes to manual review.
func parseVerification(text string) entities.VerificationResult {
	raw, ok := extractJSON(text)
	if !ok {
		return services.UnparseableVerification()
	}
	var response verificationResponse
	if err := json.Unmarshal([]byte(raw), &response); err != nil {
		return services.UnparseableVerification()
	}
	return services.NormalizeResult(entities.VerificationResult{
		Status:     entities.VerificationStatus(strings.ToLower(strings.TrimSpace(response.Status))),
		Confidence: response.Confidence,
		Feedback: entities.Feedback{
			Strengths:   response.Feedback.Strengths,
			Issues:      response.Feedback.Issues,
			Suggestions: response.Feedback.Suggestions,
		},
		RequirementsSatisfied: response.RequirementsSatisfied,
		RecommendedAction:     response.RecommendedAction,
	})
}
