package entities

// Requirements is what a deliverable is checked against.
type Requirements struct {
	Title               string
	Description         string
	ProjectTitle        string
	ProjectDescription  string
	ProjectRequirements []string
	DeliverableTypes    []string
	Brand               BrandSpec
}

// Deliverables summarises a submission for the verification capability.
type Deliverables struct {
	Description     string
	AttachmentCount int
	AttachmentTypes []string
	AttachmentNames []string
}

// AttachmentBlob is an attachment whose content was fetched from the blob store.
type AttachmentBlob struct {
	Name     string
	MIMEType string
	Data     []byte
}

// VerificationResult is the output contract of the verification capability.
type VerificationResult struct {
	Status                VerificationStatus
	Confidence            float64
	Feedback              Feedback
	RequirementsSatisfied bool
	RecommendedAction     string
}
