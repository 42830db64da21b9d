package entities

import (
	"strings"
	"time"
)

// BrandSpec holds the structured design constraints some projects carry (logo work).
type BrandSpec struct {
	BrandName        string
	ColorScheme      string
	StylePreferences string
	Industry         string
	TargetAudience   string
}

func (b BrandSpec) IsZero() bool {
	return strings.TrimSpace(b.BrandName) == "" &&
		strings.TrimSpace(b.ColorScheme) == "" &&
		strings.TrimSpace(b.StylePreferences) == "" &&
		strings.TrimSpace(b.Industry) == "" &&
		strings.TrimSpace(b.TargetAudience) == ""
}

// Project is the membership projection the escrow engine guards against.
type Project struct {
	ProjectID           string
	Title               string
	Description         string
	EmployerID          string
	FreelancerID        string
	Currency            string
	Requirements        []string
	Brand               BrandSpec
	TotalMilestones     int
	CompletedMilestones int
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (p Project) IsEmployer(userID string) bool {
	return userID != "" && p.EmployerID == userID
}

func (p Project) IsFreelancer(userID string) bool {
	return userID != "" && p.FreelancerID == userID
}

func (p Project) IsParticipant(userID string) bool {
	return p.IsEmployer(userID) || p.IsFreelancer(userID)
}

func (p Project) ValidateUpsert() bool {
	return strings.TrimSpace(p.ProjectID) != "" &&
		strings.TrimSpace(p.Title) != "" &&
		strings.TrimSpace(p.EmployerID) != ""
}
