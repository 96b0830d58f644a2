// Package risk derives a deterministic 0-100 risk score and priority signal
// from submission content and history. This is pure domain logic - no I/O,
// no side effects; intake re-runs it on every submission and resubmission.
package risk

import (
	"fmt"
	"time"

	"vetgate/internal/verification/models"
)

// AssessedBy identifies the scoring revision recorded on each assessment.
const AssessedBy = "risk-engine/v1"

// Score weights. Deterministic and additive; the clamp keeps the result in
// [0,100].
const (
	baseScore = 10

	missingOptionalField  = 8
	sparseProficiency     = 5
	thinDescription       = 7
	perPriorRejection     = 15
	portfolioUnreachable  = 20
	portfolioUnverified   = 10
	juniorInDemandingRole = 12
	veteranNoCredentials  = 6
)

// demandingSpecializations require professional licensure in most markets, so
// a junior experience band there warrants closer review.
var demandingSpecializations = map[string]bool{
	"architect":           true,
	"structural_engineer": true,
	"mep_engineer":        true,
}

// Input bundles everything the scorer looks at.
type Input struct {
	Request models.VerificationRequest
	// PriorRejections is the count of this user's closed rejected processes.
	PriorRejections int
}

// Assess produces a fresh assessment. The historical factor list is
// append-only: factors observed on earlier runs stay, new ones are appended.
func Assess(in Input, priorFactors []string, now time.Time) models.RiskAssessment {
	score := baseScore
	var factors []string

	addFactor := func(points int, factor string) {
		score += points
		factors = append(factors, factor)
	}

	if in.Request.Certifications == "" {
		addFactor(missingOptionalField, "missing optional field: certifications")
	}
	if in.Request.AdditionalInfo == "" {
		addFactor(missingOptionalField, "missing optional field: additionalInfo")
	}
	if len(in.Request.SoftwareProficiency) < 2 {
		addFactor(sparseProficiency, "fewer than two software proficiencies declared")
	}
	if len(in.Request.SpecializationDescription) < 40 {
		addFactor(thinDescription, "specialization description under 40 characters")
	}

	if in.PriorRejections > 0 {
		score += in.PriorRejections * perPriorRejection
		factors = append(factors, fmt.Sprintf("prior rejections: %d", in.PriorRejections))
	}

	switch in.Request.PortfolioReachability {
	case models.PortfolioUnreachable:
		addFactor(portfolioUnreachable, "portfolio URL reported unreachable")
	case models.PortfolioUnknown, "":
		addFactor(portfolioUnverified, "portfolio URL reachability unverified")
	}

	if junior(in.Request.YearsOfExperience) && demandingSpecializations[in.Request.Specialization] {
		addFactor(juniorInDemandingRole, "junior experience band in licensure-bound specialization")
	}
	if veteran(in.Request.YearsOfExperience) && in.Request.Certifications == "" {
		addFactor(veteranNoCredentials, "veteran experience band with no certifications listed")
	}

	if score > 100 {
		score = 100
	}

	return models.RiskAssessment{
		Level:       levelFor(score),
		Score:       score,
		Factors:     mergeFactors(priorFactors, factors),
		LastUpdated: now,
		AssessedBy:  AssessedBy,
	}
}

// PriorityFor maps a risk level onto the intake priority.
func PriorityFor(level models.RiskLevel) models.Priority {
	switch level {
	case models.RiskCritical:
		return models.PriorityUrgent
	case models.RiskHigh:
		return models.PriorityHigh
	case models.RiskMedium:
		return models.PriorityMedium
	default:
		return models.PriorityLow
	}
}

func levelFor(score int) models.RiskLevel {
	switch {
	case score >= 80:
		return models.RiskCritical
	case score >= 55:
		return models.RiskHigh
	case score >= 25:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

func junior(band string) bool {
	return band == "0-1" || band == "<1" || band == "1-2"
}

func veteran(band string) bool {
	return band == "10+" || band == "15+" || band == "20+"
}

// mergeFactors appends factors not already present, preserving historical
// order. The factor list never shrinks across assessments.
func mergeFactors(prior, fresh []string) []string {
	merged := append([]string(nil), prior...)
	seen := make(map[string]bool, len(prior))
	for _, f := range prior {
		seen[f] = true
	}
	for _, f := range fresh {
		if !seen[f] {
			merged = append(merged, f)
			seen[f] = true
		}
	}
	return merged
}
