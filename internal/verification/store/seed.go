package store

import "vetgate/internal/verification/models"

// DefaultReasons is the built-in rejection reason catalog. Reviewer-facing
// text stays internal; MessageTemplate is the applicant-facing fragment
// interpolated into the rejection message.
func DefaultReasons() []*models.RejectionReason {
	return []*models.RejectionReason{
		{
			ID:              "doc_quality",
			Category:        models.CategoryDocumentation,
			Text:            "Submitted documents are illegible or cropped",
			MessageTemplate: "The documents you provided could not be read clearly. Please upload sharp, uncropped scans or photos.",
			IsActive:        true,
		},
		{
			ID:                   "doc_expired",
			Category:             models.CategoryDocumentation,
			Text:                 "Identity document is expired",
			MessageTemplate:      "Your identity document has expired. Please submit a currently valid document.",
			RequiresResubmission: true,
			IsActive:             true,
		},
		{
			ID:              "identity_mismatch",
			Category:        models.CategoryIdentity,
			Text:            "Name on document does not match the account",
			MessageTemplate: "The name on your identity document does not match your account details.",
			IsActive:        true,
		},
		{
			ID:                   "identity_unverifiable",
			Category:             models.CategoryIdentity,
			Text:                 "Identity could not be verified from the provided documents",
			MessageTemplate:      "We were unable to verify your identity from the documents provided. Please submit a government-issued photo ID.",
			RequiresResubmission: true,
			IsActive:             true,
		},
		{
			ID:              "qualification_insufficient",
			Category:        models.CategoryQualifications,
			Text:            "Stated qualifications do not meet the bar for the selected specialization",
			MessageTemplate: "Your stated qualifications do not meet the requirements for the selected specialization.",
			IsActive:        true,
		},
		{
			ID:                   "work_sample_offtopic",
			Category:             models.CategoryQualifications,
			Text:                 "Work samples are unrelated to the claimed specialization",
			MessageTemplate:      "The work samples provided do not demonstrate experience in your claimed specialization. Please provide relevant samples.",
			RequiresResubmission: true,
			IsActive:             true,
		},
		{
			ID:              "portfolio_unreachable",
			Category:        models.CategoryTechnical,
			Text:            "Portfolio link is dead or behind authentication",
			MessageTemplate: "We could not access your portfolio link. Please ensure it is publicly reachable.",
			IsActive:        true,
		},
		{
			ID:              "policy_violation",
			Category:        models.CategoryCompliance,
			Text:            "Submission content violates platform policy",
			MessageTemplate: "Your submission contains content that violates our platform policies.",
			IsActive:        true,
		},
		{
			ID:              "other",
			Category:        models.CategoryOther,
			Text:            "Other (see notes)",
			MessageTemplate: "Your verification could not be approved at this time.",
			IsActive:        true,
		},
	}
}

// DefaultTemplates is the built-in applicant notification template set, one
// active template per message type.
func DefaultTemplates() []*models.MessageTemplate {
	return []*models.MessageTemplate{
		{
			ID:           "tpl_approval",
			Type:         models.MessageApproval,
			Subject:      "Your verification has been approved",
			Body:         "Hi {{userName}},\n\nGreat news: your verification as {{specialization}} has been approved. Your profile now carries the verified badge.\n\nWelcome aboard.",
			Placeholders: []string{"userName", "specialization"},
			IsActive:     true,
		},
		{
			ID:           "tpl_rejection",
			Type:         models.MessageRejection,
			Subject:      "Update on your verification",
			Body:         "Hi {{userName}},\n\nAfter review, we were unable to approve your verification.\n\n{{rejectionDetails}}\n\nReviewer notes: {{reviewNotes}}",
			Placeholders: []string{"userName", "rejectionDetails", "reviewNotes"},
			IsActive:     true,
		},
		{
			ID:           "tpl_more_info",
			Type:         models.MessageMoreInfoRequest,
			Subject:      "We need more information for your verification",
			Body:         "Hi {{userName}},\n\nTo continue reviewing your verification we need the following:\n\n{{requiredFields}}\n\nPlease respond by {{deadline}}.",
			Placeholders: []string{"userName", "requiredFields", "deadline"},
			IsActive:     true,
		},
		{
			ID:           "tpl_resubmission",
			Type:         models.MessageResubmissionGuidance,
			Subject:      "How to resubmit your verification",
			Body:         "Hi {{userName}},\n\nYou can submit a new verification addressing the issues raised. This is resubmission attempt {{resubmissionCount}}.\n\n{{rejectionDetails}}",
			Placeholders: []string{"userName", "resubmissionCount", "rejectionDetails"},
			IsActive:     true,
		},
		{
			ID:           "tpl_status_update",
			Type:         models.MessageStatusUpdate,
			Subject:      "Your verification status has changed",
			Body:         "Hi {{userName}},\n\nYour verification is now under review. We will be in touch if anything further is needed.",
			Placeholders: []string{"userName"},
			IsActive:     true,
		},
	}
}

// SeedReferenceStore loads the default catalog into an in-memory reference
// store. Postgres deployments seed via EnsureSchema instead.
func SeedReferenceStore(s *InMemoryReferenceStore) {
	for _, r := range DefaultReasons() {
		s.PutReason(r)
	}
	for _, t := range DefaultTemplates() {
		s.PutTemplate(t)
	}
}
