package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "vetgate/pkg/domain-errors"
)

var allStatuses = []Status{
	StatusPending, StatusUnderReview, StatusRequiresMoreInfo,
	StatusResubmitted, StatusApproved, StatusRejected,
}

var allActions = []Action{
	ActionAssign, ActionApprove, ActionReject, ActionRequestInfo, ActionResubmit,
}

// legal mirrors the transition table of the review workflow; the test walks
// the full status x action grid against it.
var legal = map[Action]map[Status]Status{
	ActionAssign: {
		StatusPending:     StatusUnderReview,
		StatusUnderReview: StatusUnderReview,
		StatusResubmitted: StatusUnderReview,
	},
	ActionApprove: {
		StatusPending:     StatusApproved,
		StatusUnderReview: StatusApproved,
		StatusResubmitted: StatusApproved,
	},
	ActionReject: {
		StatusPending:     StatusRejected,
		StatusUnderReview: StatusRejected,
		StatusResubmitted: StatusRejected,
	},
	ActionRequestInfo: {
		StatusPending:     StatusRequiresMoreInfo,
		StatusUnderReview: StatusRequiresMoreInfo,
	},
	ActionResubmit: {
		StatusRequiresMoreInfo: StatusResubmitted,
	},
}

func validParams(action Action) TransitionParams {
	switch action {
	case ActionAssign:
		return TransitionParams{Reviewer: "rev-1"}
	case ActionReject:
		return TransitionParams{ReasonIDs: []string{"doc_quality"}}
	case ActionRequestInfo:
		return TransitionParams{RequiredFields: []string{"portfolioUrl"}}
	case ActionResubmit:
		return TransitionParams{UpdatedRequest: &VerificationRequest{}}
	default:
		return TransitionParams{}
	}
}

func TestTransitionGrid(t *testing.T) {
	for _, from := range allStatuses {
		for _, action := range allActions {
			err := ValidateTransition(from, action, validParams(action))
			if to, ok := legal[action][from]; ok {
				require.NoErrorf(t, err, "%s from %s should be legal", action, from)
				got, found := NextStatus(from, action)
				require.True(t, found)
				assert.Equal(t, to, got)
			} else {
				require.Errorf(t, err, "%s from %s should be illegal", action, from)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition),
					"%s from %s: expected invalid_transition, got %v", action, from, err)
			}
		}
	}
}

func TestValidateTransition_ParamRequirements(t *testing.T) {
	cases := []struct {
		name   string
		action Action
		params TransitionParams
		field  string
	}{
		{"reject without reasons", ActionReject, TransitionParams{}, "reasonIds"},
		{"more-info without fields", ActionRequestInfo, TransitionParams{}, "requiredFields"},
		{"assign without reviewer", ActionAssign, TransitionParams{}, "reviewer"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateTransition(StatusPending, tc.action, tc.params)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
			var de *dErrors.Error
			require.ErrorAs(t, err, &de)
			assert.Contains(t, de.Fields, tc.field)
		})
	}
}

func TestApplyTransition_Reject(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	p := &VerificationProcess{Status: StatusUnderReview}

	ApplyTransition(p, ActionReject, TransitionParams{
		ReasonIDs:            []string{"doc_quality", "portfolio_weak"},
		RejectionDetails:     "blurry scans",
		Notes:                "second reviewer agreed",
		RequiresResubmission: true,
	}, now)

	assert.Equal(t, StatusRejected, p.Status)
	require.NotNil(t, p.CompletedAt)
	assert.Equal(t, now, *p.CompletedAt)
	assert.Equal(t, []string{"doc_quality", "portfolio_weak"}, p.RejectionReasons)
	assert.Equal(t, "blurry scans", p.RejectionDetails)
	assert.Equal(t, "second reviewer agreed", p.ReviewNotes)
	assert.True(t, p.RequiresResubmission)
	assert.Equal(t, now, p.UpdatedAt)
}

func TestApplyTransition_AssignKeepsFirstReviewStart(t *testing.T) {
	first := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)
	p := &VerificationProcess{Status: StatusPending}

	ApplyTransition(p, ActionAssign, TransitionParams{Reviewer: "rev-1"}, first)
	require.NotNil(t, p.ReviewStartedAt)
	assert.Equal(t, first, *p.ReviewStartedAt)

	ApplyTransition(p, ActionAssign, TransitionParams{Reviewer: "rev-2"}, second)
	assert.Equal(t, "rev-2", p.AssignedReviewer)
	assert.Equal(t, first, *p.ReviewStartedAt, "reassignment must not reset reviewStartedAt")
}

func TestApplyTransition_ResubmitMergesPayloadAndClearsMoreInfo(t *testing.T) {
	now := time.Now().UTC()
	deadline := now.Add(72 * time.Hour)
	p := &VerificationProcess{
		Status:            StatusRequiresMoreInfo,
		ResubmissionCount: 1,
		RequiredFields:    []string{"portfolioUrl"},
		MoreInfoDeadline:  &deadline,
	}
	updated := &VerificationRequest{FullName: "Dana Architect", PortfolioURL: "https://folio.example"}

	ApplyTransition(p, ActionResubmit, TransitionParams{UpdatedRequest: updated}, now)

	assert.Equal(t, StatusResubmitted, p.Status)
	assert.Equal(t, 2, p.ResubmissionCount)
	assert.Equal(t, "https://folio.example", p.Request.PortfolioURL)
	assert.Nil(t, p.RequiredFields)
	assert.Nil(t, p.MoreInfoDeadline)
}
