package notification

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"vetgate/internal/verification/models"
	"vetgate/pkg/email"
)

var placeholderPattern = regexp.MustCompile(`\{\{([a-zA-Z0-9_]+)\}\}`)

// placeholderValues builds the substitution map for a process. Keys are the
// placeholder names templates may reference.
func placeholderValues(p *models.VerificationProcess) map[string]string {
	userName := p.Request.FullName
	if userName == "" && p.Request.Email != "" {
		first, last := email.DeriveNameFromEmail(p.Request.Email)
		userName = first + " " + last
	}
	values := map[string]string{
		"userName":          userName,
		"specialization":    p.Request.Specialization,
		"reviewNotes":       p.ReviewNotes,
		"rejectionDetails":  p.RejectionDetails,
		"requiredFields":    strings.Join(p.RequiredFields, ", "),
		"resubmissionCount": fmt.Sprintf("%d", p.ResubmissionCount),
	}
	if p.MoreInfoDeadline != nil {
		values["deadline"] = p.MoreInfoDeadline.Format(time.DateOnly)
	}
	return values
}

// render substitutes known placeholders and returns the names it could not
// resolve. Unresolved placeholders stay as literal text; the dispatcher logs
// them but never fails over them.
func render(body string, values map[string]string) (string, []string) {
	var unresolved []string
	out := placeholderPattern.ReplaceAllStringFunc(body, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		if v, ok := values[name]; ok && v != "" {
			return v
		}
		unresolved = append(unresolved, name)
		return match
	})
	return out, unresolved
}
