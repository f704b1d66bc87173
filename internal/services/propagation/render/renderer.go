// Package render produces localized membership mail copy.
package render

import (
	"strings"

	"github.com/eventcrew/secretariat/internal/changelog"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Localizer is the minimal message-printer contract required by the renderer.
type Localizer interface {
	Sprintf(key message.Reference, args ...any) string
}

// NewLocalizer returns a printer for the given BCP 47 tag, falling back to
// Traditional Chinese, the organizer's default mail language.
func NewLocalizer(tag string) Localizer {
	parsed, err := language.Parse(strings.TrimSpace(tag))
	if err != nil {
		parsed = language.TraditionalChinese
	}
	return message.NewPrinter(parsed)
}

// Input carries the resolved context for one membership mail.
type Input struct {
	Case          changelog.Case
	RecipientName string
	ApplicantName string
	TeamName      string
	ProjectName   string
}

// Output is one rendered mail.
type Output struct {
	Subject string
	Body    string
}

// Render returns the subject and body for one membership mail.
func Render(loc Localizer, input Input) Output {
	switch input.Case {
	case changelog.CaseWaiting:
		return Output{
			Subject: localize(loc, "mail.member.waiting.subject", input.ApplicantName),
			Body:    localize(loc, "mail.member.waiting.body", input.RecipientName, input.ApplicantName, input.TeamName),
		}
	case changelog.CaseDeny:
		return Output{
			Subject: localize(loc, "mail.member.deny.subject", input.TeamName),
			Body:    localize(loc, "mail.member.deny.body", input.RecipientName, input.TeamName, input.ProjectName),
		}
	case changelog.CaseAdd:
		return Output{
			Subject: localize(loc, "mail.member.add.subject", input.TeamName),
			Body:    localize(loc, "mail.member.add.body", input.RecipientName, input.TeamName),
		}
	case changelog.CaseDel:
		return Output{
			Subject: localize(loc, "mail.member.del.subject", input.TeamName),
			Body:    localize(loc, "mail.member.del.body", input.RecipientName, input.TeamName),
		}
	}
	return Output{}
}

// RenderSystemError returns the admin alert mail for one reported failure.
func RenderSystemError(loc Localizer, title, detail string) Output {
	return Output{
		Subject: localize(loc, "mail.sys.error.subject", title),
		Body:    localize(loc, "mail.sys.error.body", detail),
	}
}

func localize(loc Localizer, key message.Reference, args ...any) string {
	if loc == nil {
		if asString, ok := key.(string); ok {
			return asString
		}
		return ""
	}
	return loc.Sprintf(key, args...)
}
