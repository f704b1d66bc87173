package render

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func init() {
	lang := language.English

	message.SetString(lang, "mail.member.waiting.subject", "New membership application - %s")
	message.SetString(lang, "mail.member.waiting.body",
		"Hi %s, %s has applied to join %s. Please review the application in the back office.")
	message.SetString(lang, "mail.member.deny.subject", "Application to %s was not approved")
	message.SetString(lang, "mail.member.deny.body",
		"Hi %s, your application to join %s for %s was not approved this time.")
	message.SetString(lang, "mail.member.add.subject", "Application to %s approved")
	message.SetString(lang, "mail.member.add.body",
		"Hi %s, welcome aboard! Your application to join %s has been approved.")
	message.SetString(lang, "mail.member.del.subject", "You have been removed from %s")
	message.SetString(lang, "mail.member.del.body",
		"Hi %s, you are no longer a member of %s.")
	message.SetString(lang, "mail.sys.error.subject", "[secretariat] %s")
	message.SetString(lang, "mail.sys.error.body", "%s")
}
