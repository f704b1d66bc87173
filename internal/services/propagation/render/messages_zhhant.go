package render

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func init() {
	lang := language.TraditionalChinese

	message.SetString(lang, "mail.member.waiting.subject", "申請加入通知信 - %s")
	message.SetString(lang, "mail.member.waiting.body",
		"%s 您好，%s 申請加入 %s，請至後台審核。")
	message.SetString(lang, "mail.member.deny.subject", "申請加入 %s 未核准")
	message.SetString(lang, "mail.member.deny.body",
		"%s 您好，您申請加入 %s（%s）未核准。")
	message.SetString(lang, "mail.member.add.subject", "申請加入 %s 核准")
	message.SetString(lang, "mail.member.add.body",
		"%s 您好，歡迎加入 %s！")
	message.SetString(lang, "mail.member.del.subject", "您已被移除 %s 的組員資格！")
	message.SetString(lang, "mail.member.del.body",
		"%s 您好，您已不再是 %s 的組員。")
	message.SetString(lang, "mail.sys.error.subject", "[secretariat] %s")
	message.SetString(lang, "mail.sys.error.body", "%s")
}
