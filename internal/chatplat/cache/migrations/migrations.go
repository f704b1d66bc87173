// Package migrations embeds the chat-user cache schema migrations.
package migrations

import "embed"

// FS holds the ordered SQL migration files.
//
//go:embed *.sql
var FS embed.FS
