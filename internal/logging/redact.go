package logging

import (
	"log/slog"
	"regexp"

	"github.com/m-mizutani/masq"
)

// bearerPattern matches "Bearer <token>" strings appearing as raw values.
var bearerPattern = regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9\-._~+/]+=*`)

// ghTokenPattern matches GitHub token literals (classic and fine-grained
// prefixes) so a token pasted into an arbitrary field still gets masked.
var ghTokenPattern = regexp.MustCompile(`\b(?:ghp|gho|ghu|ghs|ghr|github_pat)_[A-Za-z0-9_]{20,}\b`)

// newRedactAttr returns a masq-powered ReplaceAttr function for use in
// slog.HandlerOptions. The release token flows through env and HTTP headers
// only, but redaction here keeps an accidental log call from leaking it.
func newRedactAttr() func([]string, slog.Attr) slog.Attr {
	return masq.New(
		masq.WithFieldName("Authorization"),
		masq.WithFieldName("token"),
		masq.WithFieldName("secret"),
		masq.WithFieldPrefix("secret_"),
		masq.WithFieldPrefix("access_key"),
		masq.WithRegex(bearerPattern),
		masq.WithRegex(ghTokenPattern),
	)
}
