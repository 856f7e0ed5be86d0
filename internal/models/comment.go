package models

import (
	"regexp"
	"strings"
	"sync"
)

// Comments written to JIRA on behalf of a platform user are authored
// by the single service account, so the real author is embedded in
// the comment body through a template such as
//
//	{body}\n\n_(added by {user.full_name} [{user.username}])_
//
// PrepareMessage applies the template on egress; CleanMessage parses
// the suffix back out on ingestion.

// PrepareMessage renders the author-embedding template. With an empty
// template or a nil user the body is returned unchanged.
func PrepareMessage(template string, user *User, body string) string {
	if template == "" || user == nil {
		return body
	}
	r := strings.NewReplacer(
		"{body}", body,
		"{user.full_name}", user.FullName,
		"{user.username}", user.Username,
	)
	return r.Replace(template)
}

// CleanMessage strips the rendered author suffix from a remote comment
// body. It returns the original body and the embedded username, or
// the message unchanged and "" when no suffix matches.
func CleanMessage(template, message string) (body, username string) {
	if template == "" {
		return message, ""
	}
	re, err := cleanPattern(template)
	if err != nil {
		return message, ""
	}
	loc := re.FindStringSubmatchIndex(message)
	if loc == nil {
		return message, ""
	}
	// Submatch order follows placeholder order in the template.
	groups := re.FindStringSubmatch(message)
	username = groups[len(groups)-1]
	if strings.Contains(template, "{user.username}") &&
		strings.Contains(template, "{user.full_name}") &&
		strings.Index(template, "{user.username}") < strings.Index(template, "{user.full_name}") {
		username = groups[1]
	}
	return message[:loc[0]], username
}

var (
	patternMu    sync.Mutex
	patternCache = map[string]*regexp.Regexp{}
)

// cleanPattern builds a regexp from the template: literal text is
// quoted, {body} matches the empty prefix boundary, and the user
// placeholders become capture groups.
func cleanPattern(template string) (*regexp.Regexp, error) {
	patternMu.Lock()
	defer patternMu.Unlock()
	if re, ok := patternCache[template]; ok {
		return re, nil
	}
	quoted := regexp.QuoteMeta(template)
	quoted = strings.ReplaceAll(quoted, regexp.QuoteMeta("{body}"), "")
	quoted = strings.ReplaceAll(quoted, regexp.QuoteMeta("{user.full_name}"), `(.+?)`)
	quoted = strings.ReplaceAll(quoted, regexp.QuoteMeta("{user.username}"), `([\w.@+-]+)`)
	re, err := regexp.Compile(quoted)
	if err != nil {
		return nil, err
	}
	patternCache[template] = re
	return re, nil
}
