package agent

import (
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"
)

// SecurityError is returned when a final answer exposes an identifier of
// a user other than the caller. No text may be returned with it.
type SecurityError struct {
	CallerIdentity string
	Exposed        string
}

func (e *SecurityError) Error() string {
	return "response exposes another user's identifier"
}

func (e *SecurityError) Unwrap() error { return ErrSecurityViolation }

// Status is the HTTP status reported for the violation.
func (e *SecurityError) Status() int { return http.StatusForbidden }

var foreignIDPattern = regexp.MustCompile(
	`(?i)\buser[_\s-]?id["'\s:=]*(?:is\s+)?["']?([0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})`)

// scanForeignIdentity returns a SecurityError when text labels a UUID as a
// user id and that UUID is not the caller's.
func scanForeignIdentity(text, caller string) error {
	for _, m := range foreignIDPattern.FindAllStringSubmatch(text, -1) {
		if !strings.EqualFold(m[1], caller) {
			return &SecurityError{CallerIdentity: caller, Exposed: m[1]}
		}
	}
	return nil
}

// chunkHoldBack is how much streamed text is held back so that a user id
// label and its UUID are seen whole before anything is released.
const chunkHoldBack = 64

// chunkGuard releases streamed text with a hold-back and stops releasing
// for good once the accumulated text exposes a foreign user id.
type chunkGuard struct {
	caller  string
	emit    func(string)
	buf     strings.Builder
	sent    int
	blocked bool
}

func (g *chunkGuard) write(chunk string) {
	if g.blocked {
		return
	}
	g.buf.WriteString(chunk)
	text := g.buf.String()
	if scanForeignIdentity(text, g.caller) != nil {
		g.blocked = true
		return
	}
	safe := len(text) - chunkHoldBack
	for safe > g.sent && !utf8.RuneStart(text[safe]) {
		safe--
	}
	if safe > g.sent {
		g.emit(text[g.sent:safe])
		g.sent = safe
	}
}

// flush releases the held-back tail at the end of a completion.
func (g *chunkGuard) flush() {
	if g.blocked {
		return
	}
	text := g.buf.String()
	if len(text) > g.sent {
		g.emit(text[g.sent:])
		g.sent = len(text)
	}
}
