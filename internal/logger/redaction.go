package logger

import (
	"fmt"
	"io"
	"regexp"
)

const redacted = "[REDACTED]"

// sensitiveKeys names the fields whose values never reach a log line. It
// covers tool arguments, oracle provider settings and forwarded headers.
const sensitiveKeys = `api[_-]?key|x-api-key|access[_-]?token|refresh[_-]?token|token|password|passwd|secret|client[_-]?secret|authorization`

// rule replaces matches of re with repl, which may reference groups
type rule struct {
	re   *regexp.Regexp
	repl string
}

// Redactor masks credentials in log output. Values of sensitive JSON keys are
// replaced in place so the line stays valid JSON for the console writer.
type Redactor struct {
	rules []rule
}

// NewRedactor creates a redactor with the built-in rules
func NewRedactor() *Redactor {
	return &Redactor{
		rules: []rule{
			// "password":"hunter2" in an event field or a logged argument map
			{
				re:   regexp.MustCompile(`(?i)("(?:` + sensitiveKeys + `)"\s*:\s*)"(?:[^"\\]|\\.)*"`),
				repl: `${1}"` + redacted + `"`,
			},
			// the same pair inside a string field, where quotes are escaped
			{
				re:   regexp.MustCompile(`(?i)(\\"(?:` + sensitiveKeys + `)\\"\s*:\s*)\\"(?:[^"\\]|\\[^"])*\\"`),
				repl: `${1}\"` + redacted + `\"`,
			},
			// token=abc in query strings and Authorization: Basic abc in headers
			{
				re:   regexp.MustCompile(`(?i)\b(` + sensitiveKeys + `)(=|:\s*)(?:(?:bearer|basic)\s+)?[^\s"\\&,;}]+`),
				repl: `${1}${2}` + redacted,
			},
			{re: regexp.MustCompile(`Bearer\s+[a-zA-Z0-9._~+/-]+=*`), repl: "Bearer " + redacted},
			// provider keys anywhere in free text
			{re: regexp.MustCompile(`sk-(?:ant-)?[a-zA-Z0-9_-]{20,}`), repl: redacted},
			{re: regexp.MustCompile(`AKIA[0-9A-Z]{16}`), repl: redacted},
		},
	}
}

// AddPattern masks every match of pattern. Patterns come from the
// logging.redact_patterns setting.
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("invalid redact pattern %q: %w", pattern, err)
	}
	r.rules = append(r.rules, rule{re: re, repl: redacted})
	return nil
}

// Redact masks sensitive values in s
func (r *Redactor) Redact(s string) string {
	for _, rl := range r.rules {
		s = rl.re.ReplaceAllString(s, rl.repl)
	}
	return s
}

// Wrap returns a writer that redacts each write before passing it to w
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{
		writer:   w,
		redactor: r,
	}
}

type redactingWriter struct {
	writer   io.Writer
	redactor *Redactor
}

// Write reports len(p) on success so zerolog does not treat the shorter or
// longer redacted line as a short write.
func (w *redactingWriter) Write(p []byte) (n int, err error) {
	if _, err := w.writer.Write([]byte(w.redactor.Redact(string(p)))); err != nil {
		return 0, err
	}
	return len(p), nil
}
