// Package descriptor renders scheduler submit descriptors from token templates.
package descriptor

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	templatesassets "github.com/3leaps/gocondense/internal/assets/templates"
)

// Tokens substituted into job descriptor templates.
const (
	TokenExeWrapper          = "EXE_WRAPPER"
	TokenStdout              = "STDOUT"
	TokenStderr              = "STDERR"
	TokenStdlog              = "STDLOG"
	TokenCPUs                = "CPUS"
	TokenMemory              = "MEMORY"
	TokenDisk                = "DISK"
	TokenTransferInputFiles  = "TRANSFER_INPUT_FILES"
	TokenTransferOutputFiles = "TRANSFER_OUTPUT_FILES"
	TokenOtherArgs           = "OTHER_ARGS"
)

var tokenName = regexp.MustCompile(`^\w*$`)

type templatePart interface {
	append(dst *strings.Builder, values map[string]string)
}

type literalPart string

type tokenPart string

func (p literalPart) append(dst *strings.Builder, _ map[string]string) {
	dst.WriteString(string(p))
}

// Tokens with no value (or an empty one) render as nothing.
func (p tokenPart) append(dst *strings.Builder, values map[string]string) {
	dst.WriteString(values[string(p)])
}

// Template is a compiled descriptor template.
//
// A placeholder is `{NAME}` where NAME is a run of word characters. Braces
// that do not enclose a word are kept literally.
type Template struct {
	parts []templatePart
}

// Compile parses text into a Template. It never fails: malformed placeholders
// are treated as literal text.
func Compile(text string) *Template {
	var parts []templatePart
	s := text
	for len(s) > 0 {
		open := strings.IndexByte(s, '{')
		if open == -1 {
			parts = append(parts, literalPart(s))
			break
		}
		closeIdx := strings.IndexByte(s[open:], '}')
		if closeIdx == -1 {
			parts = append(parts, literalPart(s))
			break
		}
		closeIdx += open

		name := s[open+1 : closeIdx]
		if !tokenName.MatchString(name) {
			// Not a placeholder; keep the brace and rescan after it.
			parts = append(parts, literalPart(s[:open+1]))
			s = s[open+1:]
			continue
		}
		if open > 0 {
			parts = append(parts, literalPart(s[:open]))
		}
		parts = append(parts, tokenPart(name))
		s = s[closeIdx+1:]
	}
	return &Template{parts: parts}
}

// Default returns the built-in HTCondor job template.
func Default() *Template {
	return Compile(string(templatesassets.JobTemplate))
}

// Load reads and compiles a template file.
func Load(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read descriptor template: %w", err)
	}
	return Compile(string(data)), nil
}

// Render substitutes values into the template. Placeholders without a
// non-empty value are removed.
func (t *Template) Render(values map[string]string) string {
	var b strings.Builder
	for _, part := range t.parts {
		part.append(&b, values)
	}
	return b.String()
}

// Tokens returns the distinct placeholder names in the template, sorted.
func (t *Template) Tokens() []string {
	seen := make(map[string]struct{})
	for _, part := range t.parts {
		if tok, ok := part.(tokenPart); ok {
			seen[string(tok)] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Unused returns the template placeholders that values leaves empty.
func (t *Template) Unused(values map[string]string) []string {
	var out []string
	for _, tok := range t.Tokens() {
		if values[tok] == "" {
			out = append(out, tok)
		}
	}
	return out
}
