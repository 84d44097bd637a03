package manifest

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// hasGlobMeta reports whether p contains doublestar pattern syntax.
func hasGlobMeta(p string) bool {
	return strings.ContainsAny(p, "*?[{")
}

// resolveLocal anchors a relative local path at base.
func resolveLocal(base, p string) string {
	if p == "" || filepath.IsAbs(p) || base == "" {
		return p
	}
	return filepath.Join(base, p)
}

// expandInputs resolves job input files. Paths under namespacePrefix are
// already on shared storage and pass through untouched. Local patterns
// expand to their sorted matches; a pattern matching nothing is an error.
//
// resolved maps each plain local path as written to the path it resolved
// to, so arguments naming the input can be resolved the same way.
func expandInputs(base, namespacePrefix string, files []string) ([]string, map[string]string, error) {
	out := make([]string, 0, len(files))
	resolved := make(map[string]string, len(files))
	for _, f := range files {
		if namespacePrefix != "" && strings.HasPrefix(f, namespacePrefix) {
			out = append(out, f)
			continue
		}
		local := resolveLocal(base, f)
		if !hasGlobMeta(f) {
			out = append(out, local)
			resolved[f] = local
			continue
		}
		if !doublestar.ValidatePattern(filepath.ToSlash(f)) {
			return nil, nil, fmt.Errorf("input pattern %q: %w", f, doublestar.ErrBadPattern)
		}
		matches, err := doublestar.FilepathGlob(local, doublestar.WithFilesOnly())
		if err != nil {
			return nil, nil, fmt.Errorf("input pattern %q: %w", f, err)
		}
		if len(matches) == 0 {
			return nil, nil, fmt.Errorf("input pattern %q matched no files", f)
		}
		sort.Strings(matches)
		out = append(out, matches...)
	}
	return out, resolved, nil
}

// resolveArgs replaces every argument equal to an input path as written
// with its resolved path. Job argument rewriting matches on the resolved
// path, so without this a relative input named in the arguments would reach
// the worker unrewritten.
func resolveArgs(args []string, resolved map[string]string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		if r, ok := resolved[a]; ok {
			a = r
		}
		out[i] = a
	}
	return out
}
