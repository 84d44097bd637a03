package workflow

import (
	"fmt"
	"path"
	"strings"
)

// DefaultNamespacePrefix is the path prefix identifying files already on shared storage.
const DefaultNamespacePrefix = "/hdfs"

// FileMirror records where one file lives: its original path, its copy (or
// passthrough) on shared storage, and its name in the worker's scratch dir.
type FileMirror struct {
	Original string
	Mirror   string
	Worker   string
}

func (m FileMirror) String() string {
	return fmt.Sprintf("FileMirror(original=%s, mirror=%s, worker=%s)", m.Original, m.Mirror, m.Worker)
}

// NeedsCopy reports whether the original must be copied to reach the mirror.
func (m FileMirror) NeedsCopy() bool {
	return m.Original != m.Mirror
}

// onSharedStore reports whether p already lies under the shared-storage namespace.
// This is a literal prefix match.
func onSharedStore(p, prefix string) bool {
	return strings.HasPrefix(p, prefix)
}

func newMirror(original, mirrorDir, prefix string) FileMirror {
	base := path.Base(original)
	m := FileMirror{Original: original, Mirror: path.Join(mirrorDir, base), Worker: base}
	if onSharedStore(original, prefix) {
		m.Mirror = original
	}
	return m
}
