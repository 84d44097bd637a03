package file

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/3leaps/gocondense/pkg/provider"
)

// Provider implements provider.Provider for shared storage mounted on the
// submission host (for example a FUSE mount of HDFS at /hdfs).
//
// When MountDir is set, the namespace prefix of each destination is replaced
// by MountDir; otherwise destinations are used as local paths unchanged.
type Provider struct {
	prefix   string
	mountDir string
}

// Ensure Provider implements provider.Provider.
var _ provider.Provider = (*Provider)(nil)

type Config struct {
	// NamespacePrefix is the shared-storage prefix, e.g. "/hdfs".
	NamespacePrefix string

	// MountDir optionally remaps NamespacePrefix to a local directory.
	MountDir string
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.MountDir) != "" && strings.TrimSpace(c.NamespacePrefix) == "" {
		return fmt.Errorf("namespace prefix is required when mount dir is set")
	}
	return nil
}

func New(cfg Config) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Provider{prefix: cfg.NamespacePrefix}
	if cfg.MountDir != "" {
		p.mountDir = filepath.Clean(cfg.MountDir)
	}
	return p, nil
}

func (p *Provider) Close() error { return nil }

func (p *Provider) MkdirAll(ctx context.Context, dir string) error {
	_ = ctx
	full, err := p.localPath(dir)
	if err != nil {
		return p.wrapError("MkdirAll", dir, err)
	}
	if err := os.MkdirAll(full, 0o755); err != nil {
		return p.wrapError("MkdirAll", dir, err)
	}
	return nil
}

// CopyFromLocal copies src to dst via a temp file and rename, so readers never
// observe a partially written file. The source file mode is preserved.
func (p *Provider) CopyFromLocal(ctx context.Context, src, dst string) error {
	_ = ctx
	full, err := p.localPath(dst)
	if err != nil {
		return p.wrapError("CopyFromLocal", dst, err)
	}

	in, err := os.Open(src)
	if err != nil {
		return p.wrapError("CopyFromLocal", src, err)
	}
	defer func() { _ = in.Close() }()

	st, err := in.Stat()
	if err != nil {
		return p.wrapError("CopyFromLocal", src, err)
	}
	if st.IsDir() {
		return p.wrapError("CopyFromLocal", src, fmt.Errorf("source is a directory"))
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return p.wrapError("CopyFromLocal", dst, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), "gocondense-put-*")
	if err != nil {
		return p.wrapError("CopyFromLocal", dst, err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := io.Copy(tmp, in); err != nil {
		return p.wrapError("CopyFromLocal", dst, err)
	}
	if err := tmp.Chmod(st.Mode().Perm()); err != nil {
		return p.wrapError("CopyFromLocal", dst, err)
	}
	if err := tmp.Close(); err != nil {
		return p.wrapError("CopyFromLocal", dst, err)
	}

	if err := os.Rename(tmpName, full); err != nil {
		return p.wrapError("CopyFromLocal", dst, err)
	}
	return nil
}

// localPath maps a shared-storage path to the local filesystem.
func (p *Provider) localPath(sharedPath string) (string, error) {
	sharedPath = strings.TrimSpace(sharedPath)
	if sharedPath == "" {
		return "", fmt.Errorf("empty path")
	}
	if p.mountDir == "" {
		return filepath.Clean(sharedPath), nil
	}
	if !strings.HasPrefix(sharedPath, p.prefix) {
		return "", fmt.Errorf("path %q is outside namespace %q", sharedPath, p.prefix)
	}
	rel := strings.TrimPrefix(provider.StripNamespace(sharedPath, p.prefix), "/")
	// Prevent path traversal.
	clean := strings.TrimPrefix(filepath.Clean("/"+rel), "/")
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("invalid path")
	}
	return filepath.Join(p.mountDir, filepath.FromSlash(clean)), nil
}

func (p *Provider) wrapError(op, path string, err error) error {
	wrapped := &provider.ProviderError{Op: op, Provider: provider.ProviderFile, Path: path, Err: err}
	if err == nil {
		wrapped.Err = fmt.Errorf("unknown error")
	}
	// Normalize common filesystem errors to provider sentinels.
	if os.IsNotExist(err) {
		wrapped.Err = provider.ErrNotFound
	}
	if os.IsPermission(err) {
		wrapped.Err = provider.ErrAccessDenied
	}
	return wrapped
}
