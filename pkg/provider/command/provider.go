// Package command implements the provider interface by shelling out to an
// external distributed-store client such as `hadoop fs`.
package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/3leaps/gocondense/pkg/provider"
	"github.com/3leaps/gocondense/pkg/scheduler"
)

// Default command lines for HDFS.
const (
	DefaultCopyCommand  = "hadoop fs -copyFromLocal -f {src} {dst}"
	DefaultMkdirCommand = "hadoop fs -mkdir -p {dir}"
)

type Config struct {
	// CopyCommand is the copy command line. {src} and {dst} are replaced by
	// the source and destination; if absent, they are appended in that order.
	CopyCommand string

	// MkdirCommand creates a directory; {dir} is replaced or appended.
	// Empty disables directory creation (many clients create parents on copy).
	MkdirCommand string

	// NamespacePrefix is stripped from destinations before invoking the client,
	// since `hadoop fs` addresses paths relative to the filesystem root.
	NamespacePrefix string

	// KeepNamespace passes destinations through unchanged.
	KeepNamespace bool
}

// Provider runs one external command per operation.
type Provider struct {
	runner scheduler.Runner
	copy   []string
	mkdir  []string
	cfg    Config
}

var _ provider.Provider = (*Provider)(nil)

func New(runner scheduler.Runner, cfg Config) (*Provider, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if strings.TrimSpace(cfg.CopyCommand) == "" {
		cfg.CopyCommand = DefaultCopyCommand
	}
	cp, err := scheduler.SplitCommand(cfg.CopyCommand)
	if err != nil {
		return nil, fmt.Errorf("copy command: %w", err)
	}
	p := &Provider{runner: runner, copy: cp, cfg: cfg}
	if strings.TrimSpace(cfg.MkdirCommand) != "" {
		mk, err := scheduler.SplitCommand(cfg.MkdirCommand)
		if err != nil {
			return nil, fmt.Errorf("mkdir command: %w", err)
		}
		p.mkdir = mk
	}
	return p, nil
}

func (p *Provider) Close() error { return nil }

func (p *Provider) CopyFromLocal(ctx context.Context, src, dst string) error {
	argv := expand(p.copy, map[string]string{"src": src, "dst": p.target(dst)}, []string{"src", "dst"})
	if err := p.runner.Run(ctx, argv[0], argv[1:]...); err != nil {
		return &provider.ProviderError{Op: "CopyFromLocal", Provider: provider.ProviderCommand, Path: dst, Err: err}
	}
	return nil
}

func (p *Provider) MkdirAll(ctx context.Context, dir string) error {
	if len(p.mkdir) == 0 {
		return nil
	}
	argv := expand(p.mkdir, map[string]string{"dir": p.target(dir)}, []string{"dir"})
	if err := p.runner.Run(ctx, argv[0], argv[1:]...); err != nil {
		return &provider.ProviderError{Op: "MkdirAll", Provider: provider.ProviderCommand, Path: dir, Err: err}
	}
	return nil
}

func (p *Provider) target(path string) string {
	if p.cfg.KeepNamespace {
		return path
	}
	return provider.StripNamespace(path, p.cfg.NamespacePrefix)
}

// expand substitutes {name} placeholders in argv, one pass per name in
// order. Each argument is scanned once for every placeholder, so a
// substituted value is never expanded again. Names in order that never
// appeared are appended, in order, after the other arguments.
func expand(argv []string, values map[string]string, order []string) []string {
	out := make([]string, 0, len(argv)+len(order))
	seen := make(map[string]bool, len(order))
	pairs := make([]string, 0, 2*len(order))
	for _, k := range order {
		pairs = append(pairs, "{"+k+"}", values[k])
	}
	r := strings.NewReplacer(pairs...)
	for _, a := range argv {
		for _, k := range order {
			if strings.Contains(a, "{"+k+"}") {
				seen[k] = true
			}
		}
		out = append(out, r.Replace(a))
	}
	for _, k := range order {
		if !seen[k] {
			out = append(out, values[k])
		}
	}
	return out
}
