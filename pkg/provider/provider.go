// Package provider defines abstractions for the shared-storage mirror.
//
// A provider places local files at shared-storage paths (the distributed-store
// copy primitive). Paths are absolute and live under a namespace prefix such
// as "/hdfs"; each backend decides how a namespaced path maps onto its store.
// Copies overwrite existing destinations, so retrying a submission is safe.
package provider

import (
	"context"
	"strings"
)

// Provider copies local files onto shared storage.
//
// Implementations should:
//   - Overwrite existing destinations
//   - Block until the copy is complete
//   - Return a *ProviderError on failure
type Provider interface {
	// CopyFromLocal copies the local file src to the shared-storage path dst.
	CopyFromLocal(ctx context.Context, src, dst string) error

	// MkdirAll ensures dir exists on shared storage. Object stores may no-op.
	MkdirAll(ctx context.Context, dir string) error

	// Close releases any resources held by the provider.
	Close() error
}

// StripNamespace removes prefix from p, returning a rooted path.
//
//	StripNamespace("/hdfs/user/a/x.txt", "/hdfs") == "/user/a/x.txt"
func StripNamespace(p, prefix string) string {
	if prefix == "" || !strings.HasPrefix(p, prefix) {
		return p
	}
	out := strings.TrimPrefix(p, prefix)
	if !strings.HasPrefix(out, "/") {
		out = "/" + out
	}
	return out
}

// ProviderType identifies a shared-storage backend.
type ProviderType string

const (
	// ProviderCommand runs an external copy command (e.g. hadoop fs).
	ProviderCommand ProviderType = "command"

	// ProviderFile copies onto a locally mounted filesystem.
	ProviderFile ProviderType = "file"

	// ProviderS3 represents AWS S3 or S3-compatible storage.
	ProviderS3 ProviderType = "s3"
)

// String returns the string representation of the provider type.
func (p ProviderType) String() string {
	return string(p)
}
