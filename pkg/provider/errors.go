package provider

import (
	"errors"
	"fmt"
	"path"
)

// Failure classes shared by every backend. Backends translate their native
// errors into one of these and wrap it in a *ProviderError.
var (
	ErrNotFound            = errors.New("file not found")
	ErrAccessDenied        = errors.New("access denied")
	ErrBucketNotFound      = errors.New("bucket not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrThrottled           = errors.New("request throttled")
)

// ProviderError records which backend operation failed and where.
type ProviderError struct {
	Op       string // CopyFromLocal, MkdirAll, New
	Provider ProviderType

	// Bucket is set by object-store backends only.
	Bucket string

	// Path is the shared-storage path or object key.
	Path string

	Err error
}

func (e *ProviderError) Error() string {
	where := e.Bucket
	switch {
	case e.Bucket != "" && e.Path != "":
		where = path.Join(e.Bucket, e.Path)
	case e.Path != "":
		where = e.Path
	}
	if where == "" {
		return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %s: %v", e.Provider, e.Op, where, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func IsNotFound(err error) bool            { return errors.Is(err, ErrNotFound) }
func IsAccessDenied(err error) bool        { return errors.Is(err, ErrAccessDenied) }
func IsBucketNotFound(err error) bool      { return errors.Is(err, ErrBucketNotFound) }
func IsInvalidCredentials(err error) bool  { return errors.Is(err, ErrInvalidCredentials) }
func IsProviderUnavailable(err error) bool { return errors.Is(err, ErrProviderUnavailable) }
func IsThrottled(err error) bool           { return errors.Is(err, ErrThrottled) }
