// Package s3 places shared-storage mirrors in AWS S3 or an S3-compatible store.
//
// A namespaced path such as /hdfs/user/alice/job/in.txt becomes the object key
// <KeyPrefix>user/alice/job/in.txt: the namespace prefix is stripped and the
// leading slash dropped. Directories do not exist in object stores, so
// MkdirAll is a no-op.
package s3

// DefaultAWSRegion applies when neither the config, the environment nor a
// profile names a region and no custom endpoint is set.
const DefaultAWSRegion = "us-east-1"

// Config configures an S3 provider.
//
// Credentials come from the SDK default chain (environment, shared files,
// instance or task roles) unless AccessKeyID and SecretAccessKey are both
// set. Profile selects a shared-config profile.
//
// For S3-compatible stores such as MinIO or moto, set Endpoint and usually
// ForcePathStyle. No default region is applied when Endpoint is set.
type Config struct {
	Bucket   string
	Region   string
	Endpoint string
	Profile  string

	AccessKeyID     string
	SecretAccessKey string

	ForcePathStyle bool

	// NamespacePrefix is stripped from shared-storage paths before they
	// become object keys (e.g. "/hdfs").
	NamespacePrefix string

	// KeyPrefix is prepended to every object key (e.g. "mirror/").
	KeyPrefix string
}

// Validate reports the first missing or inconsistent setting.
func (c *Config) Validate() error {
	switch {
	case c.Bucket == "":
		return &ConfigError{Field: "Bucket", Message: "bucket name is required"}
	case (c.AccessKeyID == "") != (c.SecretAccessKey == ""):
		return &ConfigError{
			Field:   "AccessKeyID/SecretAccessKey",
			Message: "both access key ID and secret access key must be provided together",
		}
	}
	return nil
}

// ConfigError is returned by Validate and New for unusable settings.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "s3 config: " + e.Field + ": " + e.Message
}
