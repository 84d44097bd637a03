package s3

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/3leaps/gocondense/pkg/provider"
)

// putObjectAPI is the subset of *s3.Client the provider calls.
type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Provider mirrors files as objects in a single bucket.
type Provider struct {
	client    putObjectAPI
	bucket    string
	namespace string
	keyPrefix string
}

var _ provider.Provider = (*Provider)(nil)

// New validates cfg, resolves AWS configuration and builds the client. It
// does not contact the endpoint.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, &provider.ProviderError{Op: "New", Provider: provider.ProviderS3, Bucket: cfg.Bucket, Err: err}
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.ForcePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return newWithClient(client, cfg), nil
}

func newWithClient(client putObjectAPI, cfg Config) *Provider {
	return &Provider{
		client:    client,
		bucket:    cfg.Bucket,
		namespace: cfg.NamespacePrefix,
		keyPrefix: cfg.KeyPrefix,
	}
}

func loadAWSConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	awsCfg.Region = resolveRegion(cfg.Region, cfg.Endpoint, awsCfg.Region)
	return awsCfg, nil
}

// resolveRegion applies the fallback region after the SDK has resolved
// explicit, environment and profile settings. Custom endpoints get none.
func resolveRegion(cfgRegion, endpoint, sdkRegion string) string {
	switch {
	case sdkRegion != "":
		return sdkRegion
	case cfgRegion != "":
		return cfgRegion
	case endpoint == "":
		return DefaultAWSRegion
	}
	return ""
}

// Key maps a shared-storage path to its object key.
func (p *Provider) Key(dst string) string {
	return p.keyPrefix + strings.TrimPrefix(provider.StripNamespace(dst, p.namespace), "/")
}

// CopyFromLocal uploads src as the object for dst, replacing any existing
// object.
func (p *Provider) CopyFromLocal(ctx context.Context, src, dst string) error {
	f, err := os.Open(src)
	if err != nil {
		return p.localError(src, err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return p.localError(src, err)
	}
	if info.IsDir() {
		return p.localError(src, errors.New("source is a directory"))
	}

	key := p.Key(dst)
	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
	})
	if err != nil {
		return p.wrapError("CopyFromLocal", key, err)
	}
	return nil
}

// MkdirAll is a no-op: keys imply their parents.
func (p *Provider) MkdirAll(context.Context, string) error { return nil }

func (p *Provider) Close() error { return nil }

func (p *Provider) localError(src string, err error) error {
	if errors.Is(err, os.ErrNotExist) {
		err = provider.ErrNotFound
	}
	return &provider.ProviderError{Op: "CopyFromLocal", Provider: provider.ProviderS3, Path: src, Err: err}
}

// apiErrorClasses maps S3 error codes onto provider failure classes.
var apiErrorClasses = map[string]error{
	"NoSuchKey":             provider.ErrNotFound,
	"NotFound":              provider.ErrNotFound,
	"NoSuchBucket":          provider.ErrBucketNotFound,
	"AccessDenied":          provider.ErrAccessDenied,
	"Forbidden":             provider.ErrAccessDenied,
	"InvalidAccessKeyId":    provider.ErrInvalidCredentials,
	"SignatureDoesNotMatch": provider.ErrInvalidCredentials,
	"SlowDown":              provider.ErrThrottled,
	"Throttling":            provider.ErrThrottled,
	"RequestLimitExceeded":  provider.ErrThrottled,
	"ServiceUnavailable":    provider.ErrProviderUnavailable,
	"InternalError":         provider.ErrProviderUnavailable,
}

// messageClasses classifies errors that carry no API code, such as raw
// HTTP failures from S3-compatible endpoints. Order matters.
var messageClasses = []struct {
	needles []string
	class   error
}{
	{[]string{"NoSuchBucket"}, provider.ErrBucketNotFound},
	{[]string{"NoSuchKey", "NotFound", "404"}, provider.ErrNotFound},
	{[]string{"AccessDenied", "Forbidden", "403"}, provider.ErrAccessDenied},
	{[]string{"InvalidAccessKeyId", "SignatureDoesNotMatch"}, provider.ErrInvalidCredentials},
	{[]string{"SlowDown", "Throttling", "429"}, provider.ErrThrottled},
	{[]string{"ServiceUnavailable", "503"}, provider.ErrProviderUnavailable},
}

// wrapError classifies an S3 failure. Unclassified errors are kept as-is
// inside the ProviderError.
func (p *Provider) wrapError(op, key string, err error) error {
	return &provider.ProviderError{
		Op:       op,
		Provider: provider.ProviderS3,
		Bucket:   p.bucket,
		Path:     key,
		Err:      classify(err),
	}
}

func classify(err error) error {
	var (
		notFound     *types.NotFound
		noSuchKey    *types.NoSuchKey
		noSuchBucket *types.NoSuchBucket
		apiErr       smithy.APIError
	)
	switch {
	case errors.As(err, &notFound), errors.As(err, &noSuchKey):
		return provider.ErrNotFound
	case errors.As(err, &noSuchBucket):
		return provider.ErrBucketNotFound
	case errors.As(err, &apiErr):
		if class, ok := apiErrorClasses[apiErr.ErrorCode()]; ok {
			return class
		}
		return err
	}

	msg := err.Error()
	for _, mc := range messageClasses {
		for _, n := range mc.needles {
			if strings.Contains(msg, n) {
				return mc.class
			}
		}
	}
	return err
}
