// Package cloudtest provides helpers for exercising the S3 mirror backend
// against a local moto server. Tests using it carry the cloudintegration
// build tag and skip themselves when the server is unreachable.
//
//	func TestMirror(t *testing.T) {
//	    cloudtest.SkipIfUnavailable(t)
//	    bucket := cloudtest.CreateBucket(t, ctx)
//	    // ... copy through the s3 provider ...
//	    got := cloudtest.GetObject(t, ctx, bucket, "user/alice/in.txt")
//	}
package cloudtest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const (
	// DefaultEndpoint avoids port 5000, which macOS reserves for AirPlay.
	DefaultEndpoint = "http://localhost:5555"
	DefaultRegion   = "us-east-1"

	// moto accepts any credentials.
	TestAccessKeyID     = "testing"
	TestSecretAccessKey = "testing"
)

var (
	Endpoint = envOr("MOTO_ENDPOINT", DefaultEndpoint)
	Region   = envOr("MOTO_REGION", DefaultRegion)
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Available reports whether the moto management API answers.
func Available() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, Endpoint+"/moto-api/", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func SkipIfUnavailable(t testing.TB) {
	t.Helper()
	if !Available() {
		t.Skipf("moto server not available at %s", Endpoint)
	}
}

// Client returns an S3 client for moto, shared across tests.
var Client = sync.OnceValues(func() (*s3.Client, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(TestAccessKeyID, TestSecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load moto config: %w", err)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(Endpoint)
		o.UsePathStyle = true
	}), nil
})

func mustClient(t testing.TB) *s3.Client {
	t.Helper()
	c, err := Client()
	if err != nil {
		t.Fatalf("s3 client: %v", err)
	}
	return c
}

var invalidBucketChars = regexp.MustCompile(`[^a-z0-9-]+`)

// bucketName derives a unique, valid bucket name from the test name.
func bucketName(testName string) string {
	name := strings.Trim(invalidBucketChars.ReplaceAllString(strings.ToLower(testName), "-"), "-")
	if len(name) > 40 {
		name = name[:40]
	}
	return fmt.Sprintf("%s-%d", name, time.Now().UnixNano()%1_000_000)
}

// CreateBucket creates an empty bucket that is emptied and removed when the
// test ends.
func CreateBucket(t testing.TB, ctx context.Context) string {
	t.Helper()
	name := bucketName(t.Name())
	if _, err := mustClient(t).CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(name)}); err != nil {
		t.Fatalf("create bucket %s: %v", name, err)
	}
	t.Cleanup(func() { DeleteBucket(t, context.Background(), name) })
	return name
}

// DeleteBucket removes every object and then the bucket. Failures are
// logged, not fatal, since it runs during cleanup.
func DeleteBucket(t testing.TB, ctx context.Context, bucket string) {
	t.Helper()
	c := mustClient(t)
	keys, err := listKeys(ctx, c, bucket, "")
	if err != nil {
		t.Logf("list %s: %v", bucket, err)
		return
	}
	for _, k := range keys {
		if _, err := c.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(bucket), Key: aws.String(k)}); err != nil {
			t.Logf("delete %s/%s: %v", bucket, k, err)
		}
	}
	if _, err := c.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(bucket)}); err != nil {
		t.Logf("delete bucket %s: %v", bucket, err)
	}
}

// GetObject returns an object's content, failing the test if it is missing.
func GetObject(t testing.TB, ctx context.Context, bucket, key string) []byte {
	t.Helper()
	out, err := mustClient(t).GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		t.Fatalf("get %s/%s: %v", bucket, key, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		t.Fatalf("read %s/%s: %v", bucket, key, err)
	}
	return data
}

// ListKeys returns every key under prefix.
func ListKeys(t testing.TB, ctx context.Context, bucket, prefix string) []string {
	t.Helper()
	keys, err := listKeys(ctx, mustClient(t), bucket, prefix)
	if err != nil {
		t.Fatalf("list %s/%s: %v", bucket, prefix, err)
	}
	return keys
}

func listKeys(ctx context.Context, c *s3.Client, bucket, prefix string) ([]string, error) {
	var keys []string
	pages := s3.NewListObjectsV2Paginator(c, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}
