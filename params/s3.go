package params

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/vocdoni/zkparams/log"
)

const defaultS3Region = "us-east-1"

// S3Config holds the settings of the client used for s3://bucket/key
// locations. Works with AWS, DigitalOcean Spaces and MinIO.
type S3Config struct {
	// Endpoint overrides the service endpoint, e.g.
	// "ams3.digitaloceanspaces.com" or "http://127.0.0.1:9000". A missing
	// scheme means https.
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	// UsePathStyle addresses buckets as endpoint/bucket instead of
	// bucket.endpoint.
	UsePathStyle bool
}

// NewDefaultS3Config returns the settings for the DigitalOcean Spaces
// endpoint where the parameters are published.
func NewDefaultS3Config() *S3Config {
	return &S3Config{
		Endpoint:     "ams3.digitaloceanspaces.com",
		Region:       defaultS3Region,
		UsePathStyle: true,
	}
}

// newS3Client creates an S3 client from cfg. Without static credentials the
// default AWS credential chain is used.
func newS3Client(ctx context.Context, cfg *S3Config) (*s3.Client, error) {
	if cfg == nil {
		cfg = &S3Config{}
	}
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cmp.Or(cfg.Region, defaultS3Region)),
	}
	if cfg.AccessKey != "" || cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	sdkConfig, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS SDK config: %w", err)
	}
	return s3.NewFromConfig(sdkConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			endpoint := cfg.Endpoint
			if !strings.Contains(endpoint, "://") {
				endpoint = "https://" + endpoint
			}
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

// parseS3Location splits s3://bucket/key into its bucket and key.
func parseS3Location(location string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(location, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3 location: %q", location)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 location %q needs a bucket and a key", location)
	}
	return bucket, key, nil
}

// fetchS3 downloads an s3://bucket/key object.
func (s *Store) fetchS3(ctx context.Context, location string) ([]byte, error) {
	bucket, key, err := parseS3Location(location)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	client, err := newS3Client(ctx, s.cfg.S3)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *s3types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, fmt.Errorf("%w: %s not found", ErrIO, location)
		}
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("%w: get %s: %s: %s", ErrIO, location, apiErr.ErrorCode(), apiErr.ErrorMessage())
		}
		return nil, fmt.Errorf("%w: get %s: %w", ErrIO, location, err)
	}
	defer func() {
		if err := out.Body.Close(); err != nil {
			log.Warnw("failed to close s3 object body", "location", location, "error", err)
		}
	}()
	size := int64(-1)
	if out.ContentLength != nil {
		size = *out.ContentLength
	}
	return readAllSized(out.Body, size, location)
}
