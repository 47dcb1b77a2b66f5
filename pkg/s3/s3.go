package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/klauspost/compress/zstd"
)

// ErrNotFound is returned when a requested object does not exist in the bucket.
var ErrNotFound = errors.New("object not found")

// Client is a thin wrapper around the AWS SDK v2 S3 client tuned for
// S3-compatible endpoints such as SeaweedFS or MinIO.
type Client struct {
	api     *s3.Client
	presign *s3.PresignClient
}

// NewClientFromEnv initialises a Client using environment variables.
//
// Required environment variables:
//   - S3_ENDPOINT: host:port or full URL to the S3 endpoint.
//   - S3_ACCESS_KEY / S3_SECRET_KEY: static credentials.
//
// Optional environment variables:
//   - S3_REGION (default "us-east-1").
//   - S3_DISABLE_TLS (bool; default false) to toggle TLS usage.
//   - S3_FORCE_PATH_STYLE (bool; default true).
func NewClientFromEnv() (*Client, error) {
	endpoint := strings.TrimSpace(os.Getenv("S3_ENDPOINT"))
	accessKey := os.Getenv("S3_ACCESS_KEY")
	secretKey := os.Getenv("S3_SECRET_KEY")
	region := os.Getenv("S3_REGION")
	if region == "" {
		region = "us-east-1"
	}

	if endpoint == "" {
		return nil, errors.New("S3_ENDPOINT is required")
	}
	if accessKey == "" || secretKey == "" {
		return nil, errors.New("S3_ACCESS_KEY and S3_SECRET_KEY are required")
	}

	disableTLS, _ := strconv.ParseBool(os.Getenv("S3_DISABLE_TLS"))
	forcePathStyle := true
	if v := strings.TrimSpace(os.Getenv("S3_FORCE_PATH_STYLE")); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			forcePathStyle = parsed
		}
	}

	scheme := "https"
	if disableTLS {
		scheme = "http"
	}

	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = fmt.Sprintf("%s://%s", scheme, endpoint)
	}

	ctx := context.Background()
	cfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
		awsconfig.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
	)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = forcePathStyle
		o.BaseEndpoint = aws.String(endpoint)
	})

	return &Client{
		api:     client,
		presign: s3.NewPresignClient(client),
	}, nil
}

// Bucket binds a Client to a single bucket and provides the byte-store
// operations the rest of the system works against. When compression is
// enabled objects are stored zstd-compressed and transparently decompressed
// on read; the logical content type is preserved in object metadata.
type Bucket struct {
	client   *Client
	name     string
	compress bool
}

// NewBucket constructs a Bucket. Compression is opt-in.
func NewBucket(client *Client, name string, compress bool) (*Bucket, error) {
	name = strings.TrimSpace(name)
	if client == nil {
		return nil, errors.New("s3 client is required")
	}
	if name == "" {
		return nil, errors.New("bucket name is required")
	}
	return &Bucket{client: client, name: name, compress: compress}, nil
}

// Name returns the bucket name.
func (b *Bucket) Name() string {
	if b == nil {
		return ""
	}
	return b.name
}

// Put uploads data under key. The write is synchronous; callers bound it
// with a context deadline.
func (b *Bucket) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if b == nil {
		return errors.New("nil bucket")
	}

	body := data
	encoding := ""
	if b.compress {
		var buf bytes.Buffer
		enc, err := zstd.NewWriter(&buf)
		if err != nil {
			return fmt.Errorf("zstd writer: %w", err)
		}
		if _, err := enc.Write(data); err != nil {
			_ = enc.Close()
			return err
		}
		if err := enc.Close(); err != nil {
			return err
		}
		body = buf.Bytes()
		encoding = "zstd"
	}

	size := int64(len(body))
	input := &s3.PutObjectInput{
		Bucket:        &b.name,
		Key:           &key,
		Body:          bytes.NewReader(body),
		ContentLength: &size,
		ContentType:   &contentType,
	}
	if encoding != "" {
		input.ContentEncoding = &encoding
	}

	_, err := b.client.api.PutObject(ctx, input)
	return err
}

// Exists reports whether key is resolvable in the bucket.
func (b *Bucket) Exists(ctx context.Context, key string) (bool, error) {
	if b == nil {
		return false, errors.New("nil bucket")
	}

	_, err := b.client.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &b.name,
		Key:    &key,
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Get downloads the object stored under key, decompressing if it was
// written with compression enabled. Returns ErrNotFound for missing keys.
func (b *Bucket) Get(ctx context.Context, key string) ([]byte, error) {
	if b == nil {
		return nil, errors.New("nil bucket")
	}

	out, err := b.client.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &b.name,
		Key:    &key,
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, err
	}

	if out.ContentEncoding != nil && *out.ContentEncoding == "zstd" {
		dec, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("zstd reader: %w", err)
		}
		defer dec.Close()
		return io.ReadAll(dec)
	}

	return data, nil
}

// PresignGet generates a presigned GET URL for the provided key and TTL.
func (b *Bucket) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if b == nil {
		return "", errors.New("nil bucket")
	}

	req, err := b.client.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &b.name,
		Key:    &key,
	}, func(opts *s3.PresignOptions) {
		opts.Expires = ttl
	})
	if err != nil {
		return "", err
	}

	return req.URL, nil
}

func isNotFound(err error) bool {
	var notFound *s3types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var noSuchKey *s3types.NoSuchKey
	return errors.As(err, &noSuchKey)
}
