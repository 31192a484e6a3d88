package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Store implements Store against an S3-compatible backend (AWS S3 or
// MinIO). Minimal surface area: single bucket, keys map to object keys
// directly.
type S3Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
}

// S3Config holds explicit construction parameters (mostly for tests); the
// CLI relies on environment variables.
type S3Config struct {
	Region    string
	Bucket    string
	Endpoint  string // optional custom endpoint, e.g. MinIO
	PathStyle bool
}

// Environment variables:
//
//	KINEFIT_BLOB_DRIVER=s3
//	KINEFIT_BLOB_S3_BUCKET=<bucket> (required)
//	KINEFIT_BLOB_S3_REGION=<region> (default us-east-1)
//	KINEFIT_BLOB_S3_ENDPOINT=<url> (optional, for MinIO)
//	KINEFIT_BLOB_S3_PATH_STYLE=true|false (default false)
//	AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY / AWS_SESSION_TOKEN (optional)

// NewS3 creates an S3 blob store from config.
func NewS3(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &S3Store{client: client, presign: s3.NewPresignClient(client), bucket: cfg.Bucket}, nil
}

// OpenS3FromEnv constructs an S3 store from process environment.
func OpenS3FromEnv(ctx context.Context) (*S3Store, error) {
	bucket := os.Getenv("KINEFIT_BLOB_S3_BUCKET")
	if bucket == "" {
		return nil, fmt.Errorf("KINEFIT_BLOB_S3_BUCKET required for s3 driver")
	}
	return NewS3(ctx, S3Config{
		Bucket:    bucket,
		Region:    os.Getenv("KINEFIT_BLOB_S3_REGION"),
		Endpoint:  os.Getenv("KINEFIT_BLOB_S3_ENDPOINT"),
		PathStyle: strings.EqualFold(os.Getenv("KINEFIT_BLOB_S3_PATH_STYLE"), "true"),
	})
}

// Driver reports DriverS3.
func (s *S3Store) Driver() Driver { return DriverS3 }

// Put stores a new immutable object; existing keys fail via a Head check.
func (s *S3Store) Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error) {
	if _, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &s.bucket, Key: &key}); err == nil {
		return Info{}, fmt.Errorf("blob %s already exists", key)
	}
	input := &s3.PutObjectInput{Bucket: &s.bucket, Key: &key, Body: r}
	if opts.ContentType != "" {
		input.ContentType = &opts.ContentType
	}
	if len(opts.Metadata) > 0 {
		input.Metadata = opts.Metadata
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return Info{}, err
	}
	return s.Head(ctx, key)
}

// Get returns the artifact metadata and the object body.
func (s *S3Store) Get(ctx context.Context, key string) (Info, io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		return Info{}, nil, err
	}
	return s.objectInfo(key, out.ContentLength, out.ContentType, out.Metadata, out.LastModified), out.Body, nil
}

// Head returns the artifact metadata.
func (s *S3Store) Head(ctx context.Context, key string) (Info, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		return Info{}, err
	}
	return s.objectInfo(key, out.ContentLength, out.ContentType, out.Metadata, out.LastModified), nil
}

// Delete removes the object.
func (s *S3Store) Delete(ctx context.Context, key string) (bool, error) {
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &s.bucket, Key: &key}); err != nil {
		return false, err
	}
	return true, nil
}

// List pages through the bucket and returns metadata for keys with the
// prefix, sorted by key.
func (s *S3Store) List(ctx context.Context, prefix string) ([]Info, error) {
	var infos []Info
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{Bucket: &s.bucket, Prefix: &prefix, ContinuationToken: token})
		if err != nil {
			return nil, err
		}
		for _, obj := range out.Contents {
			var size int64
			if obj.Size != nil {
				size = *obj.Size
			}
			infos = append(infos, Info{Key: aws.ToString(obj.Key), Size: size, LastModified: aws.ToTime(obj.LastModified)})
		}
		if out.IsTruncated != nil && *out.IsTruncated && out.NextContinuationToken != nil {
			token = out.NextContinuationToken
			continue
		}
		break
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

// PresignURL returns a time-limited GET URL for the object.
func (s *S3Store) PresignURL(ctx context.Context, key string, opts SignedURLOptions) (string, error) {
	method := strings.ToUpper(opts.Method)
	if method != "" && method != "GET" {
		return "", ErrUnsupported
	}
	expiry := opts.Expiry
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	out, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &key},
		func(po *s3.PresignOptions) { po.Expires = expiry })
	if err != nil {
		return "", err
	}
	return out.URL, nil
}

func (s *S3Store) objectInfo(key string, length *int64, contentType *string, md map[string]string, lastModified *time.Time) Info {
	info := Info{Key: key, Metadata: md, LastModified: time.Now().UTC()}
	if length != nil {
		info.Size = *length
	}
	if contentType != nil {
		info.ContentType = *contentType
	}
	if lastModified != nil {
		info.LastModified = *lastModified
	}
	return info
}

var _ Store = (*S3Store)(nil)
