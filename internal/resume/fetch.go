package resume

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectGetter is the slice of the S3 API the fetcher needs. *s3.Client
// satisfies it.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Fetcher downloads resume documents from an S3-compatible bucket (AWS S3,
// Cloudflare R2, MinIO).
type Fetcher struct {
	client ObjectGetter
	bucket string
}

// NewFetcher creates a Fetcher for the given bucket.
func NewFetcher(client ObjectGetter, bucket string) (*Fetcher, error) {
	if client == nil {
		return nil, fmt.Errorf("resume: s3 client must not be nil")
	}
	if bucket == "" {
		return nil, fmt.Errorf("resume: bucket must not be empty")
	}
	return &Fetcher{client: client, bucket: bucket}, nil
}

// Fetch downloads the object at key and returns its raw bytes along with the
// stored content type (empty when the bucket did not record one).
func (f *Fetcher) Fetch(ctx context.Context, key string) ([]byte, string, error) {
	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, "", fmt.Errorf("resume: get object %q: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", fmt.Errorf("resume: read object %q: %w", key, err)
	}

	contentType := ""
	if out.ContentType != nil {
		contentType = *out.ContentType
	}
	return data, contentType, nil
}
