// Package s3 provides a Store backed by an S3-compatible bucket.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"github.com/JakeFAU/census-pipeline/internal/hash/md5"
	"github.com/JakeFAU/census-pipeline/internal/storage"
)

// Config captures the parameters required to reach the bucket.
type Config struct {
	Bucket string
	// Profile selects a shared-credentials profile. Empty uses the default
	// credential chain.
	Profile string
	Region  string
	// EndpointURL targets S3-compatible services such as R2 or MinIO.
	EndpointURL string
}

// Store publishes objects to one bucket.
type Store struct {
	client s3iface.S3API
	bucket string
}

// New builds a Store with its own session.
func New(cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	awsCfg := aws.Config{}
	if cfg.Region != "" {
		awsCfg.Region = aws.String(cfg.Region)
	} else if cfg.EndpointURL != "" {
		// S3-compatible services ignore the region but the signer needs one.
		awsCfg.Region = aws.String("auto")
	}
	if cfg.EndpointURL != "" {
		awsCfg.Endpoint = aws.String(cfg.EndpointURL)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	sess, err := session.NewSessionWithOptions(session.Options{
		Config:            awsCfg,
		Profile:           cfg.Profile,
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}
	return NewWithClient(s3.New(sess), cfg.Bucket)
}

// NewWithClient wraps an existing client.
func NewWithClient(client s3iface.S3API, bucket string) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("s3 client is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &Store{client: client, bucket: bucket}, nil
}

// Head issues a conditional HEAD with If-None-Match set to the digest. The
// service answers 304 when the object's etag matches, 404 when there is no
// object, and 200 when the content differs.
func (s *Store) Head(ctx context.Context, key, md5Hex string) (storage.Status, error) {
	if strings.TrimSpace(key) == "" {
		return storage.Missing, storage.ErrEmptyKey
	}
	_, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		IfNoneMatch: aws.String(quote(md5Hex)),
	})
	if err == nil {
		return storage.Differs, nil
	}
	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) {
		switch reqErr.StatusCode() {
		case http.StatusNotModified:
			return storage.Match, nil
		case http.StatusNotFound:
			return storage.Missing, nil
		}
	}
	return storage.Missing, fmt.Errorf("head s3://%s/%s: %w", s.bucket, key, err)
}

// Put uploads data with a Content-MD5 header so the service rejects
// corrupted bodies.
func (s *Store) Put(ctx context.Context, key string, data []byte, md5Hex string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", storage.ErrEmptyKey
	}
	in := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(storage.ContentType(key)),
	}
	if md5Hex != "" {
		sum, err := md5.Base64(md5Hex)
		if err != nil {
			return "", err
		}
		in.ContentMD5 = aws.String(sum)
	}
	if _, err := s.client.PutObjectWithContext(ctx, in); err != nil {
		return "", fmt.Errorf("put s3://%s/%s: %w", s.bucket, key, err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

func quote(etag string) string {
	return `"` + strings.Trim(etag, `"`) + `"`
}
