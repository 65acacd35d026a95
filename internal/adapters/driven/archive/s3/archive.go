// Package s3 archives raw source documents to an S3-compatible bucket.
package s3

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.SourceArchive = (*Archive)(nil)

// uploadTimeout bounds a single upload.
const uploadTimeout = 2 * time.Minute

// Archive uploads raw documents with the S3 upload manager.
type Archive struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// New creates an archive from settings. A custom endpoint switches to
// path-style addressing for S3-compatible servers.
func New(ctx context.Context, settings domain.ArchiveSettings) (*Archive, error) {
	if settings.Bucket == "" {
		return nil, fmt.Errorf("s3 archive: bucket is required")
	}

	opts := []func(*config.LoadOptions) error{}
	if settings.Region != "" {
		opts = append(opts, config.WithRegion(settings.Region))
	}
	if settings.AccessKeyID != "" && settings.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(settings.AccessKeyID, settings.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if settings.Endpoint != "" {
			o.BaseEndpoint = aws.String(settings.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Archive{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   settings.Bucket,
		prefix:   settings.Prefix,
	}, nil
}

// Key returns <prefix><collection>/<origin>/<sha256(content)><ext>.
func (a *Archive) Key(collection string, raw *domain.RawDocument) string {
	sum := sha256.Sum256(raw.Content)
	return a.prefix + path.Join(collection, string(raw.Origin), hex.EncodeToString(sum[:])+extension(raw))
}

// Put uploads data under key and returns its s3:// location.
func (a *Archive) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	input := &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := a.uploader.Upload(ctx, input); err != nil {
		return "", fmt.Errorf("s3 upload failed: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", a.bucket, key), nil
}

// extension guesses a file extension from the source path or MIME type.
func extension(raw *domain.RawDocument) string {
	if ext := path.Ext(raw.Path()); ext != "" {
		return strings.ToLower(ext)
	}
	switch base, _, _ := strings.Cut(raw.MIMEType, ";"); strings.TrimSpace(base) {
	case "application/pdf":
		return ".pdf"
	case "text/html", "application/xhtml+xml":
		return ".html"
	case "text/plain":
		return ".txt"
	case "":
		return ""
	default:
		exts, _ := mime.ExtensionsByType(strings.TrimSpace(base))
		if len(exts) > 0 {
			return exts[0]
		}
		return ""
	}
}
