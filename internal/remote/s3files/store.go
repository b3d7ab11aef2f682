// Package s3files stores uploaded files in an S3 bucket.
package s3files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/wolfman30/carepulse/internal/remote"
	"github.com/wolfman30/carepulse/pkg/logging"
)

// S3API is the subset of the S3 client used by Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Config names the target bucket and how view URLs are built.
type Config struct {
	Bucket string
	Region string
	// Prefix is prepended to every key. Empty means the logical bucket name.
	Prefix string
	// PublicBaseURL serves objects, e.g. a CDN in front of the bucket.
	// Empty means the virtual-hosted S3 URL.
	PublicBaseURL string
}

// Store implements remote.Files. File ids are "<id>/<name>" so the object key
// can be rebuilt from the id alone.
type Store struct {
	client S3API
	cfg    Config
	now    func() time.Time
	logger *logging.Logger
}

var _ remote.Files = (*Store)(nil)

func New(client S3API, cfg Config, logger *logging.Logger) *Store {
	if client == nil {
		panic("s3files: client cannot be nil")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		panic("s3files: bucket cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	return &Store{client: client, cfg: cfg, now: func() time.Time { return time.Now().UTC() }, logger: logger}
}

func (s *Store) UploadFile(ctx context.Context, bucket string, file remote.FileUpload) (*remote.FileRef, error) {
	const op = "files.upload"
	if file.Body == nil || strings.TrimSpace(file.Name) == "" {
		return nil, &remote.Error{Op: op, Message: "file body and name required", Kind: remote.ErrRemoteService}
	}
	id := file.ID
	if id == "" {
		id = remote.NewID()
	}
	fileID := id + "/" + safeName(file.Name)
	key := s.key(bucket, fileID)
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
		Metadata:    map[string]string{"original-name": file.Name},
	}
	size := file.Size
	var counter *countingReader
	if size > 0 {
		input.Body = file.Body
		input.ContentLength = aws.Int64(size)
	} else {
		counter = &countingReader{r: file.Body}
		input.Body = counter
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, remote.Wrap(op, err)
		}
		return nil, &remote.Error{Op: op, Message: fmt.Sprintf("s3 put %s", key), Kind: remote.ErrRemoteService, Cause: err}
	}
	if counter != nil {
		size = counter.n
	}
	s.logger.Debug("stored file", "bucket", s.cfg.Bucket, "key", key, "size", size)
	return &remote.FileRef{
		ID:          fileID,
		Bucket:      s.cfg.Bucket,
		Name:        file.Name,
		ContentType: contentType,
		Size:        size,
		CreatedAt:   s.now(),
	}, nil
}

// FileViewURL builds the URL of the object behind fileID.
func (s *Store) FileViewURL(bucket, fileID string) string {
	escaped := escapeKey(s.key(bucket, fileID))
	if s.cfg.PublicBaseURL != "" {
		return s.cfg.PublicBaseURL + "/" + escaped
	}
	region := s.cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.Bucket, region, escaped)
}

func (s *Store) key(bucket, fileID string) string {
	prefix := s.cfg.Prefix
	if prefix == "" {
		prefix = bucket
	}
	return path.Join(prefix, fileID)
}

func safeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == ".." {
		return "file"
	}
	return name
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
