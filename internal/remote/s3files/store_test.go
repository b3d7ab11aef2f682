package s3files

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/carepulse/internal/remote"
)

type stubS3 struct {
	inputs []*s3.PutObjectInput
	bodies [][]byte
	err    error
}

func (s *stubS3) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if s.err != nil {
		return nil, s.err
	}
	body, _ := io.ReadAll(input.Body)
	s.inputs = append(s.inputs, input)
	s.bodies = append(s.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

func TestUploadFileKeysByIDAndName(t *testing.T) {
	client := &stubS3{}
	store := New(client, Config{Bucket: "carepulse-files", Region: "us-west-2", Prefix: "ids"}, nil)

	ref, err := store.UploadFile(context.Background(), "identification", remote.FileUpload{
		ID:          "f-1",
		Name:        "driver license.png",
		ContentType: "image/png",
		Body:        strings.NewReader("bytes"),
	})
	require.NoError(t, err)
	require.Len(t, client.inputs, 1)
	assert.Equal(t, "carepulse-files", aws.ToString(client.inputs[0].Bucket))
	assert.Equal(t, "ids/f-1/driver license.png", aws.ToString(client.inputs[0].Key))
	assert.Equal(t, "image/png", aws.ToString(client.inputs[0].ContentType))
	assert.Equal(t, "bytes", string(client.bodies[0]))
	assert.Equal(t, "f-1/driver license.png", ref.ID)
	assert.Equal(t, int64(5), ref.Size)

	assert.Equal(t, "https://carepulse-files.s3.us-west-2.amazonaws.com/ids/f-1/driver%20license.png",
		store.FileViewURL("identification", ref.ID))
}

func TestFileViewURLUsesPublicBase(t *testing.T) {
	store := New(&stubS3{}, Config{Bucket: "b", PublicBaseURL: "https://cdn.example.com/"}, nil)
	assert.Equal(t, "https://cdn.example.com/identification/f-2/scan.pdf", store.FileViewURL("identification", "f-2/scan.pdf"))
}

func TestUploadFileStripsDirectories(t *testing.T) {
	client := &stubS3{}
	store := New(client, Config{Bucket: "b"}, nil)
	ref, err := store.UploadFile(context.Background(), "identification", remote.FileUpload{ID: "f-3", Name: "../../etc/passwd", Body: strings.NewReader("x"), Size: 1})
	require.NoError(t, err)
	assert.Equal(t, "f-3/passwd", ref.ID)
	assert.Equal(t, "identification/f-3/passwd", aws.ToString(client.inputs[0].Key))
	assert.Equal(t, int64(1), aws.ToInt64(client.inputs[0].ContentLength))
}

func TestUploadFileErrors(t *testing.T) {
	store := New(&stubS3{err: errors.New("AccessDenied")}, Config{Bucket: "b"}, nil)
	_, err := store.UploadFile(context.Background(), "identification", remote.FileUpload{Name: "a.png", Body: strings.NewReader("x")})
	assert.True(t, errors.Is(err, remote.ErrRemoteService))

	_, err = store.UploadFile(context.Background(), "identification", remote.FileUpload{Name: "", Body: strings.NewReader("x")})
	assert.True(t, errors.Is(err, remote.ErrRemoteService))
}

func TestNewPanics(t *testing.T) {
	assert.Panics(t, func() { New(nil, Config{Bucket: "b"}, nil) })
	assert.Panics(t, func() { New(&stubS3{}, Config{}, nil) })
}
