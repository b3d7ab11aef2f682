package appwrite

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"

	"github.com/wolfman30/carepulse/internal/remote"
)

// UploadFile streams the file as multipart/form-data.
func (c *Client) UploadFile(ctx context.Context, bucket string, file remote.FileUpload) (*remote.FileRef, error) {
	const op = "files.upload"
	if file.Body == nil || file.Name == "" {
		return nil, &remote.Error{Op: op, Message: "file body and name required", Kind: remote.ErrRemoteService}
	}
	id := file.ID
	if id == "" {
		id = uniqueID
	}
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		err := writeUpload(mw, id, file, contentType)
		if cerr := mw.Close(); err == nil {
			err = cerr
		}
		pw.CloseWithError(err)
	}()

	var raw struct {
		ID        string `json:"$id"`
		CreatedAt string `json:"$createdAt"`
		BucketID  string `json:"bucketId"`
		Name      string `json:"name"`
		MimeType  string `json:"mimeType"`
		Size      int64  `json:"sizeOriginal"`
	}
	path := fmt.Sprintf("/storage/buckets/%s/files", url.PathEscape(bucket))
	err := c.do(ctx, op, http.MethodPost, path, nil, pr, mw.FormDataContentType(), &raw)
	// Unblocks the writer when the request ended early.
	pr.CloseWithError(io.ErrClosedPipe)
	if err != nil {
		return nil, err
	}
	return &remote.FileRef{
		ID:          raw.ID,
		Bucket:      raw.BucketID,
		Name:        raw.Name,
		ContentType: raw.MimeType,
		Size:        raw.Size,
		CreatedAt:   parseTime(raw.CreatedAt),
	}, nil
}

func writeUpload(mw *multipart.Writer, id string, file remote.FileUpload, contentType string) error {
	if err := mw.WriteField("fileId", id); err != nil {
		return err
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, file.Name))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, file.Body)
	return err
}

// FileViewURL is the project-scoped view endpoint of a stored file.
func (c *Client) FileViewURL(bucket, fileID string) string {
	return fmt.Sprintf("%s/storage/buckets/%s/files/%s/view?project=%s",
		c.endpoint, url.PathEscape(bucket), url.PathEscape(fileID), url.QueryEscape(c.projectID))
}
