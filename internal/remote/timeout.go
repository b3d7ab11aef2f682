package remote

import (
	"context"
	"errors"
	"time"
)

type timeoutClient struct {
	next    Client
	timeout time.Duration
}

// WithTimeout bounds every call on next by d. A call that runs past the bound
// fails with ErrRemoteService wrapping context.DeadlineExceeded.
func WithTimeout(next Client, d time.Duration) Client {
	if d <= 0 {
		return next
	}
	return &timeoutClient{next: next, timeout: d}
}

func (c *timeoutClient) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

func deadline(op string, err error) error {
	if err != nil && errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ErrRemoteService) {
		return &Error{Op: op, Message: "call timed out", Kind: ErrRemoteService, Cause: err}
	}
	return err
}

func (c *timeoutClient) CreateDocument(ctx context.Context, collection, id string, fields Fields) (*Document, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()
	doc, err := c.next.CreateDocument(ctx, collection, id, fields)
	return doc, deadline("documents.create", err)
}

func (c *timeoutClient) GetDocument(ctx context.Context, collection, id string) (*Document, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()
	doc, err := c.next.GetDocument(ctx, collection, id)
	return doc, deadline("documents.get", err)
}

func (c *timeoutClient) UpdateDocument(ctx context.Context, collection, id string, fields Fields) (*Document, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()
	doc, err := c.next.UpdateDocument(ctx, collection, id, fields)
	return doc, deadline("documents.update", err)
}

func (c *timeoutClient) ListDocuments(ctx context.Context, collection string, opts ListOptions) (*DocumentList, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()
	list, err := c.next.ListDocuments(ctx, collection, opts)
	return list, deadline("documents.list", err)
}

func (c *timeoutClient) CreateIdentity(ctx context.Context, in IdentityInput) (*Identity, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()
	ident, err := c.next.CreateIdentity(ctx, in)
	return ident, deadline("identities.create", err)
}

func (c *timeoutClient) GetIdentity(ctx context.Context, id string) (*Identity, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()
	ident, err := c.next.GetIdentity(ctx, id)
	return ident, deadline("identities.get", err)
}

func (c *timeoutClient) LookupIdentities(ctx context.Context, filters ...Filter) ([]Identity, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()
	idents, err := c.next.LookupIdentities(ctx, filters...)
	return idents, deadline("identities.lookup", err)
}

func (c *timeoutClient) UploadFile(ctx context.Context, bucket string, file FileUpload) (*FileRef, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()
	ref, err := c.next.UploadFile(ctx, bucket, file)
	return ref, deadline("files.upload", err)
}

func (c *timeoutClient) FileViewURL(bucket, fileID string) string {
	return c.next.FileViewURL(bucket, fileID)
}

func (c *timeoutClient) SendText(ctx context.Context, msg TextMessage) (*DeliveryReceipt, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()
	receipt, err := c.next.SendText(ctx, msg)
	return receipt, deadline("messages.send", err)
}
