package remote

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var remoteTracer = otel.Tracer("carepulse.internal.remote")

// Observer receives one observation per remote call.
type Observer interface {
	ObserveRemoteCall(op, outcome string, seconds float64)
}

type instrumentedClient struct {
	next Client
	obs  Observer
}

// Instrument wraps next with a span and an Observer sample per call.
// A nil observer still records spans.
func Instrument(next Client, obs Observer) Client {
	return &instrumentedClient{next: next, obs: obs}
}

func (c *instrumentedClient) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	ctx, span := remoteTracer.Start(ctx, "remote."+op)
	span.SetAttributes(attrs...)
	return ctx, span, time.Now()
}

func (c *instrumentedClient) finish(span trace.Span, op string, started time.Time, err error) {
	outcome := Outcome(err)
	span.SetAttributes(attribute.String("carepulse.remote.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	span.End()
	if c.obs != nil {
		c.obs.ObserveRemoteCall(op, outcome, time.Since(started).Seconds())
	}
}

func (c *instrumentedClient) CreateDocument(ctx context.Context, collection, id string, fields Fields) (*Document, error) {
	ctx, span, started := c.start(ctx, "documents.create", attribute.String("carepulse.collection", collection))
	doc, err := c.next.CreateDocument(ctx, collection, id, fields)
	c.finish(span, "documents.create", started, err)
	return doc, err
}

func (c *instrumentedClient) GetDocument(ctx context.Context, collection, id string) (*Document, error) {
	ctx, span, started := c.start(ctx, "documents.get",
		attribute.String("carepulse.collection", collection),
		attribute.String("carepulse.document_id", id),
	)
	doc, err := c.next.GetDocument(ctx, collection, id)
	c.finish(span, "documents.get", started, err)
	return doc, err
}

func (c *instrumentedClient) UpdateDocument(ctx context.Context, collection, id string, fields Fields) (*Document, error) {
	ctx, span, started := c.start(ctx, "documents.update",
		attribute.String("carepulse.collection", collection),
		attribute.String("carepulse.document_id", id),
	)
	doc, err := c.next.UpdateDocument(ctx, collection, id, fields)
	c.finish(span, "documents.update", started, err)
	return doc, err
}

func (c *instrumentedClient) ListDocuments(ctx context.Context, collection string, opts ListOptions) (*DocumentList, error) {
	ctx, span, started := c.start(ctx, "documents.list", attribute.String("carepulse.collection", collection))
	list, err := c.next.ListDocuments(ctx, collection, opts)
	c.finish(span, "documents.list", started, err)
	return list, err
}

func (c *instrumentedClient) CreateIdentity(ctx context.Context, in IdentityInput) (*Identity, error) {
	ctx, span, started := c.start(ctx, "identities.create")
	ident, err := c.next.CreateIdentity(ctx, in)
	c.finish(span, "identities.create", started, err)
	return ident, err
}

func (c *instrumentedClient) GetIdentity(ctx context.Context, id string) (*Identity, error) {
	ctx, span, started := c.start(ctx, "identities.get", attribute.String("carepulse.user_id", id))
	ident, err := c.next.GetIdentity(ctx, id)
	c.finish(span, "identities.get", started, err)
	return ident, err
}

func (c *instrumentedClient) LookupIdentities(ctx context.Context, filters ...Filter) ([]Identity, error) {
	ctx, span, started := c.start(ctx, "identities.lookup")
	idents, err := c.next.LookupIdentities(ctx, filters...)
	c.finish(span, "identities.lookup", started, err)
	return idents, err
}

func (c *instrumentedClient) UploadFile(ctx context.Context, bucket string, file FileUpload) (*FileRef, error) {
	ctx, span, started := c.start(ctx, "files.upload", attribute.String("carepulse.bucket", bucket))
	ref, err := c.next.UploadFile(ctx, bucket, file)
	c.finish(span, "files.upload", started, err)
	return ref, err
}

func (c *instrumentedClient) FileViewURL(bucket, fileID string) string {
	return c.next.FileViewURL(bucket, fileID)
}

func (c *instrumentedClient) SendText(ctx context.Context, msg TextMessage) (*DeliveryReceipt, error) {
	ctx, span, started := c.start(ctx, "messages.send", attribute.Int("carepulse.recipients", len(msg.Recipients)))
	receipt, err := c.next.SendText(ctx, msg)
	c.finish(span, "messages.send", started, err)
	return receipt, err
}
