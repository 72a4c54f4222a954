package catalog

import (
	"context"

	"product-catalog-server-go/internal/core/providers/vlllm"
	"product-catalog-server-go/internal/domain/image"
)

// Keys the service writes into every result, overwriting model output.
const (
	KeyTotalImageCount      = "totalImageCount"
	KeyAIAnalysisImageCount = "aiAnalysisImageCount"
	KeyImageFilenames       = "imageFilenames"
	KeyImages               = "images"
)

// FilePart is one file entry of an upload, in the order the client sent it.
type FilePart struct {
	Field       string
	Filename    string
	ContentType string
	Data        []byte
}

// UploadedImage is a collected file. Data is the original upload and is never modified.
type UploadedImage struct {
	Filename     string
	DeclaredMIME string
	Data         []byte
}

// MediaType returns the declared type, or one inferred from the filename.
func (u UploadedImage) MediaType() string {
	return image.InferMIME(u.Filename, u.DeclaredMIME)
}

// StorageRecord describes one original upload in the response.
type StorageRecord struct {
	Filename  string `json:"filename"`
	MimeType  string `json:"mimeType"`
	SizeBytes int    `json:"sizeBytes"`
	Base64    string `json:"base64"`
	UsedForAI bool   `json:"usedForAi"`
}

// Result is the model's catalog fields plus the injected metadata keys.
type Result map[string]any

// MessagePart is one element of the model request: the instruction first, then the images.
type MessagePart = vlllm.Part

// ModelClient is the vision model collaborator.
type ModelClient interface {
	Invoke(ctx context.Context, inv vlllm.Invocation) (string, error)
}

// Publisher receives lifecycle events.
type Publisher interface {
	PublishAsync(topic string, args ...interface{})
}

type requestIDKey struct{}

// WithRequestID attaches a request id used for logs and events.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the request id on ctx, or "".
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
