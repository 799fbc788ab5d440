package llmadapter

import (
	"bytes"
	"context"
	"fmt"

	"google.golang.org/genai"
)

// UploadFile uploads payload to the provider's file API under name,
// returning the file URI later referenced via UploadedFile. It implements
// the materials.FileUploader interface so pkg/materials can dual-upload
// rendered PNGs without depending on this package's concrete type.
func (a *Adapter) UploadFile(ctx context.Context, name string, payload []byte, mimeType string) (string, error) {
	file, err := a.client.Files.Upload(ctx, bytes.NewReader(payload), &genai.UploadFileConfig{
		MIMEType:    mimeType,
		DisplayName: name,
	})
	if err != nil {
		return "", fmt.Errorf("llmadapter: upload file: %w", err)
	}
	return file.URI, nil
}
