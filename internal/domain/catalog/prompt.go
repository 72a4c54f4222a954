package catalog

import (
	"strings"

	"product-catalog-server-go/internal/core/providers/vlllm"
	"product-catalog-server-go/internal/domain/image"
	"product-catalog-server-go/internal/platform/errors"
)

// AssemblePrompt builds the model payload: the instruction text followed by the images in the
// given order. The instruction content is passed through as is.
func AssemblePrompt(instruction string, parts []image.EncodedPart) ([]MessagePart, error) {
	if strings.TrimSpace(instruction) == "" {
		return nil, errors.New(errors.KindConfig, "catalog.prompt", "instruction text is empty")
	}

	payload := make([]MessagePart, 0, len(parts)+1)
	payload = append(payload, MessagePart{Type: vlllm.PartText, Text: instruction})
	for _, part := range parts {
		payload = append(payload, MessagePart{
			Type:      vlllm.PartImage,
			MediaType: part.MediaType,
			Data:      part.Data,
		})
	}
	return payload, nil
}
