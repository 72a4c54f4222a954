package image

import (
	"context"
	"encoding/base64"
	"fmt"

	"product-catalog-server-go/internal/platform/config"
	"product-catalog-server-go/internal/platform/errors"
	"product-catalog-server-go/internal/platform/logging"
	"product-catalog-server-go/internal/platform/observability"
)

// Pipeline validates one image, normalizes it through the codec and base64-encodes the result.
type Pipeline struct {
	validator *SecurityValidator
	codec     *Codec
	logger    *logging.Logger
	normalize NormalizeOptions
}

// Options configures the pipeline behaviour.
type Options struct {
	Security  *config.SecurityConfig
	Normalize NormalizeOptions
	Logger    *logging.Logger
}

// NewPipeline constructs an encode pipeline.
func NewPipeline(opts Options) (*Pipeline, error) {
	if opts.Security == nil {
		return nil, fmt.Errorf("security config is required")
	}
	if opts.Normalize.MaxDimension <= 0 {
		return nil, fmt.Errorf("max dimension must be positive")
	}

	return &Pipeline{
		validator: NewSecurityValidator(opts.Security, opts.Logger),
		codec:     NewCodec(),
		logger:    opts.Logger,
		normalize: opts.Normalize,
	}, nil
}

// Options returns the normalization bounds the pipeline applies.
func (p *Pipeline) Options() NormalizeOptions {
	return p.normalize
}

// Encode turns one original image into a model-ready part. Images that fail validation or cannot be
// decoded return a codec-kind error and a fallback result naming the failed stage; an encode failure
// after a successful decode falls back to the original bytes.
func (p *Pipeline) Encode(ctx context.Context, name, mediaType string, data []byte) (EncodedPart, NormalizeResult, error) {
	_, end := observability.StartSpan(ctx, "image.pipeline", "encode")

	validation := p.validator.ValidateBytes(data, FormatFromMIME(mediaType))
	if !validation.IsValid {
		err := errors.Wrap(errors.KindCodec, "image.validate", fmt.Sprintf("image %s rejected", name), validation.Error)
		end(err)
		return EncodedPart{}, NormalizeResult{Bytes: data, Outcome: OutcomeFallback, Stage: StageValidate, Err: err}, err
	}

	result := p.codec.Normalize(data, p.normalize)
	if result.Outcome == OutcomeFallback {
		if result.Stage == StageDecode {
			end(result.Err)
			return EncodedPart{}, result, result.Err
		}
		p.logger.WarnTag("图片", "re-encode failed, sending original bytes: name=%s err=%v", name, result.Err)
	}

	outMediaType := resolveMediaType(mediaType, validation.Format, result)
	if result.Outcome == OutcomeTransformed {
		p.logger.DebugTag("图片", "normalized %s: %dx%d -> %dx%d quality=%d bytes=%d->%d",
			name, result.SourceWidth, result.SourceHeight, result.Width, result.Height,
			result.Quality, len(data), len(result.Bytes))
		if result.OverBudget {
			p.logger.WarnTag("图片", "image %s still exceeds byte budget at lowest quality: bytes=%d budget=%d",
				name, len(result.Bytes), p.normalize.ByteBudget)
		}
	}

	part := EncodedPart{
		Name:      name,
		MediaType: outMediaType,
		Data:      base64.StdEncoding.EncodeToString(result.Bytes),
		Size:      len(result.Bytes),
		Outcome:   result.Outcome,
	}
	end(nil)
	return part, result, nil
}

// resolveMediaType keeps the declared type for untouched bytes unless the decoder saw a different
// format, in which case the sniffed type wins.
func resolveMediaType(declared, sniffedFormat string, result NormalizeResult) string {
	if result.Outcome == OutcomeTransformed {
		return MIMEJPEG
	}
	sniffed := MIMEFromFormat(sniffedFormat)
	if sniffed != "" && sniffed != InferMIME("", declared) {
		return sniffed
	}
	if declared != "" {
		return InferMIME("", declared)
	}
	if sniffed != "" {
		return sniffed
	}
	return DefaultMIME
}
