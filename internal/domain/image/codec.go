package image

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"math"

	"github.com/disintegration/imaging"

	"product-catalog-server-go/internal/platform/errors"
)

// Codec resizes and re-encodes images under a dimension and byte ceiling. It holds no state and is
// safe for concurrent use.
type Codec struct{}

// NewCodec returns a Codec.
func NewCodec() *Codec {
	return &Codec{}
}

// Normalize returns data untouched when it already fits opts and is in a format vision models accept,
// otherwise a JPEG whose longer side is at most opts.MaxDimension. With a byte budget the quality ladder is walked until an encoding fits; the
// lowest rung is accepted when none does. Decode or encode failures produce OutcomeFallback carrying
// the original bytes and the cause.
func (c *Codec) Normalize(data []byte, opts NormalizeOptions) NormalizeResult {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fallback(data, StageDecode, errors.Wrap(errors.KindCodec, "image.normalize", "decode image header", err))
	}

	result := NormalizeResult{
		SourceWidth:  cfg.Width,
		SourceHeight: cfg.Height,
	}

	longest := max(cfg.Width, cfg.Height)
	fitsDimension := opts.MaxDimension <= 0 || longest <= opts.MaxDimension
	fitsBudget := opts.ByteBudget <= 0 || int64(len(data)) <= opts.ByteBudget
	if fitsDimension && fitsBudget && modelIngestible(data, format) {
		result.Bytes = data
		result.Outcome = OutcomeUnchanged
		result.MediaType = MIMEFromFormat(format)
		result.Width = cfg.Width
		result.Height = cfg.Height
		return result
	}

	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return withSource(fallback(data, StageDecode, errors.Wrap(errors.KindCodec, "image.normalize", "decode image", err)), cfg)
	}

	bounds := src.Bounds()
	width, height := TargetDimensions(bounds.Dx(), bounds.Dy(), opts.MaxDimension)
	var resized image.Image
	if width != bounds.Dx() || height != bounds.Dy() {
		resized = imaging.Resize(src, width, height, imaging.Lanczos)
	} else {
		resized = src
	}
	flat := flatten(resized)

	quality := clampQuality(opts.Quality)
	encoded, err := encodeJPEG(flat, quality)
	if err != nil {
		return withSource(fallback(data, StageEncode, errors.Wrap(errors.KindCodec, "image.normalize", "encode jpeg", err)), cfg)
	}

	if opts.ByteBudget > 0 && int64(len(encoded)) > opts.ByteBudget {
		for _, rung := range opts.QualityLadder {
			if rung >= quality {
				continue
			}
			candidate, err := encodeJPEG(flat, rung)
			if err != nil {
				return withSource(fallback(data, StageEncode, errors.Wrap(errors.KindCodec, "image.normalize", fmt.Sprintf("encode jpeg at quality %d", rung), err)), cfg)
			}
			encoded, quality = candidate, rung
			if int64(len(encoded)) <= opts.ByteBudget {
				break
			}
		}
	}

	result.Bytes = encoded
	result.Outcome = OutcomeTransformed
	result.MediaType = MIMEJPEG
	result.Width = width
	result.Height = height
	result.Quality = quality
	result.OverBudget = opts.ByteBudget > 0 && int64(len(encoded)) > opts.ByteBudget
	return result
}

// modelIngestible reports whether bytes of the decoded format can be sent to the model as is:
// jpeg, png, webp and single-frame gif.
func modelIngestible(data []byte, format string) bool {
	switch format {
	case "jpeg", "png", "webp":
		return true
	case "gif":
		anim, err := gif.DecodeAll(bytes.NewReader(data))
		return err == nil && len(anim.Image) == 1
	default:
		return false
	}
}

// TargetDimensions scales (width, height) so the longer side equals maxDimension, rounding the shorter
// side to the nearest pixel. Sizes already within the bound are returned unchanged.
func TargetDimensions(width, height, maxDimension int) (int, int) {
	longest := max(width, height)
	if maxDimension <= 0 || longest <= maxDimension {
		return width, height
	}
	scale := float64(maxDimension) / float64(longest)
	if width >= height {
		return maxDimension, max(1, int(math.Round(float64(height)*scale)))
	}
	return max(1, int(math.Round(float64(width)*scale))), maxDimension
}

// flatten composites img over an opaque white canvas, dropping alpha and palette color models.
func flatten(img image.Image) *image.NRGBA {
	bounds := img.Bounds()
	canvas := imaging.New(bounds.Dx(), bounds.Dy(), color.White)
	return imaging.Overlay(canvas, img, image.Pt(0, 0), 1.0)
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func clampQuality(q int) int {
	switch {
	case q <= 0:
		return 85
	case q > 100:
		return 100
	default:
		return q
	}
}

func fallback(data []byte, stage Stage, err error) NormalizeResult {
	return NormalizeResult{
		Bytes:   data,
		Outcome: OutcomeFallback,
		Stage:   stage,
		Err:     err,
	}
}

func withSource(r NormalizeResult, cfg image.Config) NormalizeResult {
	r.SourceWidth = cfg.Width
	r.SourceHeight = cfg.Height
	return r
}
