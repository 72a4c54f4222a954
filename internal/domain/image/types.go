package image

// Outcome tags which path Normalize took.
type Outcome string

const (
	// OutcomeUnchanged means the input already met the constraints and is returned as is.
	OutcomeUnchanged Outcome = "unchanged"
	// OutcomeTransformed means the image was resized and/or re-encoded as JPEG.
	OutcomeTransformed Outcome = "transformed"
	// OutcomeFallback means decoding or encoding failed and the original bytes are returned.
	OutcomeFallback Outcome = "fallback"
)

// Stage names the step that failed on a fallback.
type Stage string

const (
	StageValidate Stage = "validate"
	StageDecode Stage = "decode"
	StageEncode Stage = "encode"
)

// NormalizeOptions bounds the codec output.
type NormalizeOptions struct {
	MaxDimension  int
	Quality       int
	QualityLadder []int
	// ByteBudget of zero disables the size ceiling.
	ByteBudget int64
}

// NormalizeResult is the tagged outcome of Codec.Normalize.
type NormalizeResult struct {
	Bytes   []byte
	Outcome Outcome
	// MediaType is the MIME type of Bytes when known.
	MediaType    string
	SourceWidth  int
	SourceHeight int
	Width        int
	Height       int
	// Quality is the JPEG quality of the accepted encoding, zero unless transformed.
	Quality    int
	OverBudget bool
	Stage      Stage
	Err        error
}

// EncodedPart is the model-ready form of one selected image.
type EncodedPart struct {
	Name      string
	MediaType string
	// Data is the standard base64 encoding of the (possibly resized) bytes.
	Data    string
	Size    int
	Outcome Outcome
}

// DataURL renders the part as a data URL.
func (p EncodedPart) DataURL() string {
	return "data:" + p.MediaType + ";base64," + p.Data
}

// ValidationResult captures the outcome of security validation.
type ValidationResult struct {
	IsValid      bool
	Format       string
	Width        int
	Height       int
	FileSize     int64
	Error        error
	SecurityRisk string
}
