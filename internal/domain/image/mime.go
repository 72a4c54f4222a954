package image

import (
	"mime"
	"path/filepath"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

const (
	MIMEJPEG = "image/jpeg"
	MIMEPNG  = "image/png"
	MIMEWebP = "image/webp"
	MIMEGIF  = "image/gif"
	MIMEBMP  = "image/bmp"

	// DefaultMIME is assumed when neither the part header nor the filename says otherwise.
	DefaultMIME = MIMEJPEG
)

var extensionMIME = map[string]string{
	".jpg":  MIMEJPEG,
	".jpeg": MIMEJPEG,
	".png":  MIMEPNG,
	".webp": MIMEWebP,
	".gif":  MIMEGIF,
	".bmp":  MIMEBMP,
}

var formatMIME = map[string]string{
	"jpeg": MIMEJPEG,
	"jpg":  MIMEJPEG,
	"png":  MIMEPNG,
	"webp": MIMEWebP,
	"gif":  MIMEGIF,
	"bmp":  MIMEBMP,
}

// InferMIME returns the declared media type when it is meaningful, otherwise the type implied by the
// filename extension, otherwise DefaultMIME.
func InferMIME(filename, declared string) string {
	if normalized := normalizeMIME(declared); normalized != "" && normalized != "application/octet-stream" {
		return normalized
	}
	if byExt, ok := extensionMIME[strings.ToLower(filepath.Ext(filename))]; ok {
		return byExt
	}
	return DefaultMIME
}

// IsSupportedMIME reports whether the codec can decode the media type.
func IsSupportedMIME(mediaType string) bool {
	_, ok := formatMIME[FormatFromMIME(mediaType)]
	return ok
}

// FormatFromMIME maps "image/png" to "png"; unknown types return the subtype as is.
func FormatFromMIME(mediaType string) string {
	normalized := normalizeMIME(mediaType)
	if !strings.HasPrefix(normalized, "image/") {
		return ""
	}
	format := strings.TrimPrefix(normalized, "image/")
	if format == "jpg" {
		return "jpeg"
	}
	return format
}

// MIMEFromFormat maps a decoder format name to its media type.
func MIMEFromFormat(format string) string {
	return formatMIME[strings.ToLower(format)]
}

func normalizeMIME(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(value)
	if err != nil {
		mediaType = strings.ToLower(value)
	}
	if mediaType == "image/jpg" || mediaType == "image/pjpeg" {
		return MIMEJPEG
	}
	return mediaType
}
