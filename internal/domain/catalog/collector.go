package catalog

import (
	"crypto/sha256"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"product-catalog-server-go/internal/platform/errors"
)

// Field-name conventions, checked in this order.
var (
	pluralFields   = []string{"images", "images[]"}
	singularFields = []string{"image", "image[]"}
	genericFields  = []string{"file", "files", "files[]", "photo", "photos", "upload", "uploads"}

	// numberedField matches batch chunks such as image_1, images-2, images[3] or image4.
	numberedField = regexp.MustCompile(`^images?(?:[_\-]?(\d+)|\[(\d+)\])$`)
)

// Collect gathers the uploaded images. The first convention that yields a usable file wins:
// the plural key, the singular key, numbered variants in numeric order, generic names, and
// finally every field in declaration order. Entries with a blank filename or no content are
// dropped, as are exact repeats of an earlier file.
func Collect(parts []FilePart) ([]UploadedImage, error) {
	fields, byField := groupByField(parts)

	candidates := [][]FilePart{
		pick(byField, pluralFields),
		pick(byField, singularFields),
		pickNumbered(fields, byField),
		pick(byField, genericFields),
		pick(byField, fields),
	}

	for _, group := range candidates {
		images := usable(group)
		if len(images) > 0 {
			return images, nil
		}
	}

	return nil, errors.New(errors.KindInput, "catalog.collect", "no usable image supplied")
}

func groupByField(parts []FilePart) ([]string, map[string][]FilePart) {
	var fields []string
	byField := make(map[string][]FilePart)
	for _, part := range parts {
		if _, seen := byField[part.Field]; !seen {
			fields = append(fields, part.Field)
		}
		byField[part.Field] = append(byField[part.Field], part)
	}
	return fields, byField
}

func pick(byField map[string][]FilePart, names []string) []FilePart {
	var out []FilePart
	for _, name := range names {
		out = append(out, byField[name]...)
	}
	return out
}

func pickNumbered(fields []string, byField map[string][]FilePart) []FilePart {
	type numbered struct {
		n     int
		field string
	}
	var matches []numbered
	for _, field := range fields {
		m := numberedField.FindStringSubmatch(field)
		if m == nil {
			continue
		}
		digits := m[1]
		if digits == "" {
			digits = m[2]
		}
		n, err := strconv.Atoi(digits)
		if err != nil {
			continue
		}
		matches = append(matches, numbered{n: n, field: field})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].n < matches[j].n })

	var out []FilePart
	for _, m := range matches {
		out = append(out, byField[m.field]...)
	}
	return out
}

func usable(parts []FilePart) []UploadedImage {
	seen := make(map[string]struct{}, len(parts))
	images := make([]UploadedImage, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part.Filename) == "" || len(part.Data) == 0 {
			continue
		}

		sum := sha256.Sum256(part.Data)
		key := part.Filename + "\x00" + string(sum[:])
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		images = append(images, UploadedImage{
			Filename:     sanitizeFilename(part.Filename, len(images)+1),
			DeclaredMIME: strings.TrimSpace(part.ContentType),
			Data:         part.Data,
		})
	}
	return images
}

// sanitizeFilename strips client-side directories; a name with nothing left becomes image_<n>.
func sanitizeFilename(name string, n int) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, `\`, "/"))
	base := path.Base(name)
	switch base {
	case "", ".", "..", "/":
		return fmt.Sprintf("image_%d", n)
	}
	return base
}
