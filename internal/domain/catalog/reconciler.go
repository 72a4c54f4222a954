package catalog

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"product-catalog-server-go/internal/platform/errors"
)

var (
	openingFence = regexp.MustCompile("^```[ \t]*[A-Za-z0-9_+-]*[ \t]*(?:\r?\n)?")
	closingFence = regexp.MustCompile("(?:\r?\n)?[ \t]*```$")

	replyAPI = sonic.Config{UseNumber: true}.Froze()
)

// StripCodeFence removes a markdown code fence (with optional language hint) wrapping the
// reply. Text without a fence is returned unchanged.
func StripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	stripped := openingFence.ReplaceAllString(trimmed, "")
	stripped = closingFence.ReplaceAllString(stripped, "")
	if stripped == trimmed {
		return text
	}
	return strings.TrimSpace(stripped)
}

// Reconciler parses model replies and merges request metadata into them.
type Reconciler struct {
	schema *jsonschema.Schema
}

// NewReconciler compiles the optional result schema; an empty schema disables checking.
func NewReconciler(schemaJSON string) (*Reconciler, error) {
	r := &Reconciler{}
	if strings.TrimSpace(schemaJSON) == "" {
		return r, nil
	}

	schema, err := jsonschema.CompileString("result.schema.json", schemaJSON)
	if err != nil {
		return nil, errors.Wrap(errors.KindConfig, "catalog.reconciler", "compile result schema", err)
	}
	r.schema = schema
	return r, nil
}

// Reconcile strips fencing, parses the reply as a JSON object and overwrites the metadata keys
// with values computed from records. selected is the number of images sent to the model.
func (r *Reconciler) Reconcile(raw string, records []StorageRecord, selected int) (Result, error) {
	cleaned := StripCodeFence(raw)

	var parsed any
	if err := replyAPI.UnmarshalFromString(cleaned, &parsed); err != nil {
		return nil, errors.Wrap(errors.KindParse, "catalog.reconcile", "model reply is not valid JSON", err).WithDetail(raw)
	}
	fields, ok := parsed.(map[string]any)
	if !ok {
		return nil, errors.New(errors.KindParse, "catalog.reconcile",
			fmt.Sprintf("model reply is a JSON %s, expected an object", jsonKind(parsed))).WithDetail(raw)
	}

	filenames := make([]string, len(records))
	for i, record := range records {
		filenames[i] = record.Filename
	}

	result := Result(fields)
	result[KeyTotalImageCount] = len(records)
	result[KeyAIAnalysisImageCount] = selected
	result[KeyImageFilenames] = filenames
	result[KeyImages] = records
	return result, nil
}

// Check validates the model-supplied fields of result against the configured schema and returns
// one message per violation.
func (r *Reconciler) Check(result Result) []string {
	if r.schema == nil {
		return nil
	}

	fields := make(map[string]any, len(result))
	for k, v := range result {
		switch k {
		case KeyTotalImageCount, KeyAIAnalysisImageCount, KeyImageFilenames, KeyImages:
			continue
		}
		fields[k] = v
	}

	err := r.schema.Validate(fields)
	if err == nil {
		return nil
	}
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []string{err.Error()}
	}

	var violations []string
	collectViolations(verr, &violations)
	sort.Strings(violations)
	return violations
}

func collectViolations(verr *jsonschema.ValidationError, out *[]string) {
	if len(verr.Causes) == 0 {
		location := verr.InstanceLocation
		if location == "" {
			location = "/"
		}
		*out = append(*out, location+": "+verr.Message)
		return
	}
	for _, cause := range verr.Causes {
		collectViolations(cause, out)
	}
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	default:
		return "number"
	}
}
