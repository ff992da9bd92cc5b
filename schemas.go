package personaquiz

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// Shape names the JSON object a request expects back
type Shape string

const (
	ShapeQuestion Shape = "question"
	ShapeAnalysis Shape = "analysis"
	ShapeChat     Shape = "chat"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

var (
	schemasOnce sync.Once
	schemasErr  error
	schemaSet   map[Shape]*gojsonschema.Schema
)

func loadSchemas() error {
	schemasOnce.Do(func() {
		schemaSet = make(map[Shape]*gojsonschema.Schema)
		for _, shape := range []Shape{ShapeQuestion, ShapeAnalysis, ShapeChat} {
			data, err := schemaFS.ReadFile(fmt.Sprintf("schemas/%s.schema.json", shape))
			if err != nil {
				schemasErr = fmt.Errorf("failed to read %s schema: %w", shape, err)
				return
			}
			schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
			if err != nil {
				schemasErr = fmt.Errorf("failed to compile %s schema: %w", shape, err)
				return
			}
			schemaSet[shape] = schema
		}
	})
	return schemasErr
}

// ValidateShape checks a JSON document against the schema of shape
func ValidateShape(shape Shape, doc string) error {
	if err := loadSchemas(); err != nil {
		return err
	}
	schema, ok := schemaSet[shape]
	if !ok {
		return fmt.Errorf("unknown response shape %q", shape)
	}

	result, err := schema.Validate(gojsonschema.NewStringLoader(doc))
	if err != nil {
		return &MalformedResponse{Shape: shape, Reason: "not valid JSON", Body: doc, Err: err}
	}
	if result.Valid() {
		return nil
	}

	fields := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		fields = append(fields, fmt.Sprintf("%s: %s", field, desc.Description()))
	}
	return &MalformedResponse{Shape: shape, Reason: strings.Join(fields, "; "), Body: doc}
}

// CleanJSONBlock strips markdown code fences and any text around the outermost
// JSON object. Models add them even when asked not to.
func CleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start > 0 && end > start {
		return text[start : end+1]
	}
	if start == 0 && end > 0 && end < len(text)-1 {
		return text[:end+1]
	}
	return text
}
