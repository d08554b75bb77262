package llm

import (
	"fmt"

	"github.com/google/generative-ai-go/genai"
)

// GenaiSchema converts a JSON Schema held as a Go map into the subset Gemini's
// ResponseSchema accepts. Gemini only takes enums on strings, so enums on other types are
// folded into the description.
func GenaiSchema(schema map[string]any) *genai.Schema {
	if schema == nil {
		return nil
	}
	out := &genai.Schema{}
	typeName, _ := schema["type"].(string)
	out.Type = genaiType(typeName)
	if desc, ok := schema["description"].(string); ok {
		out.Description = desc
	}

	if enum := anySlice(schema["enum"]); len(enum) > 0 {
		values := make([]string, len(enum))
		for i, v := range enum {
			values[i] = fmt.Sprint(v)
		}
		if out.Type == genai.TypeString {
			out.Format = "enum"
			out.Enum = values
		} else if out.Description == "" {
			out.Description = fmt.Sprintf("one of %v", values)
		}
	}

	if props, ok := schema["properties"].(map[string]any); ok {
		out.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			if sub, ok := raw.(map[string]any); ok {
				out.Properties[name] = GenaiSchema(sub)
			}
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		out.Items = GenaiSchema(items)
	}
	out.Required = stringSlice(schema["required"])
	return out
}

func genaiType(name string) genai.Type {
	switch name {
	case "object":
		return genai.TypeObject
	case "array":
		return genai.TypeArray
	case "string":
		return genai.TypeString
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	default:
		return genai.TypeUnspecified
	}
}

func anySlice(v any) []any {
	switch s := v.(type) {
	case []any:
		return s
	case []string:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out
	case []int:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out
	default:
		return nil
	}
}

func stringSlice(v any) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, x := range s {
			if str, ok := x.(string); ok {
				out = append(out, str)
			}
		}
		return out
	default:
		return nil
	}
}
