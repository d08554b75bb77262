// Package rubric holds the scoring criteria used to build grading requests. A rubric is
// loaded once at startup and never modified afterwards.
package rubric

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

//go:embed default_rubric.yaml
var defaultRubricYAML []byte

// Criterion is one scored category. With Allowed set, scores must be one of its values;
// without it, any whole number from 0 to Points is accepted.
type Criterion struct {
	Key         string         `yaml:"key" json:"key"`
	Name        string         `yaml:"name" json:"name"`
	Points      int            `yaml:"points" json:"points"`
	Allowed     []int          `yaml:"allowed" json:"allowed"`
	Description string         `yaml:"description" json:"description"`
	Bands       map[int]string `yaml:"bands,omitempty" json:"bands,omitempty"`
}

// Rubric is the complete scoring scheme.
type Rubric struct {
	Name        string      `yaml:"name" json:"name"`
	TotalPoints int         `yaml:"total_points" json:"total_points"`
	Notes       string      `yaml:"notes,omitempty" json:"notes,omitempty"`
	Criteria    []Criterion `yaml:"criteria" json:"criteria"`
}

// Error reports an invalid rubric definition.
type Error struct {
	Source  string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("rubric %s: %s: %v", e.Source, e.Message, e.Cause)
	}
	return fmt.Sprintf("rubric %s: %s", e.Source, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Discrete reports whether the criterion restricts scores to its Allowed values.
func (c Criterion) Discrete() bool {
	return len(c.Allowed) > 0
}

// Accepts reports whether v is a valid score for the criterion.
func (c Criterion) Accepts(v int) bool {
	if c.Discrete() {
		return slices.Contains(c.Allowed, v)
	}
	return v >= 0 && v <= c.Points
}

func (c Criterion) allowedText(sep string) string {
	if c.Discrete() {
		return joinInts(c.Allowed, sep)
	}
	return fmt.Sprintf("0-%d", c.Points)
}

// Default returns the built-in rubric.
func Default() *Rubric {
	r, err := parse("default", ".yaml", defaultRubricYAML)
	if err != nil {
		panic(fmt.Sprintf("built-in rubric is invalid: %v", err))
	}
	return r
}

// Load reads a rubric from a YAML or JSON file. An empty path returns the built-in rubric.
func Load(path string) (*Rubric, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Source: path, Message: "failed to read file", Cause: err}
	}
	return parse(path, strings.ToLower(filepath.Ext(path)), data)
}

func parse(source, ext string, data []byte) (*Rubric, error) {
	var r Rubric
	var err error
	switch ext {
	case ".json":
		err = json.Unmarshal(data, &r)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &r)
	default:
		return nil, &Error{Source: source, Message: fmt.Sprintf("unsupported file extension %q", ext)}
	}
	if err != nil {
		return nil, &Error{Source: source, Message: "failed to parse", Cause: err}
	}
	if err := r.validate(source); err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *Rubric) validate(source string) error {
	if len(r.Criteria) == 0 {
		return &Error{Source: source, Message: "no criteria defined"}
	}
	seen := make(map[string]bool, len(r.Criteria))
	sum := 0
	for i := range r.Criteria {
		c := &r.Criteria[i]
		if c.Key == "" {
			c.Key = keyFromName(c.Name)
		}
		if c.Key == "" {
			return &Error{Source: source, Message: fmt.Sprintf("criterion %d has no key or name", i+1)}
		}
		if seen[c.Key] {
			return &Error{Source: source, Message: fmt.Sprintf("duplicate criterion key %q", c.Key)}
		}
		seen[c.Key] = true
		if c.Name == "" {
			c.Name = c.Key
		}
		if !c.Discrete() {
			if c.Points <= 0 {
				return &Error{Source: source, Message: fmt.Sprintf("criterion %q needs positive points", c.Key)}
			}
			sum += c.Points
			continue
		}
		sort.Sort(sort.Reverse(sort.IntSlice(c.Allowed)))
		if c.Allowed[0] != c.Points {
			return &Error{Source: source, Message: fmt.Sprintf("criterion %q: highest allowed value %d does not equal points %d", c.Key, c.Allowed[0], c.Points)}
		}
		if c.Allowed[len(c.Allowed)-1] < 0 {
			return &Error{Source: source, Message: fmt.Sprintf("criterion %q has a negative allowed value", c.Key)}
		}
		sum += c.Points
	}
	if r.TotalPoints == 0 {
		r.TotalPoints = sum
	}
	if sum != r.TotalPoints {
		return &Error{Source: source, Message: fmt.Sprintf("criteria points sum to %d, total_points is %d", sum, r.TotalPoints)}
	}
	if r.TotalPoints > 100 {
		return &Error{Source: source, Message: fmt.Sprintf("total_points %d exceeds 100", r.TotalPoints)}
	}
	return nil
}

// Keys returns the criterion keys in rubric order.
func (r *Rubric) Keys() []string {
	keys := make([]string, len(r.Criteria))
	for i, c := range r.Criteria {
		keys[i] = c.Key
	}
	return keys
}

// Criterion looks up a criterion by key.
func (r *Rubric) Criterion(key string) (Criterion, bool) {
	for _, c := range r.Criteria {
		if c.Key == key {
			return c, true
		}
	}
	return Criterion{}, false
}

// CheckBreakdown verifies that breakdown has exactly the rubric's keys and that every value
// is accepted by its criterion.
func (r *Rubric) CheckBreakdown(breakdown map[string]int) error {
	for key := range breakdown {
		if _, ok := r.Criterion(key); !ok {
			return fmt.Errorf("unknown criterion %q in breakdown", key)
		}
	}
	for _, c := range r.Criteria {
		v, ok := breakdown[c.Key]
		if !ok {
			return fmt.Errorf("missing criterion %q in breakdown", c.Key)
		}
		if !c.Accepts(v) {
			if c.Discrete() {
				return fmt.Errorf("criterion %q value %d is not one of %v", c.Key, v, c.Allowed)
			}
			return fmt.Errorf("criterion %q value %d is outside 0-%d", c.Key, v, c.Points)
		}
	}
	return nil
}

// PromptText renders the rubric as the criteria section of the grading request.
func (r *Rubric) PromptText() string {
	var sb strings.Builder
	sb.WriteString("Evaluate the following document according to these criteria:\n\n")
	for i, c := range r.Criteria {
		sb.WriteString(fmt.Sprintf("%d. %s [%s] (%d points): %s\n", i+1, c.Name, c.Key, c.Points, c.Description))
		for _, v := range c.Allowed {
			band, ok := c.Bands[v]
			if !ok {
				continue
			}
			sb.WriteString(fmt.Sprintf("   - %d: %s\n", v, band))
		}
		if c.Discrete() {
			sb.WriteString(fmt.Sprintf("   Allowed values: %s\n\n", joinInts(c.Allowed, "|")))
		} else {
			sb.WriteString(fmt.Sprintf("   Allowed values: any whole number from 0 to %d\n\n", c.Points))
		}
	}
	sb.WriteString(fmt.Sprintf("Total possible points: %d\n", r.TotalPoints))
	if r.Notes != "" {
		sb.WriteString("\n")
		sb.WriteString(strings.TrimSpace(r.Notes))
		sb.WriteString("\n")
	}
	return sb.String()
}

// OutputTemplate renders the JSON object shape the grader must return.
func (r *Rubric) OutputTemplate() string {
	var sb strings.Builder
	sb.WriteString("{\n")
	sb.WriteString(fmt.Sprintf("  \"total_score\": <sum of %d categories>,\n", len(r.Criteria)))
	sb.WriteString("  \"breakdown\": {\n")
	for i, c := range r.Criteria {
		sb.WriteString(fmt.Sprintf("    \"%s\": <%s>", c.Key, c.allowedText("|")))
		if i < len(r.Criteria)-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("  },\n")
	sb.WriteString("  \"strengths\": \"<specific features with examples>\",\n")
	sb.WriteString("  \"weaknesses\": \"<specific gaps>\",\n")
	sb.WriteString("  \"recommendations\": \"<concrete actions>\",\n")
	sb.WriteString("  \"plagiarism_flags\": \"<None detected, or the indicators found>\"\n")
	sb.WriteString("}")
	return sb.String()
}

// ResponseSchema returns a JSON Schema for the grading response. Each breakdown field is
// constrained to its criterion's allowed values, or to 0..points for range criteria.
func (r *Rubric) ResponseSchema() map[string]any {
	breakdownProps := make(map[string]any, len(r.Criteria))
	for _, c := range r.Criteria {
		if !c.Discrete() {
			breakdownProps[c.Key] = map[string]any{
				"type":        "integer",
				"minimum":     0,
				"maximum":     c.Points,
				"description": fmt.Sprintf("%s, 0 to %d", c.Name, c.Points),
			}
			continue
		}
		enum := make([]any, len(c.Allowed))
		for i, v := range c.Allowed {
			enum[i] = v
		}
		breakdownProps[c.Key] = map[string]any{
			"type":        "integer",
			"enum":        enum,
			"description": fmt.Sprintf("%s, one of %s", c.Name, c.allowedText(", ")),
		}
	}
	stringField := func(desc string) map[string]any {
		return map[string]any{"type": "string", "description": desc}
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"total_score": map[string]any{
				"type":        "integer",
				"minimum":     0,
				"maximum":     r.TotalPoints,
				"description": "Sum of all breakdown values",
			},
			"breakdown": map[string]any{
				"type":                 "object",
				"properties":           breakdownProps,
				"required":             r.Keys(),
				"additionalProperties": false,
			},
			"strengths":        stringField("Specific strengths with evidence from the document"),
			"weaknesses":       stringField("Specific gaps found in the document"),
			"recommendations":  stringField("Concrete actions to improve the work"),
			"plagiarism_flags": stringField("Plagiarism or AI-generation indicators, or None detected"),
		},
		"required": []string{"total_score", "breakdown", "strengths", "weaknesses", "recommendations", "plagiarism_flags"},
	}
}

// keyFromName turns a display name such as "ER Model & Design" into "er_model_design".
func keyFromName(name string) string {
	var sb strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && sb.Len() > 0 {
				sb.WriteByte('_')
			}
			pendingSep = false
			sb.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return sb.String()
}

func joinInts(values []int, sep string) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return strings.Join(parts, sep)
}
