// Package prompts holds the grading prompt templates, embedded at compile time.
package prompts

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

//go:embed grading.json
var gradingJSON []byte

// Grading is the system and user template pair for one grading call.
type Grading struct {
	System string `json:"grading-system"`
	User   string `json:"grading-user"`
}

var loadGrading = sync.OnceValues(func() (Grading, error) {
	return parseGrading(gradingJSON)
})

// LoadGrading returns the embedded grading templates.
func LoadGrading() (Grading, error) {
	return loadGrading()
}

func parseGrading(data []byte) (Grading, error) {
	var g Grading
	if err := json.Unmarshal(data, &g); err != nil {
		return Grading{}, fmt.Errorf("failed to parse grading prompts: %w", err)
	}
	if g.System == "" || g.User == "" {
		return Grading{}, fmt.Errorf("grading prompts need both grading-system and grading-user")
	}
	return g, nil
}

// RenderSystem fills the system template with the JSON shape the model must return.
func (g Grading) RenderSystem(outputTemplate string) string {
	return Format(g.System, map[string]string{"OutputTemplate": outputTemplate})
}

// RenderUser fills the user template. The student line is omitted when label is empty.
func (g Grading) RenderUser(rubricText, label, document string) string {
	studentLine := ""
	if label != "" {
		studentLine = "Student: " + label
	}
	return Format(g.User, map[string]string{
		"Rubric":      rubricText,
		"StudentLine": studentLine,
		"Document":    document,
	})
}

// Format replaces {{.Key}} placeholders with values from data in a single pass, so values
// are never expanded themselves. Placeholders without a value are left in place.
func Format(template string, data map[string]string) string {
	pairs := make([]string, 0, len(data)*2)
	for key, value := range data {
		pairs = append(pairs, "{{."+key+"}}", value)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
