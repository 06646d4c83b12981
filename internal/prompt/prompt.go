// Package prompt renders the prompts sent to the language model.
package prompt

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/aretw0/sqlgraph/pkg/ports"
)

//go:embed templates/*.tmpl
var files embed.FS

var templates = template.Must(template.New("prompts").Funcs(template.FuncMap{
	"join": strings.Join,
	"inc":  func(i int) int { return i + 1 },
}).ParseFS(files, "templates/*.tmpl"))

// Stage names. Each stage defines "<stage>.user" and optionally "<stage>.system".
const (
	Rewrite        = "rewrite"
	Keywords       = "keywords"
	Planner        = "planner"
	PlanReask      = "plan_reask"
	SQLGenerate    = "sql_generate"
	SQLRepair      = "sql_repair"
	SQLOptimize    = "sql_optimize"
	Semantic       = "semantic"
	PythonGenerate = "python_generate"
	PythonAnalyze  = "python_analyze"
	Report         = "report"
)

// Build renders the system and user parts of a stage.
func Build(stage string, data any) (ports.Prompt, error) {
	var p ports.Prompt
	if templates.Lookup(stage+".system") != nil {
		s, err := render(stage+".system", data)
		if err != nil {
			return p, err
		}
		p.System = s
	}
	u, err := render(stage+".user", data)
	if err != nil {
		return p, err
	}
	p.User = u
	return p, nil
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}
