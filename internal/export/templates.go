package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var matrixTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"lower": strings.ToLower,
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
	}

	templateContent, err := templateFS.ReadFile("templates/matrix.html")
	if err != nil {
		// Fallback to built-in template if file not found
		matrixTemplate = template.Must(template.New("matrix").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}

	matrixTemplate = template.Must(template.New("matrix").Funcs(funcMap).Parse(string(templateContent)))
}

// TemplateData holds data for matrix template rendering
type TemplateData struct {
	ProjectName string
	Description string
	GeneratedAt time.Time
	Quadrants   []TemplateQuadrant
}

// TemplateQuadrant holds one cell of the impact/effort matrix
type TemplateQuadrant struct {
	Label string
	Hint  string
	Ideas []TemplateIdea
}

// TemplateIdea holds idea data for the template
type TemplateIdea struct {
	Title    string
	Category string
	Status   string
	Impact   float64
	Effort   float64
}

// RenderMatrixHTML renders the matrix template with provided data
func RenderMatrixHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := matrixTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// fallbackTemplate is used if the embedded template fails to load
const fallbackTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.ProjectName}}</title>
  <style>
    body { font-family: Arial, sans-serif; margin: 1.5rem; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 1.5rem; }
    .matrix { display: grid; grid-template-columns: 1fr 1fr; gap: 0.75rem; }
    .quadrant { border: 1px solid #999; padding: 0.75rem; min-height: 10rem; }
    .quadrant h2 { margin-top: 0; font-size: 1em; }
    .hint { color: #888; font-size: 0.8em; }
    .idea { background: #f5f5f5; padding: 0.4rem 0.6rem; margin: 0.3rem 0; border-left: 3px solid #333; }
    .idea .pos { color: #999; font-size: 0.75em; }
  </style>
</head>
<body>
  <h1>{{.ProjectName}}</h1>
  {{if .Description}}<p>{{.Description}}</p>{{end}}
  <div class="meta">Generated {{formatDate .GeneratedAt "Jan 2, 2006 15:04"}}</div>
  <div class="matrix">
    {{range .Quadrants}}
    <div class="quadrant">
      <h2>{{.Label}}</h2>
      <div class="hint">{{.Hint}}</div>
      {{range .Ideas}}
      <div class="idea">{{.Title}}
        <span class="pos">impact {{printf "%.0f" .Impact}} / effort {{printf "%.0f" .Effort}}</span>
      </div>
      {{end}}
    </div>
    {{end}}
  </div>
</body>
</html>`
