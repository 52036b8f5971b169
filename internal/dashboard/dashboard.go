// Package dashboard holds the embedded templates and stylesheet of the
// local results dashboard.
package dashboard

import (
	"embed"
	"html/template"
	"io"
	"strings"
	"sync"
)

//go:embed templates/*.html
var Templates embed.FS

//go:embed assets/style.css
var Assets embed.FS

var funcs = template.FuncMap{
	"join": strings.Join,
	"pct":  func(v float64) int { return int(v*100 + 0.5) },
}

var (
	parseOnce sync.Once
	parsed    *template.Template
	parseErr  error
)

func templates() (*template.Template, error) {
	parseOnce.Do(func() {
		parsed, parseErr = template.New("").Funcs(funcs).ParseFS(Templates, "templates/*.html")
	})
	return parsed, parseErr
}

// Render executes the named template (its file name, e.g. "list.html").
func Render(w io.Writer, name string, data any) error {
	t, err := templates()
	if err != nil {
		return err
	}
	return t.ExecuteTemplate(w, name, data)
}

func Stylesheet() ([]byte, error) {
	return Assets.ReadFile("assets/style.css")
}
