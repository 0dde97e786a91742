package server

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"sort"
	"strings"
)

// homePageTemplate is the HTML for the host home page (white bg, black/blue text).
const homePageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Service}}</title>
  <style>
    * { box-sizing: border-box; }
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    h1, h2 { color: #0066cc; }
    .status-healthy { color: #0066cc; font-weight: bold; }
    .status-unhealthy { color: #cc0000; font-weight: bold; }
    table { border-collapse: collapse; width: 100%; max-width: 900px; margin-top: 0.5rem; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; }
    th { background: #f0f4f8; color: #0066cc; }
    code { font-size: 0.9rem; }
  </style>
</head>
<body>
  <h1>{{.Service}}</h1>

  <section>
    <h2>Health</h2>
    <p>Status: <span class="status-{{.Health.Status}}">{{.Health.Status}}</span></p>
    {{range $name, $ok := .Health.Checks}}<p>{{$name}}: {{if $ok}}OK{{else}}Failed{{end}}</p>{{end}}
  </section>

  <section>
    <h2>Flows</h2>
    {{if not .Flows}}
    <p>No flows registered.</p>
    {{else}}
    <table>
      <thead>
        <tr><th>Flow</th><th>Route</th><th>Methods</th><th>Auth level</th><th>Streaming</th></tr>
      </thead>
      <tbody>
        {{range .Flows}}
        <tr>
          <td>{{.Name}}</td>
          <td><code>{{.Route}}</code></td>
          <td>{{.Methods}}</td>
          <td>{{.AuthLevel}}</td>
          <td>{{if .Streaming}}yes{{else}}no{{end}}</td>
        </tr>
        {{end}}
      </tbody>
    </table>
    {{end}}
  </section>
</body>
</html>
`

type flowRow struct {
	Name      string
	Route     string
	Methods   string
	AuthLevel string
	Streaming bool
}

// homeData is the data passed to the home page template.
type homeData struct {
	Service string
	Health  *healthOutput
	Flows   []flowRow
}

// handleHome returns an HTTP handler for the host home page.
func (s *Server) handleHome() http.HandlerFunc {
	tmpl := template.Must(template.New("home").Parse(homePageTemplate))
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		routes := s.host.Routes()
		data := homeData{Service: s.cfg.ServiceName, Health: s.health(ctx)}
		for _, a := range s.adapters {
			name, cfg, _ := a.Trigger()
			data.Flows = append(data.Flows, flowRow{
				Name:      name,
				Route:     routes[name],
				Methods:   strings.Join(cfg.Methods, ", "),
				AuthLevel: string(cfg.AuthLevel),
				Streaming: a.Streaming(),
			})
		}
		sort.Slice(data.Flows, func(i, j int) bool { return data.Flows[i].Name < data.Flows[j].Name })

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, data); err != nil {
			slog.Error(fmt.Sprintf("%s - home template execute: %v", logPrefix, err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}
