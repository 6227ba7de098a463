package server

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/morezero/device-manager/pkg/descriptor"
	"github.com/morezero/device-manager/pkg/registry"
)

// HealthOutput is the body of /health.
type HealthOutput struct {
	Status    string                 `json:"status"`
	Checks    HealthChecks           `json:"checks"`
	Registry  *registry.HealthOutput `json:"registry"`
	Pending   int                    `json:"pending"`
	Timestamp string                 `json:"timestamp"`
}

// HealthChecks holds individual health check results.
type HealthChecks struct {
	Comms bool `json:"comms"`
	Store bool `json:"store"`
}

// routes builds the HTTP mux.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHome())
	mux.HandleFunc("/device/", s.handleDevice())
	mux.HandleFunc("/health", s.handleHealth())
	mux.HandleFunc("/ready", s.handleReady())
	mux.Handle("/metrics", s.metrics.Handler())
	return mux
}

// health runs every check within the configured timeout.
func (s *Server) health(ctx context.Context) *HealthOutput {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.HealthCheckTimeout)
	defer cancel()

	h := &HealthOutput{
		Registry:  s.reg.Health(),
		Pending:   s.pending.Len(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	h.Checks.Comms = s.connected != nil && s.connected()
	if s.store != nil {
		if err := s.store.Ping(ctx); err != nil {
			slog.Warn(fmt.Sprintf("%s - state store ping failed: %v", logPrefix, err))
		} else {
			h.Checks.Store = true
		}
	}

	h.Status = "healthy"
	if !h.Checks.Comms || !h.Checks.Store {
		h.Status = "unhealthy"
	}
	return h
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := s.health(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if h.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(h)
	}
}

func (s *Server) handleReady() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if s.sub == nil || !s.sub.IsValid() {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "starting"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	}
}

// handleDevice serves the GUI view of one listed device as JSON.
func (s *Server) handleDevice() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := url.PathUnescape(strings.TrimPrefix(r.URL.Path, "/device/"))
		if err != nil || id == "" {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}

		dev, ok := s.reg.LookupDevice(id)
		if !ok {
			http.NotFound(w, r)
			return
		}
		wire, err := descriptor.ConvertDevice(*dev)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(wire); err != nil {
			slog.Error(fmt.Sprintf("%s - device json encode: %v", logPrefix, err))
		}
	}
}

// homePageTemplate is the HTML for the device manager home page (white bg, black/blue text).
const homePageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Device Manager {{.Instance}}</title>
  <style>
    * { box-sizing: border-box; }
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    a { color: #0066cc; }
    h1, h2, h3 { color: #0066cc; }
    .status-healthy { color: #0066cc; font-weight: bold; }
    .status-unhealthy { color: #cc0000; font-weight: bold; }
    table { border-collapse: collapse; width: 100%; max-width: 900px; margin-top: 0.5rem; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; }
    th { background: #f0f4f8; color: #0066cc; }
    .stat { font-weight: bold; color: #0066cc; }
    .meta { color: #333; font-size: 0.9rem; margin-top: 1rem; }
    section { margin-bottom: 2rem; }
    .error { color: #cc0000; }
  </style>
</head>
<body>
  <h1>Device Manager {{.Instance}}</h1>
  <p class="meta">Health and the devices last listed to the GUI.</p>

  <section>
    <h2>Health</h2>
    <p>Status: <span class="status-{{.Health.Status}}">{{.Health.Status}}</span></p>
    <p>COMMS: {{if .Health.Checks.Comms}}<span class="stat">OK</span>{{else}}<span class="error">Disconnected</span>{{end}}</p>
    <p>State store: {{if .Health.Checks.Store}}<span class="stat">OK</span>{{else}}<span class="error">Failed</span>{{end}}</p>
    <p>Registry: {{.Health.Registry.Status}}, open conversations: <span class="stat">{{.Health.Pending}}</span></p>
    <p>Timestamp: {{.Health.Timestamp}}</p>
  </section>

  <section>
    <h2>Devices</h2>
    {{if not .Devices}}
    <p>No device list requested yet.</p>
    {{else}}
    <table>
      <thead>
        <tr><th>Device</th><th>Actions</th><th>Controls</th></tr>
      </thead>
      <tbody>
        {{range .Devices}}
        <tr>
          <td><a href="/device/{{.ID}}">{{.ID}}</a></td>
          <td>{{.Actions}}</td>
          <td>{{.Controls}}</td>
        </tr>
        {{end}}
      </tbody>
    </table>
    {{end}}
  </section>
</body>
</html>
`

// deviceRow is one line of the home page device table.
type deviceRow struct {
	ID       string
	Actions  int
	Controls int
}

// homeData is the data passed to the home page template.
type homeData struct {
	Instance string
	Health   *HealthOutput
	Devices  []deviceRow
}

// handleHome returns an HTTP handler for the home page.
func (s *Server) handleHome() http.HandlerFunc {
	tmpl := template.Must(template.New("home").Parse(homePageTemplate))
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}

		data := homeData{Instance: s.cfg.Instance, Health: s.health(r.Context())}
		devices := s.reg.Devices()
		for _, id := range s.reg.DeviceIDs() {
			d := devices[id]
			data.Devices = append(data.Devices, deviceRow{ID: id, Actions: len(d.Actions), Controls: len(d.Controls)})
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, data); err != nil {
			slog.Error(fmt.Sprintf("%s - home template execute: %v", logPrefix, err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}
