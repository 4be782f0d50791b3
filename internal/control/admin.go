package control

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"tailscale.com/tsweb"

	"github.com/banshee-data/gyrohook/internal/calibration"
	"github.com/banshee-data/gyrohook/internal/httputil"
	"github.com/banshee-data/gyrohook/internal/ingest"
	"github.com/banshee-data/gyrohook/internal/version"
)

// HistorySource returns recently applied profiles, newest first.
type HistorySource interface {
	RecentProfileUpdates(ctx context.Context, limit int) ([]ingest.Update, error)
}

// AdminOptions selects the optional admin routes. Nil fields leave the
// matching route out.
type AdminOptions struct {
	Feed         *ingest.Feed
	History      HistorySource
	HistoryLimit int
	Gatherer     prometheus.Gatherer
}

// Status is the body of /debug/calibration.
type Status struct {
	Profile   calibration.Profile `json:"profile"`
	Running   bool                `json:"running"`
	BoundPort int                 `json:"bound_port,omitempty"`
	Version   string              `json:"version"`
}

// serverRequest is the body of /debug/calibration/server.
type serverRequest struct {
	Action string `json:"action"`
	// Port 0 starts on the stored port.
	Port int `json:"port,omitempty"`
}

// AttachAdminRoutes mounts the calibration debug routes under /debug/. They
// are only reachable from loopback or the tailnet.
func (s *Service) AttachAdminRoutes(mux *http.ServeMux, o AdminOptions) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("calibration", "current calibration profile and server state", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			httputil.MethodNotAllowed(w)
			return
		}
		httputil.WriteJSONOK(w, s.status())
	})

	debug.HandleSilentFunc("calibration/save", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httputil.MethodNotAllowed(w)
			return
		}
		var p calibration.Profile
		if err := httputil.DecodeJSON(w, r, &p); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		if err := s.SaveProfile(p); err != nil {
			writeControlError(w, err)
			return
		}
		httputil.WriteJSONOK(w, s.status())
	})

	debug.HandleSilentFunc("calibration/server", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httputil.MethodNotAllowed(w)
			return
		}
		var req serverRequest
		if err := httputil.DecodeJSON(w, r, &req); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		switch req.Action {
		case "start":
			port := req.Port
			if port == 0 {
				port = s.CurrentProfile().ListenPort
			}
			if err := s.StartServer(port); err != nil {
				writeControlError(w, err)
				return
			}
		case "stop":
			s.StopServer()
		default:
			httputil.BadRequest(w, fmt.Sprintf("unknown action %q: expected start or stop", req.Action))
			return
		}
		httputil.WriteJSONOK(w, s.status())
	})

	if o.Feed != nil {
		debug.HandleSilentFunc("calibration/tail", func(w http.ResponseWriter, r *http.Request) {
			tailUpdates(w, r, o.Feed)
		})
	}

	if o.History != nil {
		limit := o.HistoryLimit
		if limit <= 0 {
			limit = 200
		}
		debug.HandleFunc("calibration/history", "recently applied profiles", func(w http.ResponseWriter, r *http.Request) {
			updates, err := o.History.RecentProfileUpdates(r.Context(), limit)
			if err != nil {
				httputil.InternalServerError(w, err.Error())
				return
			}
			if updates == nil {
				updates = []ingest.Update{}
			}
			httputil.WriteJSONOK(w, updates)
		})
		debug.HandleFunc("calibration/chart", "chart of recently applied offsets", func(w http.ResponseWriter, r *http.Request) {
			updates, err := o.History.RecentProfileUpdates(r.Context(), limit)
			if err != nil {
				httputil.InternalServerError(w, err.Error())
				return
			}
			var buf bytes.Buffer
			if err := renderOffsetChart(&buf, updates); err != nil {
				httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
				return
			}
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			io.Copy(w, &buf)
		})
	}

	if o.Gatherer != nil {
		debug.Handle("prometheus", "Prometheus metrics", promhttp.HandlerFor(o.Gatherer, promhttp.HandlerOpts{}))
	}
}

func (s *Service) status() Status {
	return Status{
		Profile:   s.CurrentProfile(),
		Running:   s.ServerRunning(),
		BoundPort: s.BoundPort(),
		Version:   version.String(),
	}
}

func writeControlError(w http.ResponseWriter, err error) {
	var (
		verr *calibration.ValidationError
		berr *calibration.BindError
	)
	switch {
	case errors.As(err, &verr):
		httputil.BadRequest(w, err.Error())
	case errors.As(err, &berr), errors.Is(err, ingest.ErrAlreadyRunning):
		httputil.Conflict(w, err.Error())
	default:
		httputil.InternalServerError(w, err.Error())
	}
}

// tailUpdates streams applied updates as server-sent events until the client
// goes away or the feed closes.
func tailUpdates(w http.ResponseWriter, r *http.Request, feed *ingest.Feed) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.InternalServerError(w, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	id, updates := feed.Subscribe()
	defer feed.Unsubscribe(id)

	w.Write([]byte(": ping\n\n"))
	flusher.Flush()

	for {
		select {
		case u, ok := <-updates:
			if !ok {
				return
			}
			payload, err := json.Marshal(u)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// renderOffsetChart draws the three offsets of updates, oldest on the left.
func renderOffsetChart(w io.Writer, updates []ingest.Update) error {
	n := len(updates)
	labels := make([]string, n)
	xs := make([]opts.LineData, n)
	ys := make([]opts.LineData, n)
	zs := make([]opts.LineData, n)
	for i, u := range updates {
		j := n - 1 - i
		labels[j] = u.At.Local().Format(time.TimeOnly)
		xs[j] = opts.LineData{Value: u.Profile.OffsetX}
		ys[j] = opts.LineData{Value: u.Profile.OffsetY}
		zs[j] = opts.LineData{Value: u.Profile.OffsetZ}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Calibration offsets", Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Applied calibration offsets", Subtitle: fmt.Sprintf("%d updates", n)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "offset"}),
	)
	line.SetXAxis(labels).
		AddSeries("x", xs, charts.WithLineChartOpts(opts.LineChart{Step: "end"})).
		AddSeries("y", ys, charts.WithLineChartOpts(opts.LineChart{Step: "end"})).
		AddSeries("z", zs, charts.WithLineChartOpts(opts.LineChart{Step: "end"}))

	return line.Render(w)
}
