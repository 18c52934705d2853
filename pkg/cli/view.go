package cli

import (
	"html/template"
	"log/slog"
	"net/http"

	"github.com/mchmarny/overunder/pkg/data"
	"github.com/mchmarny/overunder/pkg/predict"
)

const homeRecentLimit = 10

var viewFuncs = template.FuncMap{
	"side": func(label string) string {
		return string(predict.SideOf(label))
	},
}

func faviconHandler(w http.ResponseWriter, r *http.Request) {
	file, err := embedFS.ReadFile("assets/img/favicon.svg")
	if err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	if _, err = w.Write(file); err != nil {
		slog.Error("failed to write favicon", "error", err)
	}
}

func homeViewHandler(tmpl *template.Template, cfg *appConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d := map[string]any{
			"version":       version,
			"commit":        commit,
			"build_date":    date,
			"err":           r.URL.Query().Get("err"),
			"authenticated": false,
			"batch_limit":   cfg.Config.BatchLimit,
			"history_limit": data.HistoryLimit,
		}

		if _, ok := cfg.Sessions.Check(); ok {
			d["authenticated"] = true

			st, err := cfg.Analyzer.Stats(r.Context())
			if err != nil {
				slog.Error("failed to get stats", "error", err)
			}
			d["stats"] = st

			recent, err := cfg.Analyzer.History(r.Context(), data.ListFilter{Limit: homeRecentLimit})
			if err != nil {
				slog.Error("failed to list history", "error", err)
			}
			d["recent"] = recent
		}

		if err := tmpl.ExecuteTemplate(w, "home", d); err != nil {
			slog.Error("template render failed", "error", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
		}
	}
}
