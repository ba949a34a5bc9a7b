// Command catalog-mock serves a catalog document over HTTP for local runs of the server
// with CATALOG_URL pointed at it.
package main

import (
	"flag"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/Clark-Hu/kvartali/internal/catalog"
	"github.com/Clark-Hu/kvartali/internal/logging"
)

func main() {
	var (
		port   = flag.String("port", "9099", "port to listen on")
		data   = flag.String("data", "", "catalog YAML or JSON file (default: built-in data)")
		status = flag.Int("status", http.StatusOK, "force this status code, e.g. 404 to exercise fallbacks")
		level  = flag.String("log-level", "info", "log level")
	)
	flag.Parse()

	logging.Init(logging.Config{Level: *level, Format: "console", Output: os.Stdout})
	logger := logging.Component("catalog-mock")

	doc := catalog.Document{
		Cities:      catalog.DefaultCities(),
		Criteria:    catalog.DefaultCriteria(),
		Specialties: catalog.DefaultSpecialties(),
	}
	if *data != "" {
		loaded, err := catalog.LoadFile(*data)
		if err != nil {
			logger.Fatal().Err(err).Msg("read catalog data")
		}
		doc = *loaded
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		logger.Fatal().Err(err).Msg("encode catalog")
	}

	r := chi.NewRouter()
	r.Get("/catalog", func(w http.ResponseWriter, req *http.Request) {
		logger.Debug().Str("remote", req.RemoteAddr).Int("status", *status).Msg("catalog requested")
		if *status != http.StatusOK {
			http.Error(w, http.StatusText(*status), *status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(payload)
	})

	addr := ":" + *port
	logger.Info().Str("addr", addr).Int("cities", len(doc.Cities)).Msg("mock catalog listening")
	if err := http.ListenAndServe(addr, r); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
}
