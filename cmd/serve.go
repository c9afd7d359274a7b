package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fullcount-labs/athlete-cli/internal/identity"
	"github.com/fullcount-labs/athlete-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP resolve API",
	Long:  "Serves identity resolution over HTTP so other tools can resolve sightings without linking the library.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		resolver := identity.NewResolver(st, newAuthority(cfg), nil)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(st, resolver),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func newRouter(st store.Store, resolver *identity.Resolver) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/api/resolve", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			SourceSystem   string `json:"source_system"`
			SourceLocalID  string `json:"source_local_id"`
			Name           string `json:"name"`
			CheckAuthority bool   `json:"check_authority"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if body.SourceSystem == "" || body.SourceLocalID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "source_system and source_local_id are required"})
			return
		}

		res, err := resolver.ResolveOrCreate(req.Context(), identity.Sighting{
			SourceSystem:  body.SourceSystem,
			SourceLocalID: body.SourceLocalID,
			RawName:       body.Name,
		}, identity.Options{CheckAuthority: body.CheckAuthority})
		if err != nil {
			zap.L().Error("resolve failed",
				zap.String("source_system", body.SourceSystem),
				zap.Error(err),
			)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "resolution failed"})
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{
			"athlete_id": res.AthleteID,
			"outcome":    string(res.Outcome),
		})
	})

	r.Get("/api/athletes/{id}", func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "id")
		athlete, err := st.GetAthlete(req.Context(), id)
		if eris.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "athlete not found"})
			return
		}
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
			return
		}

		if stats, err := st.GetDomainStats(req.Context(), id); err == nil {
			athlete.Stats = stats
		}
		writeJSON(w, http.StatusOK, athlete)
	})

	r.Get("/api/athletes/{id}/mappings", func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "id")
		mappings, err := st.ListMappings(req.Context(), id)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
			return
		}
		writeJSON(w, http.StatusOK, mappings)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
