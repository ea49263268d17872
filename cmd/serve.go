package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/commission"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/normalize"
	"github.com/sells-group/prospect-cli/internal/reconcile"
	"github.com/sells-group/prospect-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve progress and commission rollups over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
			Handler: newRouter(st, initSuburbs()),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func newRouter(st store.Store, suburbs normalize.SuburbTable) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/api/progress", func(w http.ResponseWriter, req *http.Request) {
		agent := req.URL.Query().Get("agent")
		if agent == "" {
			writeError(w, http.StatusBadRequest, "agent is required")
			return
		}

		plans, err := st.FetchPlans(req.Context(), agent)
		if err != nil {
			serveError(w, "fetch plans", err)
			return
		}
		activities, err := st.FetchActivities(req.Context(), agent, "")
		if err != nil {
			serveError(w, "fetch activities", err)
			return
		}

		agg := reconcile.New(suburbs)
		if raw := req.URL.Query().Get("suburb"); raw != "" {
			want := suburbs.Suburb(raw)
			var matched *model.Plan
			for i := range plans {
				if suburbs.Suburb(plans[i].Suburb) == want {
					matched = &plans[i]
					break
				}
			}
			if matched == nil {
				writeError(w, http.StatusNotFound, fmt.Sprintf("no plan for suburb %q", raw))
				return
			}
			writeJSON(w, http.StatusOK, agg.Suburb(*matched, activities))
			return
		}
		writeJSON(w, http.StatusOK, agg.Overall(plans, activities))
	})

	r.Get("/api/commission", func(w http.ResponseWriter, req *http.Request) {
		properties, err := st.FetchProperties(req.Context(), store.PropertyFilter{
			Agency: req.URL.Query().Get("agency"),
			Suburb: req.URL.Query().Get("suburb"),
		})
		if err != nil {
			serveError(w, "fetch properties", err)
			return
		}
		writeJSON(w, http.StatusOK, commission.Rollup(properties, suburbs))
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func serveError(w http.ResponseWriter, op string, err error) {
	zap.L().Error("serve: "+op, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
