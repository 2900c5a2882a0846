package main

import (
	"encoding/json"
	"fmt"
	"io"
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

	"github.com/sells-group/recon-cli/internal/ingest"
	"github.com/sells-group/recon-cli/internal/model"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server: webhook ingestion, operator reset, status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		log := zap.L().With(zap.String("command", "serve"))

		// The controller runs alongside the server so webhook-ingested
		// records are processed immediately.
		go func() {
			if err := env.Controller.Run(ctx); err != nil {
				log.Error("controller stopped", zap.Error(err))
			}
		}()
		go func() {
			ticker := time.NewTicker(5 * time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if _, _, err := env.Controller.RecoverStuck(ctx); err != nil {
						log.Error("stuck recovery failed", zap.Error(err))
					}
				}
			}
		}()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(env, log),
		}

		go func() {
			<-ctx.Done()
			log.Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		log.Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// newRouter builds the HTTP API over a wired environment.
func newRouter(env *reconEnv, log *zap.Logger) chi.Router {
	expenses := ingest.NewExpenseService(env.Store, env.Controller.Trigger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/webhook/expenses", func(w http.ResponseWriter, req *http.Request) {
		body, err := io.ReadAll(io.LimitReader(req.Body, 1<<20))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "read body"})
			return
		}
		rec, duplicate, err := expenses.Ingest(req.Context(), body)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{
			"record_id":   rec.ID,
			"external_id": rec.ExternalID,
			"duplicate":   duplicate,
		})
	})

	r.Get("/records/{id}", func(w http.ResponseWriter, req *http.Request) {
		rec, err := env.Store.GetRecord(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "record not found"})
			return
		}
		writeJSON(w, http.StatusOK, recordResponse(rec))
	})

	r.Post("/records/{id}/reset", func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "id")
		var body struct {
			CorrectedCategory     string `json:"corrected_category"`
			CorrectedJurisdiction string `json:"corrected_jurisdiction"`
		}
		if req.Body != nil {
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil && err != io.EOF {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
				return
			}
		}

		rec, err := env.Store.GetRecord(req.Context(), id)
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "record not found"})
			return
		}
		if body.CorrectedCategory != "" || body.CorrectedJurisdiction != "" {
			if err := env.Learning.Correct(req.Context(), rec, body.CorrectedCategory, body.CorrectedJurisdiction); err != nil {
				log.Warn("correction audit write failed",
					zap.String("record_id", id), zap.Error(err))
			}
		}
		if err := env.Store.ResetRecord(req.Context(), id, body.CorrectedCategory, body.CorrectedJurisdiction); err != nil {
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
			return
		}
		env.Controller.Trigger()
		writeJSON(w, http.StatusOK, map[string]string{"record_id": id, "status": "pending"})
	})

	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		counts, err := env.Store.CountByStatus(req.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"counts":    counts,
			"completed": env.Controller.Completed.Load(),
			"failed":    env.Controller.Failed.Load(),
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// recordResponse maps a record to its API shape.
func recordResponse(rec *model.ExpenseRecord) map[string]any {
	resp := map[string]any{
		"id":                  rec.ID,
		"external_id":         rec.ExternalID,
		"vendor":              rec.VendorRaw,
		"amount":              model.FormatCents(rec.AmountCents),
		"date":                rec.TxnDate.Format("2006-01-02"),
		"status":              string(rec.Status),
		"category":            rec.Category,
		"jurisdiction":        rec.Jurisdiction,
		"confidence":          rec.Confidence,
		"flags":               rec.Flags,
		"flag_reason":         rec.FlagReason,
		"posted_ref":          rec.PostedRef,
		"processing_attempts": rec.ProcessingAttempts,
		"last_error":          rec.LastError,
	}
	if rec.MatchedTxnID != nil {
		resp["matched_transaction_id"] = *rec.MatchedTxnID
	}
	return resp
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
