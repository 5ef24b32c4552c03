package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
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

	"github.com/sells-group/leadflow/internal/pipeline"
	"github.com/sells-group/leadflow/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook server that triggers pipeline runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		orch, err := buildOrchestrator(st)
		if err != nil {
			return err
		}

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST"},
			AllowedHeaders: []string{"Content-Type", "X-Signature", "X-Event-ID"},
		}))

		r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
		})

		r.Get("/sessions/{sessionID}", func(w http.ResponseWriter, req *http.Request) {
			sessionID := chi.URLParam(req, "sessionID")

			session, getErr := st.GetSession(req.Context(), sessionID)
			if getErr != nil {
				http.Error(w, `{"error":"store unavailable"}`, http.StatusInternalServerError)
				return
			}
			if session == nil {
				http.Error(w, `{"error":"session not found"}`, http.StatusNotFound)
				return
			}

			count, countErr := st.CountSessionLeads(req.Context(), sessionID)
			if countErr != nil {
				http.Error(w, `{"error":"store unavailable"}`, http.StatusInternalServerError)
				return
			}

			runs, listErr := st.ListPipelineRuns(req.Context(), store.RunFilter{SessionID: sessionID})
			if listErr != nil {
				http.Error(w, `{"error":"store unavailable"}`, http.StatusInternalServerError)
				return
			}

			out := sessionStatus{Session: session, LeadCount: count}
			if len(runs) > 0 {
				out.Runs = runs
			}

			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(out)
		})

		r.Post("/webhook/session-complete", func(w http.ResponseWriter, req *http.Request) {
			body, readErr := io.ReadAll(req.Body)
			if readErr != nil {
				http.Error(w, `{"error":"unreadable body"}`, http.StatusBadRequest)
				return
			}

			if secret := cfg.Server.WebhookSecret; secret != "" {
				if !verifySignature(secret, body, req.Header.Get("X-Signature")) {
					http.Error(w, `{"error":"invalid signature"}`, http.StatusUnauthorized)
					return
				}
			}

			var payload struct {
				SessionID string `json:"session_id"`
				EventID   string `json:"event_id"`
			}
			if err := json.Unmarshal(body, &payload); err != nil {
				http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
				return
			}
			if payload.SessionID == "" {
				http.Error(w, `{"error":"session_id is required"}`, http.StatusBadRequest)
				return
			}
			if payload.EventID == "" {
				payload.EventID = req.Header.Get("X-Event-ID")
			}

			// Run asynchronously; duplicates are swallowed by the
			// idempotency guard inside RunSession.
			go func() {
				summary, runErr := orch.RunSession(ctx, payload.SessionID, pipeline.RunSessionOptions{
					EventID:    payload.EventID,
					VerifyWait: time.Duration(cfg.Ingest.VerifyMaxWaitSecs) * time.Second,
					MaxLeads:   cfg.Pipeline.MaxLeads,
				})
				if runErr != nil {
					if eris.Is(runErr, pipeline.ErrDuplicateEvent) {
						return
					}
					zap.L().Error("webhook pipeline run failed",
						zap.String("session_id", payload.SessionID),
						zap.Error(runErr),
					)
					return
				}
				zap.L().Info("webhook pipeline run complete",
					zap.String("session_id", payload.SessionID),
					zap.Int("processed", summary.LeadsProcessed),
				)
			}()

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusAccepted)
			json.NewEncoder(w).Encode(map[string]string{
				"status":     "accepted",
				"session_id": payload.SessionID,
			})
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		// Graceful shutdown
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

// verifySignature checks an HMAC-SHA256 hex signature over the raw body.
func verifySignature(secret string, body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
