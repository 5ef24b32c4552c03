package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/leadflow/internal/ingest"
	"github.com/sells-group/leadflow/internal/pipeline"
	"github.com/sells-group/leadflow/internal/store"
	"github.com/sells-group/leadflow/pkg/calendar"
	"github.com/sells-group/leadflow/pkg/contentgen"
	"github.com/sells-group/leadflow/pkg/mailer"
	"github.com/sells-group/leadflow/pkg/telephony"
)

var (
	runSessionID string
	runMaxLeads  int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the outreach pipeline over a session's leads",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

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

		maxLeads := runMaxLeads
		if maxLeads <= 0 {
			maxLeads = cfg.Pipeline.MaxLeads
		}

		summary, err := orch.RunSession(ctx, runSessionID, pipeline.RunSessionOptions{
			VerifyWait: time.Duration(cfg.Ingest.VerifyMaxWaitSecs) * time.Second,
			MaxLeads:   maxLeads,
		})
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	},
}

func buildOrchestrator(st store.Store) (*pipeline.Orchestrator, error) {
	if cfg.Anthropic.Key == "" {
		return nil, eris.New("anthropic API key is required (LEADFLOW_ANTHROPIC_KEY)")
	}

	gen := contentgen.NewClient(cfg.Anthropic.Key, cfg.Anthropic.Model)

	var phoneOpts []telephony.Option
	if cfg.Telephony.BaseURL != "" {
		phoneOpts = append(phoneOpts, telephony.WithBaseURL(cfg.Telephony.BaseURL))
	}
	phone := telephony.NewClient(cfg.Telephony.Key, phoneOpts...)

	var calOpts []calendar.Option
	if cfg.Calendar.BaseURL != "" {
		calOpts = append(calOpts, calendar.WithBaseURL(cfg.Calendar.BaseURL))
	}
	cal := calendar.NewClient(cfg.Calendar.Key, calOpts...)

	mail := mailer.NewSMTPSender(mailer.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
		SSL:      cfg.SMTP.SSL,
	})

	retriever := ingest.NewRetriever(
		st,
		cfg.Ingest.RetrieveAttempts,
		time.Duration(cfg.Ingest.RetrieveTimeoutSec)*time.Second,
		time.Duration(cfg.Ingest.RetrieveBackoffSec)*time.Second,
	)
	verifier := ingest.NewVerifier(st, time.Duration(cfg.Ingest.VerifyIntervalSecs)*time.Second)

	return pipeline.New(&cfg.Pipeline, st, retriever, verifier, gen, phone, cal, mail), nil
}

func init() {
	runCmd.Flags().StringVar(&runSessionID, "session", "", "session id to process (required)")
	runCmd.Flags().IntVar(&runMaxLeads, "max-leads", 0, "cap on leads processed")
	_ = runCmd.MarkFlagRequired("session")
	rootCmd.AddCommand(runCmd)
}
