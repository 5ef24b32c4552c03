package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/leadflow/internal/store"
)

var statusSessionID string

// sessionStatus is the status command's output document.
type sessionStatus struct {
	Session   any `json:"session"`
	LeadCount int `json:"lead_count"`
	Runs      any `json:"runs,omitempty"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a session's ingest state and pipeline runs",
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

		session, err := st.GetSession(ctx, statusSessionID)
		if err != nil {
			return eris.Wrap(err, "get session")
		}
		if session == nil {
			return eris.Errorf("session %s not found", statusSessionID)
		}

		count, err := st.CountSessionLeads(ctx, statusSessionID)
		if err != nil {
			return eris.Wrap(err, "count leads")
		}

		runs, err := st.ListPipelineRuns(ctx, store.RunFilter{SessionID: statusSessionID})
		if err != nil {
			return eris.Wrap(err, "list runs")
		}

		out := sessionStatus{
			Session:   session,
			LeadCount: count,
		}
		if len(runs) > 0 {
			out.Runs = runs
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusSessionID, "session", "", "session id (required)")
	_ = statusCmd.MarkFlagRequired("session")
	rootCmd.AddCommand(statusCmd)
}
