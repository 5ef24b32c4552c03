package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/leadflow/internal/model"
	"github.com/sells-group/leadflow/internal/store"
)

var (
	exportSessionID string
	exportOut       string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a session's leads and outcomes to an XLSX workbook",
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

		leads, err := st.QueryLeads(ctx, store.LeadFilter{SessionID: exportSessionID, Limit: 10000})
		if err != nil {
			return eris.Wrap(err, "query leads")
		}
		if len(leads) == 0 {
			return eris.Errorf("session %s has no leads", exportSessionID)
		}

		runs, err := st.ListPipelineRuns(ctx, store.RunFilter{SessionID: exportSessionID, Limit: 10000})
		if err != nil {
			return eris.Wrap(err, "list runs")
		}
		runByLead := make(map[string]*model.PipelineRun, len(runs))
		for i := range runs {
			runByLead[runs[i].LeadID] = &runs[i]
		}

		f := xlsx.NewFile()
		sheet, err := f.AddSheet("Leads")
		if err != nil {
			return eris.Wrap(err, "add sheet")
		}

		header := sheet.AddRow()
		for _, h := range []string{
			"Name", "Address", "Phone", "Email", "Website", "Category",
			"Rating", "Source", "Status", "Branch", "Call Outcome",
			"Email Sent", "Meeting ID",
		} {
			header.AddCell().SetString(h)
		}

		for i := range leads {
			lead := &leads[i]
			row := sheet.AddRow()
			row.AddCell().SetString(lead.Name)
			row.AddCell().SetString(lead.Address)
			row.AddCell().SetString(lead.Phone)
			row.AddCell().SetString(lead.Email)
			row.AddCell().SetString(lead.Website)
			row.AddCell().SetString(lead.Category)
			if lead.Rating != nil {
				row.AddCell().SetString(fmt.Sprintf("%.1f", *lead.Rating))
			} else {
				row.AddCell().SetString("")
			}
			row.AddCell().SetString(string(lead.Source))
			row.AddCell().SetString(string(lead.Status))

			if run, ok := runByLead[lead.ID]; ok {
				row.AddCell().SetString(string(run.BranchDecision))
				row.AddCell().SetString(string(run.CallOutcome))
				row.AddCell().SetString(fmt.Sprintf("%t", run.EmailSent))
				row.AddCell().SetString(run.MeetingID)
			} else {
				for range 4 {
					row.AddCell().SetString("")
				}
			}
		}

		if err := f.Save(exportOut); err != nil {
			return eris.Wrap(err, "save workbook")
		}

		zap.L().Info("export complete",
			zap.String("session_id", exportSessionID),
			zap.String("path", exportOut),
			zap.Int("leads", len(leads)),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportSessionID, "session", "", "session id (required)")
	exportCmd.Flags().StringVar(&exportOut, "out", "leads.xlsx", "output file path")
	_ = exportCmd.MarkFlagRequired("session")
	rootCmd.AddCommand(exportCmd)
}
