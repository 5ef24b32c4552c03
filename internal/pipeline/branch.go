package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadflow/internal/model"
	"github.com/sells-group/leadflow/pkg/calendar"
	"github.com/sells-group/leadflow/pkg/contentgen"
	"github.com/sells-group/leadflow/pkg/mailer"
)

// branchStage acts on the classification. The decision was assigned once
// by classify and is only read here.
func (o *Orchestrator) branchStage(ctx context.Context, lead *model.Lead, run *model.PipelineRun) error {
	log := zap.L().With(
		zap.String("lead_id", lead.ID),
		zap.String("branch", string(run.BranchDecision)),
	)

	switch run.BranchDecision {
	case model.BranchAgreedToEmail:
		return o.sendOutreachEmail(ctx, lead, run)

	case model.BranchInterested:
		if Qualified(run.MeetingRequest, run.HotLead) {
			return o.bookMeeting(ctx, lead, run)
		}
		// Interested but not qualified for a meeting: keep the thread
		// warm over email if we have an address.
		if recipientEmail(lead, run) != "" {
			return o.sendOutreachEmail(ctx, lead, run)
		}
		log.Info("pipeline: interested lead has no email, nothing to send")
		return nil

	case model.BranchNotInterested:
		log.Info("pipeline: lead not interested")
		return nil

	case model.BranchIssueAppeared:
		log.Warn("pipeline: issue surfaced on call, flagging for manual review")
		return nil

	case model.BranchOther, "":
		log.Info("pipeline: no actionable branch")
		return nil

	default:
		return eris.Errorf("pipeline: unexpected branch decision %q", run.BranchDecision)
	}
}

// recipientEmail prefers the address the prospect gave on the call over
// whatever discovery scraped.
func recipientEmail(lead *model.Lead, run *model.PipelineRun) string {
	if run.ProspectEmail != "" {
		return run.ProspectEmail
	}
	return lead.Email
}

func (o *Orchestrator) sendOutreachEmail(ctx context.Context, lead *model.Lead, run *model.PipelineRun) error {
	to := recipientEmail(lead, run)
	if to == "" {
		return eris.Errorf("pipeline: lead %s agreed to email but no address is known", lead.ID)
	}

	resp, err := o.gen.Generate(ctx, contentgen.Request{
		System:    outreachEmailSystem,
		Prompt:    leadProfile(lead),
		MaxTokens: 512,
		Stage:     string(model.StageBranch),
	})
	if err != nil {
		return eris.Wrap(err, "pipeline: compose email")
	}

	err = o.mail.Send(ctx, mailer.Message{
		To:      to,
		Subject: "Following up on our call - " + lead.Name,
		Body:    resp.Text,
	})
	if err != nil {
		return eris.Wrap(err, "pipeline: send email")
	}

	run.EmailSent = true
	zap.L().Info("pipeline: outreach email sent",
		zap.String("lead_id", lead.ID),
		zap.String("to", to),
	)
	return nil
}

func (o *Orchestrator) bookMeeting(ctx context.Context, lead *model.Lead, run *model.PipelineRun) error {
	meeting, err := o.cal.Schedule(ctx, calendar.MeetingRequest{
		ProspectName:  lead.Name,
		ProspectEmail: recipientEmail(lead, run),
		Notes:         "Qualified on outbound call",
	})
	if err != nil {
		return eris.Wrap(err, "pipeline: book meeting")
	}

	run.MeetingID = meeting.ID
	zap.L().Info("pipeline: meeting booked",
		zap.String("lead_id", lead.ID),
		zap.String("meeting_id", meeting.ID),
		zap.Time("starts_at", meeting.StartsAt),
	)
	return nil
}
