package pipeline

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadflow/internal/model"
	"github.com/sells-group/leadflow/pkg/contentgen"
)

// Classification is the structured outcome of the classify stage.
type Classification struct {
	Decision       model.BranchDecision
	ProspectEmail  string
	Note           string
	HotLead        bool
	MeetingRequest bool
}

// classifierOutput is the JSON contract the classifier prompt demands.
type classifierOutput struct {
	CallCategory   string `json:"call_category"`
	ProspectEmail  string `json:"prospect_email"`
	Note           string `json:"note"`
	HotLead        bool   `json:"hot_lead"`
	MeetingRequest bool   `json:"meeting_request"`
}

// classifyStage maps the call transcript onto the closed branch outcome
// set. An unparsable category degrades to other; a malformed response
// body fails the stage.
func (o *Orchestrator) classifyStage(ctx context.Context, lead *model.Lead, transcript []model.Turn) (*Classification, error) {
	// An unanswered call yields no transcript; the classifier still runs
	// and lands on other.
	prompt := formatTranscript(transcript)
	if prompt == "" {
		prompt = "(the call was not answered; there is no transcript)"
	}

	resp, err := o.gen.Generate(ctx, contentgen.Request{
		System:    classifySystem,
		Prompt:    prompt,
		MaxTokens: 512,
		Stage:     string(model.StageClassify),
	})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: classify")
	}

	var out classifierOutput
	if err := json.Unmarshal([]byte(cleanJSON(resp.Text)), &out); err != nil {
		return nil, eris.Wrap(err, "pipeline: classify unmarshal")
	}

	decision := model.ParseBranchDecision(out.CallCategory)
	if decision == model.BranchOther && out.CallCategory != string(model.BranchOther) {
		zap.L().Warn("pipeline: unknown call category, treating as other",
			zap.String("lead_id", lead.ID),
			zap.String("category", out.CallCategory),
		)
	}

	return &Classification{
		Decision:       decision,
		ProspectEmail:  strings.TrimSpace(out.ProspectEmail),
		Note:           out.Note,
		HotLead:        out.HotLead,
		MeetingRequest: out.MeetingRequest,
	}, nil
}

// formatTranscript renders call turns for prompting.
func formatTranscript(turns []model.Turn) string {
	var b strings.Builder
	for _, t := range turns {
		b.WriteString(t.Role)
		b.WriteString(": ")
		b.WriteString(t.Text)
		b.WriteString("\n")
	}
	return b.String()
}

// cleanJSON attempts to extract a JSON object from text that may contain
// markdown code fences or other wrapping.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	// Strip markdown code fences.
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	// Find first { and last }.
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
