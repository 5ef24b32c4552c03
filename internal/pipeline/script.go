package pipeline

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadflow/internal/model"
	"github.com/sells-group/leadflow/pkg/contentgen"
)

// draftStage turns research notes into a first-pass call script.
func (o *Orchestrator) draftStage(ctx context.Context, lead *model.Lead, research string) (string, error) {
	resp, err := o.gen.Generate(ctx, contentgen.Request{
		System:    draftSystem,
		Prompt:    leadProfile(lead) + "\nResearch notes:\n" + research,
		MaxTokens: 1024,
		Stage:     string(model.StageDraft),
	})
	if err != nil {
		return "", eris.Wrap(err, "pipeline: draft")
	}
	if strings.TrimSpace(resp.Text) == "" {
		return "", eris.New("pipeline: draft returned empty script")
	}
	return resp.Text, nil
}

// reviewStage tightens the draft. On a usable review the reviewed text
// replaces the draft; an empty review falls back to the draft rather than
// failing the lead.
func (o *Orchestrator) reviewStage(ctx context.Context, lead *model.Lead, draft string) (string, error) {
	resp, err := o.gen.Generate(ctx, contentgen.Request{
		System:    reviewSystem,
		Prompt:    "Business: " + lead.Name + "\n\nScript:\n" + draft,
		MaxTokens: 1024,
		Stage:     string(model.StageReview),
	})
	if err != nil {
		return "", eris.Wrap(err, "pipeline: review")
	}
	reviewed := strings.TrimSpace(resp.Text)
	if reviewed == "" {
		return draft, nil
	}
	return reviewed, nil
}
