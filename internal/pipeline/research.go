package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadflow/internal/model"
	"github.com/sells-group/leadflow/pkg/contentgen"
)

// researchStage produces research notes for the lead from its stored
// fields. The notes feed the draft stage.
func (o *Orchestrator) researchStage(ctx context.Context, lead *model.Lead) (string, error) {
	resp, err := o.gen.Generate(ctx, contentgen.Request{
		System:    researchSystem,
		Prompt:    leadProfile(lead),
		MaxTokens: 1024,
		Stage:     string(model.StageResearch),
	})
	if err != nil {
		return "", eris.Wrap(err, "pipeline: research")
	}
	if strings.TrimSpace(resp.Text) == "" {
		return "", eris.New("pipeline: research returned empty notes")
	}
	return resp.Text, nil
}

// leadProfile formats the lead's known fields for prompting.
func leadProfile(lead *model.Lead) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Business: %s\n", lead.Name)
	fmt.Fprintf(&b, "Address: %s\n", lead.Address)
	if lead.Category != "" {
		fmt.Fprintf(&b, "Category: %s\n", lead.Category)
	}
	if lead.Website != "" {
		fmt.Fprintf(&b, "Website: %s\n", lead.Website)
	} else {
		b.WriteString("Website: none found\n")
	}
	if lead.Phone != "" {
		fmt.Fprintf(&b, "Phone: %s\n", lead.Phone)
	}
	if lead.Rating != nil {
		fmt.Fprintf(&b, "Rating: %.1f/5\n", *lead.Rating)
	}
	return b.String()
}
