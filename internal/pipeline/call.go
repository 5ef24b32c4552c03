package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadflow/internal/model"
	"github.com/sells-group/leadflow/pkg/telephony"
)

// callStage places the outbound call under its own deadline, which is
// tighter than the lead's. A lead with no phone number cannot be called;
// that fails the stage. A prospect who does not pick up does not.
func (o *Orchestrator) callStage(ctx context.Context, lead *model.Lead, script string) (*telephony.CallResult, error) {
	if lead.Phone == "" {
		return nil, eris.Errorf("pipeline: lead %s has no phone number", lead.ID)
	}

	callTimeout := time.Duration(o.cfg.CallTimeoutSecs) * time.Second
	if callTimeout <= 0 {
		callTimeout = 5 * time.Minute
	}
	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	result, err := o.phone.PlaceCall(callCtx, telephony.CallRequest{
		PhoneNumber: normalizePhone(lead.Phone),
		Script:      script,
	})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: call")
	}
	return result, nil
}

// normalizePhone strips formatting characters and assumes US numbers when
// no country code is present. Producer data carries numbers in a mix of
// national formats.
func normalizePhone(phone string) string {
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	switch {
	case strings.HasPrefix(phone, "+"):
		return "+" + d
	case len(d) == 10:
		return "+1" + d
	case len(d) == 11 && d[0] == '1':
		return "+" + d
	default:
		return "+" + d
	}
}
