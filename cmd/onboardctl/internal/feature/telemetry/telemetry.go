package telemetry

import (
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vectorplane/onboardctl/cmd/onboardctl/internal/client"
)

// Kind classifies a reported error for the backend.
type Kind string

const (
	KindAuthFailure      Kind = "auth_failure"
	KindEngineInitFailed Kind = "engine_init_failed"
	KindApplyFailed      Kind = "apply_failed"
	KindAbnormal         Kind = "abnormal_termination"
)

// Reporter sends structured errors to the platform backend. Fire-and-forget:
// its own transport failures are swallowed, and it is a no-op until a
// session id is known.
type Reporter struct {
	client        *client.Client
	sessionID     string
	correlationID string
}

func New(c *client.Client) *Reporter {
	return &Reporter{
		client:        c,
		correlationID: uuid.NewString(),
	}
}

// SetSession arms the reporter once the exchange has established a session.
func (r *Reporter) SetSession(id string) {
	r.sessionID = id
}

// Report delivers one error report, best-effort.
func (r *Reporter) Report(kind Kind, detail string) {
	if r == nil || r.sessionID == "" {
		return
	}

	err := r.client.ReportError(client.ErrorReport{
		SessionID:     r.sessionID,
		ErrorType:     string(kind),
		Detail:        detail,
		CorrelationID: r.correlationID,
	})
	if err != nil {
		log.Debugf("error report not delivered: %v", err)
	}
}
