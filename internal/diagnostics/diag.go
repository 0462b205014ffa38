package diagnostics

import "time"

type Severity string

const (
	Info Severity = "info"
	Warn Severity = "warning"
	Err  Severity = "error"
)

// Codes emitted by the capture loop.
const (
	CodeStarted      = "LOOP.STARTED"
	CodeStopped      = "LOOP.STOPPED"
	CodeConnectFail  = "DEVICE.CONNECT_FAILED"
	CodeSendFail     = "DEVICE.SEND_FAILED"
	CodeReconnected  = "DEVICE.RECONNECTED"
	CodePortFallback = "CONFIG.PORT_FALLBACK"
	CodeResolution   = "CAPTURE.RESOLUTION"
	CodeDegenerate   = "SAMPLE.DEGENERATE"
)

type Diagnostic struct {
	Time           time.Time      `json:"time"`
	Severity       Severity       `json:"severity"`
	Code           string         `json:"code"`
	Summary        string         `json:"summary"`
	Detail         string         `json:"detail,omitempty"`
	LikelyCauses   []string       `json:"likely_causes,omitempty"`
	SuggestedFixes []string       `json:"suggested_fixes,omitempty"`
	Evidence       map[string]any `json:"evidence,omitempty"`
}

// New stamps a diagnostic with the current time.
func New(sev Severity, code, summary string) Diagnostic {
	return Diagnostic{Time: time.Now(), Severity: sev, Code: code, Summary: summary}
}

// Sink receives diagnostics. Implementations must not block for long.
type Sink interface {
	Publish(d Diagnostic)
}

// Fanout publishes to every sink in order.
type Fanout []Sink

func (f Fanout) Publish(d Diagnostic) {
	for _, s := range f {
		if s != nil {
			s.Publish(d)
		}
	}
}
