package scan

import (
	"strings"
	"time"
)

// DecodeAttempt is one cycle of the decode engine. Found is false for the
// "nothing in frame" sentinel.
type DecodeAttempt struct {
	Payload string `json:"payload"`
	Format  string `json:"format"`
	Found   bool   `json:"found"`
}

// NotFound is the sentinel attempt reported when a frame held no code.
var NotFound = DecodeAttempt{}

func Decoded(payload, format string) DecodeAttempt {
	return DecodeAttempt{Payload: payload, Format: format, Found: true}
}

type Classification string

const (
	ClassificationSuccess Classification = "success"
	ClassificationError   Classification = "error"
	ClassificationWarning Classification = "warning"
)

// Classify derives the event classification from the decoded payload.
func Classify(payload string) Classification {
	switch {
	case strings.Contains(payload, "error"):
		return ClassificationError
	case strings.Contains(payload, "warning"):
		return ClassificationWarning
	default:
		return ClassificationSuccess
	}
}

type EnrichedInfo struct {
	Code       string                 `json:"code"`
	Name       string                 `json:"name,omitempty"`
	EventName  string                 `json:"event_name,omitempty"`
	TicketType string                 `json:"ticket_type,omitempty"`
	Status     string                 `json:"status,omitempty"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

type ScanEvent struct {
	ID             string         `json:"id"`
	Payload        string         `json:"payload"`
	Format         string         `json:"format"`
	AcceptedAt     time.Time      `json:"accepted_at"`
	Classification Classification `json:"classification"`
	Enrichment     *EnrichedInfo  `json:"enrichment"`
}

// WithEnrichment returns a copy of the event carrying info.
func (e ScanEvent) WithEnrichment(info *EnrichedInfo) ScanEvent {
	e.Enrichment = info
	return e
}

type CameraDevice struct {
	ID    string `json:"id" mapstructure:"id"`
	Label string `json:"label" mapstructure:"label"`
}

var rearCameraHints = []string{"back", "rear", "environment"}

// PreferredDevice picks the first rear-facing camera by label, falling back
// to the first device. ok is false for an empty list.
func PreferredDevice(devices []CameraDevice) (device CameraDevice, ok bool) {
	if len(devices) == 0 {
		return CameraDevice{}, false
	}
	for _, d := range devices {
		label := strings.ToLower(d.Label)
		for _, hint := range rearCameraHints {
			if strings.Contains(label, hint) {
				return d, true
			}
		}
	}
	return devices[0], true
}

// ScannerState is the primary (camera on/off) axis of the scanner.
type ScannerState string

const (
	StateIdle       ScannerState = "idle"
	StateStarting   ScannerState = "starting"
	StateActive     ScannerState = "active"
	StatePaused     ScannerState = "paused"
	StateProcessing ScannerState = "processing"
)

type NotificationKind string

const (
	NotifySuccess NotificationKind = "success"
	NotifyError   NotificationKind = "error"
)

type Notification struct {
	Kind        NotificationKind `json:"kind"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	At          time.Time        `json:"at"`
}
