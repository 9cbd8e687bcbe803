package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"scan-service/internal/domain/scan"
	"scan-service/internal/engine"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrNotFound         = errors.New("not found")
	ErrNotActive        = errors.New("scanner is not active")
	ErrEnrichmentFailed = errors.New("enrichment failed")
)

// Scanner is the camera side of the coordinator. *engine.Adapter satisfies it.
type Scanner interface {
	ListDevices(ctx context.Context) ([]scan.CameraDevice, error)
	Start(ctx context.Context, deviceID string, onAttempt func(scan.DecodeAttempt)) error
	Stop()
}

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type Options struct {
	DebounceWindow  time.Duration
	PauseAfterScan  time.Duration
	ProcessingClear time.Duration
	HistoryLimit    int
	EnrichTimeout   time.Duration
	Clock           Clock
}

func DefaultOptions() Options {
	return Options{
		DebounceWindow:  2 * time.Second,
		PauseAfterScan:  3 * time.Second,
		ProcessingClear: 2 * time.Second,
		HistoryLimit:    20,
		EnrichTimeout:   5 * time.Second,
	}
}

// Status is a point-in-time view of the scanner.
type Status struct {
	State           scan.ScannerState `json:"state"`
	Phase           scan.ScannerState `json:"phase"`
	DeviceID        string            `json:"device_id,omitempty"`
	Paused          bool              `json:"paused"`
	Processing      bool              `json:"processing"`
	PausedUntil     *time.Time        `json:"paused_until,omitempty"`
	ProcessingUntil *time.Time        `json:"processing_until,omitempty"`
	HistorySize     int               `json:"history_size"`
}

type Stats struct {
	Accepted            int64 `json:"accepted"`
	NotFound            int64 `json:"not_found"`
	DiscardedInactive   int64 `json:"discarded_inactive"`
	DiscardedPaused     int64 `json:"discarded_paused"`
	DiscardedProcessing int64 `json:"discarded_processing"`
	DiscardedDebounce   int64 `json:"discarded_debounce"`
	EnrichmentFailures  int64 `json:"enrichment_failures"`
}

type debounceMemo struct {
	payload    string
	acceptedAt time.Time
}

// Coordinator turns the stream of decode attempts into de-duplicated scan
// events and owns the scanner lifecycle.
//
// The pause and processing windows are deadlines rather than timers. Every
// session gets a fresh epoch, and callbacks bound to an older epoch are
// ignored, so nothing from a stopped session can touch the next one.
type Coordinator struct {
	scanner  Scanner
	enricher Enricher
	notifier Notifier
	clock    Clock
	opts     Options
	log      zerolog.Logger

	// lifecycle serializes start and stop so the camera is always released
	// before it is acquired again.
	lifecycle sync.Mutex

	mu              sync.Mutex
	state           scan.ScannerState
	epoch           uint64
	deviceID        string
	pausedUntil     time.Time
	processingUntil time.Time
	memo            debounceMemo
	history         *History
	stats           Stats

	background conc.WaitGroup
}

func NewCoordinator(scanner Scanner, enricher Enricher, notifier Notifier, opts Options, log zerolog.Logger) *Coordinator {
	clock := opts.Clock
	if clock == nil {
		clock = systemClock{}
	}
	return &Coordinator{
		scanner:  scanner,
		enricher: enricher,
		notifier: notifier,
		clock:    clock,
		opts:     opts,
		log:      log.With().Str("component", "scan_coordinator").Logger(),
		state:    scan.StateIdle,
		history:  NewHistory(opts.HistoryLimit),
	}
}

// StartScanning acquires the preferred camera and begins accepting scans.
// It is a no-op when the scanner is already starting or active.
func (c *Coordinator) StartScanning(ctx context.Context) (Status, error) {
	return c.StartWithDevice(ctx, "")
}

// StartWithDevice is StartScanning with an explicit device. An empty
// deviceID falls back to the preferred device.
func (c *Coordinator) StartWithDevice(ctx context.Context, deviceID string) (Status, error) {
	c.mu.Lock()
	if c.state != scan.StateIdle {
		st := c.statusLocked()
		c.mu.Unlock()
		return st, nil
	}
	c.state = scan.StateStarting
	c.epoch++
	epoch := c.epoch
	c.mu.Unlock()

	// The state is claimed before waiting on lifecycle, so a concurrent start
	// sees Starting and returns instead of queueing a second acquisition.
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.mu.Lock()
	if c.epoch != epoch || c.state != scan.StateStarting {
		// A stop cancelled this start while it waited.
		st := c.statusLocked()
		c.mu.Unlock()
		return st, nil
	}
	c.mu.Unlock()

	device, err := c.acquire(ctx, deviceID, epoch)
	if err != nil {
		c.mu.Lock()
		c.resetLocked()
		c.mu.Unlock()

		c.log.Warn().Err(err).Str("device_id", deviceID).Msg("failed to start scanner")
		notifySafely(c.notifier, scan.NotifyError, "Camera unavailable", err.Error())
		return c.Status(), err
	}

	c.mu.Lock()
	c.state = scan.StateActive
	c.deviceID = device.ID
	c.pausedUntil = time.Time{}
	c.processingUntil = time.Time{}
	c.memo = debounceMemo{}
	st := c.statusLocked()
	c.mu.Unlock()

	c.log.Info().
		Str("device_id", device.ID).
		Str("label", device.Label).
		Uint64("session", epoch).
		Msg("scanner started")
	notifySafely(c.notifier, scan.NotifySuccess, "Camera started", device.Label)
	return st, nil
}

func (c *Coordinator) acquire(ctx context.Context, deviceID string, epoch uint64) (scan.CameraDevice, error) {
	devices, err := c.scanner.ListDevices(ctx)
	if err != nil {
		return scan.CameraDevice{}, err
	}

	device, ok := scan.PreferredDevice(devices)
	if deviceID != "" {
		ok = false
		for _, d := range devices {
			if d.ID == deviceID {
				device, ok = d, true
				break
			}
		}
		if !ok {
			return scan.CameraDevice{}, fmt.Errorf("%w: unknown camera %q", ErrNotFound, deviceID)
		}
	}
	if !ok {
		return scan.CameraDevice{}, engine.ErrNoCameraFound
	}

	onAttempt := func(a scan.DecodeAttempt) {
		c.handleAttempt(epoch, a)
	}
	if err := c.scanner.Start(ctx, device.ID, onAttempt); err != nil {
		return scan.CameraDevice{}, err
	}
	return device, nil
}

// StopScanning releases the camera and resets the session state. History is
// kept. It is a no-op when idle.
func (c *Coordinator) StopScanning() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.mu.Lock()
	if c.state == scan.StateIdle {
		c.mu.Unlock()
		return
	}
	deviceID := c.deviceID
	c.resetLocked()
	c.mu.Unlock()

	// Outside mu: Stop waits for the decode loop, which may be blocked in
	// handleAttempt.
	c.scanner.Stop()

	c.log.Info().Str("device_id", deviceID).Msg("scanner stopped")
	notifySafely(c.notifier, scan.NotifySuccess, "Scanner stopped", "Camera released")
}

func (c *Coordinator) resetLocked() {
	c.state = scan.StateIdle
	c.epoch++
	c.deviceID = ""
	c.pausedUntil = time.Time{}
	c.processingUntil = time.Time{}
	c.memo = debounceMemo{}
}

// ResumeManually ends the pause window early. The processing window is left
// alone.
func (c *Coordinator) ResumeManually() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != scan.StateActive {
		return ErrNotActive
	}
	c.pausedUntil = time.Time{}
	c.log.Debug().Msg("scanner resumed manually")
	return nil
}

func (c *Coordinator) ClearHistory() {
	c.mu.Lock()
	cleared := c.history.Len()
	c.history.Clear()
	c.mu.Unlock()

	c.log.Info().Int("cleared", cleared).Msg("scan history cleared")
	notifySafely(c.notifier, scan.NotifySuccess, "History cleared", fmt.Sprintf("%d scans removed", cleared))
}

func (c *Coordinator) History() []scan.ScanEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.List()
}

func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *Coordinator) statusLocked() Status {
	st := Status{
		State:       c.state,
		Phase:       c.state,
		DeviceID:    c.deviceID,
		HistorySize: c.history.Len(),
	}
	if c.state != scan.StateActive {
		return st
	}

	now := c.clock.Now()
	if now.Before(c.pausedUntil) {
		until := c.pausedUntil
		st.Paused = true
		st.PausedUntil = &until
		st.Phase = scan.StatePaused
	}
	if now.Before(c.processingUntil) {
		until := c.processingUntil
		st.Processing = true
		st.ProcessingUntil = &until
		st.Phase = scan.StateProcessing
	}
	return st
}

func (c *Coordinator) handleAttempt(epoch uint64, a scan.DecodeAttempt) {
	if !a.Found {
		c.mu.Lock()
		c.stats.NotFound++
		c.mu.Unlock()
		return
	}

	c.mu.Lock()
	if c.epoch != epoch || c.state != scan.StateActive {
		c.stats.DiscardedInactive++
		c.mu.Unlock()
		return
	}

	now := c.clock.Now()
	switch {
	case now.Before(c.pausedUntil):
		c.stats.DiscardedPaused++
		c.mu.Unlock()
		return
	case now.Before(c.processingUntil):
		c.stats.DiscardedProcessing++
		c.mu.Unlock()
		return
	case a.Payload == c.memo.payload && now.Sub(c.memo.acceptedAt) < c.opts.DebounceWindow:
		c.stats.DiscardedDebounce++
		c.mu.Unlock()
		return
	}

	c.pausedUntil = now.Add(c.opts.PauseAfterScan)
	c.processingUntil = now.Add(c.opts.ProcessingClear)
	c.memo = debounceMemo{payload: a.Payload, acceptedAt: now}

	ev := scan.ScanEvent{
		ID:             uuid.NewString(),
		Payload:        a.Payload,
		Format:         a.Format,
		AcceptedAt:     now,
		Classification: scan.Classify(a.Payload),
	}
	c.history.Prepend(ev)
	c.stats.Accepted++
	c.mu.Unlock()

	c.log.Info().
		Str("event_id", ev.ID).
		Str("payload", ev.Payload).
		Str("format", ev.Format).
		Str("classification", string(ev.Classification)).
		Msg("scan accepted")
	c.notifyAccepted(ev)

	c.background.Go(func() {
		c.enrich(ev)
	})
}

func (c *Coordinator) notifyAccepted(ev scan.ScanEvent) {
	switch ev.Classification {
	case scan.ClassificationError:
		notifySafely(c.notifier, scan.NotifyError, "Scan error", ev.Payload)
	case scan.ClassificationWarning:
		notifySafely(c.notifier, scan.NotifyError, "Scan warning", ev.Payload)
	default:
		notifySafely(c.notifier, scan.NotifySuccess, "Scan successful", ev.Payload)
	}
}

func (c *Coordinator) enrich(ev scan.ScanEvent) {
	if c.enricher == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.EnrichTimeout)
	defer cancel()

	info, err := c.enricher.Enrich(ctx, ev.Payload)
	if err != nil {
		if !errors.Is(err, ErrEnrichmentFailed) {
			err = fmt.Errorf("%w: %w", ErrEnrichmentFailed, err)
		}
		c.mu.Lock()
		c.stats.EnrichmentFailures++
		c.mu.Unlock()
		c.log.Warn().Err(err).Str("event_id", ev.ID).Msg("failed to enrich scan")
		return
	}
	if info == nil {
		c.log.Debug().Str("event_id", ev.ID).Msg("no participant for scan")
		return
	}

	c.mu.Lock()
	replaced := c.history.Replace(ev.WithEnrichment(info))
	c.mu.Unlock()

	if !replaced {
		c.log.Debug().Str("event_id", ev.ID).Msg("scan left history before enrichment finished")
	}
}

// Wait blocks until background enrichment has finished.
func (c *Coordinator) Wait() {
	if r := c.background.WaitAndRecover(); r != nil {
		c.log.Error().Err(r.AsError()).Msg("enrichment panicked")
	}
}
