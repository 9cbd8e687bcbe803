package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"scan-service/internal/domain/scan"
)

var (
	ErrNoCameraFound      = errors.New("no camera found")
	ErrCameraAccessDenied = errors.New("camera access denied")
	ErrAdapterBusy        = errors.New("scan engine already running")
)

// Stream is an open camera stream. Close releases every track it holds.
type Stream interface {
	DeviceID() string
	Close() error
}

type Camera interface {
	ListDevices(ctx context.Context) ([]scan.CameraDevice, error)
	Open(ctx context.Context, deviceID string) (Stream, error)
}

// Decoder runs the decode loop against stream, reporting every cycle to
// onAttempt until ctx is cancelled or the stream ends.
type Decoder interface {
	Decode(ctx context.Context, stream Stream, onAttempt func(scan.DecodeAttempt)) error
}

// Adapter owns the camera stream and decode loop of a single scanner.
type Adapter struct {
	camera  Camera
	decoder Decoder
	log     zerolog.Logger

	mu      sync.Mutex
	session *session
}

type session struct {
	stream Stream
	cancel context.CancelFunc
	done   chan struct{}
}

func NewAdapter(camera Camera, decoder Decoder, log zerolog.Logger) *Adapter {
	return &Adapter{
		camera:  camera,
		decoder: decoder,
		log:     log.With().Str("component", "scan_engine").Logger(),
	}
}

func (a *Adapter) ListDevices(ctx context.Context) ([]scan.CameraDevice, error) {
	devices, err := a.camera.ListDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list devices: %w", ErrCameraAccessDenied, err)
	}
	if len(devices) == 0 {
		return nil, ErrNoCameraFound
	}
	return devices, nil
}

// Start opens deviceID and begins decoding. On failure no stream is left open.
func (a *Adapter) Start(ctx context.Context, deviceID string, onAttempt func(scan.DecodeAttempt)) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.session != nil {
		return ErrAdapterBusy
	}

	stream, err := a.camera.Open(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCameraAccessDenied, err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	s := &session{
		stream: stream,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	a.session = s

	go a.run(loopCtx, s, onAttempt)

	a.log.Info().Str("device_id", deviceID).Msg("scan engine started")
	return nil
}

// run drives the decode loop. When the loop ends without Stop (stream lost,
// decoder failure) the session is cleared and the stream released, so the
// adapter can be started again.
func (a *Adapter) run(ctx context.Context, s *session, onAttempt func(scan.DecodeAttempt)) {
	err := a.decoder.Decode(ctx, s.stream, onAttempt)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.log.Warn().
			Err(err).
			Str("device_id", s.stream.DeviceID()).
			Msg("decode loop ended")
	}

	// done is closed before taking mu: Stop waits on it while holding mu.
	close(s.done)

	a.mu.Lock()
	owned := a.session == s
	if owned {
		a.session = nil
	}
	a.mu.Unlock()

	if !owned {
		return
	}
	s.cancel()
	if err := s.stream.Close(); err != nil {
		a.log.Error().Err(err).Str("device_id", s.stream.DeviceID()).Msg("failed to release camera stream")
	}
}

// Stop ends the decode loop and releases the camera. Safe to call when not
// running.
func (a *Adapter) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.session
	if s == nil {
		return
	}
	a.session = nil

	s.cancel()
	<-s.done

	deviceID := s.stream.DeviceID()
	if err := s.stream.Close(); err != nil {
		a.log.Error().Err(err).Str("device_id", deviceID).Msg("failed to release camera stream")
	}
	a.log.Info().Str("device_id", deviceID).Msg("scan engine stopped")
}

// Running reports the device currently streaming, if any.
func (a *Adapter) Running() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.session == nil {
		return "", false
	}
	return a.session.stream.DeviceID(), true
}
