package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"scan-service/internal/domain/scan"
)

var (
	ErrUnknownDevice      = errors.New("unknown camera device")
	ErrDeviceNotStreaming = errors.New("camera device is not streaming")
)

// Feed is a Camera and Decoder whose frames are decoded at the edge: scanner
// devices push their decode attempts, and the feed relays them to whichever
// session has the device open.
type Feed struct {
	devices   []scan.CameraDevice
	queueSize int

	mu      sync.Mutex
	streams map[string]*feedStream
}

type feedStream struct {
	feed     *Feed
	deviceID string
	attempts chan scan.DecodeAttempt
	closed   chan struct{}
	once     sync.Once
}

func NewFeed(devices []scan.CameraDevice, queueSize int) *Feed {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Feed{
		devices:   append([]scan.CameraDevice(nil), devices...),
		queueSize: queueSize,
		streams:   make(map[string]*feedStream),
	}
}

func (f *Feed) ListDevices(ctx context.Context) ([]scan.CameraDevice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]scan.CameraDevice(nil), f.devices...), nil
}

func (f *Feed) Open(ctx context.Context, deviceID string) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !f.known(deviceID) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, busy := f.streams[deviceID]; busy {
		return nil, fmt.Errorf("device %s is already in use", deviceID)
	}

	s := &feedStream{
		feed:     f,
		deviceID: deviceID,
		attempts: make(chan scan.DecodeAttempt, f.queueSize),
		closed:   make(chan struct{}),
	}
	f.streams[deviceID] = s
	return s, nil
}

func (f *Feed) Decode(ctx context.Context, stream Stream, onAttempt func(scan.DecodeAttempt)) error {
	s, ok := stream.(*feedStream)
	if !ok || s.feed != f {
		return fmt.Errorf("stream for %s was not opened by this feed", stream.DeviceID())
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.closed:
			return nil
		case attempt := <-s.attempts:
			onAttempt(attempt)
		}
	}
}

// Push queues an attempt reported by deviceID. It returns false when the
// stream's queue is full and the attempt was dropped.
func (f *Feed) Push(deviceID string, attempt scan.DecodeAttempt) (bool, error) {
	if !f.known(deviceID) {
		return false, fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.streams[deviceID]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrDeviceNotStreaming, deviceID)
	}

	select {
	case s.attempts <- attempt:
		return true, nil
	default:
		return false, nil
	}
}

func (f *Feed) known(deviceID string) bool {
	for _, d := range f.devices {
		if d.ID == deviceID {
			return true
		}
	}
	return false
}

func (s *feedStream) DeviceID() string {
	return s.deviceID
}

func (s *feedStream) Close() error {
	s.once.Do(func() {
		s.feed.mu.Lock()
		if s.feed.streams[s.deviceID] == s {
			delete(s.feed.streams, s.deviceID)
		}
		s.feed.mu.Unlock()
		close(s.closed)
	})
	return nil
}
