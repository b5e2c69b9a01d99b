package camera

import (
	"context"
	"sync"

	"github.com/reowatch/reowatch/internal/conf"
)

// Fake is an in-memory Session for tests. Errors set on it are returned by
// the matching method; SetDetected changes the person flag and fires the
// registered callbacks while subscribed.
type Fake struct {
	mu         sync.Mutex
	params     StreamParams
	supported  map[string]bool
	detected   map[string]bool
	callbacks  map[string]Callback
	subscribed bool
	connected  bool
	snapshot   []byte

	ConnectErr     error
	SnapshotErr    error
	SubscribeErr   error
	UnsubscribeErr error
	DisconnectErr  error

	calls []string
}

// NewFake returns a connected-on-demand fake that supports person detection.
func NewFake(cam conf.CameraSettings) *Fake {
	return &Fake{
		params: StreamParams{
			Host:     cam.Host,
			Port:     cam.RTSPPort,
			Username: cam.Username,
			Password: cam.Password,
			Channel:  cam.Channel,
			Codec:    cam.Codec,
		},
		supported: map[string]bool{KindPerson: true},
		detected:  make(map[string]bool),
		callbacks: make(map[string]Callback),
		snapshot:  []byte{0xFF, 0xD8, 'f', 'a', 'k', 'e', 0xFF, 0xD9},
	}
}

func (f *Fake) record(call string) {
	f.calls = append(f.calls, call)
}

// Calls returns the Session methods invoked so far, in order.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// SetSupported sets whether kind is supported.
func (f *Fake) SetSupported(kind string, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.supported[kind] = ok
}

// SetSnapshot sets the bytes FetchSnapshot returns.
func (f *Fake) SetSnapshot(data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshot = data
}

// SetDetected updates the flag for kind and notifies callbacks if subscribed.
func (f *Fake) SetDetected(kind string, detected bool) {
	f.mu.Lock()
	f.detected[kind] = detected
	var callbacks []Callback
	if f.subscribed {
		for _, fn := range f.callbacks {
			callbacks = append(callbacks, fn)
		}
	}
	f.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}

// Connect implements Session.
func (f *Fake) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Connect")
	if f.ConnectErr != nil {
		return f.ConnectErr
	}
	f.connected = true
	return nil
}

// SupportsAI implements Session.
func (f *Fake) SupportsAI(_ int, kind string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.supported[kind]
}

// IsDetected implements Session.
func (f *Fake) IsDetected(_ int, kind string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.detected[kind]
}

// FetchSnapshot implements Session.
func (f *Fake) FetchSnapshot(context.Context, int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("FetchSnapshot")
	if f.SnapshotErr != nil {
		return nil, f.SnapshotErr
	}
	return append([]byte(nil), f.snapshot...), nil
}

// RegisterDetectionCallback implements Session.
func (f *Fake) RegisterDetectionCallback(id string, fn Callback) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("RegisterDetectionCallback")
	f.callbacks[id] = fn
}

// SubscribeEvents implements Session.
func (f *Fake) SubscribeEvents(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SubscribeEvents")
	if f.SubscribeErr != nil {
		return f.SubscribeErr
	}
	f.subscribed = true
	return nil
}

// UnsubscribeEvents implements Session.
func (f *Fake) UnsubscribeEvents(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("UnsubscribeEvents")
	f.subscribed = false
	return f.UnsubscribeErr
}

// Disconnect implements Session.
func (f *Fake) Disconnect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Disconnect")
	f.connected = false
	return f.DisconnectErr
}

// StreamParams implements Session.
func (f *Fake) StreamParams() StreamParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.params
}

// Connected reports whether Connect succeeded and Disconnect was not called.
func (f *Fake) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

var (
	_ Session = (*Fake)(nil)
	_ Session = (*Client)(nil)
)
