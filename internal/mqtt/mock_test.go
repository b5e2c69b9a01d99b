package mqtt

import (
	"context"
	"sync"
)

type published struct {
	Topic   string
	Payload string
	Retain  bool
}

// mockClient records publishes instead of talking to a broker
type mockClient struct {
	mu         sync.Mutex
	connected  bool
	publishErr error
	messages   []published
	onConnect  func()
}

func (m *mockClient) Connect(context.Context) error {
	m.mu.Lock()
	m.connected = true
	fn := m.onConnect
	m.mu.Unlock()
	if fn != nil {
		fn()
	}
	return nil
}

func (m *mockClient) Publish(_ context.Context, topic, payload string, retain bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.messages = append(m.messages, published{topic, payload, retain})
	return nil
}

func (m *mockClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockClient) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
}

func (m *mockClient) SetOnConnect(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onConnect = fn
}

func (m *mockClient) Messages() []published {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]published(nil), m.messages...)
}

var _ Client = (*mockClient)(nil)
