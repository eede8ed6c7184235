package streampull_test

import (
	"context"
	"sync"
	"time"

	"github.com/illmade-knight/go-alertstream/pkg/messagepipeline"
	"github.com/illmade-knight/go-alertstream/pkg/types"
)

// MockMessageConsumer is a test double for messagepipeline.MessageConsumer.
type MockMessageConsumer struct {
	msgChan   chan messagepipeline.Message
	doneChan  chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	err     error
	started bool
	stopped bool
}

func NewMockMessageConsumer(bufferSize int) *MockMessageConsumer {
	return &MockMessageConsumer{
		msgChan:  make(chan messagepipeline.Message, bufferSize),
		doneChan: make(chan struct{}),
	}
}

func (m *MockMessageConsumer) Messages() <-chan messagepipeline.Message { return m.msgChan }

func (m *MockMessageConsumer) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = true
	return nil
}

func (m *MockMessageConsumer) Stop(ctx context.Context) error {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
	m.close()
	return nil
}

func (m *MockMessageConsumer) Done() <-chan struct{} { return m.doneChan }

func (m *MockMessageConsumer) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Push queues a message for delivery. It must not be called after Stop or Fail.
func (m *MockMessageConsumer) Push(msg messagepipeline.Message) {
	m.msgChan <- msg
}

// Fail ends the pull on its own with err, as a broken stream would.
func (m *MockMessageConsumer) Fail(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
	m.close()
}

func (m *MockMessageConsumer) IsStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

func (m *MockMessageConsumer) close() {
	m.closeOnce.Do(func() {
		close(m.msgChan)
		close(m.doneChan)
	})
}

// MockSource hands out a single MockMessageConsumer and records the flow
// control it was asked for.
type MockSource struct {
	Consumer *MockMessageConsumer
	Err      error

	mu   sync.Mutex
	flow messagepipeline.FlowControl
}

func (s *MockSource) NewConsumer(ctx context.Context, flow messagepipeline.FlowControl) (messagepipeline.MessageConsumer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flow = flow
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Consumer, nil
}

func (s *MockSource) Flow() messagepipeline.FlowControl {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flow
}

// AckTracker builds messages whose Ack and Nack calls it records.
type AckTracker struct {
	mu     sync.Mutex
	acked  []string
	nacked []string
}

func (tr *AckTracker) Message(id string, payload string) messagepipeline.Message {
	return messagepipeline.Message{
		MessageData: messagepipeline.MessageData{
			ID:          id,
			Payload:     []byte(payload),
			PublishTime: time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC),
		},
		Attributes: map[string]string{"kafka.timestamp": "1614834367000"},
		Ack: func() {
			tr.mu.Lock()
			defer tr.mu.Unlock()
			tr.acked = append(tr.acked, id)
		},
		Nack: func() {
			tr.mu.Lock()
			defer tr.mu.Unlock()
			tr.nacked = append(tr.nacked, id)
		},
	}
}

func (tr *AckTracker) Acked() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]string(nil), tr.acked...)
}

func (tr *AckTracker) Nacked() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]string(nil), tr.nacked...)
}

// MemorySink records saved records and can be told to fail.
type MemorySink struct {
	mu    sync.Mutex
	saved []types.Record
	err   error
}

func (s *MemorySink) Save(ctx context.Context, rec types.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, rec)
	return nil
}

func (s *MemorySink) Saved() []types.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Record(nil), s.saved...)
}
