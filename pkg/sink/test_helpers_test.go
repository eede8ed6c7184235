package sink

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
)

// --- Mock object store ---

// mockGCSWriter writes to an in-memory buffer.
type mockGCSWriter struct {
	buf      bytes.Buffer
	closed   bool
	closeErr error
}

func (m *mockGCSWriter) Write(p []byte) (n int, err error) {
	if m.closed {
		return 0, errors.New("write on closed writer")
	}
	return m.buf.Write(p)
}

func (m *mockGCSWriter) Close() error {
	if m.closed {
		return errors.New("already closed")
	}
	m.closed = true
	return m.closeErr
}

// mockObjectStore records every object written by name.
type mockObjectStore struct {
	sync.Mutex
	bucketName string
	objects    map[string]*mockGCSWriter
	closeErr   error
}

func newMockObjectStore() *mockObjectStore {
	return &mockObjectStore{objects: make(map[string]*mockGCSWriter)}
}

func (m *mockObjectStore) NewObjectWriter(_ context.Context, bucket, object string) io.WriteCloser {
	m.Lock()
	defer m.Unlock()
	m.bucketName = bucket
	w := &mockGCSWriter{closeErr: m.closeErr}
	m.objects[object] = w
	return w
}

// --- Mock BigQuery inserter ---

type mockRowInserter struct {
	mu   sync.Mutex
	rows []*recordSaver
	err  error
}

func (m *mockRowInserter) Put(_ context.Context, src interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.rows = append(m.rows, src.(*recordSaver))
	return nil
}
