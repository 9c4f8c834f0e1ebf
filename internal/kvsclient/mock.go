package kvsclient

import (
	"sync"

	"github.com/rise-lab/causalcache/internal/ccv"
)

// MockClient is a deterministic, in-memory KvsAsyncClient, grounded on
// kvs_mock_client.hpp: gets and puts against a plain map, replies queued
// onto Responses rather than delivered synchronously so the cache's
// handlers exercise exactly the same request/response seam a real KVS
// round-trip would.
type MockClient struct {
	mu       sync.Mutex
	data     map[string]ccv.Value
	replies  chan Response
	requests int
}

// NewMockClient builds an empty MockClient.
func NewMockClient() *MockClient {
	return &MockClient{
		data:    map[string]ccv.Value{},
		replies: make(chan Response, 1024),
	}
}

// Seed pre-populates the mock KVS with a value, for test setup.
func (m *MockClient) Seed(key string, value ccv.Value) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
}

func (m *MockClient) GetAsync(key string) {
	m.mu.Lock()
	value, ok := m.data[key]
	m.mu.Unlock()

	m.replies <- Response{Op: OpGet, Key: key, Value: value, Exists: ok}
}

func (m *MockClient) PutAsync(key string, value ccv.Value, requestID string) {
	m.mu.Lock()
	existing, ok := m.data[key]
	if ok {
		ccv.MergeInto(&existing, value)
		m.data[key] = existing
	} else {
		m.data[key] = value.Clone()
	}
	m.mu.Unlock()

	m.replies <- Response{Op: OpPut, Key: key, RequestID: requestID}
}

func (m *MockClient) Responses() <-chan Response {
	return m.replies
}

func (m *MockClient) Close() error {
	return nil
}
