package arweave

import (
	"context"
	"fmt"
	"sync"
)

// MockClient is a mock implementation of Client for testing. UploadData is
// safe to call from concurrent workers.
type MockClient struct {
	// Err can be set to make UploadData return an error.
	Err error
	// FailIDs makes uploads whose Punk-Id tag matches fail with Err.
	FailIDs map[string]bool
	// WinstonBalance is returned by Balance.
	WinstonBalance string

	mu sync.Mutex
	// Uploads records every successful UploadData call.
	Uploads []MockUpload

	seq int
}

// MockUpload captures the arguments of one UploadData call.
type MockUpload struct {
	Size        int
	ContentType string
	Tags        []Tag
}

// NewMockClient creates a new MockClient for testing.
func NewMockClient() *MockClient {
	return &MockClient{WinstonBalance: "1000000000000"}
}

var _ Client = (*MockClient)(nil)

func (m *MockClient) tagValue(tags []Tag, name string) string {
	for _, t := range tags {
		if t.Name == name {
			return t.Value
		}
	}
	return ""
}

// UploadData records the call and returns a sequential transaction id.
func (m *MockClient) UploadData(ctx context.Context, data []byte, contentType string, tags []Tag) (string, error) {
	if m.Err != nil {
		if len(m.FailIDs) == 0 || m.FailIDs[m.tagValue(tags, "Punk-Id")] {
			return "", m.Err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Uploads = append(m.Uploads, MockUpload{Size: len(data), ContentType: contentType, Tags: tags})
	m.seq++
	return fmt.Sprintf("MockArTx%d", m.seq), nil
}

// Balance returns the configured winston balance.
func (m *MockClient) Balance(ctx context.Context) (string, error) {
	return m.WinstonBalance, nil
}

// Address returns a fixed mock address.
func (m *MockClient) Address() string {
	return "MockArweaveAddress"
}
