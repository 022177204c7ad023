package content

import (
	"context"
	"sync"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"custodia/pkg/platform/sentinel"
)

// Memory is an in-process content store that derives real CIDs (v1, raw
// codec, sha2-256) so identifiers behave exactly like the pinning service's:
// identical bytes map to the identical identifier.
type Memory struct {
	mu    sync.RWMutex
	blobs map[string][]byte
	puts  int
}

func NewMemory() *Memory {
	return &Memory{blobs: make(map[string][]byte)}
}

func (m *Memory) Put(_ context.Context, data []byte, _, _ string) (string, error) {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return "", err
	}
	id := cid.NewCidV1(cid.Raw, mh).String()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	if _, ok := m.blobs[id]; !ok {
		stored := make([]byte, len(data))
		copy(stored, data)
		m.blobs[id] = stored
	}
	return id, nil
}

func (m *Memory) Get(_ context.Context, contentID string) ([]byte, error) {
	if _, err := cid.Decode(contentID); err != nil {
		return nil, sentinel.ErrNotFound
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blobs[contentID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Puts reports how many Put calls were made; tests use it to assert the
// at-most-one-write guarantee of the registration coordinator.
func (m *Memory) Puts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.puts
}
