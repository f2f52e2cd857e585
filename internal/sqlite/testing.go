package sqlite

import (
	"testing"

	"github.com/mesh-intelligence/oilsync/pkg/types"
)

// NewTestBackend attaches an in-memory backend and detaches it when the
// test ends.
func NewTestBackend(t testing.TB) *Backend {
	t.Helper()
	b := NewBackend()
	if err := b.Attach(types.Config{InMemory: true}); err != nil {
		t.Fatalf("attach in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = b.Detach() })
	return b
}
