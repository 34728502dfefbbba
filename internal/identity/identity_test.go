package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bharatr21/clinical-trials-agent/internal/storage"
)

// memStore is an in-memory Store for tests.
type memStore struct {
	id string
}

func (m *memStore) Get(ctx context.Context) (string, error) {
	if m.id == "" {
		return "", ErrNotFound
	}
	return m.id, nil
}

func (m *memStore) Set(ctx context.Context, id string) error {
	m.id = id
	return nil
}

func (m *memStore) Remove(ctx context.Context) error {
	m.id = ""
	return nil
}

// fixedCollector returns the same signals every time.
type fixedCollector struct {
	signals Signals
}

func (c fixedCollector) Collect() Signals { return c.signals }

func testSignals() Signals {
	return Signals{
		ScreenWidth:  1920,
		ScreenHeight: 1080,
		ColorDepth:   24,
		PixelDepth:   24,
		PixelRatio:   2,
		Timezone:     "America/New_York",
		Language:     "en-US",
		Languages:    []string{"en-US", "en"},
		Platform:     "linux/amd64",
		Cores:        8,
		MemoryGB:     16,
	}
}

func newTestProvider() (*Provider, *memStore) {
	store := &memStore{}
	return NewProvider(store, WithCollector(fixedCollector{testSignals()})), store
}

func TestGet_Idempotent(t *testing.T) {
	p, _ := newTestProvider()
	ctx := context.Background()

	a, err := p.Get(ctx)
	require.NoError(t, err)
	b, err := p.Get(ctx)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEmpty(t, a)
}

func TestGet_RecomputesSameValueAfterClear(t *testing.T) {
	p, _ := newTestProvider()
	ctx := context.Background()

	require.NoError(t, p.Clear(ctx))
	a, err := p.Get(ctx)
	require.NoError(t, err)

	require.NoError(t, p.Clear(ctx))
	b, err := p.Get(ctx)
	require.NoError(t, err)

	assert.Equal(t, a, b, "identity must be deterministic across cache loss")
}

func TestSet_OverridesDerivedValue(t *testing.T) {
	p, _ := newTestProvider()
	ctx := context.Background()

	derived, err := p.Get(ctx)
	require.NoError(t, err)

	require.NoError(t, p.Set(ctx, "server-assigned-id"))
	got, err := p.Get(ctx)
	require.NoError(t, err)

	assert.Equal(t, "server-assigned-id", got)
	assert.NotEqual(t, derived, got)
}

func TestGet_CachedValueWinsOverFingerprint(t *testing.T) {
	store := &memStore{id: "cached-id"}
	p := NewProvider(store, WithCollector(fixedCollector{testSignals()}))

	got, err := p.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cached-id", got)
}

func TestFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	fs := NewFileStore(storage.New(t.TempDir()))

	_, err := fs.Get(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, fs.Set(ctx, "some-id"))
	got, err := fs.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "some-id", got)

	require.NoError(t, fs.Remove(ctx))
	_, err = fs.Get(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	// Removing twice is fine.
	require.NoError(t, fs.Remove(ctx))
}
