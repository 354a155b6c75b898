package library

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeComponents(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("export default () => null\n"), 0o644))
	}
}

func newTestStore(t *testing.T, opts ...Option) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	base := []Option{WithDir(dir), WithLogger(slog.New(slog.DiscardHandler))}
	return NewStore(append(base, opts...)...), dir
}

func TestStore_List(t *testing.T) {
	s, dir := newTestStore(t)
	writeComponents(t, dir, "Resistor.tsx", "capacitor.tsx", "README.md", "led.jsx")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.tsx"), 0o755))

	comps, err := s.List()
	require.NoError(t, err)

	require.Len(t, comps, 2)
	assert.Equal(t, Component{Name: "Resistor", File: "Resistor.tsx", Path: filepath.Join(dir, "Resistor.tsx")}, comps[0])
	assert.Equal(t, "capacitor", comps[1].Name)
}

func TestStore_ListMissingDir(t *testing.T) {
	s := NewStore(WithDir(filepath.Join(t.TempDir(), "absent")))

	_, err := s.List()
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestStore_Find(t *testing.T) {
	s, dir := newTestStore(t)
	writeComponents(t, dir, "Resistor_10k.tsx", "resistor_1k.tsx", "Capacitor.tsx")

	tests := []struct {
		name   string
		query  string
		want   string
		wantOK bool
	}{
		{name: "exact", query: "Capacitor", want: "Capacitor", wantOK: true},
		{name: "case insensitive", query: "CAPACITOR", want: "Capacitor", wantOK: true},
		{name: "substring, first by name", query: "resistor", want: "Resistor_10k", wantOK: true},
		{name: "matches extension", query: "1k.tsx", want: "resistor_1k", wantOK: true},
		{name: "miss", query: "inductor", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			comp, ok, err := s.Find(tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, comp.Name)
		})
	}
}

func TestStore_ExtensionAndIgnore(t *testing.T) {
	s, dir := newTestStore(t,
		WithExtension(".jsx"),
		WithIgnore("*.test.jsx", "[", ".*"),
	)
	writeComponents(t, dir, "led.jsx", "led.test.jsx", ".hidden.jsx", "resistor.tsx")

	comps, err := s.List()
	require.NoError(t, err)
	require.Len(t, comps, 1)
	assert.Equal(t, "led", comps[0].Name)
	assert.Equal(t, ".jsx", s.Extension())
	assert.Equal(t, dir, s.Dir())
}

func TestDefaultDir(t *testing.T) {
	t.Setenv(EnvLibraryDir, "/srv/components")
	assert.Equal(t, "/srv/components", DefaultDir())

	t.Setenv(EnvLibraryDir, "")
	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(wd, "lib"), DefaultDir())
}

func TestStore_Watch(t *testing.T) {
	s, dir := newTestStore(t)
	writeComponents(t, dir, "a.tsx")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx) }()

	require.Eventually(t, func() bool {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return s.watching
	}, 5*time.Second, 10*time.Millisecond)

	comps, err := s.List()
	require.NoError(t, err)
	require.Len(t, comps, 1)

	s.mu.RLock()
	cached := s.cached
	s.mu.RUnlock()
	assert.True(t, cached, "listing is cached while watching")

	writeComponents(t, dir, "b.tsx")
	require.Eventually(t, func() bool {
		comps, err := s.List()
		return err == nil && len(comps) == 2
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, os.Remove(filepath.Join(dir, "a.tsx")))
	require.Eventually(t, func() bool {
		comps, err := s.List()
		return err == nil && len(comps) == 1 && comps[0].Name == "b"
	}, 5*time.Second, 20*time.Millisecond)

	assert.ErrorIs(t, s.Watch(ctx), ErrAlreadyWatching)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not stop")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	assert.False(t, s.watching)
	assert.False(t, s.cached)
}

func TestStore_WatchMissingDir(t *testing.T) {
	s := NewStore(WithDir(filepath.Join(t.TempDir(), "absent")))
	assert.Error(t, s.Watch(context.Background()))
}
