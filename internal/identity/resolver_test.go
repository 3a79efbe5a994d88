package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLoader struct {
	dict  Dictionary
	err   error
	calls int
}

func (s *stubLoader) Dictionary(context.Context) (Dictionary, error) {
	s.calls++
	return s.dict, s.err
}

func TestResolve(t *testing.T) {
	r := NewResolver(Dictionary{
		"accu chek active 50": 42,
		"zero id":             0,
	})

	id, ok := r.Resolve("  Accu-Chek  Active (50)")
	require.True(t, ok)
	assert.Equal(t, 42, id)

	_, ok = r.Resolve("unknown strips")
	assert.False(t, ok)

	_, ok = r.Resolve("!!! ---")
	assert.False(t, ok, "empty unified title never resolves")

	_, ok = r.Resolve("Zero ID")
	assert.False(t, ok, "a zero identity counts as unset")
}

func TestNilDictionary(t *testing.T) {
	r := NewResolver(nil)
	_, ok := r.Resolve("anything")
	assert.False(t, ok)
	assert.Equal(t, 0, r.Size())
}

func TestLoadReadsOnce(t *testing.T) {
	loader := &stubLoader{dict: Dictionary{"a b c": 7}}
	r, err := Load(context.Background(), loader)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		id, ok := r.Resolve("A-B-C")
		require.True(t, ok)
		assert.Equal(t, 7, id)
	}
	assert.Equal(t, 1, loader.calls)
}

func TestLoadError(t *testing.T) {
	_, err := Load(context.Background(), &stubLoader{err: errors.New("boom")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}
