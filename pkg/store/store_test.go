package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chazu/reflow/pkg/bytecode"
)

const source = `
.mode aot
.table t0 1
.handle body @body
    PRIMITIVE string "x"
    PRIMITIVE_REFERENCE
    JUMP @end
body:
    RETURN
end:
    EXIT
`

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "programs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	p, err := bytecode.AssembleString(source)
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "main", p))
	got, err := s.Get(ctx, "main")
	require.NoError(t, err)
	require.Equal(t, p, got)
}

func TestPutReplaces(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	first, err := bytecode.AssembleString(source)
	require.NoError(t, err)
	second, err := bytecode.AssembleString(".mode jit\n    NOP\n")
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "main", first))
	require.NoError(t, s.Put(ctx, "main", second))

	got, err := s.Get(ctx, "main")
	require.NoError(t, err)
	require.Equal(t, bytecode.ModeJIT, got.Mode)

	entries, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestListIsOrderedByName(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	p, err := bytecode.AssembleString(source)
	require.NoError(t, err)

	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, s.Put(ctx, name, p))
	}

	entries, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, "alpha", entries[0].Name)
	require.Equal(t, "mid", entries[1].Name)
	require.Equal(t, "zeta", entries[2].Name)
	require.Equal(t, bytecode.ModeAOT, entries[0].Mode)
	require.Positive(t, entries[0].Size)
	require.False(t, entries[0].Updated.IsZero())
}

func TestMissingAndDelete(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	_, err := s.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, s.Delete(ctx, "missing"), ErrNotFound)

	p, err := bytecode.AssembleString(source)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "main", p))
	require.NoError(t, s.Delete(ctx, "main"))

	_, err = s.Get(ctx, "main")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPutRejectsInvalidPrograms(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	require.Error(t, s.Put(ctx, "", bytecode.NewProgram(bytecode.ModeAOT)))

	bad := bytecode.NewProgram(bytecode.ModeAOT)
	bad.Emit(bytecode.OpJump, 40)
	require.Error(t, s.Put(ctx, "bad", bad))
}

func TestInMemory(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	entries, err := s.List(context.Background())
	require.NoError(t, err)
	require.Empty(t, entries)
	require.Equal(t, ":memory:", s.Path())
}
