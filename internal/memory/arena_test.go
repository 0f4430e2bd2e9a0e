package memory

import (
	"testing"
	"unsafe"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/slotarena/internal/diag"
	"github.com/23skdu/slotarena/internal/errors"
	"github.com/23skdu/slotarena/internal/metrics"
)

func newTestEnv(t *testing.T) (*Env, *diag.Recorder) {
	t.Helper()
	rec := &diag.Recorder{}
	return NewEnv(rec, diag.Debug), rec
}

func TestArena_NewArena(t *testing.T) {
	env, rec := newTestEnv(t)

	a, err := NewArena(1024, "frame", WithEnv(env))
	require.NoError(t, err)
	assert.Equal(t, "frame", a.Name())
	assert.Equal(t, 1024, a.Capacity())
	assert.Equal(t, 0, a.Used())
	assert.True(t, a.Valid())
	assert.Zero(t, uintptr(unsafe.Pointer(&a.buf[0]))%baseAlign)
	assert.True(t, rec.Contains(diag.Verbose, "init memory 1024 'frame'"))
	assert.Equal(t, []*Arena{a}, env.Arenas())
}

func TestArena_NewArena_InvalidCapacity(t *testing.T) {
	env, rec := newTestEnv(t)

	for _, capacity := range []int{0, -8} {
		a, err := NewArena(capacity, "bad", WithEnv(env))
		assert.Nil(t, a)
		assert.ErrorIs(t, err, errors.ErrInvalidArgument)
		assert.False(t, errors.IsFatal(err))
	}
	assert.Equal(t, 2, rec.Count(diag.Error))
}

func TestArena_Alloc_Sequence(t *testing.T) {
	a, err := NewArena(100, "seq")
	require.NoError(t, err)

	b1, err := a.Alloc(40, "first")
	require.NoError(t, err)
	require.Len(t, b1, 40)
	assert.Equal(t, 40, cap(b1))

	b2, err := a.Alloc(60, "second")
	require.NoError(t, err)
	require.Len(t, b2, 60)
	assert.Equal(t, 100, a.Used())
	assert.Equal(t, 0, a.Remaining())

	// Regions are adjacent and do not overlap.
	assert.Equal(t, uintptr(unsafe.Pointer(&b1[0]))+40, uintptr(unsafe.Pointer(&b2[0])))
}

func TestArena_Alloc_OutOfCapacity(t *testing.T) {
	env, rec := newTestEnv(t)
	a, err := NewArena(64, "small", WithEnv(env))
	require.NoError(t, err)

	_, err = a.Alloc(48, "fits")
	require.NoError(t, err)

	b, err := a.Alloc(32, "too big")
	assert.Nil(t, b)
	assert.ErrorIs(t, err, errors.ErrOutOfCapacity)
	assert.False(t, errors.IsFatal(err))
	assert.Equal(t, 48, a.Used(), "cursor must not move on failure")
	assert.True(t, rec.Contains(diag.Warn, "out of memory 32"))
	assert.True(t, rec.Contains(diag.Warn, "'too big'"))
	assert.True(t, rec.Contains(diag.Warn, "arena_test.go"))

	// A smaller request still succeeds.
	b, err = a.Alloc(16, "smaller")
	require.NoError(t, err)
	assert.Len(t, b, 16)
	assert.Equal(t, 64, a.Used())
}

func TestArena_Calloc_FailureLogsError(t *testing.T) {
	env, rec := newTestEnv(t)
	a, err := NewArena(16, "tiny", WithEnv(env))
	require.NoError(t, err)

	b, err := a.Calloc(17, "over")
	assert.Nil(t, b)
	assert.ErrorIs(t, err, errors.ErrOutOfCapacity)
	assert.True(t, rec.Contains(diag.Error, "out of memory 17"))
	assert.Zero(t, rec.Count(diag.Warn))
}

func TestArena_Alloc_ZeroAndNegative(t *testing.T) {
	a, err := NewArena(32, "edge")
	require.NoError(t, err)

	b, err := a.Alloc(0, "nothing")
	assert.NoError(t, err)
	assert.Nil(t, b)
	assert.Equal(t, 0, a.Used())

	b, err = a.Calloc(0, "nothing")
	assert.NoError(t, err)
	assert.Nil(t, b)

	_, err = a.Alloc(-1, "negative")
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
	assert.Equal(t, 0, a.Used())
}

func TestArena_NilArena(t *testing.T) {
	var a *Arena
	b, err := a.Alloc(8, "nil")
	assert.Nil(t, b)
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
	assert.False(t, a.Valid())
	assert.NotPanics(t, a.Clear)
	assert.NoError(t, a.Release())

	_, err = a.Construct(8, "child")
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
}

func TestEnv_RegistryDropsInvalidated(t *testing.T) {
	env, rec := newTestEnv(t)
	root, err := NewArena(4096, "root", WithEnv(env))
	require.NoError(t, err)

	for i := 0; i < 1000; i++ {
		child, err := root.Construct(1024, "frame")
		require.NoError(t, err)
		_, err = NewPool(child, 8, 8, "node")
		require.NoError(t, err)
		assert.LessOrEqual(t, len(env.arenas), 2)
		assert.LessOrEqual(t, len(env.pools), 1)
		root.Clear()
	}
	assert.Equal(t, []*Arena{root}, env.Arenas())
	assert.Empty(t, env.Pools())

	rec.Reset()
	env.PrintDebug()
	assert.Equal(t, 1, rec.Count(diag.Info))
	assert.True(t, rec.Contains(diag.Info, "mem root"))

	require.NoError(t, root.Release())
	assert.Empty(t, env.Arenas())
}

func TestArena_Calloc_ZeroFills(t *testing.T) {
	a, err := NewArena(64, "zero")
	require.NoError(t, err)

	dirty, err := a.Alloc(64, "dirty")
	require.NoError(t, err)
	for i := range dirty {
		dirty[i] = 0xFF
	}
	a.Clear()

	clean, err := a.Calloc(64, "clean")
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 64), clean)
}

func TestArena_Alloc_DoesNotZero(t *testing.T) {
	a, err := NewArena(8, "dirty")
	require.NoError(t, err)

	b, err := a.Alloc(8, "first")
	require.NoError(t, err)
	b[0] = 0xAB
	a.Clear()

	b, err = a.Alloc(8, "second")
	require.NoError(t, err)
	assert.Equal(t, byte(0xAB), b[0])
}

func TestArena_Free_IsNoOp(t *testing.T) {
	a, err := NewArena(32, "free")
	require.NoError(t, err)

	b, err := a.Alloc(16, "kept")
	require.NoError(t, err)
	a.Free(b)
	a.Free(nil)
	assert.Equal(t, 16, a.Used())
}

func TestArena_Clear(t *testing.T) {
	env, rec := newTestEnv(t)
	a, err := NewArena(32, "clear", WithEnv(env))
	require.NoError(t, err)

	_, err = a.Alloc(32, "full")
	require.NoError(t, err)
	epoch := a.Epoch()

	a.Clear()
	assert.Equal(t, 0, a.Used())
	assert.Equal(t, epoch+1, a.Epoch())
	assert.True(t, a.Valid())
	assert.True(t, rec.Contains(diag.Verbose, "clear memory 'clear'"))

	_, err = a.Alloc(32, "again")
	assert.NoError(t, err)
}

func TestArena_Construct(t *testing.T) {
	env, rec := newTestEnv(t)
	parent, err := NewArena(1024, "root", WithEnv(env))
	require.NoError(t, err)

	dirty, err := parent.Alloc(512, "dirty")
	require.NoError(t, err)
	for i := range dirty {
		dirty[i] = 0x5A
	}
	parent.Clear()

	_, err = parent.Alloc(8, "prefix")
	require.NoError(t, err)
	before := parent.Used()

	child, err := parent.Construct(256, "child")
	require.NoError(t, err)
	assert.Equal(t, before+256, parent.Used(), "parent cursor advances by exactly size")
	assert.Equal(t, 256, child.Capacity())
	assert.Equal(t, 0, child.Used())
	assert.Same(t, parent, child.Parent())
	assert.Same(t, env, child.Env())
	assert.Equal(t, make([]byte, 256), child.buf)
	assert.True(t, rec.Contains(diag.Info, "prepare memory 256 'root/child'"))

	b, err := child.Alloc(200, "inner")
	require.NoError(t, err)
	assert.Len(t, b, 200)
	_, err = child.Alloc(100, "overflow")
	assert.ErrorIs(t, err, errors.ErrOutOfCapacity)
}

func TestArena_Construct_Failures(t *testing.T) {
	env, rec := newTestEnv(t)
	parent, err := NewArena(64, "root", WithEnv(env))
	require.NoError(t, err)

	_, err = parent.Construct(128, "too-big")
	assert.ErrorIs(t, err, errors.ErrOutOfCapacity)
	assert.Equal(t, 0, parent.Used())

	_, err = parent.Construct(0, "empty")
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
	assert.True(t, rec.Contains(diag.Error, "child arena size must be positive"))
}

func TestArena_ChildInvalidatedByParentClear(t *testing.T) {
	env, rec := newTestEnv(t)
	parent, err := NewArena(256, "root", WithEnv(env))
	require.NoError(t, err)
	child, err := parent.Construct(128, "child")
	require.NoError(t, err)
	grandchild, err := child.Construct(64, "grandchild")
	require.NoError(t, err)

	parent.Clear()

	assert.False(t, child.Valid())
	assert.False(t, grandchild.Valid())

	b, err := child.Alloc(8, "late")
	assert.Nil(t, b)
	assert.ErrorIs(t, err, errors.ErrInvalidated)
	assert.True(t, rec.Contains(diag.Error, "null memory 8"))

	_, err = grandchild.Alloc(8, "late")
	assert.ErrorIs(t, err, errors.ErrInvalidated)

	// Clearing a child only invalidates its own descendants.
	fresh, err := parent.Construct(128, "fresh")
	require.NoError(t, err)
	nested, err := fresh.Construct(32, "nested")
	require.NoError(t, err)
	fresh.Clear()
	assert.True(t, fresh.Valid())
	assert.False(t, nested.Valid())
	assert.True(t, parent.Valid())
}

func TestArena_Release(t *testing.T) {
	a, err := NewArena(64, "release")
	require.NoError(t, err)
	child, err := a.Construct(32, "child")
	require.NoError(t, err)

	require.NoError(t, a.Release())
	assert.False(t, a.Valid())
	assert.False(t, child.Valid())
	assert.Equal(t, 0, a.Capacity())
	assert.NoError(t, a.Release(), "second release is a no-op")

	_, err = a.Alloc(8, "after release")
	assert.ErrorIs(t, err, errors.ErrInvalidated)
}

func TestArena_MmapBacking(t *testing.T) {
	a, err := NewArena(1<<20, "mapped", WithBacking(BackingMmap))
	require.NoError(t, err)
	defer func() { require.NoError(t, a.Release()) }()

	b, err := a.Alloc(4096, "page")
	require.NoError(t, err)
	for i := range b {
		b[i] = 1
	}
	tail, err := a.Alloc(8192, "tail")
	require.NoError(t, err)
	tail[0] = 7

	// Rewind past the tail and hand its pages back.
	a.Clear()
	_, err = a.Alloc(4096, "page")
	require.NoError(t, err)
	require.NoError(t, a.Trim())
	assert.Equal(t, 4096, a.Used())
}

func TestArena_TrimIgnoresHeapAndChildren(t *testing.T) {
	a, err := NewArena(64, "heap")
	require.NoError(t, err)
	child, err := a.Construct(32, "child")
	require.NoError(t, err)

	assert.NoError(t, a.Trim())
	assert.NoError(t, child.Trim())
	var nilArena *Arena
	assert.NoError(t, nilArena.Trim())
}

func TestParseBacking(t *testing.T) {
	b, err := ParseBacking("mmap")
	require.NoError(t, err)
	assert.Equal(t, BackingMmap, b)
	assert.Equal(t, "mmap", b.String())

	b, err = ParseBacking("")
	require.NoError(t, err)
	assert.Equal(t, BackingHeap, b)

	_, err = ParseBacking("disk")
	assert.Error(t, err)
}

func TestSizeString(t *testing.T) {
	tests := []struct {
		size, max int
		want      string
	}{
		{0, 1024, "0 b (0 %)"},
		{512, 1024, "512 b (50 %)"},
		{2048, 4096, "2 K (50 %)"},
		{3 * 1024 * 1024, 4 * 1024 * 1024, "3 M (75 %)"},
		{100, 0, "100 b (100 %)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SizeString(tt.size, tt.max))
	}
}

func TestArena_PrintDebug(t *testing.T) {
	env, rec := newTestEnv(t)
	a, err := NewArena(2048, "frame", WithEnv(env))
	require.NoError(t, err)
	_, err = a.Alloc(1024, "half")
	require.NoError(t, err)

	assert.Equal(t, "mem frame 1 K (50 %)", a.DebugString())
	a.PrintDebug()
	assert.True(t, rec.Contains(diag.Info, "mem frame 1 K (50 %)"))
	assert.Equal(t, 1024, a.Used(), "printing has no effect on state")
}

func TestArena_AllocAlignedUsesAddress(t *testing.T) {
	parent, err := NewArena(256, "root")
	require.NoError(t, err)
	_, err = parent.Alloc(3, "skew")
	require.NoError(t, err)
	child, err := parent.Construct(128, "skewed")
	require.NoError(t, err)

	b, err := child.allocAligned(16, 16, "aligned")
	require.NoError(t, err)
	assert.Zero(t, uintptr(unsafe.Pointer(&b[0]))%16)

	before := child.Used()
	_, err = child.allocAligned(1024, 16, "too big")
	assert.ErrorIs(t, err, errors.ErrOutOfCapacity)
	assert.Equal(t, before, child.Used(), "padding is undone on failure")
}

func TestArena_Metrics(t *testing.T) {
	env, _ := newTestEnv(t)
	env.WithMetrics(true)

	a, err := NewArena(128, "metrics-arena", WithEnv(env))
	require.NoError(t, err)
	assert.Equal(t, 128.0, testutil.ToFloat64(metrics.ArenaCapacityBytes.WithLabelValues("metrics-arena")))

	_, err = a.Alloc(100, "bulk")
	require.NoError(t, err)
	assert.Equal(t, 100.0, testutil.ToFloat64(metrics.ArenaUsedBytes.WithLabelValues("metrics-arena")))

	_, err = a.Alloc(100, "overflow")
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ArenaAllocFailuresTotal.WithLabelValues("metrics-arena", "capacity")))

	a.Clear()
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ArenaClearsTotal.WithLabelValues("metrics-arena")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.ArenaUsedBytes.WithLabelValues("metrics-arena")))
}

func BenchmarkArena_Alloc(b *testing.B) {
	a, err := NewArena(1<<20, "bench")
	require.NoError(b, err)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := a.Alloc(64, "bench"); err != nil {
			a.Clear()
		}
	}
}
