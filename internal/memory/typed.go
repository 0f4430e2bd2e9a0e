package memory

import (
	"reflect"
	"unsafe"

	"github.com/23skdu/slotarena/internal/errors"
)

// Arena and pool memory is not scanned by the garbage collector, so only
// pointer-free types may be placed in it.

// TypeTag returns the tag pools use to identify T.
func TypeTag[T any]() string {
	return reflect.TypeFor[T]().String()
}

func pointerFree(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return true
	case reflect.Array:
		return t.Len() == 0 || pointerFree(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if !pointerFree(t.Field(i).Type) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func checkPointerFree[T any](op, target string) error {
	t := reflect.TypeFor[T]()
	if !pointerFree(t) {
		return errors.Newf(errors.ErrorTypeInvalidArgument, op, target,
			"%s contains pointers and cannot live in arena memory", t)
	}
	return nil
}

// New carves a zeroed T from a, aligned for T.
func New[T any](a *Arena) (*T, error) {
	if a == nil {
		return nil, errors.NewInvalidArgument("arena.new", TypeTag[T](), "nil arena")
	}
	if err := checkPointerFree[T]("arena.new", a.Name()); err != nil {
		return nil, err
	}
	var zero T
	size := int(unsafe.Sizeof(zero))
	if size == 0 {
		return &zero, nil
	}
	b, err := a.allocAligned(size, int(unsafe.Alignof(zero)), TypeTag[T]())
	if err != nil {
		return nil, err
	}
	return (*T)(unsafe.Pointer(&b[0])), nil
}

// NewSlice carves a zeroed []T of length n from a. n == 0 returns an empty
// slice without touching the arena.
func NewSlice[T any](a *Arena, n int) ([]T, error) {
	if a == nil {
		return nil, errors.NewInvalidArgument("arena.new_slice", TypeTag[T](), "nil arena")
	}
	if err := checkPointerFree[T]("arena.new_slice", a.Name()); err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, errors.Newf(errors.ErrorTypeInvalidArgument, "arena.new_slice", a.Name(), "negative length %d", n)
	}
	var zero T
	size := int(unsafe.Sizeof(zero))
	if n == 0 || size == 0 {
		return make([]T, n), nil
	}
	b, err := a.allocAligned(size*n, int(unsafe.Alignof(zero)), TypeTag[T]())
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&b[0])), n), nil
}

// TypedPool is a Pool whose slots hold one T each.
type TypedPool[T any] struct {
	pool *Pool
}

// NewTypedPool builds a pool of maxCount slots sized and tagged for T.
func NewTypedPool[T any](arena *Arena, maxCount int) (*TypedPool[T], error) {
	tag := TypeTag[T]()
	if err := checkPointerFree[T]("pool.construct", tag); err != nil {
		return nil, err
	}
	var zero T
	if unsafe.Alignof(zero) > SlotAlign {
		return nil, errors.Newf(errors.ErrorTypeInvalidArgument, "pool.construct", tag,
			"alignment %d exceeds slot alignment %d", unsafe.Alignof(zero), SlotAlign)
	}
	p, err := newPool(arena, int(unsafe.Sizeof(zero)), maxCount, tag, callerSite(1))
	if err != nil {
		return nil, err
	}
	return &TypedPool[T]{pool: p}, nil
}

// Alloc pops a slot and returns it as *T. Contents are left as they were.
func (tp *TypedPool[T]) Alloc() (Handle, *T, error) {
	return allocType[T](tp.pool, "pool.alloc", false)
}

// Calloc pops a slot and zeroes it.
func (tp *TypedPool[T]) Calloc() (Handle, *T, error) {
	return allocType[T](tp.pool, "pool.calloc", true)
}

// Get returns the T behind h.
func (tp *TypedPool[T]) Get(h Handle) (*T, error) {
	b, err := tp.pool.Bytes(h)
	if err != nil {
		return nil, err
	}
	return (*T)(unsafe.Pointer(&b[0])), nil
}

// At projects an index onto its slot without validation.
func (tp *TypedPool[T]) At(index int) *T {
	return (*T)(unsafe.Pointer(&tp.pool.Pointer(index)[0]))
}

func (tp *TypedPool[T]) Free(h Handle) error { return tp.pool.Free(h) }

// Pool exposes the untyped pool for mark/sweep and diagnostics.
func (tp *TypedPool[T]) Pool() *Pool { return tp.pool }

// AllocType allocates a T from p, checking T against p's declared type.
func AllocType[T any](p *Pool) (Handle, *T, error) {
	return allocType[T](p, "pool.alloc", false)
}

// CallocType is AllocType with the slot zeroed.
func CallocType[T any](p *Pool) (Handle, *T, error) {
	return allocType[T](p, "pool.calloc", true)
}

// allocType must be called directly by an exported entry point so the
// recorded site is that entry point's caller.
func allocType[T any](p *Pool, op string, zero bool) (Handle, *T, error) {
	var v T
	h, err := p.alloc(TypeTag[T](), int(unsafe.Sizeof(v)), op, 3)
	if err != nil {
		return Handle{}, nil, err
	}
	b := p.slot(int(h.Index))
	if zero {
		clear(b)
	}
	return h, (*T)(unsafe.Pointer(&b[0])), nil
}
