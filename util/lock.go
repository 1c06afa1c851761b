package util

import "sync"

type Locked[T any] struct {
	value   T
	isempty bool
	sync.RWMutex
}

func EmptyLocked[T any]() *Locked[T] {
	return &Locked[T]{isempty: true}
}

func NewLocked[T any](v T) *Locked[T] {
	return &Locked[T]{value: v}
}

func (l *Locked[T]) Value() (v T, isempty bool) {
	l.RLock()
	defer l.RUnlock()

	return l.value, l.isempty
}

func (l *Locked[T]) SetValue(v T) *Locked[T] {
	l.Lock()
	defer l.Unlock()

	l.value = v
	l.isempty = false

	return l
}

func (l *Locked[T]) EmptyValue() *Locked[T] {
	l.Lock()
	defer l.Unlock()

	var v T

	l.value = v
	l.isempty = true

	return l
}

// Set sets the new value returned by f; if f returns error, the value is not
// changed.
func (l *Locked[T]) Set(f func(_ T, isempty bool) (T, error)) (v T, _ error) {
	l.Lock()
	defer l.Unlock()

	i, err := f(l.value, l.isempty)
	if err != nil {
		return v, err
	}

	l.value = i
	l.isempty = false

	return i, nil
}

type LockedMap[K comparable, V any] struct {
	m map[K]V
	sync.RWMutex
}

func NewLockedMap[K comparable, V any]() *LockedMap[K, V] {
	return &LockedMap[K, V]{m: map[K]V{}}
}

func (l *LockedMap[K, V]) Value(k K) (v V, found bool) {
	l.RLock()
	defer l.RUnlock()

	v, found = l.m[k]

	return v, found
}

func (l *LockedMap[K, V]) SetValue(k K, v V) (found bool) {
	l.Lock()
	defer l.Unlock()

	_, found = l.m[k]
	l.m[k] = v

	return found
}

func (l *LockedMap[K, V]) GetOrCreate(k K, create func() V) (v V, created bool) {
	l.Lock()
	defer l.Unlock()

	if i, found := l.m[k]; found {
		return i, false
	}

	v = create()
	l.m[k] = v

	return v, true
}

func (l *LockedMap[K, V]) Remove(k K) (removed bool) {
	l.Lock()
	defer l.Unlock()

	_, removed = l.m[k]
	delete(l.m, k)

	return removed
}

func (l *LockedMap[K, V]) Traverse(f func(K, V) bool) {
	l.RLock()
	defer l.RUnlock()

	for k := range l.m {
		if !f(k, l.m[k]) {
			break
		}
	}
}

func (l *LockedMap[K, V]) Len() int {
	l.RLock()
	defer l.RUnlock()

	return len(l.m)
}
