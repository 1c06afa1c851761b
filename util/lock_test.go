package util

import (
	"sort"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type testLocked struct {
	suite.Suite
}

func (t *testLocked) TestNew() {
	t.Run("empty", func() {
		l := EmptyLocked[string]()
		i, isempty := l.Value()
		t.True(isempty)
		t.Empty(i)
	})

	t.Run("new with empty", func() {
		l := NewLocked("")
		i, isempty := l.Value()
		t.False(isempty)
		t.Equal("", i)

		l.EmptyValue()
		i, isempty = l.Value()
		t.True(isempty)
		t.Empty(i)
	})

	t.Run("new", func() {
		l := NewLocked(33)
		i, isempty := l.Value()
		t.False(isempty)
		t.Equal(33, i)
	})
}

func (t *testLocked) TestSetValue() {
	l := EmptyLocked[string]()

	l.SetValue("showme")
	i, isempty := l.Value()
	t.False(isempty)
	t.Equal("showme", i)

	l.SetValue("findme")
	i, _ = l.Value()
	t.Equal("findme", i)

	l.EmptyValue()
	i, isempty = l.Value()
	t.True(isempty)
	t.Empty(i)
}

func (t *testLocked) TestSet() {
	t.Run("from empty", func() {
		l := EmptyLocked[int]()

		v, err := l.Set(func(i int, isempty bool) (int, error) {
			t.True(isempty)

			return 3, nil
		})
		t.NoError(err)
		t.Equal(3, v)

		i, isempty := l.Value()
		t.False(isempty)
		t.Equal(3, i)
	})

	t.Run("error", func() {
		l := NewLocked(3)

		_, err := l.Set(func(i int, _ bool) (int, error) {
			return i + 1, errors.Errorf("hehehe")
		})
		t.Error(err)
		t.ErrorContains(err, "hehehe")

		i, _ := l.Value()
		t.Equal(3, i)
	})

	t.Run("concurrent", func() {
		l := NewLocked(0)

		var wg sync.WaitGroup
		wg.Add(100)

		for range make([]struct{}, 100) {
			go func() {
				defer wg.Done()

				_, _ = l.Set(func(i int, _ bool) (int, error) {
					return i + 1, nil
				})
			}()
		}

		wg.Wait()

		i, _ := l.Value()
		t.Equal(100, i)
	})
}

func TestLocked(t *testing.T) {
	suite.Run(t, new(testLocked))
}

type testLockedMap struct {
	suite.Suite
}

func (t *testLockedMap) TestSetValue() {
	l := NewLockedMap[string, int]()
	t.Equal(0, l.Len())

	t.False(l.SetValue("a", 1))
	t.True(l.SetValue("a", 2))

	v, found := l.Value("a")
	t.True(found)
	t.Equal(2, v)

	_, found = l.Value("b")
	t.False(found)

	t.Equal(1, l.Len())
}

func (t *testLockedMap) TestGetOrCreate() {
	l := NewLockedMap[string, int]()

	v, created := l.GetOrCreate("a", func() int { return 3 })
	t.True(created)
	t.Equal(3, v)

	v, created = l.GetOrCreate("a", func() int { return 4 })
	t.False(created)
	t.Equal(3, v)
}

func (t *testLockedMap) TestRemove() {
	l := NewLockedMap[string, int]()
	_ = l.SetValue("a", 1)

	t.True(l.Remove("a"))
	t.False(l.Remove("a"))
	t.Equal(0, l.Len())
}

func (t *testLockedMap) TestTraverse() {
	l := NewLockedMap[string, int]()

	for i, k := range []string{"a", "b", "c", "d"} {
		_ = l.SetValue(k, i)
	}

	t.Run("all", func() {
		var keys []string

		l.Traverse(func(k string, _ int) bool {
			keys = append(keys, k)

			return true
		})

		sort.Strings(keys)
		t.Equal([]string{"a", "b", "c", "d"}, keys)
	})

	t.Run("stop", func() {
		var n int

		l.Traverse(func(string, int) bool {
			n++

			return n < 2
		})

		t.Equal(2, n)
	})
}

func TestLockedMap(t *testing.T) {
	suite.Run(t, new(testLockedMap))
}
