package util

func IsDuplicatedSlice[T any](s []T, keyf func(T) (bool, string)) bool {
	m, isdup := IsDuplicatedSliceWithMap(s, keyf)
	clear(m)

	return isdup
}

// IsDuplicatedSliceWithMap checks the keys from keyf; if keyf returns false,
// checking stops.
func IsDuplicatedSliceWithMap[T any](s []T, keyf func(T) (bool, string)) (map[string]T, bool) {
	if len(s) < 1 {
		return nil, false
	}

	m := map[string]T{}

	for i := range s {
		keep, k := keyf(s[i])
		if _, found := m[k]; found {
			return nil, true
		}

		if !keep {
			return m, false
		}

		m[k] = s[i]
	}

	return m, false
}

// RemoveDuplicatedSlice keeps the first item by the key; the empty key is
// ignored.
func RemoveDuplicatedSlice[T any](s []T, f func(T) (string, error)) ([]T, error) {
	if len(s) < 1 {
		return nil, nil
	}

	add, done := CompactAppendSlice[T](len(s))

	m := map[string]struct{}{}
	defer clear(m)

	for i := range s {
		switch k, err := f(s[i]); {
		case err != nil:
			return nil, err
		case len(k) < 1:
			continue
		default:
			if _, found := m[k]; found {
				continue
			}

			m[k] = struct{}{}
		}

		add(s[i])
	}

	return done(), nil
}

func CompactAppendSlice[T any](size int) (
	add func(T) bool,
	done func() []T,
) {
	s := make([]T, size)

	var i int

	return func(t T) bool {
			s[i] = t

			i++

			return i == size
		}, func() []T {
			return s[:i]
		}
}
