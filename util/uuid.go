package util

import "github.com/gofrs/uuid"

func UUID() uuid.UUID {
	for {
		if i, err := uuid.NewV4(); err == nil {
			return i
		}
	}
}
