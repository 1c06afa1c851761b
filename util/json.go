package util

import (
	"bytes"

	jsoniter "github.com/json-iterator/go"
)

var (
	nullJSONBytes = []byte("null")
	jsoni         = jsoniter.ConfigCompatibleWithStandardLibrary
)

func MarshalJSON(v interface{}) ([]byte, error) {
	return jsoni.Marshal(v)
}

func UnmarshalJSON(b []byte, v interface{}) error {
	if IsNilJSON(b) {
		return nil
	}

	return jsoni.Unmarshal(b, v)
}

func IsNilJSON(b []byte) bool {
	i := bytes.TrimSpace(b)

	return len(i) < 1 || bytes.Equal(i, nullJSONBytes)
}
