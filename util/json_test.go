package util

import (
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type dummyTextMarshaled string

func (d dummyTextMarshaled) MarshalText() ([]byte, error) {
	return []byte(strings.ToUpper(string(d))), nil
}

func (d *dummyTextMarshaled) UnmarshalText(b []byte) error {
	if len(b) < 1 {
		return errors.Errorf("empty text")
	}

	*d = dummyTextMarshaled(strings.ToLower(string(b)))

	return nil
}

type dummyJSONMarshaled struct {
	A string             `json:"a"`
	T dummyTextMarshaled `json:"t"`
	D time.Duration      `json:"d,omitempty"`
	M map[string]int     `json:"m,omitempty"`
}

type testJSON struct {
	suite.Suite
}

func (t *testJSON) TestMarshal() {
	d := dummyJSONMarshaled{A: "A", T: "showme", D: time.Second, M: map[string]int{"a": 1}}

	b, err := MarshalJSON(d)
	t.NoError(err)

	t.T().Log("marshaled:", string(b))
	t.Contains(string(b), `"t":"SHOWME"`)

	var ud dummyJSONMarshaled
	t.NoError(UnmarshalJSON(b, &ud))
	t.Equal(d, ud)
}

func (t *testJSON) TestTextUnmarshalError() {
	var ud dummyJSONMarshaled

	err := UnmarshalJSON([]byte(`{"a":"A","t":""}`), &ud)
	t.Error(err)
	t.ErrorContains(err, "empty text")
}

func (t *testJSON) TestNil() {
	for _, s := range []string{"", " ", "null", " null\n"} {
		t.True(IsNilJSON([]byte(s)), "%q", s)

		ud := dummyJSONMarshaled{A: "A"}
		t.NoError(UnmarshalJSON([]byte(s), &ud))
		t.Equal("A", ud.A)
	}

	t.False(IsNilJSON([]byte("{}")))
}

func TestJSON(t *testing.T) {
	suite.Run(t, new(testJSON))
}
