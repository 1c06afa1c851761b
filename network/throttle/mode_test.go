package throttle

import (
	"math/rand"
	"testing"
	"time"

	"github.com/spikeekips/throttler/util"
	"github.com/stretchr/testify/suite"
)

type testMode struct {
	suite.Suite
}

func (t *testMode) TestUnthrottled() {
	m, ok := Unthrottled{}.TryConsume(0, 1<<20)
	t.True(ok)
	t.Equal(Unthrottled{}, m)
	t.Equal(time.Duration(0), m.TimeToAvailable(0, 1<<20))
}

func (t *testMode) TestBlackhole() {
	m, ok := Blackhole{}.TryConsume(0, 1)
	t.False(ok)
	t.Equal(Blackhole{}, m)
	t.Equal(time.Duration(0), m.TimeToAvailable(0, 1))
	t.True(IsBlackhole(m))
	t.False(IsBlackhole(Unthrottled{}))
}

func (t *testMode) TestScenario() {
	sec := int64(time.Second)

	var m Mode = NewTokenBucket(10, 10, 0, 10) //nolint:gomnd //...

	m, ok := m.TryConsume(0, 4)
	t.True(ok)
	t.Equal(6, m.(TokenBucket).AvailableTokens())

	m, ok = m.TryConsume(0, 7)
	t.False(ok)
	t.Equal(6, m.(TokenBucket).AvailableTokens())
	t.Equal(int64(0), m.(TokenBucket).NanoTimeOfLastSend())

	m, ok = m.TryConsume(sec, 7)
	t.True(ok)
	t.Equal(9, m.(TokenBucket).AvailableTokens())
	t.Equal(sec, m.(TokenBucket).NanoTimeOfLastSend())
}

func (t *testMode) TestImmutable() {
	a := NewTokenBucket(10, 10, 0, 10) //nolint:gomnd //...

	b, ok := a.TryConsume(0, 4)
	t.True(ok)

	t.Equal(10, a.AvailableTokens())
	t.Equal(6, b.(TokenBucket).AvailableTokens())
}

func (t *testMode) TestGeneratedTruncated() {
	a := NewTokenBucket(100, 10, 0, 0) //nolint:gomnd //...

	// 150ms generates 1.5 tokens
	_, ok := a.TryConsume(int64(time.Millisecond*150), 2)
	t.False(ok)

	b, ok := a.TryConsume(int64(time.Millisecond*150), 1)
	t.True(ok)
	t.Equal(0, b.(TokenBucket).AvailableTokens())
}

func (t *testMode) TestClampedToCapacity() {
	a := NewTokenBucket(10, 1000, 0, 5) //nolint:gomnd //...

	b, ok := a.TryConsume(int64(time.Hour), 1)
	t.True(ok)
	t.Equal(10, b.(TokenBucket).AvailableTokens())

	c, ok := b.TryConsume(int64(time.Hour), 4)
	t.True(ok)
	t.Equal(6, c.(TokenBucket).AvailableTokens())
}

func (t *testMode) TestOversize() {
	t.Run("admitted with any token", func() {
		a := NewTokenBucket(10, 10, 0, 1) //nolint:gomnd //...

		b, ok := a.TryConsume(0, 1000)
		t.True(ok)
		t.Equal(-999, b.(TokenBucket).AvailableTokens())

		t.Run("not admitted under debt", func() {
			_, ok := b.TryConsume(0, 1000)
			t.False(ok)

			_, ok = b.TryConsume(0, 1)
			t.False(ok)
		})
	})

	t.Run("not admitted without token", func() {
		a := NewTokenBucket(10, 10, 0, 0) //nolint:gomnd //...

		_, ok := a.TryConsume(0, 1000)
		t.False(ok)
	})
}

func (t *testMode) TestTimeToAvailable() {
	a := NewTokenBucket(10, 8, 0, 0) //nolint:gomnd //...

	t.Equal(time.Millisecond*500, a.TimeToAvailable(0, 4))
	t.Equal(time.Millisecond*250, a.TimeToAvailable(int64(time.Millisecond*250), 4))

	// oversize needs only one token
	t.Equal(time.Millisecond*125, a.TimeToAvailable(0, 1000))

	// already available
	t.True(a.TimeToAvailable(int64(time.Second), 4) < 0)
}

func (t *testMode) TestConservation() {
	r := rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec //...

	capacity := 10 + r.Intn(100)

	var m Mode = NewFullTokenBucket(capacity, float64(1+r.Intn(1000)))

	var now int64

	for range make([]struct{}, 1000) {
		now += int64(r.Intn(int(time.Millisecond * 30)))
		tokens := 1 + r.Intn(capacity*2)

		prev := m.(TokenBucket)
		generated := prev.generated(now)

		switch i, ok := m.TryConsume(now, tokens); {
		case ok:
			b := i.(TokenBucket)

			t.LessOrEqual(b.AvailableTokens(), capacity)
			t.Equal(minInt(prev.AvailableTokens()-tokens+generated, capacity), b.AvailableTokens())
			t.Equal(now, b.NanoTimeOfLastSend())

			if tokens > capacity {
				t.LessOrEqual(b.AvailableTokens(), capacity-tokens+generated)
			}

			m = i
		default:
			t.Equal(prev, i)
		}
	}
}

func (t *testMode) TestIsValid() {
	t.NoError(NewFullTokenBucket(1, 1).IsValid(nil))

	err := NewFullTokenBucket(0, 1).IsValid(nil)
	t.Error(err)
	t.ErrorIs(err, util.ErrInvalid)
	t.ErrorContains(err, "capacity")

	err = NewFullTokenBucket(1, 0).IsValid(nil)
	t.Error(err)
	t.ErrorContains(err, "tokens per second")
}

func (t *testMode) TestDesign() {
	cases := []struct {
		name string
		d    ModeDesign
		m    Mode
		err  string
	}{
		{name: "empty", d: ModeDesign{}, m: Unthrottled{}},
		{name: "unthrottled", d: ModeDesign{Type: "unthrottled"}, m: Unthrottled{}},
		{name: "blackhole", d: ModeDesign{Type: "Blackhole"}, m: Blackhole{}},
		{name: "token bucket", d: ModeDesign{Type: "token-bucket", Capacity: 3, TokensPerSecond: 2}, m: NewFullTokenBucket(3, 2)},
		{name: "wrong token bucket", d: ModeDesign{Type: "token-bucket", Capacity: 3}, err: "tokens per second"},
		{name: "unknown", d: ModeDesign{Type: "findme"}, err: "unknown mode type"},
	}

	for i, c := range cases {
		i := i
		c := c

		t.Run(c.name, func() {
			m, err := c.d.Mode()
			if len(c.err) > 0 {
				t.Error(err, "%d: %v", i, c.name)
				t.ErrorContains(err, c.err, "%d: %v", i, c.name)

				return
			}

			t.NoError(err, "%d: %v", i, c.name)
			t.Equal(c.m, m, "%d: %v", i, c.name)
			t.Equal(c.m.String(), NewModeDesign(m).mustMode().String(), "%d: %v", i, c.name)
		})
	}
}

func (d ModeDesign) mustMode() Mode {
	m, err := d.Mode()
	if err != nil {
		panic(err)
	}

	return m
}

func (t *testMode) TestDirection() {
	t.True(DirectionBoth.IncludesSend())
	t.True(DirectionBoth.IncludesReceive())
	t.True(DirectionSend.IncludesSend())
	t.False(DirectionSend.IncludesReceive())
	t.False(DirectionReceive.IncludesSend())
	t.True(DirectionReceive.IncludesReceive())

	for _, d := range []Direction{DirectionBoth, DirectionSend, DirectionReceive} {
		b, err := d.MarshalText()
		t.NoError(err)

		var u Direction
		t.NoError(u.UnmarshalText(b))
		t.Equal(d, u)
	}

	var u Direction
	err := u.UnmarshalText([]byte("sideways"))
	t.Error(err)
	t.ErrorIs(err, util.ErrInvalid)
}

func TestMode(t *testing.T) {
	suite.Run(t, new(testMode))
}
