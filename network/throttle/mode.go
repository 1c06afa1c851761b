package throttle

import (
	"fmt"
	"math"
	"time"

	"github.com/spikeekips/throttler/util"
)

// Mode decides whether the given number of tokens, the length of frame, can
// be sent at the given time. Mode is immutable; TryConsume returns the new
// Mode.
type Mode interface {
	fmt.Stringer
	TryConsume(nanoTimeOfSend int64, tokens int) (Mode, bool)
	TimeToAvailable(currentNanoTime int64, tokens int) time.Duration
}

type Unthrottled struct{}

func (m Unthrottled) TryConsume(int64, int) (Mode, bool) {
	return m, true
}

func (Unthrottled) TimeToAvailable(int64, int) time.Duration {
	return 0
}

func (Unthrottled) String() string {
	return "unthrottled"
}

type Blackhole struct{}

func (m Blackhole) TryConsume(int64, int) (Mode, bool) {
	return m, false
}

func (Blackhole) TimeToAvailable(int64, int) time.Duration {
	return 0
}

func (Blackhole) String() string {
	return "blackhole"
}

func IsBlackhole(m Mode) bool {
	_, ok := m.(Blackhole)

	return ok
}

// TokenBucket refills tokensPerSecond tokens per second up to capacity. A
// frame larger than capacity is admitted whenever any token is available and
// leaves the bucket in debt.
type TokenBucket struct {
	capacity           int
	tokensPerSecond    float64
	nanoTimeOfLastSend int64
	availableTokens    int
}

func NewTokenBucket(capacity int, tokensPerSecond float64, nanoTimeOfLastSend int64, availableTokens int) TokenBucket {
	return TokenBucket{
		capacity:           capacity,
		tokensPerSecond:    tokensPerSecond,
		nanoTimeOfLastSend: nanoTimeOfLastSend,
		availableTokens:    availableTokens,
	}
}

func NewFullTokenBucket(capacity int, tokensPerSecond float64) TokenBucket {
	return NewTokenBucket(capacity, tokensPerSecond, 0, capacity)
}

func (m TokenBucket) IsValid([]byte) error {
	e := util.ErrInvalid.Errorf("invalid token bucket")

	switch {
	case m.capacity < 1:
		return e.Errorf("capacity should be over zero, %d", m.capacity)
	case m.tokensPerSecond <= 0, math.IsNaN(m.tokensPerSecond), math.IsInf(m.tokensPerSecond, 0):
		return e.Errorf("wrong tokens per second, %v", m.tokensPerSecond)
	case m.availableTokens > m.capacity:
		return e.Errorf("available tokens over capacity, %d > %d", m.availableTokens, m.capacity)
	}

	return nil
}

func (m TokenBucket) Capacity() int {
	return m.capacity
}

func (m TokenBucket) TokensPerSecond() float64 {
	return m.tokensPerSecond
}

func (m TokenBucket) NanoTimeOfLastSend() int64 {
	return m.nanoTimeOfLastSend
}

func (m TokenBucket) AvailableTokens() int {
	return m.availableTokens
}

func (m TokenBucket) TryConsume(nanoTimeOfSend int64, tokens int) (Mode, bool) {
	generated := m.generated(nanoTimeOfSend)

	if !m.isAvailable(generated, tokens) {
		return m, false
	}

	m.availableTokens = minInt(m.availableTokens-tokens+generated, m.capacity)
	m.nanoTimeOfLastSend = nanoTimeOfSend

	return m, true
}

// TimeToAvailable can be negative, which means the tokens are already
// available.
func (m TokenBucket) TimeToAvailable(currentNanoTime int64, tokens int) time.Duration {
	needed := tokens
	if tokens > m.capacity {
		needed = 1
	}

	needed -= m.generated(currentNanoTime)

	return time.Duration(float64(needed) / m.tokensPerSecond * float64(time.Second))
}

func (m TokenBucket) String() string {
	return fmt.Sprintf("token-bucket(capacity=%d tokens_per_second=%v available=%d)",
		m.capacity, m.tokensPerSecond, m.availableTokens)
}

func (m TokenBucket) isAvailable(generated, tokens int) bool {
	if tokens > m.capacity && m.availableTokens > 0 {
		return true
	}

	return minInt(m.availableTokens+generated, m.capacity) >= tokens
}

func (m TokenBucket) generated(nanoTime int64) int {
	elapsed := (nanoTime - m.nanoTimeOfLastSend) / int64(time.Millisecond)
	if elapsed < 1 {
		return 0
	}

	g := float64(elapsed) * m.tokensPerSecond / 1000 //nolint:gomnd //...
	if g >= math.MaxInt32 {
		return math.MaxInt32
	}

	return int(g)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}

	return b
}
