package throttle

import (
	"strings"

	"github.com/spikeekips/throttler/util"
)

const (
	ModeTypeUnthrottled = "unthrottled"
	ModeTypeBlackhole   = "blackhole"
	ModeTypeTokenBucket = "token-bucket"
)

// ModeDesign is the serializable form of Mode, used by the node design and the
// admin API.
type ModeDesign struct {
	Type            string  `json:"type" yaml:"type"`
	Capacity        int     `json:"capacity,omitempty" yaml:"capacity,omitempty"`
	TokensPerSecond float64 `json:"tokens_per_second,omitempty" yaml:"tokens_per_second,omitempty"`
	// AvailableTokens is only for reporting the current state.
	AvailableTokens *int `json:"available_tokens,omitempty" yaml:"-"`
}

func NewModeDesign(m Mode) ModeDesign {
	switch t := m.(type) {
	case Blackhole:
		return ModeDesign{Type: ModeTypeBlackhole}
	case TokenBucket:
		available := t.AvailableTokens()

		return ModeDesign{
			Type:            ModeTypeTokenBucket,
			Capacity:        t.Capacity(),
			TokensPerSecond: t.TokensPerSecond(),
			AvailableTokens: &available,
		}
	default:
		return ModeDesign{Type: ModeTypeUnthrottled}
	}
}

func (d ModeDesign) IsValid([]byte) error {
	_, err := d.Mode()

	return err
}

// Mode returns new Mode; the token bucket starts full.
func (d ModeDesign) Mode() (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(d.Type)) {
	case ModeTypeUnthrottled, "":
		return Unthrottled{}, nil
	case ModeTypeBlackhole:
		return Blackhole{}, nil
	case ModeTypeTokenBucket:
		m := NewFullTokenBucket(d.Capacity, d.TokensPerSecond)
		if err := m.IsValid(nil); err != nil {
			return nil, err
		}

		return m, nil
	default:
		return nil, util.ErrInvalid.Errorf("unknown mode type, %q", d.Type)
	}
}
