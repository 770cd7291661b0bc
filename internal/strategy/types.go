package strategy

// Direction is the trade side a strategy recommends.
type Direction string

const (
	Call Direction = "CALL"
	Put  Direction = "PUT"
	Skip Direction = "SKIP"
)

// Signal is a decision emitted by a strategy for the current price window.
type Signal struct {
	Direction  Direction `json:"direction"`
	Confidence float64   `json:"confidence"`
	Reason     string    `json:"reason,omitempty"`
}

// IsSkip reports whether the signal carries no trade.
func (s Signal) IsSkip() bool { return s.Direction != Call && s.Direction != Put }

func skip(reason string) Signal { return Signal{Direction: Skip, Reason: reason} }

// Provider defines the interface the session engine drives.
type Provider interface {
	// ID returns the registry id the provider was built from.
	ID() string
	// MinLength is the shortest window Analyze will consider.
	MinLength() int
	// Analyze returns SKIP for windows shorter than MinLength.
	Analyze(window []float64) Signal
	// OnTradeResult feeds back the outcome of a settled trade.
	OnTradeResult(won bool)
	// Reset clears cooldown and adaptive state.
	Reset()
}

// Info describes a registered strategy for listings.
type Info struct {
	ID              string  `json:"id" yaml:"id"`
	Name            string  `json:"name" yaml:"name"`
	Tier            string  `json:"tier" yaml:"tier"`
	Description     string  `json:"description" yaml:"description"`
	MinLength       int     `json:"min_length" yaml:"-"`
	ExpectedWinRate float64 `json:"expected_win_rate" yaml:"expected_win_rate"`
	Enabled         bool    `json:"enabled" yaml:"enabled"`
}
