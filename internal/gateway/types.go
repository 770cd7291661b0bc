package gateway

import "errors"

var (
	ErrNotConnected        = errors.New("gateway not connected")
	ErrConnectTimeout      = errors.New("gateway connect timeout")
	ErrAuthorizationFailed = errors.New("authorization failed")
	ErrContractPending     = errors.New("contract already pending")
	ErrClosed              = errors.New("gateway closed")
)

// Status of a contract as reported to the listener.
type Status string

const (
	StatusOpen Status = "open"
	StatusWon  Status = "won"
	StatusLost Status = "lost"
)

// Flag marks a synthetic update that releases the pending slot without a
// broker settlement.
type Flag string

const (
	FlagNone       Flag = ""
	FlagTimeout    Flag = "timeout"
	FlagReconnect  Flag = "reconnect"
	FlagQuoteError Flag = "quote_error"
	FlagBuyError   Flag = "buy_error"
)

// Tick is one price update for the subscribed symbol.
type Tick struct {
	Symbol string
	Quote  float64
	Epoch  int64
}

// ContractUpdate is either a broker contract event or, when Flag is set, an
// interruption with Status lost and zero profit.
type ContractUpdate struct {
	ContractID int64
	Status     Status
	Profit     float64
	ExitTick   float64
	Flag       Flag
}

// Interrupted reports whether the update is a release rather than a settlement.
func (u ContractUpdate) Interrupted() bool { return u.Flag != FlagNone }

// Terminal reports whether the update ends the contract.
func (u ContractUpdate) Terminal() bool { return u.Status == StatusWon || u.Status == StatusLost }

// ContractSpec describes one proposal request.
type ContractSpec struct {
	Amount       float64
	ContractType string
	Currency     string
	Duration     int
	DurationUnit string
	Symbol       string
	Barrier      string
}

// Listener receives gateway events. Calls arrive serially from the read loop,
// except timeout and reconnect releases which come from their own goroutines.
type Listener interface {
	OnTick(Tick)
	OnContract(ContractUpdate)
}
