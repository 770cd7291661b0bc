package deriv

import "fmt"

// APIError is the error object Deriv attaches to a failed reply.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Response is the inbound envelope. Exactly one payload field is set,
// matching MsgType, unless Error is present.
type Response struct {
	MsgType string    `json:"msg_type"`
	Error   *APIError `json:"error,omitempty"`

	Authorize            *Authorize    `json:"authorize,omitempty"`
	Balance              *Balance      `json:"balance,omitempty"`
	Tick                 *Tick         `json:"tick,omitempty"`
	Proposal             *Proposal     `json:"proposal,omitempty"`
	Buy                  *Buy          `json:"buy,omitempty"`
	ProposalOpenContract *OpenContract `json:"proposal_open_contract,omitempty"`
	Sell                 *Sell         `json:"sell,omitempty"`
}

type Authorize struct {
	LoginID   string  `json:"loginid"`
	Balance   float64 `json:"balance"`
	Currency  string  `json:"currency"`
	IsVirtual int     `json:"is_virtual"`
}

type Balance struct {
	Balance  float64 `json:"balance"`
	Currency string  `json:"currency"`
}

type Tick struct {
	Symbol string  `json:"symbol"`
	Quote  float64 `json:"quote"`
	Epoch  int64   `json:"epoch"`
}

type Proposal struct {
	ID       string  `json:"id"`
	AskPrice float64 `json:"ask_price"`
	Payout   float64 `json:"payout"`
}

type Buy struct {
	ContractID    int64   `json:"contract_id"`
	BuyPrice      float64 `json:"buy_price"`
	TransactionID int64   `json:"transaction_id"`
}

// Contract statuses reported by proposal_open_contract.
const (
	StatusOpen = "open"
	StatusWon  = "won"
	StatusLost = "lost"
	StatusSold = "sold"
)

type OpenContract struct {
	ContractID int64   `json:"contract_id"`
	Status     string  `json:"status"`
	Profit     float64 `json:"profit"`
	BuyPrice   float64 `json:"buy_price"`
	ExitTick   float64 `json:"exit_tick"`
	IsSold     int     `json:"is_sold"`
}

type Sell struct {
	ContractID int64   `json:"contract_id"`
	SoldFor    float64 `json:"sold_for"`
}

// Outbound requests.

type AuthorizeRequest struct {
	Authorize string `json:"authorize"`
}

type BalanceRequest struct {
	Balance   int `json:"balance"`
	Subscribe int `json:"subscribe"`
}

type TicksRequest struct {
	Ticks     string `json:"ticks"`
	Subscribe int    `json:"subscribe"`
}

type ForgetAllRequest struct {
	ForgetAll string `json:"forget_all"`
}

type ProposalRequest struct {
	Proposal     int     `json:"proposal"`
	Amount       float64 `json:"amount"`
	Basis        string  `json:"basis"`
	ContractType string  `json:"contract_type"`
	Currency     string  `json:"currency"`
	Duration     int     `json:"duration"`
	DurationUnit string  `json:"duration_unit"`
	Symbol       string  `json:"symbol"`
	Barrier      string  `json:"barrier,omitempty"`
}

type BuyRequest struct {
	Buy   string  `json:"buy"`
	Price float64 `json:"price"`
}

type OpenContractRequest struct {
	ProposalOpenContract int   `json:"proposal_open_contract"`
	ContractID           int64 `json:"contract_id"`
	Subscribe            int   `json:"subscribe"`
}

type SellRequest struct {
	Sell  int64   `json:"sell"`
	Price float64 `json:"price"`
}

type PingRequest struct {
	Ping int `json:"ping"`
}
