package trade

// Status is the provider's trade state enum.
type Status string

const (
	StatusWaitBuyerPay Status = "WAIT_BUYER_PAY"
	StatusSuccess      Status = "TRADE_SUCCESS"
	StatusFinished     Status = "TRADE_FINISHED"
	StatusClosed       Status = "TRADE_CLOSED"
)

// Provider response codes.
const (
	CodeSuccess          = "10000"
	CodeBusinessFailed   = "40004"
	SubCodeTradeNotExist = "ACQ.TRADE_NOT_EXIST"
)

// Observation is a read-only snapshot of the provider's view of a trade.
// It is the single source of truth every channel reconciles orders against.
type Observation struct {
	OutTradeNo  string
	TradeNo     string
	TradeStatus Status
	TotalAmount string

	Code    string
	SubCode string
	Message string
}

// Succeeded reports whether the provider answered the query itself.
func (o Observation) Succeeded() bool {
	return o.Code == CodeSuccess
}

// TradeNotFound reports the specific code pair meaning the trade was never
// created remotely. This is normal for orders the buyer abandoned before
// reaching the provider and is not an error.
func (o Observation) TradeNotFound() bool {
	return o.Code == CodeBusinessFailed && o.SubCode == SubCodeTradeNotExist
}

// Settled reports a successful payment state.
func (o Observation) Settled() bool {
	return o.TradeStatus == StatusSuccess || o.TradeStatus == StatusFinished
}

// ErrorMessage returns the most specific provider error text available.
func (o Observation) ErrorMessage() string {
	if o.SubCode != "" && o.Message != "" {
		return o.SubCode + ": " + o.Message
	}
	if o.Message != "" {
		return o.Message
	}
	return o.SubCode
}
