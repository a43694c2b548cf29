package domain

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the user-facing intent behind a payment.
type TransactionType string

const (
	TransactionTypeSendMoney  TransactionType = "send_money"
	TransactionTypeBuyAirtime TransactionType = "buy_airtime"
	TransactionTypeBuyData    TransactionType = "buy_data"
	TransactionTypePayBill    TransactionType = "pay_bill"
	TransactionTypeGetLoan    TransactionType = "get_loan"
)

// Value implements the driver.Valuer interface for TransactionType.
func (tt TransactionType) Value() (driver.Value, error) {
	return string(tt), nil
}

// Scan implements the sql.Scanner interface for TransactionType.
func (tt *TransactionType) Scan(value interface{}) error {
	strVal, ok := value.(string)
	if !ok {
		bytesVal, ok := value.([]byte)
		if !ok {
			return fmt.Errorf("failed to scan TransactionType: value is not string or []byte, it is %T", value)
		}
		strVal = string(bytesVal)
	}
	*tt = TransactionType(strVal)
	switch *tt {
	case TransactionTypeSendMoney, TransactionTypeBuyAirtime, TransactionTypeBuyData,
		TransactionTypePayBill, TransactionTypeGetLoan:
		return nil
	default:
		return fmt.Errorf("unknown TransactionType value: %s", strVal)
	}
}

// IsValid reports whether tt is one of the known transaction types.
func (tt TransactionType) IsValid() bool {
	switch tt {
	case TransactionTypeSendMoney, TransactionTypeBuyAirtime, TransactionTypeBuyData,
		TransactionTypePayBill, TransactionTypeGetLoan:
		return true
	}
	return false
}

// DownstreamPhase returns the second-leg phase for this transaction type,
// executed after a successful CTM collection.
func (tt TransactionType) DownstreamPhase() PhaseKind {
	switch tt {
	case TransactionTypeBuyAirtime, TransactionTypeBuyData:
		return PhaseATP
	case TransactionTypePayBill:
		return PhaseBLP
	default:
		// send_money payouts and loan disbursements are both merchant-to-customer.
		return PhaseMTC
	}
}

// Network identifies the mobile network, card scheme, or biller a payment
// leg is routed through.
type Network string

const (
	NetworkMTN Network = "MTN" // MTN mobile money
	NetworkVOD Network = "VOD" // Vodafone Cash
	NetworkAIR Network = "AIR" // AirtelTigo Money

	NetworkMAS Network = "MAS" // MasterCard
	NetworkVIS Network = "VIS" // VISA
	NetworkBNK Network = "BNK" // Bank transfer

	NetworkGOT Network = "GOT" // GoTV
	NetworkDST Network = "DST" // DStv
	NetworkMPP Network = "MPP" // MTN prepaid data
	NetworkVPP Network = "VPP" // Vodafone prepaid data
	NetworkSTT Network = "STT" // Startimes
	NetworkVBB Network = "VBB" // Vodafone broadband

	NetworkABS Network = "ABS" // external biller system (ECG, schools, ...)
)

// PaymentMethod is how the payer funds the CTM leg.
type PaymentMethod string

const (
	PaymentMethodCard         PaymentMethod = "CARD"
	PaymentMethodMobileMoney  PaymentMethod = "MOBILE_MONEY"
	PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	PaymentMethodCash         PaymentMethod = "CASH"
)

// Payment is one end-to-end money movement initiated by a user. Amount and
// currency are fixed at creation; only the orchestrator mutates status.
// Rows are never deleted; terminal payments remain for audit.
type Payment struct {
	ID            string          `json:"id"` // UUID
	UserID        string          `json:"user_id"`
	Type          TransactionType `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	CurrencyCode  string          `json:"currency_code"`
	Status        PaymentStatus   `json:"status"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	Network       *Network        `json:"network,omitempty"`

	// Phone numbers: sender funds the CTM leg, receiver gets the downstream leg.
	SenderPhone   string  `json:"sender_phone"`
	ReceiverPhone *string `json:"receiver_phone,omitempty"`

	// Biller reference for ABS bill payments.
	ExtBillerRefID *string `json:"ext_biller_ref_id,omitempty"`

	// Gateway transaction ids per phase, set as each leg is initiated.
	CTMTransactionID      *string `json:"ctm_transaction_id,omitempty"`
	MTCTransactionID      *string `json:"mtc_transaction_id,omitempty"`
	ATPTransactionID      *string `json:"atp_transaction_id,omitempty"`
	BLPTransactionID      *string `json:"blp_transaction_id,omitempty"`
	ReversalTransactionID *string `json:"reversal_transaction_id,omitempty"`

	// Set when a reversal exhausts its retries; a human must reconcile.
	NeedsReconciliation bool `json:"needs_reconciliation"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GatewayTxnIDForPhase returns a pointer to the field tracking the gateway
// transaction id of the given phase.
func (p *Payment) GatewayTxnIDForPhase(phase PhaseKind) **string {
	switch phase {
	case PhaseCTM:
		return &p.CTMTransactionID
	case PhaseMTC:
		return &p.MTCTransactionID
	case PhaseATP:
		return &p.ATPTransactionID
	case PhaseBLP:
		return &p.BLPTransactionID
	default:
		return &p.ReversalTransactionID
	}
}
