package domain

import (
	"database/sql/driver"
	"fmt"
)

// PhaseKind is one leg of a payment executed against the external gateway.
type PhaseKind string

const (
	PhaseCTM      PhaseKind = "CTM"      // customer to merchant: funds collection
	PhaseMTC      PhaseKind = "MTC"      // merchant to customer: payout
	PhaseATP      PhaseKind = "ATP"      // airtime top-up
	PhaseBLP      PhaseKind = "BLP"      // bill payment
	PhaseReversal PhaseKind = "REVERSAL" // refund of the CTM debit
)

// PaymentStatus is the lifecycle state of a payment.
type PaymentStatus string

const (
	StatusPending PaymentStatus = "PENDING"

	StatusCTMProcessing PaymentStatus = "CTM_PROCESSING"
	StatusCTMSuccess    PaymentStatus = "CTM_SUCCESS"
	StatusCTMFailed     PaymentStatus = "CTM_FAILED"

	StatusMTCProcessing PaymentStatus = "MTC_PROCESSING"
	StatusMTCSuccess    PaymentStatus = "MTC_SUCCESS"
	StatusMTCFailed     PaymentStatus = "MTC_FAILED"

	StatusATPProcessing PaymentStatus = "ATP_PROCESSING"
	StatusATPSuccess    PaymentStatus = "ATP_SUCCESS"
	StatusATPFailed     PaymentStatus = "ATP_FAILED"

	StatusBLPProcessing PaymentStatus = "BLP_PROCESSING"
	StatusBLPSuccess    PaymentStatus = "BLP_SUCCESS"
	StatusBLPFailed     PaymentStatus = "BLP_FAILED"

	StatusReversalProcessing PaymentStatus = "REVERSAL_PROCESSING"
	StatusReversalSuccess    PaymentStatus = "REVERSAL_SUCCESS"
	StatusReversalFailed     PaymentStatus = "REVERSAL_FAILED"

	StatusSuccess PaymentStatus = "SUCCESS"
	StatusFailed  PaymentStatus = "FAILED"
)

// Value implements the driver.Valuer interface for PaymentStatus.
func (s PaymentStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// Scan implements the sql.Scanner interface for PaymentStatus.
func (s *PaymentStatus) Scan(value interface{}) error {
	strVal, ok := value.(string)
	if !ok {
		bytesVal, ok := value.([]byte)
		if !ok {
			return fmt.Errorf("failed to scan PaymentStatus: value is not string or []byte, it is %T", value)
		}
		strVal = string(bytesVal)
	}
	*s = PaymentStatus(strVal)
	if !s.IsValid() {
		return fmt.Errorf("unknown PaymentStatus value: %s", strVal)
	}
	return nil
}

// IsValid reports whether s is one of the known statuses.
func (s PaymentStatus) IsValid() bool {
	switch s {
	case StatusPending,
		StatusCTMProcessing, StatusCTMSuccess, StatusCTMFailed,
		StatusMTCProcessing, StatusMTCSuccess, StatusMTCFailed,
		StatusATPProcessing, StatusATPSuccess, StatusATPFailed,
		StatusBLPProcessing, StatusBLPSuccess, StatusBLPFailed,
		StatusReversalProcessing, StatusReversalSuccess, StatusReversalFailed,
		StatusSuccess, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions may occur from s.
func (s PaymentStatus) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// ProcessingStatus returns the in-flight status for a phase.
func ProcessingStatus(phase PhaseKind) PaymentStatus {
	switch phase {
	case PhaseCTM:
		return StatusCTMProcessing
	case PhaseMTC:
		return StatusMTCProcessing
	case PhaseATP:
		return StatusATPProcessing
	case PhaseBLP:
		return StatusBLPProcessing
	default:
		return StatusReversalProcessing
	}
}

// SuccessStatus returns the phase-completed status for a phase.
func SuccessStatus(phase PhaseKind) PaymentStatus {
	switch phase {
	case PhaseCTM:
		return StatusCTMSuccess
	case PhaseMTC:
		return StatusMTCSuccess
	case PhaseATP:
		return StatusATPSuccess
	case PhaseBLP:
		return StatusBLPSuccess
	default:
		return StatusReversalSuccess
	}
}

// FailedStatus returns the phase-failed status for a phase.
func FailedStatus(phase PhaseKind) PaymentStatus {
	switch phase {
	case PhaseCTM:
		return StatusCTMFailed
	case PhaseMTC:
		return StatusMTCFailed
	case PhaseATP:
		return StatusATPFailed
	case PhaseBLP:
		return StatusBLPFailed
	default:
		return StatusReversalFailed
	}
}

// Phase returns the phase a non-terminal, non-pending status belongs to.
func (s PaymentStatus) Phase() (PhaseKind, bool) {
	switch s {
	case StatusCTMProcessing, StatusCTMSuccess, StatusCTMFailed:
		return PhaseCTM, true
	case StatusMTCProcessing, StatusMTCSuccess, StatusMTCFailed:
		return PhaseMTC, true
	case StatusATPProcessing, StatusATPSuccess, StatusATPFailed:
		return PhaseATP, true
	case StatusBLPProcessing, StatusBLPSuccess, StatusBLPFailed:
		return PhaseBLP, true
	case StatusReversalProcessing, StatusReversalSuccess, StatusReversalFailed:
		return PhaseReversal, true
	}
	return "", false
}

// CanTransition reports whether from -> to is a legal move for a payment of
// the given type. The table is exhaustive; anything not listed is illegal.
func CanTransition(from, to PaymentStatus, txType TransactionType) bool {
	downstream := txType.DownstreamPhase()

	switch from {
	case StatusPending:
		// Cancellation is the only way PENDING reaches FAILED directly.
		return to == StatusCTMProcessing || to == StatusFailed
	case StatusCTMProcessing:
		return to == StatusCTMSuccess || to == StatusCTMFailed
	case StatusCTMFailed:
		// No funds moved; nothing to reverse.
		return to == StatusFailed
	case StatusCTMSuccess:
		return to == ProcessingStatus(downstream)
	case StatusMTCProcessing:
		return downstream == PhaseMTC && (to == StatusMTCSuccess || to == StatusMTCFailed)
	case StatusATPProcessing:
		return downstream == PhaseATP && (to == StatusATPSuccess || to == StatusATPFailed)
	case StatusBLPProcessing:
		return downstream == PhaseBLP && (to == StatusBLPSuccess || to == StatusBLPFailed)
	case StatusMTCSuccess, StatusATPSuccess, StatusBLPSuccess:
		return to == StatusSuccess
	case StatusMTCFailed, StatusATPFailed, StatusBLPFailed:
		// Funds already taken from the payer must be returned.
		return to == StatusReversalProcessing
	case StatusReversalProcessing:
		return to == StatusReversalSuccess || to == StatusReversalFailed
	case StatusReversalSuccess, StatusReversalFailed:
		// The original intent still failed even when the refund landed.
		return to == StatusFailed
	case StatusSuccess, StatusFailed:
		return false
	}
	return false
}
