package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/autobus/autobus-backend/internal/payment_service/domain"
	"github.com/autobus/autobus-backend/internal/payment_service/repository"
)

// memLedger is an in-memory PaymentRepository with real compare-and-set
// semantics, so orchestration tests exercise the same conflict paths as the
// postgres implementation.
type memLedger struct {
	mu       sync.Mutex
	payments map[string]*domain.Payment

	// beforeCAS, when set, runs inside the lock before each compare-and-set.
	// Tests use it to move a payment out from under the orchestrator.
	beforeCAS func(id string)
}

func newMemLedger() *memLedger {
	return &memLedger{payments: make(map[string]*domain.Payment)}
}

func (m *memLedger) Create(_ context.Context, p *domain.Payment) (*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *p
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	m.payments[cp.ID] = &cp

	out := cp
	return &out, nil
}

func (m *memLedger) GetByID(_ context.Context, id string) (*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.payments[id]
	if !ok {
		return nil, repository.ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memLedger) GetByUserID(_ context.Context, userID string, limit, offset int) ([]domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Payment
	for _, p := range m.payments {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *memLedger) GetByGatewayTxnID(_ context.Context, exttrid string) (*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.payments {
		for _, id := range []*string{p.CTMTransactionID, p.MTCTransactionID, p.ATPTransactionID, p.BLPTransactionID, p.ReversalTransactionID} {
			if id != nil && *id == exttrid {
				cp := *p
				return &cp, nil
			}
		}
	}
	return nil, repository.ErrPaymentNotFound
}

func (m *memLedger) ReadStatus(_ context.Context, id string) (domain.PaymentStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.payments[id]
	if !ok {
		return "", repository.ErrPaymentNotFound
	}
	return p.Status, nil
}

func (m *memLedger) CompareAndSetStatus(_ context.Context, id string, expected, next domain.PaymentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.beforeCAS != nil {
		m.beforeCAS(id)
	}
	p, ok := m.payments[id]
	if !ok {
		return repository.ErrPaymentNotFound
	}
	if p.Status != expected {
		return repository.ErrStatusConflict
	}
	p.Status = next
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memLedger) AcquirePending(_ context.Context, staleBefore time.Time, limit int) ([]domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Payment
	for _, p := range m.payments {
		if len(out) >= limit {
			break
		}
		if p.Status == domain.StatusPending {
			out = append(out, *p)
			continue
		}
		if !p.Status.IsTerminal() && p.UpdatedAt.Before(staleBefore) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memLedger) SetGatewayTxnID(_ context.Context, id string, phase domain.PhaseKind, gatewayTxnID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.payments[id]
	if !ok {
		return repository.ErrPaymentNotFound
	}
	txn := gatewayTxnID
	*p.GatewayTxnIDForPhase(phase) = &txn
	return nil
}

func (m *memLedger) MarkNeedsReconciliation(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.payments[id]
	if !ok {
		return repository.ErrPaymentNotFound
	}
	p.NeedsReconciliation = true
	return nil
}

func (m *memLedger) statusOf(id string) domain.PaymentStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.payments[id].Status
}

func (m *memLedger) get(id string) domain.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.payments[id]
}

// memAttempts is an in-memory AttemptRepository.
type memAttempts struct {
	mu       sync.Mutex
	attempts []*domain.PhaseAttempt
}

func newMemAttempts() *memAttempts {
	return &memAttempts{}
}

func (m *memAttempts) Append(_ context.Context, a *domain.PhaseAttempt) (*domain.PhaseAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *a
	cp.ID = uuid.NewString()
	cp.Outcome = domain.AttemptPending
	cp.StartedAt = time.Now().UTC()
	m.attempts = append(m.attempts, &cp)

	out := cp
	return &out, nil
}

func (m *memAttempts) Complete(_ context.Context, id string, outcome domain.AttemptOutcome, gatewayCode, gatewayMessage *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.attempts {
		if a.ID == id {
			now := time.Now().UTC()
			a.Outcome = outcome
			a.GatewayCode = gatewayCode
			a.GatewayMessage = gatewayMessage
			a.CompletedAt = &now
			return nil
		}
	}
	return repository.ErrAttemptNotFound
}

func (m *memAttempts) NextAttemptNumber(_ context.Context, paymentID string, phase domain.PhaseKind) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	max := 0
	for _, a := range m.attempts {
		if a.PaymentID == paymentID && a.Phase == phase && a.AttemptNumber > max {
			max = a.AttemptNumber
		}
	}
	return max + 1, nil
}

func (m *memAttempts) ListByPayment(_ context.Context, paymentID string) ([]domain.PhaseAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.PhaseAttempt
	for _, a := range m.attempts {
		if a.PaymentID == paymentID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memAttempts) GetByIdempotencyKey(_ context.Context, key string) (*domain.PhaseAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.attempts {
		if a.IdempotencyKey == key {
			cp := *a
			return &cp, nil
		}
	}
	return nil, repository.ErrAttemptNotFound
}

func (m *memAttempts) byPhase(paymentID string, phase domain.PhaseKind) []domain.PhaseAttempt {
	out, _ := m.ListByPayment(context.Background(), paymentID)
	var filtered []domain.PhaseAttempt
	for _, a := range out {
		if a.Phase == phase {
			filtered = append(filtered, a)
		}
	}
	return filtered
}

// recordingNotifier captures transition notifications in commit order.
type recordingNotifier struct {
	mu     sync.Mutex
	events []notified
}

type notified struct {
	status  domain.PaymentStatus
	message string
}

func (r *recordingNotifier) NotifyTransition(_ context.Context, payment *domain.Payment, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, notified{status: payment.Status, message: message})
}

func (r *recordingNotifier) statuses() []domain.PaymentStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.PaymentStatus, len(r.events))
	for i, e := range r.events {
		out[i] = e.status
	}
	return out
}
