// Package store provides an in-memory ledger.Store for tests and local runs.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cleanjamaica/rewards-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements ledger.TxStore. Every call takes the mutex; WithTx holds
// it for the whole callback, which serializes all writers.
type Memory struct {
	mu    sync.RWMutex
	state memoryState
}

type memoryState struct {
	users        map[ledger.UserID]ledger.User
	baselines    map[ledger.UserID]bool
	transactions []ledger.Transaction // index i holds ID i+1
	audit        []ledger.AuditEntry
}

var _ ledger.TxStore = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{state: memoryState{
		users:     make(map[ledger.UserID]ledger.User),
		baselines: make(map[ledger.UserID]bool),
	}}
}

func (m *Memory) view() *memoryView { return &memoryView{s: &m.state} }

func (m *Memory) GetUser(ctx context.Context, id ledger.UserID) (*ledger.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().GetUser(ctx, id)
}

func (m *Memory) SaveUser(ctx context.Context, u ledger.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().SaveUser(ctx, u)
}

func (m *Memory) MarkFirstLogin(ctx context.Context, id ledger.UserID, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().MarkFirstLogin(ctx, id, at)
}

func (m *Memory) LockUser(context.Context, ledger.UserID) error { return nil }

func (m *Memory) EnsureBaseline(ctx context.Context, id ledger.UserID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().EnsureBaseline(ctx, id)
}

func (m *Memory) HasBaseline(ctx context.Context, id ledger.UserID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().HasBaseline(ctx, id)
}

func (m *Memory) Append(ctx context.Context, tx ledger.Transaction) (ledger.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().Append(ctx, tx)
}

func (m *Memory) GetTransaction(ctx context.Context, id ledger.TransactionID) (*ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().GetTransaction(ctx, id)
}

func (m *Memory) LoadByUser(ctx context.Context, userID ledger.UserID) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().LoadByUser(ctx, userID)
}

func (m *Memory) ListByUser(ctx context.Context, userID ledger.UserID, page ledger.Page) ([]ledger.Transaction, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().ListByUser(ctx, userID, page)
}

func (m *Memory) FindReportAward(ctx context.Context, userID ledger.UserID, reportID string) (*ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().FindReportAward(ctx, userID, reportID)
}

func (m *Memory) SumRedemptions(ctx context.Context, userID ledger.UserID, statuses []ledger.Status, from, to time.Time) (ledger.Points, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().SumRedemptions(ctx, userID, statuses, from, to)
}

func (m *Memory) UpdateStatus(ctx context.Context, id ledger.TransactionID, from, to ledger.Status, processedBy ledger.UserID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().UpdateStatus(ctx, id, from, to, processedBy)
}

func (m *Memory) ListRedemptions(ctx context.Context, filter ledger.RedemptionFilter) ([]ledger.RedemptionView, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().ListRedemptions(ctx, filter)
}

func (m *Memory) AppendAudit(ctx context.Context, entry ledger.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().AppendAudit(ctx, entry)
}

func (m *Memory) ListAudit(ctx context.Context, txID ledger.TransactionID) ([]ledger.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().ListAudit(ctx, txID)
}

// =============================================================================
// TRANSACTIONS - snapshot + rollback
// =============================================================================

// WithTx executes fn while holding the write lock.
// For the memory store this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	if err := fn(m.view()); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

func (s *memoryState) clone() memoryState {
	c := memoryState{
		users:        make(map[ledger.UserID]ledger.User, len(s.users)),
		baselines:    make(map[ledger.UserID]bool, len(s.baselines)),
		transactions: append([]ledger.Transaction(nil), s.transactions...),
		audit:        append([]ledger.AuditEntry(nil), s.audit...),
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.baselines {
		c.baselines[k] = v
	}
	return c
}

// =============================================================================
// UNLOCKED VIEW - used directly inside WithTx
// =============================================================================

type memoryView struct {
	s *memoryState
}

func (v *memoryView) GetUser(_ context.Context, id ledger.UserID) (*ledger.User, error) {
	u, ok := v.s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (v *memoryView) SaveUser(_ context.Context, u ledger.User) error {
	if existing, ok := v.s.users[u.ID]; ok {
		u.CreatedAt = existing.CreatedAt
		if u.FirstLoginAt == nil {
			u.FirstLoginAt = existing.FirstLoginAt
		}
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	v.s.users[u.ID] = u
	return nil
}

func (v *memoryView) MarkFirstLogin(_ context.Context, id ledger.UserID, at time.Time) (bool, error) {
	u, ok := v.s.users[id]
	if !ok || u.FirstLoginAt != nil {
		return false, nil
	}
	t := at.UTC()
	u.FirstLoginAt = &t
	v.s.users[id] = u
	return true, nil
}

func (v *memoryView) LockUser(context.Context, ledger.UserID) error { return nil }

func (v *memoryView) EnsureBaseline(_ context.Context, id ledger.UserID) error {
	v.s.baselines[id] = true
	return nil
}

func (v *memoryView) HasBaseline(_ context.Context, id ledger.UserID) (bool, error) {
	return v.s.baselines[id], nil
}

func (v *memoryView) Append(_ context.Context, tx ledger.Transaction) (ledger.Transaction, error) {
	for _, existing := range v.s.transactions {
		if existing.UserID != tx.UserID || existing.Type != tx.Type {
			continue
		}
		if tx.Type == ledger.TxSignupBonus {
			return ledger.Transaction{}, ledger.ErrDuplicateAward
		}
		if tx.Type == ledger.TxReportResolved && existing.RelatedReportID == tx.RelatedReportID {
			return ledger.Transaction{}, ledger.ErrDuplicateAward
		}
	}

	tx.ID = ledger.TransactionID(len(v.s.transactions) + 1)
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	v.s.transactions = append(v.s.transactions, tx)
	return tx, nil
}

func (v *memoryView) GetTransaction(_ context.Context, id ledger.TransactionID) (*ledger.Transaction, error) {
	if id < 1 || int(id) > len(v.s.transactions) {
		return nil, nil
	}
	tx := v.s.transactions[id-1]
	return &tx, nil
}

func (v *memoryView) LoadByUser(_ context.Context, userID ledger.UserID) ([]ledger.Transaction, error) {
	var result []ledger.Transaction
	for _, tx := range v.s.transactions {
		if tx.UserID == userID {
			result = append(result, tx)
		}
	}
	return result, nil
}

func (v *memoryView) ListByUser(ctx context.Context, userID ledger.UserID, page ledger.Page) ([]ledger.Transaction, int, error) {
	all, _ := v.LoadByUser(ctx, userID)
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	return paginate(all, page), len(all), nil
}

func (v *memoryView) FindReportAward(_ context.Context, userID ledger.UserID, reportID string) (*ledger.Transaction, error) {
	for _, tx := range v.s.transactions {
		if tx.UserID == userID && tx.Type == ledger.TxReportResolved && tx.RelatedReportID == reportID {
			found := tx
			return &found, nil
		}
	}
	return nil, nil
}

func (v *memoryView) SumRedemptions(_ context.Context, userID ledger.UserID, statuses []ledger.Status, from, to time.Time) (ledger.Points, error) {
	var total ledger.Points
	for _, tx := range v.s.transactions {
		if tx.UserID != userID || tx.Type != ledger.TxRedemption || !hasStatus(statuses, tx.Status) {
			continue
		}
		if tx.CreatedAt.Before(from) || !tx.CreatedAt.Before(to) {
			continue
		}
		total += tx.Amount.Abs()
	}
	return total, nil
}

func (v *memoryView) UpdateStatus(_ context.Context, id ledger.TransactionID, from, to ledger.Status, processedBy ledger.UserID) error {
	if id < 1 || int(id) > len(v.s.transactions) {
		return ledger.ErrConcurrentModification
	}
	tx := &v.s.transactions[id-1]
	if tx.Status != from {
		return ledger.ErrConcurrentModification
	}
	tx.Status = to
	tx.ProcessedBy = processedBy
	return nil
}

func (v *memoryView) ListRedemptions(_ context.Context, filter ledger.RedemptionFilter) ([]ledger.RedemptionView, int, error) {
	var matched []ledger.RedemptionView
	for i := len(v.s.transactions) - 1; i >= 0; i-- {
		tx := v.s.transactions[i]
		if tx.Type != ledger.TxRedemption {
			continue
		}
		if filter.Status != "" && tx.Status != filter.Status {
			continue
		}
		if filter.CreatedBefore != nil && !tx.CreatedAt.Before(*filter.CreatedBefore) {
			continue
		}
		u := v.s.users[tx.UserID]
		matched = append(matched, ledger.RedemptionView{
			Transaction: tx,
			UserName:    u.Name,
			UserEmail:   u.Email,
			Community:   u.Community,
		})
	}
	return paginate(matched, filter.Page), len(matched), nil
}

func (v *memoryView) AppendAudit(_ context.Context, entry ledger.AuditEntry) error {
	v.s.audit = append(v.s.audit, entry)
	return nil
}

func (v *memoryView) ListAudit(_ context.Context, txID ledger.TransactionID) ([]ledger.AuditEntry, error) {
	var result []ledger.AuditEntry
	for _, e := range v.s.audit {
		if e.TransactionID == txID {
			result = append(result, e)
		}
	}
	return result, nil
}

// Helper functions

func paginate[T any](items []T, page ledger.Page) []T {
	if page.Offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if page.Limit > 0 && page.Offset+page.Limit < end {
		end = page.Offset + page.Limit
	}
	return items[page.Offset:end]
}

func hasStatus(statuses []ledger.Status, s ledger.Status) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}
