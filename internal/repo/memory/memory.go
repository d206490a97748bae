// Package memory is an in-process repo.Store. Transactions are serialized on
// one mutex and work on a cloned state that replaces the live one only when
// the callback succeeds.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/Alijeyrad/simorq_billing/internal/billing"
	"github.com/Alijeyrad/simorq_billing/internal/repo"
)

type seqKey struct {
	clinic uuid.UUID
	year   int
}

type state struct {
	bills      map[uuid.UUID]billing.Bill
	items      map[uuid.UUID][]billing.BillItem
	records    map[uuid.UUID][]billing.PaymentRecord
	requests   map[uuid.UUID]billing.RefundRequest
	reqOrder   []uuid.UUID
	sequences  map[seqKey]int64
	billNumber map[string]uuid.UUID
}

func newState() *state {
	return &state{
		bills:      map[uuid.UUID]billing.Bill{},
		items:      map[uuid.UUID][]billing.BillItem{},
		records:    map[uuid.UUID][]billing.PaymentRecord{},
		requests:   map[uuid.UUID]billing.RefundRequest{},
		sequences:  map[seqKey]int64{},
		billNumber: map[string]uuid.UUID{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.bills {
		c.bills[k] = v
	}
	for k, v := range s.items {
		c.items[k] = slices.Clone(v)
	}
	for k, v := range s.records {
		c.records[k] = slices.Clone(v)
	}
	for k, v := range s.requests {
		v.Items = slices.Clone(v.Items)
		c.requests[k] = v
	}
	c.reqOrder = slices.Clone(s.reqOrder)
	for k, v := range s.sequences {
		c.sequences[k] = v
	}
	for k, v := range s.billNumber {
		c.billNumber[k] = v
	}
	return c
}

// Store implements repo.Store in memory.
type Store struct {
	mu sync.RWMutex
	st *state
}

var _ repo.Store = (*Store)(nil)

func New() *Store {
	return &Store{st: newState()}
}

func (s *Store) Close() error { return nil }

// Tx runs fn against a private copy of the state and swaps it in on success.
func (s *Store) Tx(ctx context.Context, fn func(ctx context.Context, tx repo.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(ctx, &tx{reader{work}}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.st = work
	return nil
}

func (s *Store) read() reader {
	return reader{s.st}
}

func (s *Store) GetBill(ctx context.Context, id uuid.UUID) (*billing.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetBill(ctx, id)
}

func (s *Store) ListBills(ctx context.Context, f repo.BillFilter) ([]billing.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListBills(ctx, f)
}

func (s *Store) ListItems(ctx context.Context, billID uuid.UUID) ([]billing.BillItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListItems(ctx, billID)
}

func (s *Store) ItemsForBills(ctx context.Context, billIDs []uuid.UUID) (map[uuid.UUID][]billing.BillItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ItemsForBills(ctx, billIDs)
}

func (s *Store) ListPaymentRecords(ctx context.Context, billID uuid.UUID) ([]billing.PaymentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListPaymentRecords(ctx, billID)
}

func (s *Store) PaymentRecordsBetween(ctx context.Context, clinicID uuid.UUID, from, to time.Time) ([]billing.PaymentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().PaymentRecordsBetween(ctx, clinicID, from, to)
}

func (s *Store) BillsDatedBetween(ctx context.Context, clinicID uuid.UUID, from, to time.Time) ([]billing.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().BillsDatedBetween(ctx, clinicID, from, to)
}

func (s *Store) GetRefundRequest(ctx context.Context, id uuid.UUID) (*billing.RefundRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetRefundRequest(ctx, id)
}

func (s *Store) ListRefundRequests(ctx context.Context, billID uuid.UUID) ([]billing.RefundRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListRefundRequests(ctx, billID)
}

func (s *Store) ListRefunds(ctx context.Context, f repo.RefundFilter) ([]billing.RefundRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListRefunds(ctx, f)
}

// ---------------------------------------------------------------------------
// reader
// ---------------------------------------------------------------------------

type reader struct {
	st *state
}

func (r reader) GetBill(_ context.Context, id uuid.UUID) (*billing.Bill, error) {
	b, ok := r.st.bills[id]
	if !ok {
		return nil, billing.ErrBillNotFound
	}
	return &b, nil
}

func (r reader) ListBills(_ context.Context, f repo.BillFilter) ([]billing.Bill, error) {
	asOf := f.AsOf
	if asOf.IsZero() {
		asOf = time.Now()
	}
	out := lo.Filter(lo.Values(r.st.bills), func(b billing.Bill, _ int) bool {
		if f.ClinicID != uuid.Nil && b.ClinicID != f.ClinicID {
			return false
		}
		if f.PatientID != nil && b.PatientID != *f.PatientID {
			return false
		}
		if f.PaymentStatus != nil && billing.DerivePaymentStatus(b.PaidAmount, b.BalanceAmount, b.DueDate, asOf) != *f.PaymentStatus {
			return false
		}
		if f.From != nil && b.BillDate.Before(*f.From) {
			return false
		}
		if f.To != nil && !b.BillDate.Before(*f.To) {
			return false
		}
		return true
	})
	slices.SortFunc(out, func(a, b billing.Bill) int {
		if c := b.BillDate.Compare(a.BillDate); c != 0 {
			return c
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return page(out, f.Limit, f.Offset), nil
}

func (r reader) ListItems(_ context.Context, billID uuid.UUID) ([]billing.BillItem, error) {
	return slices.Clone(r.st.items[billID]), nil
}

func (r reader) ItemsForBills(_ context.Context, billIDs []uuid.UUID) (map[uuid.UUID][]billing.BillItem, error) {
	out := make(map[uuid.UUID][]billing.BillItem, len(billIDs))
	for _, id := range lo.Uniq(billIDs) {
		if items, ok := r.st.items[id]; ok {
			out[id] = slices.Clone(items)
		}
	}
	return out, nil
}

func (r reader) ListPaymentRecords(_ context.Context, billID uuid.UUID) ([]billing.PaymentRecord, error) {
	return slices.Clone(r.st.records[billID]), nil
}

func (r reader) PaymentRecordsBetween(_ context.Context, clinicID uuid.UUID, from, to time.Time) ([]billing.PaymentRecord, error) {
	var out []billing.PaymentRecord
	for _, recs := range r.st.records {
		for _, rec := range recs {
			if rec.ClinicID == clinicID && !rec.PaymentDate.Before(from) && rec.PaymentDate.Before(to) {
				out = append(out, rec)
			}
		}
	}
	slices.SortFunc(out, func(a, b billing.PaymentRecord) int {
		return a.PaymentDate.Compare(b.PaymentDate)
	})
	return out, nil
}

func (r reader) BillsDatedBetween(_ context.Context, clinicID uuid.UUID, from, to time.Time) ([]billing.Bill, error) {
	out := lo.Filter(lo.Values(r.st.bills), func(b billing.Bill, _ int) bool {
		return b.ClinicID == clinicID && !b.BillDate.Before(from) && b.BillDate.Before(to)
	})
	slices.SortFunc(out, func(a, b billing.Bill) int { return a.BillDate.Compare(b.BillDate) })
	return out, nil
}

func (r reader) GetRefundRequest(_ context.Context, id uuid.UUID) (*billing.RefundRequest, error) {
	rr, ok := r.st.requests[id]
	if !ok {
		return nil, billing.ErrRefundNotFound
	}
	rr.Items = slices.Clone(rr.Items)
	return &rr, nil
}

func (r reader) ListRefundRequests(_ context.Context, billID uuid.UUID) ([]billing.RefundRequest, error) {
	var out []billing.RefundRequest
	for _, id := range r.st.reqOrder {
		rr := r.st.requests[id]
		if rr.BillID == billID {
			rr.Items = slices.Clone(rr.Items)
			out = append(out, rr)
		}
	}
	return out, nil
}

func (r reader) ListRefunds(_ context.Context, f repo.RefundFilter) ([]billing.RefundRequest, error) {
	var out []billing.RefundRequest
	for i := len(r.st.reqOrder) - 1; i >= 0; i-- {
		rr := r.st.requests[r.st.reqOrder[i]]
		if f.ClinicID != uuid.Nil && rr.ClinicID != f.ClinicID {
			continue
		}
		if f.BillID != nil && rr.BillID != *f.BillID {
			continue
		}
		if f.Status != nil && rr.Status != *f.Status {
			continue
		}
		rr.Items = slices.Clone(rr.Items)
		out = append(out, rr)
	}
	return page(out, f.Limit, f.Offset), nil
}

func page[T any](in []T, limit, offset int) []T {
	limit = repo.NormalizeLimit(limit)
	if offset < 0 {
		offset = 0
	}
	if offset >= len(in) {
		return nil
	}
	end := min(offset+limit, len(in))
	return in[offset:end]
}

// ---------------------------------------------------------------------------
// tx
// ---------------------------------------------------------------------------

type tx struct {
	reader
}

func (t *tx) LockBill(ctx context.Context, id uuid.UUID) (*billing.Bill, error) {
	// the store mutex already serializes every transaction
	return t.GetBill(ctx, id)
}

func (t *tx) NextBillNumber(_ context.Context, clinicID uuid.UUID, year int) (int64, error) {
	k := seqKey{clinicID, year}
	t.st.sequences[k]++
	return t.st.sequences[k], nil
}

func (t *tx) CreateBill(_ context.Context, b *billing.Bill, items []billing.BillItem) error {
	if _, ok := t.st.bills[b.ID]; ok {
		return fmt.Errorf("bill %s already exists", b.ID)
	}
	if _, ok := t.st.billNumber[b.BillNumber]; ok {
		return fmt.Errorf("bill number %s already exists", b.BillNumber)
	}
	t.st.bills[b.ID] = *b
	t.st.billNumber[b.BillNumber] = b.ID
	t.st.items[b.ID] = slices.Clone(items)
	return nil
}

func (t *tx) AddItems(_ context.Context, billID uuid.UUID, items []billing.BillItem) error {
	if _, ok := t.st.bills[billID]; !ok {
		return billing.ErrBillNotFound
	}
	t.st.items[billID] = append(t.st.items[billID], items...)
	return nil
}

func (t *tx) SaveAggregates(_ context.Context, billID uuid.UUID, a billing.Aggregates, at time.Time) error {
	b, ok := t.st.bills[billID]
	if !ok {
		return billing.ErrBillNotFound
	}
	b.Aggregates = a
	b.UpdatedAt = at
	t.st.bills[billID] = b
	return nil
}

func (t *tx) UpdateItemRefunds(_ context.Context, items []billing.BillItem) error {
	for _, upd := range items {
		list := t.st.items[upd.BillID]
		idx := slices.IndexFunc(list, func(it billing.BillItem) bool { return it.ID == upd.ID })
		if idx < 0 {
			return fmt.Errorf("bill item %s not found", upd.ID)
		}
		list[idx].RefundedQuantity = upd.RefundedQuantity
		list[idx].RefundedAmount = upd.RefundedAmount
	}
	return nil
}

func (t *tx) AppendPaymentRecord(_ context.Context, r *billing.PaymentRecord) error {
	if _, ok := t.st.bills[r.BillID]; !ok {
		return billing.ErrBillNotFound
	}
	t.st.records[r.BillID] = append(t.st.records[r.BillID], *r)
	return nil
}

func (t *tx) CreateRefundRequest(_ context.Context, r *billing.RefundRequest) error {
	if _, ok := t.st.requests[r.ID]; ok {
		return fmt.Errorf("refund request %s already exists", r.ID)
	}
	cp := *r
	cp.Items = slices.Clone(r.Items)
	t.st.requests[r.ID] = cp
	t.st.reqOrder = append(t.st.reqOrder, r.ID)
	return nil
}

func (t *tx) UpdateRefundRequest(_ context.Context, r *billing.RefundRequest) error {
	cur, ok := t.st.requests[r.ID]
	if !ok {
		return billing.ErrRefundNotFound
	}
	cp := *r
	// items are fixed at creation
	cp.Items = cur.Items
	t.st.requests[r.ID] = cp
	return nil
}
