package report

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/Alijeyrad/simorq_billing/internal/billing"
	"github.com/Alijeyrad/simorq_billing/internal/repo"
	"github.com/Alijeyrad/simorq_billing/pkg/money"
	"github.com/Alijeyrad/simorq_billing/pkg/observability"
)

const (
	DateLayout = "2006-01-02"

	DefaultPeakHours = 3
	MaxPeriodDays    = 92
)

var (
	ErrPeriodOrder  = billing.NewValidationError("to", "must not be before from")
	ErrPeriodLength = billing.NewValidationError("to", fmt.Sprintf("period is limited to %d days", MaxPeriodDays))
)

// ---------------------------------------------------------------------------
// DTOs
// ---------------------------------------------------------------------------

type MethodBreakdown struct {
	Method     billing.PaymentMethod `json:"method"`
	Amount     money.Amount          `json:"amount"`
	Count      int                   `json:"count"`
	Percentage decimal.Decimal       `json:"percentage"`
}

type DailySummary struct {
	ClinicID         uuid.UUID         `json:"clinic_id"`
	Date             string            `json:"date"`
	Total            money.Amount      `json:"total"`
	TransactionCount int               `json:"transaction_count"`
	Breakdown        []MethodBreakdown `json:"breakdown"`
	RefundsTotal     money.Amount      `json:"refunds_total"`
	NetCollected     money.Amount      `json:"net_collected"`
}

type CategoryTotal struct {
	ItemType   billing.ItemType `json:"item_type"`
	Amount     money.Amount     `json:"amount"`
	Percentage decimal.Decimal  `json:"percentage"`
}

type HourBucket struct {
	Hour   int          `json:"hour"`
	Amount money.Amount `json:"amount"`
	Count  int          `json:"count"`
}

type EnhancedReport struct {
	DailySummary
	AverageTransactionValue money.Amount    `json:"average_transaction_value"`
	OutstandingBalance      money.Amount    `json:"outstanding_balance"`
	ServiceCategories       []CategoryTotal `json:"service_categories"`
	HourlyBreakdown         []HourBucket    `json:"hourly_breakdown"`
	PeakHours               []HourBucket    `json:"peak_hours"`
}

type DayTotal struct {
	Date             string       `json:"date"`
	Total            money.Amount `json:"total"`
	TransactionCount int          `json:"transaction_count"`
	RefundsTotal     money.Amount `json:"refunds_total"`
}

type PeriodSummary struct {
	ClinicID         uuid.UUID         `json:"clinic_id"`
	From             string            `json:"from"`
	To               string            `json:"to"`
	Total            money.Amount      `json:"total"`
	TransactionCount int               `json:"transaction_count"`
	RefundsTotal     money.Amount      `json:"refunds_total"`
	NetCollected     money.Amount      `json:"net_collected"`
	Days             []DayTotal        `json:"days"`
	Breakdown        []MethodBreakdown `json:"breakdown"`
}

type Config struct {
	// Location is the clinic time zone that decides where a day starts.
	Location  *time.Location
	PeakHours int
}

// ---------------------------------------------------------------------------
// Interface
// ---------------------------------------------------------------------------

type Service interface {
	DailySummary(ctx context.Context, clinicID uuid.UUID, date time.Time) (*DailySummary, error)
	EnhancedReport(ctx context.Context, clinicID uuid.UUID, date time.Time) (*EnhancedReport, error)
	PeriodSummary(ctx context.Context, clinicID uuid.UUID, from, to time.Time) (*PeriodSummary, error)
}

// ---------------------------------------------------------------------------
// Implementation
// ---------------------------------------------------------------------------

type reportService struct {
	store repo.Reader
	cfg   Config
}

// New returns the uncached reporter. It only reads from store.
func New(store repo.Reader, cfg Config) Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.PeakHours <= 0 {
		cfg.PeakHours = DefaultPeakHours
	}
	return &reportService{store: store, cfg: cfg}
}

func (s *reportService) DailySummary(ctx context.Context, clinicID uuid.UUID, date time.Time) (*DailySummary, error) {
	ctx, span := observability.StartSpan(ctx, "report.DailySummary", attribute.String("clinic.id", clinicID.String()))
	defer span.End()

	from, to := s.day(date)
	records, err := s.store.PaymentRecordsBetween(ctx, clinicID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load payment records: %w", err)
	}
	return summarize(clinicID, from, records), nil
}

func (s *reportService) EnhancedReport(ctx context.Context, clinicID uuid.UUID, date time.Time) (*EnhancedReport, error) {
	ctx, span := observability.StartSpan(ctx, "report.EnhancedReport", attribute.String("clinic.id", clinicID.String()))
	defer span.End()

	from, to := s.day(date)

	var (
		records []billing.PaymentRecord
		bills   []billing.Bill
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		records, err = s.store.PaymentRecordsBetween(gCtx, clinicID, from, to)
		if err != nil {
			return fmt.Errorf("load payment records: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		bills, err = s.store.BillsDatedBetween(gCtx, clinicID, from, to)
		if err != nil {
			return fmt.Errorf("load bills: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	payments := lo.Filter(records, func(r billing.PaymentRecord, _ int) bool {
		return r.RecordType == billing.RecordPayment
	})
	billIDs := lo.Uniq(lo.Map(payments, func(r billing.PaymentRecord, _ int) uuid.UUID { return r.BillID }))
	items, err := s.store.ItemsForBills(ctx, billIDs)
	if err != nil {
		return nil, fmt.Errorf("load bill items: %w", err)
	}

	sum := summarize(clinicID, from, records)
	r := &EnhancedReport{
		DailySummary:            *sum,
		AverageTransactionValue: sum.Total.DivInt(int64(sum.TransactionCount)),
		OutstandingBalance: lo.Reduce(bills, func(acc money.Amount, b billing.Bill, _ int) money.Amount {
			return acc.Add(b.BalanceAmount)
		}, money.Zero),
		ServiceCategories: categories(payments, items, sum.Total),
		HourlyBreakdown:   hourly(payments, s.cfg.Location),
	}
	r.PeakHours = peakHours(r.HourlyBreakdown, s.cfg.PeakHours)
	return r, nil
}

func (s *reportService) PeriodSummary(ctx context.Context, clinicID uuid.UUID, from, to time.Time) (*PeriodSummary, error) {
	ctx, span := observability.StartSpan(ctx, "report.PeriodSummary", attribute.String("clinic.id", clinicID.String()))
	defer span.End()

	start, _ := s.day(from)
	last, end := s.day(to)
	if last.Before(start) {
		return nil, ErrPeriodOrder
	}
	days := 0
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		days++
	}
	if days > MaxPeriodDays {
		return nil, ErrPeriodLength
	}

	records, err := s.store.PaymentRecordsBetween(ctx, clinicID, start, end)
	if err != nil {
		return nil, fmt.Errorf("load payment records: %w", err)
	}

	byDay := lo.GroupBy(records, func(r billing.PaymentRecord) string {
		return r.PaymentDate.In(s.cfg.Location).Format(DateLayout)
	})

	total := summarize(clinicID, start, records)
	out := &PeriodSummary{
		ClinicID:         clinicID,
		From:             start.Format(DateLayout),
		To:               last.Format(DateLayout),
		Total:            total.Total,
		TransactionCount: total.TransactionCount,
		RefundsTotal:     total.RefundsTotal,
		NetCollected:     total.NetCollected,
		Breakdown:        total.Breakdown,
		Days:             make([]DayTotal, 0, days),
	}
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		key := d.Format(DateLayout)
		ds := summarize(clinicID, d, byDay[key])
		out.Days = append(out.Days, DayTotal{
			Date:             key,
			Total:            ds.Total,
			TransactionCount: ds.TransactionCount,
			RefundsTotal:     ds.RefundsTotal,
		})
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

// day returns [start, next start) of the clinic-local calendar day of t.
func (s *reportService) day(t time.Time) (time.Time, time.Time) {
	y, m, d := t.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, s.cfg.Location)
	return start, start.AddDate(0, 0, 1)
}

// ParseDate reads a YYYY-MM-DD calendar date.
func ParseDate(field, s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, billing.NewValidationError(field, "expected YYYY-MM-DD")
	}
	return t, nil
}

func summarize(clinicID uuid.UUID, day time.Time, records []billing.PaymentRecord) *DailySummary {
	out := &DailySummary{
		ClinicID:  clinicID,
		Date:      day.Format(DateLayout),
		Breakdown: []MethodBreakdown{},
	}

	byMethod := map[billing.PaymentMethod]*MethodBreakdown{}
	for _, r := range records {
		switch r.RecordType {
		case billing.RecordPayment:
			out.Total = out.Total.Add(r.Amount)
			out.TransactionCount++
			mb, ok := byMethod[r.PaymentMethod]
			if !ok {
				mb = &MethodBreakdown{Method: r.PaymentMethod}
				byMethod[r.PaymentMethod] = mb
			}
			mb.Amount = mb.Amount.Add(r.Amount)
			mb.Count++
		case billing.RecordRefund:
			out.RefundsTotal = out.RefundsTotal.Add(r.Amount.Abs())
		}
	}
	out.NetCollected = out.Total.Sub(out.RefundsTotal)

	for _, mb := range byMethod {
		mb.Percentage = mb.Amount.Percent(out.Total)
		out.Breakdown = append(out.Breakdown, *mb)
	}
	slices.SortFunc(out.Breakdown, func(a, b MethodBreakdown) int {
		if c := b.Amount.Cmp(a.Amount); c != 0 {
			return c
		}
		return cmp.Compare(a.Method, b.Method)
	})
	return out
}

// categories spreads every payment over its bill's items in proportion to
// their line totals and buckets the shares by item type.
func categories(payments []billing.PaymentRecord, items map[uuid.UUID][]billing.BillItem, total money.Amount) []CategoryTotal {
	byType := map[billing.ItemType]money.Amount{}
	for _, p := range payments {
		lines := items[p.BillID]
		if len(lines) == 0 {
			byType[billing.ItemOther] = byType[billing.ItemOther].Add(p.Amount)
			continue
		}
		weights := lo.Map(lines, func(it billing.BillItem, _ int) money.Amount { return it.TotalPrice })
		for i, share := range p.Amount.Allocate(weights) {
			if share.IsZero() {
				continue
			}
			t := lines[i].ItemType
			byType[t] = byType[t].Add(share)
		}
	}

	out := make([]CategoryTotal, 0, len(byType))
	for t, a := range byType {
		out = append(out, CategoryTotal{ItemType: t, Amount: a, Percentage: a.Percent(total)})
	}
	slices.SortFunc(out, func(a, b CategoryTotal) int {
		if c := b.Amount.Cmp(a.Amount); c != 0 {
			return c
		}
		return cmp.Compare(a.ItemType, b.ItemType)
	})
	return out
}

func hourly(payments []billing.PaymentRecord, loc *time.Location) []HourBucket {
	out := make([]HourBucket, 24)
	for h := range out {
		out[h].Hour = h
	}
	for _, p := range payments {
		h := p.PaymentDate.In(loc).Hour()
		out[h].Amount = out[h].Amount.Add(p.Amount)
		out[h].Count++
	}
	return out
}

func peakHours(buckets []HourBucket, n int) []HourBucket {
	busy := lo.Filter(buckets, func(b HourBucket, _ int) bool { return b.Count > 0 })
	slices.SortFunc(busy, func(a, b HourBucket) int {
		if c := b.Amount.Cmp(a.Amount); c != 0 {
			return c
		}
		return cmp.Compare(a.Hour, b.Hour)
	})
	if len(busy) > n {
		busy = busy[:n]
	}
	return busy
}
