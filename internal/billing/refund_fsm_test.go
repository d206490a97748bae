package billing

import (
	"errors"
	"testing"

	"github.com/Alijeyrad/simorq_billing/pkg/money"
)

func TestCheckTransition(t *testing.T) {
	tests := []struct {
		from      RequestStatus
		to        RequestStatus
		directPay bool
		ok        bool
	}{
		{RequestDraft, RequestPendingApproval, false, true},
		{RequestDraft, RequestApproved, false, true},
		{RequestDraft, RequestRejected, false, true},
		{RequestDraft, RequestCancelled, false, true},
		{RequestDraft, RequestPaid, true, false},
		{RequestPendingApproval, RequestApproved, false, true},
		{RequestPendingApproval, RequestRejected, false, true},
		{RequestPendingApproval, RequestCancelled, false, true},
		{RequestPendingApproval, RequestPaid, false, false},
		{RequestPendingApproval, RequestPaid, true, true},
		{RequestApproved, RequestPaid, false, true},
		{RequestApproved, RequestCancelled, false, true},
		{RequestApproved, RequestRejected, false, false},
		{RequestApproved, RequestDraft, false, false},
	}

	for _, tt := range tests {
		name := string(tt.from) + "->" + string(tt.to)
		t.Run(name, func(t *testing.T) {
			err := CheckTransition(tt.from, tt.to, tt.directPay)
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("expected invalid transition, got %v", err)
			}
		})
	}
}

func TestTerminalStatesRejectEverything(t *testing.T) {
	for _, from := range []RequestStatus{RequestPaid, RequestRejected, RequestCancelled} {
		if !from.Terminal() {
			t.Errorf("%s should be terminal", from)
		}
		for _, to := range RequestStatuses {
			err := CheckTransition(from, to, true)
			var ite *InvalidTransitionError
			if !errors.As(err, &ite) {
				t.Fatalf("%s -> %s: expected InvalidTransitionError, got %v", from, to, err)
			}
			if ite.From != from || ite.To != to {
				t.Errorf("error carries %s -> %s, want %s -> %s", ite.From, ite.To, from, to)
			}
		}
	}
}

func TestExceedsRefundableMatching(t *testing.T) {
	over := &ExceedsRefundableError{Requested: money.MustParse("500"), Ceiling: money.MustParse("300")}
	if !errors.Is(over, ErrExceedsRefundable) {
		t.Error("expected ErrExceedsRefundable")
	}
	if errors.Is(over, ErrValidation) {
		t.Error("positive over-ceiling request should not be a validation error")
	}

	zero := &ExceedsRefundableError{Requested: money.Zero, Ceiling: money.MustParse("300")}
	if !errors.Is(zero, ErrExceedsRefundable) || !errors.Is(zero, ErrValidation) {
		t.Error("non-positive request should match both sentinels")
	}
}

func TestParseEnums(t *testing.T) {
	if _, err := ParsePaymentMethod("bitcoin"); !errors.Is(err, ErrValidation) {
		t.Errorf("ParsePaymentMethod(bitcoin) = %v", err)
	}
	if m, err := ParsePaymentMethod("upi"); err != nil || m != MethodUPI {
		t.Errorf("ParsePaymentMethod(upi) = %v, %v", m, err)
	}
	if _, err := ParseRequestStatus("done"); !errors.Is(err, ErrValidation) {
		t.Errorf("ParseRequestStatus(done) = %v", err)
	}
	if _, err := ParsePaymentStatus("overdue"); err != nil {
		t.Errorf("ParsePaymentStatus(overdue) = %v", err)
	}
}
