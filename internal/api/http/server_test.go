package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alijeyrad/simorq_billing/config"
	apihttp "github.com/Alijeyrad/simorq_billing/internal/api/http"
	"github.com/Alijeyrad/simorq_billing/internal/api/http/router"
	"github.com/Alijeyrad/simorq_billing/internal/directory"
	"github.com/Alijeyrad/simorq_billing/internal/events"
	"github.com/Alijeyrad/simorq_billing/internal/repo/memory"
	"github.com/Alijeyrad/simorq_billing/internal/service/ledger"
	"github.com/Alijeyrad/simorq_billing/internal/service/payment"
	"github.com/Alijeyrad/simorq_billing/internal/service/refund"
	"github.com/Alijeyrad/simorq_billing/internal/service/report"
	"github.com/Alijeyrad/simorq_billing/pkg/authorize"
	"github.com/Alijeyrad/simorq_billing/pkg/constants"
	pasetotoken "github.com/Alijeyrad/simorq_billing/pkg/paseto"
)

type testServer struct {
	t      *testing.T
	do     func(*nethttp.Request) (*nethttp.Response, error)
	mgr    *pasetotoken.Manager
	auth   authorize.IAuthorization
	clinic uuid.UUID
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	cfg := &config.Config{
		Server: config.ServerConfig{Environment: "test"},
		Billing: config.BillingConfig{
			Timezone:              "UTC",
			BillNumberPrefix:      "INV",
			PeakHours:             3,
			IdempotencyTTLMinutes: 10,
		},
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	enforcer, err := authorize.NewLocalEnforcer("", "")
	require.NoError(t, err)
	auth, err := authorize.NewAuthorization(enforcer)
	require.NoError(t, err)
	require.NoError(t, authorize.SeedDefaultPolicies(ctx, auth))

	keys := pasetotoken.NewLocalKeys()
	mgr, err := pasetotoken.New(pasetotoken.Config{
		Mode:      keys.Mode,
		Issuer:    "simorq",
		Audience:  "simorq-billing",
		AccessTTL: time.Hour,
	}, keys)
	require.NoError(t, err)

	store := memory.New()
	ledgerSvc := ledger.New(store, directory.Unchecked{}, events.Nop{}, nil, ledger.Config{
		BillNumberPrefix: "INV",
		Location:         time.UTC,
	})
	r := router.NewRouter(router.Params{
		Cfg:        cfg,
		Redis:      rdb,
		Auth:       auth,
		LedgerSvc:  ledgerSvc,
		PaymentSvc: payment.New(store, ledgerSvc, events.Nop{}, nil, payment.Config{}),
		RefundSvc:  refund.New(store, ledgerSvc, refund.CasbinApprovers(auth), events.Nop{}, nil, refund.Config{}),
		ReportSvc:  report.New(store, report.Config{Location: time.UTC}),
		PasetoMgr:  mgr,
	})
	app := apihttp.NewApp(cfg, rdb, r, false)

	return &testServer{
		t:      t,
		do:     func(req *nethttp.Request) (*nethttp.Response, error) { return app.Test(req) },
		mgr:    mgr,
		auth:   auth,
		clinic: uuid.New(),
	}
}

// member returns a bearer token for a fresh user holding role in clinic.
func (s *testServer) member(clinic uuid.UUID, role authorize.Role) string {
	s.t.Helper()
	userID := uuid.New()
	require.NoError(s.t, authorize.AssignClinicRole(context.Background(), s.auth, userID.String(), clinic.String(), role))
	tok, err := s.mgr.IssueAccess(userID, nil)
	require.NoError(s.t, err)
	return tok
}

type call struct {
	method  string
	path    string
	token   string
	clinic  uuid.UUID
	body    any
	headers map[string]string
}

type result struct {
	status  int
	header  nethttp.Header
	raw     []byte
	payload map[string]any
}

func (r result) data() map[string]any {
	d, _ := r.payload["data"].(map[string]any)
	return d
}

func (s *testServer) call(c call) result {
	s.t.Helper()

	var body io.Reader
	if c.body != nil {
		b, err := json.Marshal(c.body)
		require.NoError(s.t, err)
		body = bytes.NewReader(b)
	}
	req := httptest.NewRequest(c.method, "/api/v1"+c.path, body)
	if c.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.clinic != uuid.Nil {
		req.Header.Set(constants.HeaderClinicID, c.clinic.String())
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(s.t, err)
	out := result{status: resp.StatusCode, header: resp.Header, raw: raw}
	if len(raw) > 0 {
		require.NoError(s.t, json.Unmarshal(raw, &out.payload), string(raw))
	}
	return out
}

func (s *testServer) createBill(token string) string {
	s.t.Helper()
	res := s.call(call{
		method: nethttp.MethodPost, path: "/bills", token: token, clinic: s.clinic,
		body: map[string]any{
			"patient_id": uuid.NewString(),
			"items": []map[string]any{
				{"item_type": "consultation", "description": "Initial session", "quantity": 1, "unit_price": "100.00"},
			},
		},
	})
	require.Equal(s.t, nethttp.StatusCreated, res.status, string(res.raw))
	return res.data()["id"].(string)
}

func TestBillPaymentRefundFlow(t *testing.T) {
	s := newTestServer(t)
	acct := s.member(s.clinic, authorize.RoleClinicAccountant)

	billID := s.createBill(acct)

	pay := s.call(call{
		method: nethttp.MethodPost, path: "/bills/" + billID + "/payments", token: acct, clinic: s.clinic,
		body: map[string]any{"amount": "60.00", "payment_method": "cash"},
	})
	require.Equal(t, nethttp.StatusCreated, pay.status, string(pay.raw))

	bill := s.call(call{method: nethttp.MethodGet, path: "/bills/" + billID, token: acct, clinic: s.clinic})
	require.Equal(t, nethttp.StatusOK, bill.status, string(bill.raw))
	assert.Equal(t, "100.00", bill.data()["total_amount"])
	assert.Equal(t, "60.00", bill.data()["paid_amount"])
	assert.Equal(t, "40.00", bill.data()["balance_amount"])
	assert.Equal(t, "partial", bill.data()["payment_status"])

	tooMuch := s.call(call{
		method: nethttp.MethodPost, path: "/bills/" + billID + "/refunds", token: acct, clinic: s.clinic,
		body: map[string]any{"amount": "61.00", "refund_method": "cash", "reason": "overcharged"},
	})
	require.Equal(t, nethttp.StatusUnprocessableEntity, tooMuch.status, string(tooMuch.raw))
	assert.Equal(t, "61.00", tooMuch.payload["requested"])
	assert.Equal(t, "60.00", tooMuch.payload["ceiling"])

	created := s.call(call{
		method: nethttp.MethodPost, path: "/bills/" + billID + "/refunds", token: acct, clinic: s.clinic,
		body: map[string]any{"amount": "20.00", "refund_method": "card", "reason": "overcharged"},
	})
	require.Equal(t, nethttp.StatusCreated, created.status, string(created.raw))
	assert.Equal(t, "pending_approval", created.data()["status"])
	refundID := created.data()["id"].(string)

	approved := s.call(call{method: nethttp.MethodPost, path: "/refunds/" + refundID + "/approve", token: acct, clinic: s.clinic})
	require.Equal(t, nethttp.StatusOK, approved.status, string(approved.raw))
	assert.Equal(t, "approved", approved.data()["status"])

	paid := s.call(call{
		method: nethttp.MethodPost, path: "/refunds/" + refundID + "/pay", token: acct, clinic: s.clinic,
		body: map[string]any{"reference": "CASH-1", "payment_method": "cash"},
	})
	require.Equal(t, nethttp.StatusOK, paid.status, string(paid.raw))
	assert.Equal(t, "paid", paid.data()["status"])
	assert.Equal(t, "cash", paid.data()["refund_method"])

	again := s.call(call{method: nethttp.MethodPost, path: "/refunds/" + refundID + "/approve", token: acct, clinic: s.clinic})
	assert.Equal(t, nethttp.StatusConflict, again.status, string(again.raw))

	refundable := s.call(call{method: nethttp.MethodGet, path: "/bills/" + billID + "/refundable", token: acct, clinic: s.clinic})
	require.Equal(t, nethttp.StatusOK, refundable.status, string(refundable.raw))
	assert.Equal(t, "40.00", refundable.data()["refundable_amount"])

	daily := s.call(call{method: nethttp.MethodGet, path: "/reports/daily", token: acct, clinic: s.clinic})
	require.Equal(t, nethttp.StatusOK, daily.status, string(daily.raw))
	assert.Equal(t, "60.00", daily.data()["total"])
	assert.Equal(t, "20.00", daily.data()["refunds_total"])
	assert.Equal(t, "40.00", daily.data()["net_collected"])
}

func TestPaymentIdempotencyKeyReplays(t *testing.T) {
	s := newTestServer(t)
	acct := s.member(s.clinic, authorize.RoleClinicAccountant)
	billID := s.createBill(acct)

	pay := call{
		method: nethttp.MethodPost, path: "/bills/" + billID + "/payments", token: acct, clinic: s.clinic,
		body:    map[string]any{"amount": "25.00", "payment_method": "card"},
		headers: map[string]string{constants.HeaderIdempotencyKey: "pay-1"},
	}
	first := s.call(pay)
	require.Equal(t, nethttp.StatusCreated, first.status, string(first.raw))
	assert.Empty(t, first.header.Get(constants.HeaderIdempotentReplay))

	second := s.call(pay)
	require.Equal(t, nethttp.StatusCreated, second.status, string(second.raw))
	assert.Equal(t, "true", second.header.Get(constants.HeaderIdempotentReplay))
	assert.JSONEq(t, string(first.raw), string(second.raw))

	bill := s.call(call{method: nethttp.MethodGet, path: "/bills/" + billID, token: acct, clinic: s.clinic})
	require.Equal(t, nethttp.StatusOK, bill.status)
	assert.Equal(t, "25.00", bill.data()["paid_amount"])
	assert.Len(t, bill.data()["payments"], 1)
}

func TestAccessControl(t *testing.T) {
	s := newTestServer(t)
	acct := s.member(s.clinic, authorize.RoleClinicAccountant)
	therapist := s.member(s.clinic, authorize.RoleClinicTherapist)
	billID := s.createBill(acct)

	otherClinic := uuid.New()
	outsider := s.member(otherClinic, authorize.RoleClinicOwner)

	tests := []struct {
		name string
		c    call
		want int
	}{
		{
			name: "missing token",
			c:    call{method: nethttp.MethodGet, path: "/bills", clinic: s.clinic},
			want: nethttp.StatusUnauthorized,
		},
		{
			name: "garbage token",
			c:    call{method: nethttp.MethodGet, path: "/bills", token: "v4.local.nope", clinic: s.clinic},
			want: nethttp.StatusUnauthorized,
		},
		{
			name: "missing clinic header",
			c:    call{method: nethttp.MethodGet, path: "/bills", token: acct},
			want: nethttp.StatusBadRequest,
		},
		{
			name: "not a member of the clinic",
			c:    call{method: nethttp.MethodGet, path: "/bills", token: outsider, clinic: s.clinic},
			want: nethttp.StatusForbidden,
		},
		{
			name: "therapist reads bills",
			c:    call{method: nethttp.MethodGet, path: "/bills/" + billID, token: therapist, clinic: s.clinic},
			want: nethttp.StatusOK,
		},
		{
			name: "therapist cannot take payments",
			c: call{
				method: nethttp.MethodPost, path: "/bills/" + billID + "/payments", token: therapist, clinic: s.clinic,
				body: map[string]any{"amount": "10.00", "payment_method": "cash"},
			},
			want: nethttp.StatusForbidden,
		},
		{
			name: "therapist cannot read reports",
			c:    call{method: nethttp.MethodGet, path: "/reports/daily", token: therapist, clinic: s.clinic},
			want: nethttp.StatusForbidden,
		},
		{
			name: "bill of another clinic is not found",
			c:    call{method: nethttp.MethodGet, path: "/bills/" + billID, token: outsider, clinic: otherClinic},
			want: nethttp.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := s.call(tt.c)
			assert.Equal(t, tt.want, res.status, string(res.raw))
		})
	}
}

func TestReceptionistRefundNeedsApproval(t *testing.T) {
	s := newTestServer(t)
	acct := s.member(s.clinic, authorize.RoleClinicAccountant)
	desk := s.member(s.clinic, authorize.RoleClinicReceptionist)
	billID := s.createBill(acct)

	pay := s.call(call{
		method: nethttp.MethodPost, path: "/bills/" + billID + "/payments", token: desk, clinic: s.clinic,
		body: map[string]any{"amount": "100.00", "payment_method": "upi"},
	})
	require.Equal(t, nethttp.StatusCreated, pay.status, string(pay.raw))

	draft := s.call(call{
		method: nethttp.MethodPost, path: "/bills/" + billID + "/refunds", token: desk, clinic: s.clinic,
		body: map[string]any{"amount": "30.00", "refund_method": "upi", "reason": "session cancelled"},
	})
	require.Equal(t, nethttp.StatusCreated, draft.status, string(draft.raw))
	assert.Equal(t, "draft", draft.data()["status"])
	refundID := draft.data()["id"].(string)

	denied := s.call(call{method: nethttp.MethodPost, path: "/refunds/" + refundID + "/approve", token: desk, clinic: s.clinic})
	assert.Equal(t, nethttp.StatusForbidden, denied.status, string(denied.raw))

	submitted := s.call(call{method: nethttp.MethodPost, path: "/refunds/" + refundID + "/submit", token: desk, clinic: s.clinic})
	require.Equal(t, nethttp.StatusOK, submitted.status, string(submitted.raw))
	assert.Equal(t, "pending_approval", submitted.data()["status"])

	rejected := s.call(call{
		method: nethttp.MethodPost, path: "/refunds/" + refundID + "/reject", token: acct, clinic: s.clinic,
		body: map[string]any{"reason": "no cancellation on record"},
	})
	require.Equal(t, nethttp.StatusOK, rejected.status, string(rejected.raw))
	assert.Equal(t, "rejected", rejected.data()["status"])

	list := s.call(call{method: nethttp.MethodGet, path: "/refunds?status=rejected", token: acct, clinic: s.clinic})
	require.Equal(t, nethttp.StatusOK, list.status, string(list.raw))
	assert.Len(t, list.data()["refunds"], 1)
}

func TestValidationErrors(t *testing.T) {
	s := newTestServer(t)
	acct := s.member(s.clinic, authorize.RoleClinicAccountant)
	billID := s.createBill(acct)

	badMethod := s.call(call{
		method: nethttp.MethodPost, path: "/bills/" + billID + "/payments", token: acct, clinic: s.clinic,
		body: map[string]any{"amount": "10.00", "payment_method": "barter"},
	})
	require.Equal(t, nethttp.StatusBadRequest, badMethod.status, string(badMethod.raw))
	details, _ := badMethod.payload["details"].(map[string]any)
	assert.Equal(t, "payment_method", details["field"])

	badID := s.call(call{method: nethttp.MethodGet, path: "/bills/not-a-uuid", token: acct, clinic: s.clinic})
	assert.Equal(t, nethttp.StatusBadRequest, badID.status, string(badID.raw))

	badPeriod := s.call(call{method: nethttp.MethodGet, path: "/reports/period?from=2026-03-10", token: acct, clinic: s.clinic})
	assert.Equal(t, nethttp.StatusBadRequest, badPeriod.status, string(badPeriod.raw))
}
