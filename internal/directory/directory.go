// Package directory resolves patients and visits owned by the clinical
// service. Billing only reads them for validation and display fields.
package directory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/Alijeyrad/simorq_billing/internal/billing"
)

type Patient struct {
	ID       uuid.UUID
	ClinicID uuid.UUID
	FullName string
	Phone    string
	Email    string
}

type Visit struct {
	ID        uuid.UUID
	ClinicID  uuid.UUID
	PatientID uuid.UUID
	VisitDate time.Time
}

// Directory looks up patients and visits. Missing rows are reported as
// billing.ErrPatientNotFound / billing.ErrVisitNotFound.
type Directory interface {
	Patient(ctx context.Context, id uuid.UUID) (*Patient, error)
	Visit(ctx context.Context, id uuid.UUID) (*Visit, error)
}

// ---------------------------------------------------------------------------
// SQL
// ---------------------------------------------------------------------------

// SQL reads the shared patients and visits tables.
type SQL struct {
	q dialect.ExecQuerier
}

func NewSQL(q dialect.ExecQuerier) *SQL {
	return &SQL{q: q}
}

func (d *SQL) Patient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	query, args := entsql.Dialect(dialect.Postgres).
		Select("id", "clinic_id", "full_name", "phone", "email").
		From(entsql.Table("patients")).
		Where(entsql.EQ("id", id)).
		Query()

	rows := &entsql.Rows{}
	if err := d.q.Query(ctx, query, args, rows); err != nil {
		return nil, fmt.Errorf("query patient: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("query patient: %w", err)
		}
		return nil, billing.ErrPatientNotFound
	}
	var p Patient
	if err := rows.Scan(&p.ID, &p.ClinicID, &p.FullName, &p.Phone, &p.Email); err != nil {
		return nil, fmt.Errorf("scan patient: %w", err)
	}
	return &p, nil
}

func (d *SQL) Visit(ctx context.Context, id uuid.UUID) (*Visit, error) {
	query, args := entsql.Dialect(dialect.Postgres).
		Select("id", "clinic_id", "patient_id", "visit_date").
		From(entsql.Table("visits")).
		Where(entsql.EQ("id", id)).
		Query()

	rows := &entsql.Rows{}
	if err := d.q.Query(ctx, query, args, rows); err != nil {
		return nil, fmt.Errorf("query visit: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("query visit: %w", err)
		}
		return nil, billing.ErrVisitNotFound
	}
	var v Visit
	if err := rows.Scan(&v.ID, &v.ClinicID, &v.PatientID, &v.VisitDate); err != nil {
		return nil, fmt.Errorf("scan visit: %w", err)
	}
	return &v, nil
}

// ---------------------------------------------------------------------------
// Memory
// ---------------------------------------------------------------------------

// Memory is a map-backed directory for tests and local runs.
type Memory struct {
	mu       sync.RWMutex
	patients map[uuid.UUID]Patient
	visits   map[uuid.UUID]Visit
}

func NewMemory() *Memory {
	return &Memory{
		patients: map[uuid.UUID]Patient{},
		visits:   map[uuid.UUID]Visit{},
	}
}

func (m *Memory) AddPatient(p Patient) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patients[p.ID] = p
}

func (m *Memory) AddVisit(v Visit) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.visits[v.ID] = v
}

func (m *Memory) Patient(_ context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, billing.ErrPatientNotFound
	}
	return &p, nil
}

func (m *Memory) Visit(_ context.Context, id uuid.UUID) (*Visit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.visits[id]
	if !ok {
		return nil, billing.ErrVisitNotFound
	}
	return &v, nil
}

// ---------------------------------------------------------------------------
// Unchecked
// ---------------------------------------------------------------------------

// Unchecked accepts any id. It backs the in-memory development driver where
// no clinical directory exists; bills carry no display fields.
type Unchecked struct{}

func (Unchecked) Patient(_ context.Context, id uuid.UUID) (*Patient, error) {
	return &Patient{ID: id}, nil
}

func (Unchecked) Visit(_ context.Context, id uuid.UUID) (*Visit, error) {
	return &Visit{ID: id}, nil
}
