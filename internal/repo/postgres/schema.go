package postgres

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

const (
	tBills          = "bills"
	tBillItems      = "bill_items"
	tPaymentRecords = "payment_records"
	tRefundRequests = "refund_requests"
	tRefundItems    = "refund_items"
	tBillSequences  = "bill_sequences"
	tPatients       = "patients"
	tVisits         = "visits"
)

var numeric = map[string]string{dialect.Postgres: "numeric(14,2)"}

func amountColumn(name string) *schema.Column {
	return &schema.Column{Name: name, Type: field.TypeFloat64, SchemaType: numeric, Default: 0}
}

var (
	// BillsColumns holds the columns for the "bills" table.
	BillsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "clinic_id", Type: field.TypeUUID},
		{Name: "patient_id", Type: field.TypeUUID},
		{Name: "visit_id", Type: field.TypeUUID, Nullable: true},
		{Name: "bill_number", Type: field.TypeString, Unique: true, Size: 64},
		{Name: "bill_date", Type: field.TypeTime},
		{Name: "due_date", Type: field.TypeTime, Nullable: true},
		{Name: "patient_name", Type: field.TypeString, Default: ""},
		{Name: "visit_date", Type: field.TypeTime, Nullable: true},
		{Name: "notes", Type: field.TypeString, Size: 2147483647, Default: ""},
		{Name: "created_by", Type: field.TypeUUID},
		amountColumn("total_amount"),
		amountColumn("paid_amount"),
		amountColumn("collected_amount"),
		amountColumn("adjusted_amount"),
		amountColumn("balance_amount"),
		amountColumn("total_refunded_amount"),
		{Name: "payment_status", Type: field.TypeString, Size: 16, Default: "pending"},
		{Name: "refund_status", Type: field.TypeString, Size: 16, Default: "not_requested"},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
	}
	BillsTable = &schema.Table{
		Name:       tBills,
		Columns:    BillsColumns,
		PrimaryKey: []*schema.Column{BillsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "bill_clinic_id_bill_date", Columns: []*schema.Column{BillsColumns[1], BillsColumns[5]}},
			{Name: "bill_clinic_id_patient_id", Columns: []*schema.Column{BillsColumns[1], BillsColumns[2]}},
			{Name: "bill_clinic_id_payment_status", Columns: []*schema.Column{BillsColumns[1], BillsColumns[17]}},
		},
	}

	// BillItemsColumns holds the columns for the "bill_items" table.
	BillItemsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "bill_id", Type: field.TypeUUID},
		{Name: "item_type", Type: field.TypeString, Size: 32},
		{Name: "description", Type: field.TypeString, Size: 512},
		{Name: "quantity", Type: field.TypeInt64},
		amountColumn("unit_price"),
		amountColumn("discount"),
		amountColumn("tax"),
		amountColumn("total_price"),
		{Name: "refunded_quantity", Type: field.TypeInt64, Default: 0},
		amountColumn("refunded_amount"),
		{Name: "created_at", Type: field.TypeTime},
	}
	BillItemsTable = &schema.Table{
		Name:       tBillItems,
		Columns:    BillItemsColumns,
		PrimaryKey: []*schema.Column{BillItemsColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "bill_items_bills_items",
				Columns:    []*schema.Column{BillItemsColumns[1]},
				RefColumns: []*schema.Column{BillsColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
		Indexes: []*schema.Index{
			{Name: "billitem_bill_id", Columns: []*schema.Column{BillItemsColumns[1]}},
		},
	}

	// PaymentRecordsColumns holds the columns for the "payment_records" table.
	PaymentRecordsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "bill_id", Type: field.TypeUUID},
		{Name: "clinic_id", Type: field.TypeUUID},
		{Name: "payment_date", Type: field.TypeTime},
		{Name: "payment_method", Type: field.TypeString, Size: 32, Default: ""},
		amountColumn("amount"),
		{Name: "record_type", Type: field.TypeString, Size: 16},
		{Name: "refund_request_id", Type: field.TypeUUID, Nullable: true},
		{Name: "received_by", Type: field.TypeUUID},
		{Name: "reference", Type: field.TypeString, Default: ""},
		{Name: "reason", Type: field.TypeString, Size: 2147483647, Default: ""},
		{Name: "notes", Type: field.TypeString, Size: 2147483647, Default: ""},
		{Name: "created_at", Type: field.TypeTime},
	}
	PaymentRecordsTable = &schema.Table{
		Name:       tPaymentRecords,
		Columns:    PaymentRecordsColumns,
		PrimaryKey: []*schema.Column{PaymentRecordsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "paymentrecord_bill_id", Columns: []*schema.Column{PaymentRecordsColumns[1]}},
			{Name: "paymentrecord_clinic_id_payment_date", Columns: []*schema.Column{PaymentRecordsColumns[2], PaymentRecordsColumns[3]}},
			{Name: "paymentrecord_refund_request_id", Unique: true, Columns: []*schema.Column{PaymentRecordsColumns[7]}},
		},
	}

	// RefundRequestsColumns holds the columns for the "refund_requests" table.
	RefundRequestsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "bill_id", Type: field.TypeUUID},
		{Name: "clinic_id", Type: field.TypeUUID},
		{Name: "patient_id", Type: field.TypeUUID},
		{Name: "source_type", Type: field.TypeString, Size: 32},
		{Name: "source_reference", Type: field.TypeString, Default: ""},
		amountColumn("total_amount"),
		{Name: "refund_method", Type: field.TypeString, Size: 32},
		{Name: "reason", Type: field.TypeString, Size: 2147483647},
		{Name: "status", Type: field.TypeString, Size: 32},
		{Name: "notes", Type: field.TypeString, Size: 2147483647, Default: ""},
		{Name: "initiated_by", Type: field.TypeUUID},
		{Name: "approved_by", Type: field.TypeUUID, Nullable: true},
		{Name: "approved_at", Type: field.TypeTime, Nullable: true},
		{Name: "rejected_by", Type: field.TypeUUID, Nullable: true},
		{Name: "rejected_at", Type: field.TypeTime, Nullable: true},
		{Name: "rejection_reason", Type: field.TypeString, Size: 2147483647, Default: ""},
		{Name: "cancelled_by", Type: field.TypeUUID, Nullable: true},
		{Name: "cancelled_at", Type: field.TypeTime, Nullable: true},
		{Name: "paid_by", Type: field.TypeUUID, Nullable: true},
		{Name: "paid_at", Type: field.TypeTime, Nullable: true},
		{Name: "payment_record_id", Type: field.TypeUUID, Nullable: true},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
	}
	RefundRequestsTable = &schema.Table{
		Name:       tRefundRequests,
		Columns:    RefundRequestsColumns,
		PrimaryKey: []*schema.Column{RefundRequestsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "refundrequest_bill_id", Columns: []*schema.Column{RefundRequestsColumns[1]}},
			{Name: "refundrequest_clinic_id_status", Columns: []*schema.Column{RefundRequestsColumns[2], RefundRequestsColumns[9]}},
		},
	}

	// RefundItemsColumns holds the columns for the "refund_items" table.
	RefundItemsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "refund_request_id", Type: field.TypeUUID},
		{Name: "bill_item_id", Type: field.TypeUUID},
		{Name: "quantity", Type: field.TypeInt64, Default: 0},
		amountColumn("amount"),
	}
	RefundItemsTable = &schema.Table{
		Name:       tRefundItems,
		Columns:    RefundItemsColumns,
		PrimaryKey: []*schema.Column{RefundItemsColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "refund_items_refund_requests_items",
				Columns:    []*schema.Column{RefundItemsColumns[1]},
				RefColumns: []*schema.Column{RefundRequestsColumns[0]},
				OnDelete:   schema.Cascade,
			},
			{
				Symbol:     "refund_items_bill_items_refunds",
				Columns:    []*schema.Column{RefundItemsColumns[2]},
				RefColumns: []*schema.Column{BillItemsColumns[0]},
				OnDelete:   schema.NoAction,
			},
		},
	}

	// BillSequencesColumns holds the columns for the "bill_sequences" table.
	BillSequencesColumns = []*schema.Column{
		{Name: "clinic_id", Type: field.TypeUUID},
		{Name: "year", Type: field.TypeInt},
		{Name: "value", Type: field.TypeInt64, Default: 0},
	}
	BillSequencesTable = &schema.Table{
		Name:       tBillSequences,
		Columns:    BillSequencesColumns,
		PrimaryKey: []*schema.Column{BillSequencesColumns[0], BillSequencesColumns[1]},
	}

	// Tables are the billing-owned tables created by Migrate. The directory
	// tables (patients, visits) belong to the clinical service and are only
	// read here.
	Tables = []*schema.Table{
		BillsTable,
		BillItemsTable,
		PaymentRecordsTable,
		RefundRequestsTable,
		RefundItemsTable,
		BillSequencesTable,
	}

	// PatientsColumns and VisitsColumns describe the read-only directory
	// tables so development databases can be bootstrapped with them.
	PatientsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "clinic_id", Type: field.TypeUUID},
		{Name: "full_name", Type: field.TypeString},
		{Name: "phone", Type: field.TypeString, Default: ""},
		{Name: "email", Type: field.TypeString, Default: ""},
	}
	PatientsTable = &schema.Table{
		Name:       tPatients,
		Columns:    PatientsColumns,
		PrimaryKey: []*schema.Column{PatientsColumns[0]},
	}
	VisitsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "clinic_id", Type: field.TypeUUID},
		{Name: "patient_id", Type: field.TypeUUID},
		{Name: "visit_date", Type: field.TypeTime},
	}
	VisitsTable = &schema.Table{
		Name:       tVisits,
		Columns:    VisitsColumns,
		PrimaryKey: []*schema.Column{VisitsColumns[0]},
	}
	DirectoryTables = []*schema.Table{PatientsTable, VisitsTable}
)

func init() {
	BillItemsTable.ForeignKeys[0].RefTable = BillsTable
	RefundItemsTable.ForeignKeys[0].RefTable = RefundRequestsTable
	RefundItemsTable.ForeignKeys[1].RefTable = BillItemsTable
}

// MigrateOptions mirrors the database.migrations config block.
type MigrateOptions struct {
	// SafeMode keeps columns and indexes that are no longer declared.
	SafeMode bool
	// WithDirectory also creates the patients and visits tables.
	WithDirectory bool
}

// Migrate creates or upgrades the billing tables.
func Migrate(ctx context.Context, drv dialect.Driver, opts MigrateOptions) error {
	m, err := schema.NewMigrate(drv,
		schema.WithForeignKeys(true),
		schema.WithDropColumn(!opts.SafeMode),
		schema.WithDropIndex(!opts.SafeMode),
	)
	if err != nil {
		return fmt.Errorf("billing migrate: %w", err)
	}
	tables := Tables
	if opts.WithDirectory {
		tables = append(append([]*schema.Table{}, Tables...), DirectoryTables...)
	}
	if err := m.Create(ctx, tables...); err != nil {
		return fmt.Errorf("billing migrate: %w", err)
	}
	return nil
}
