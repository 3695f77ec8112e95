package sqldriver

import (
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

// textSize makes string columns unbounded TEXT on every dialect.
const textSize = 2147483647

var (
	faultStrandsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Size: 32},
		{Name: "cause_strands", Type: field.TypeString, Size: textSize},
		{Name: "created_at", Type: field.TypeInt64},
	}
	faultStrandsTable = &schema.Table{
		Name:       "fault_strands",
		Columns:    faultStrandsColumns,
		PrimaryKey: []*schema.Column{faultStrandsColumns[0]},
	}

	faultsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Size: 32},
		{Name: "fault_strand_id", Type: field.TypeString, Size: 32},
		{Name: "causes", Type: field.TypeString, Size: textSize},
		{Name: "created_at", Type: field.TypeInt64},
	}
	faultsTable = &schema.Table{
		Name:       "faults",
		Columns:    faultsColumns,
		PrimaryKey: []*schema.Column{faultsColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "faults_fault_strands_faults",
				Columns:    []*schema.Column{faultsColumns[1]},
				RefColumns: []*schema.Column{faultStrandsColumns[0]},
				OnDelete:   schema.NoAction,
			},
		},
		Indexes: []*schema.Index{
			{
				Name:    "fault_fault_strand_id",
				Columns: []*schema.Column{faultsColumns[1]},
			},
		},
	}

	feedEntriesColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Size: 36},
		{Name: "fault_id", Type: field.TypeString, Size: 32},
		{Name: "fault_strand_id", Type: field.TypeString, Size: 32},
		{Name: "occurred_at", Type: field.TypeInt64},
		{Name: "global_seq", Type: field.TypeInt64, Unique: true},
		{Name: "fault_seq", Type: field.TypeInt64},
		{Name: "fault_strand_seq", Type: field.TypeInt64},
		{Name: "log_entry", Type: field.TypeString, Size: textSize, Nullable: true},
	}
	feedEntriesTable = &schema.Table{
		Name:       "feed_entries",
		Columns:    feedEntriesColumns,
		PrimaryKey: []*schema.Column{feedEntriesColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "feed_entries_faults_entries",
				Columns:    []*schema.Column{feedEntriesColumns[1]},
				RefColumns: []*schema.Column{faultsColumns[0]},
				OnDelete:   schema.NoAction,
			},
			{
				Symbol:     "feed_entries_fault_strands_entries",
				Columns:    []*schema.Column{feedEntriesColumns[2]},
				RefColumns: []*schema.Column{faultStrandsColumns[0]},
				OnDelete:   schema.NoAction,
			},
		},
		Indexes: []*schema.Index{
			{
				Name:    "feedentry_fault_id_fault_seq",
				Unique:  true,
				Columns: []*schema.Column{feedEntriesColumns[1], feedEntriesColumns[5]},
			},
			{
				Name:    "feedentry_fault_strand_id_fault_strand_seq",
				Unique:  true,
				Columns: []*schema.Column{feedEntriesColumns[2], feedEntriesColumns[6]},
			},
		},
	}

	// sequencesColumns hold one counter per (scope, scope_key). The global
	// counter uses an empty key.
	sequencesColumns = []*schema.Column{
		{Name: "scope", Type: field.TypeString, Size: 16},
		{Name: "scope_key", Type: field.TypeString, Size: 32},
		{Name: "seq", Type: field.TypeInt64},
	}
	sequencesTable = &schema.Table{
		Name:       "sequences",
		Columns:    sequencesColumns,
		PrimaryKey: []*schema.Column{sequencesColumns[0], sequencesColumns[1]},
	}

	// tables lists every table in creation order.
	tables = []*schema.Table{
		faultStrandsTable,
		faultsTable,
		feedEntriesTable,
		sequencesTable,
	}
)

func init() {
	faultsTable.ForeignKeys[0].RefTable = faultStrandsTable
	feedEntriesTable.ForeignKeys[0].RefTable = faultsTable
	feedEntriesTable.ForeignKeys[1].RefTable = faultStrandsTable
}
