// Package sqldriver provides a database-agnostic SQL storage driver. Tables
// are migrated with ent's schema package and queries are built with ent's
// dialect-aware SQL builder, so one implementation serves SQLite and
// PostgreSQL.
package sqldriver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/schema"
	"github.com/google/uuid"

	"github.com/papercomputeco/faultline/pkg/fault"
	"github.com/papercomputeco/faultline/pkg/identity"
	"github.com/papercomputeco/faultline/pkg/storage"
)

// Driver implements storage.Driver over a *sql.DB. It is embedded by the
// dialect specific drivers.
type Driver struct {
	drv     *entsql.Driver
	db      *sql.DB
	builder *fault.Builder
}

// New wraps db, creating or upgrading the schema. Records read back are
// rebuilt with b and must hash to the identity they are stored under.
func New(ctx context.Context, db *sql.DB, dialectName string, b *fault.Builder) (*Driver, error) {
	switch dialectName {
	case dialect.SQLite, dialect.Postgres:
	default:
		return nil, fmt.Errorf("unsupported dialect %q", dialectName)
	}

	drv := entsql.OpenDB(dialectName, db)

	migrate, err := schema.NewMigrate(drv)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	if err := migrate.Create(ctx, tables...); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Driver{drv: drv, db: db, builder: b}, nil
}

// DB exposes the underlying database handle.
func (d *Driver) DB() *sql.DB {
	return d.db
}

func (d *Driver) sql() *entsql.DialectBuilder {
	return entsql.Dialect(d.drv.Dialect())
}

// PutFaultStrand inserts s unless its identity is already stored, then
// returns the stored strand.
func (d *Driver) PutFaultStrand(ctx context.Context, s *fault.FaultStrand) (*fault.FaultStrand, bool, error) {
	if s == nil {
		return nil, false, storage.ErrNilRecord
	}

	id := s.Identity()
	strandsJSON, err := json.Marshal(s.DTO())
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal cause strands: %w", err)
	}

	query, args := d.sql().Insert(faultStrandsTable.Name).
		Columns("id", "cause_strands", "created_at").
		Values(id.String(), string(strandsJSON), time.Now().UnixNano()).
		OnConflict(entsql.ConflictColumns("id"), entsql.DoNothing()).
		Query()

	inserted, err := d.execInsert(ctx, query, args)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert fault strand %s: %w", id, err)
	}
	if inserted {
		return s, true, nil
	}

	existing, err := d.GetFaultStrand(ctx, id)
	if err != nil {
		return nil, false, err
	}

	return existing, false, nil
}

// PutFault inserts f unless its identity is already stored, then returns
// the stored fault.
func (d *Driver) PutFault(ctx context.Context, f *fault.Fault) (*fault.Fault, bool, error) {
	if f == nil {
		return nil, false, storage.ErrNilRecord
	}

	id := f.Identity()
	strandID := f.Strand().Identity()

	causesJSON, err := json.Marshal(f.DTO())
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal causes: %w", err)
	}

	exists, err := d.exists(ctx, d.db, faultStrandsTable.Name, strandID.String())
	if err != nil {
		return nil, false, err
	}
	if !exists {
		return nil, false, fmt.Errorf("storing fault %s: %w", id,
			storage.NotFoundError{Kind: "fault strand", ID: strandID.String()})
	}

	query, args := d.sql().Insert(faultsTable.Name).
		Columns("id", "fault_strand_id", "causes", "created_at").
		Values(id.String(), strandID.String(), string(causesJSON), time.Now().UnixNano()).
		OnConflict(entsql.ConflictColumns("id"), entsql.DoNothing()).
		Query()

	inserted, err := d.execInsert(ctx, query, args)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert fault %s: %w", id, err)
	}
	if inserted {
		return f, true, nil
	}

	existing, err := d.GetFault(ctx, id)
	if err != nil {
		return nil, false, err
	}

	return existing, false, nil
}

func (d *Driver) execInsert(ctx context.Context, query string, args []any) (bool, error) {
	res, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return n > 0, nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (d *Driver) exists(ctx context.Context, q querier, table, id string) (bool, error) {
	query, args := d.sql().Select("id").
		From(d.sql().Table(table)).
		Where(entsql.EQ("id", id)).
		Limit(1).
		Query()

	var found string
	err := q.QueryRowContext(ctx, query, args...).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check %s existence: %w", table, err)
	}

	return true, nil
}

// Append numbers e within one transaction: the sequence counters are
// incremented and the entry inserted together, so a failed insert leaves no
// gap.
func (d *Driver) Append(ctx context.Context, e *storage.FeedEntry) (*storage.FeedEntry, error) {
	if e == nil {
		return nil, storage.ErrNilRecord
	}

	entry := *e
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	var logJSON sql.NullString
	if entry.LogEntry != nil {
		le := *entry.LogEntry
		entry.LogEntry = &le

		b, err := json.Marshal(entry.LogEntry)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal log entry: %w", err)
		}
		logJSON = sql.NullString{String: string(b), Valid: true}
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	exists, err := d.exists(ctx, tx, faultsTable.Name, entry.FaultID.String())
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("appending feed entry: %w",
			storage.NotFoundError{Kind: "fault", ID: entry.FaultID.String()})
	}

	// The global counter is always taken first so concurrent appends lock
	// counters in the same order.
	if entry.GlobalSequenceNo, err = d.nextSeq(ctx, tx, storage.ScopeGlobal, ""); err != nil {
		return nil, err
	}
	if entry.FaultSequenceNo, err = d.nextSeq(ctx, tx, storage.ScopeFault, entry.FaultID.String()); err != nil {
		return nil, err
	}
	if entry.FaultStrandSequenceNo, err = d.nextSeq(ctx, tx, storage.ScopeFaultStrand, entry.FaultStrandID.String()); err != nil {
		return nil, err
	}

	query, args := d.sql().Insert(feedEntriesTable.Name).
		Columns("id", "fault_id", "fault_strand_id", "occurred_at",
			"global_seq", "fault_seq", "fault_strand_seq", "log_entry").
		Values(entry.ID.String(), entry.FaultID.String(), entry.FaultStrandID.String(),
			entry.Timestamp.UnixNano(), entry.GlobalSequenceNo, entry.FaultSequenceNo,
			entry.FaultStrandSequenceNo, logJSON).
		Query()

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("failed to insert feed entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit feed entry: %w", err)
	}

	entry.Timestamp = time.Unix(0, entry.Timestamp.UnixNano()).UTC()
	return &entry, nil
}

// nextSeq increments the counter of (scope, key) and returns its new value.
// A new counter starts at 0.
func (d *Driver) nextSeq(ctx context.Context, tx *sql.Tx, scope storage.Scope, key string) (int64, error) {
	query, args := d.sql().Insert(sequencesTable.Name).
		Columns("scope", "scope_key", "seq").
		Values(string(scope), key, 0).
		OnConflict(
			entsql.ConflictColumns("scope", "scope_key"),
			entsql.ResolveWith(func(u *entsql.UpdateSet) {
				u.Add("seq", 1)
			}),
		).
		Returning("seq").
		Query()

	var seq int64
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&seq); err != nil {
		return 0, fmt.Errorf("failed to advance %s sequence: %w", scope, err)
	}

	return seq, nil
}

// GetFault loads and rebuilds a fault.
func (d *Driver) GetFault(ctx context.Context, id identity.Hash) (*fault.Fault, error) {
	query, args := d.sql().Select("causes").
		From(d.sql().Table(faultsTable.Name)).
		Where(entsql.EQ("id", id.String())).
		Query()

	var causesJSON string
	err := d.db.QueryRowContext(ctx, query, args...).Scan(&causesJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFoundError{Kind: "fault", ID: id.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query fault: %w", err)
	}

	var dtos []fault.CauseDTO
	if err := json.Unmarshal([]byte(causesJSON), &dtos); err != nil {
		return nil, fmt.Errorf("failed to unmarshal causes of fault %s: %w", id, err)
	}

	f, err := d.builder.FaultFromDTO(dtos)
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild fault %s: %w", id, err)
	}
	if got := f.Identity(); got != id {
		return nil, storage.CorruptRecordError{Kind: "fault", ID: id.String(), Got: got.String()}
	}

	return f, nil
}

// GetFaultStrand loads and rebuilds a fault strand.
func (d *Driver) GetFaultStrand(ctx context.Context, id identity.Hash) (*fault.FaultStrand, error) {
	query, args := d.sql().Select("cause_strands").
		From(d.sql().Table(faultStrandsTable.Name)).
		Where(entsql.EQ("id", id.String())).
		Query()

	var strandsJSON string
	err := d.db.QueryRowContext(ctx, query, args...).Scan(&strandsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFoundError{Kind: "fault strand", ID: id.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query fault strand: %w", err)
	}

	var dtos []fault.CauseStrandDTO
	if err := json.Unmarshal([]byte(strandsJSON), &dtos); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cause strands of %s: %w", id, err)
	}

	s, err := d.builder.FaultStrandFromDTO(dtos)
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild fault strand %s: %w", id, err)
	}
	if got := s.Identity(); got != id {
		return nil, storage.CorruptRecordError{Kind: "fault strand", ID: id.String(), Got: got.String()}
	}

	return s, nil
}

var feedColumns = []string{
	"id", "fault_id", "fault_strand_id", "occurred_at",
	"global_seq", "fault_seq", "fault_strand_seq", "log_entry",
}

// GetFeedEntry loads one feed entry.
func (d *Driver) GetFeedEntry(ctx context.Context, id uuid.UUID) (*storage.FeedEntry, error) {
	query, args := d.sql().Select(feedColumns...).
		From(d.sql().Table(feedEntriesTable.Name)).
		Where(entsql.EQ("id", id.String())).
		Query()

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query feed entry: %w", err)
	}
	defer rows.Close()

	entries, err := scanFeedEntries(rows)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, storage.NotFoundError{Kind: "feed entry", ID: id.String()}
	}

	return entries[0], nil
}

// ListFeed pages through one feed in sequence order.
func (d *Driver) ListFeed(ctx context.Context, scope storage.Scope, id identity.Hash, offset, count int) ([]*storage.FeedEntry, error) {
	if offset < 0 || count < 0 {
		return nil, fmt.Errorf("invalid page offset=%d count=%d", offset, count)
	}

	selector := d.sql().Select(feedColumns...).
		From(d.sql().Table(feedEntriesTable.Name))

	switch scope {
	case storage.ScopeGlobal:
		selector.OrderBy("global_seq")
	case storage.ScopeFault:
		selector.Where(entsql.EQ("fault_id", id.String())).OrderBy("fault_seq")
	case storage.ScopeFaultStrand:
		selector.Where(entsql.EQ("fault_strand_id", id.String())).OrderBy("fault_strand_seq")
	default:
		return nil, fmt.Errorf("unknown feed scope %q", scope)
	}

	query, args := selector.Limit(count).Offset(offset).Query()

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query feed: %w", err)
	}
	defer rows.Close()

	return scanFeedEntries(rows)
}

func scanFeedEntries(rows *sql.Rows) ([]*storage.FeedEntry, error) {
	entries := []*storage.FeedEntry{}
	for rows.Next() {
		var (
			e                     storage.FeedEntry
			id, faultID, strandID string
			occurredAt            int64
			logJSON               sql.NullString
		)

		err := rows.Scan(&id, &faultID, &strandID, &occurredAt,
			&e.GlobalSequenceNo, &e.FaultSequenceNo, &e.FaultStrandSequenceNo, &logJSON)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feed entry: %w", err)
		}

		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("feed entry id %q: %w", id, err)
		}
		if e.FaultID, err = identity.ParseHash(faultID); err != nil {
			return nil, fmt.Errorf("feed entry %s fault id: %w", id, err)
		}
		if e.FaultStrandID, err = identity.ParseHash(strandID); err != nil {
			return nil, fmt.Errorf("feed entry %s fault strand id: %w", id, err)
		}
		e.Timestamp = time.Unix(0, occurredAt).UTC()

		if logJSON.Valid {
			e.LogEntry = &storage.LogEntry{}
			if err := json.Unmarshal([]byte(logJSON.String), e.LogEntry); err != nil {
				return nil, fmt.Errorf("feed entry %s log entry: %w", id, err)
			}
		}

		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate feed entries: %w", err)
	}

	return entries, nil
}

// Stats counts the rows of each table.
func (d *Driver) Stats(ctx context.Context) (storage.Stats, error) {
	var stats storage.Stats

	counts := []struct {
		table string
		dst   *int64
	}{
		{faultsTable.Name, &stats.Faults},
		{faultStrandsTable.Name, &stats.FaultStrands},
		{feedEntriesTable.Name, &stats.FeedEntries},
	}

	for _, c := range counts {
		query, args := d.sql().Select(entsql.Count("*")).
			From(d.sql().Table(c.table)).
			Query()

		if err := d.db.QueryRowContext(ctx, query, args...).Scan(c.dst); err != nil {
			return storage.Stats{}, fmt.Errorf("failed to count %s: %w", c.table, err)
		}
	}

	return stats, nil
}

// Close closes the underlying database.
func (d *Driver) Close() error {
	return d.drv.Close()
}
