package record

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"

	"github.com/leapstack-labs/leaprecord/internal/dag"
	"github.com/leapstack-labs/leaprecord/pkg/core"
)

// Operation is the kind of a batch write.
type Operation int

const (
	OpInsert Operation = iota
	OpUpdate
	OpSave
	OpDelete
)

func (o Operation) String() string {
	switch o {
	case OpInsert:
		return "insert"
	case OpUpdate:
		return "update"
	case OpSave:
		return "save"
	case OpDelete:
		return "delete"
	default:
		return fmt.Sprintf("Operation(%d)", int(o))
	}
}

// Write is one (record, operation) pair of a batch.
type Write struct {
	op      Operation
	mapping func() (*KeyMapping, error)
	record  any
	run     func(ctx context.Context, ex core.Executor) (removed bool, err error)
}

// Operation returns the write's operation.
func (w Write) Operation() Operation { return w.op }

// Record returns the record pointer the write applies to.
func (w Write) Record() any { return w.record }

// InsertWrite inserts rec.
func InsertWrite[T any](rec *T) Write {
	return Write{op: OpInsert, mapping: MappingOf[T], record: rec, run: func(ctx context.Context, ex core.Executor) (bool, error) {
		return false, Insert(ctx, ex, rec)
	}}
}

// UpdateWrite updates rec.
func UpdateWrite[T any](rec *T) Write {
	return Write{op: OpUpdate, mapping: MappingOf[T], record: rec, run: func(ctx context.Context, ex core.Executor) (bool, error) {
		return false, Update(ctx, ex, rec)
	}}
}

// SaveWrite saves rec.
func SaveWrite[T any](rec *T) Write {
	return Write{op: OpSave, mapping: MappingOf[T], record: rec, run: func(ctx context.Context, ex core.Executor) (bool, error) {
		return false, Save(ctx, ex, rec)
	}}
}

// DeleteWrite deletes rec.
func DeleteWrite[T any](rec *T) Write {
	return Write{op: OpDelete, mapping: MappingOf[T], record: rec, run: func(ctx context.Context, ex core.Executor) (bool, error) {
		return Delete(ctx, ex, rec)
	}}
}

// AfterApply returns a copy of the write that calls fn once the write has
// succeeded, still inside the batch transaction. Use it to copy a key
// assigned by storage into records written later in the batch.
func (w Write) AfterApply(fn func()) Write {
	run := w.run
	if run == nil || fn == nil {
		return w
	}
	w.run = func(ctx context.Context, ex core.Executor) (bool, error) {
		removed, err := run(ctx, ex)
		if err == nil {
			fn()
		}
		return removed, err
	}
	return w
}

// BatchOption configures ApplyBatch.
type BatchOption func(*batchConfig)

type batchConfig struct {
	preserveOrder bool
	logger        *slog.Logger
}

// OrderByDependencies orders writes by the foreign keys between their
// tables: inserts, updates and saves run parent tables first, then deletes
// run child tables first. Writes to the same table keep their relative
// order. This is the default.
func OrderByDependencies() BatchOption {
	return func(c *batchConfig) { c.preserveOrder = false }
}

// PreserveOrder runs the writes exactly as listed. The caller owns the
// ordering; storage enforces the foreign keys.
func PreserveOrder() BatchOption {
	return func(c *batchConfig) { c.preserveOrder = true }
}

// WithLogger sets the logger batch progress is reported to at Debug level.
func WithLogger(l *slog.Logger) BatchOption {
	return func(c *batchConfig) { c.logger = l }
}

// WriteOutcome reports one executed write.
type WriteOutcome struct {
	// Index is the write's position in the list given to ApplyBatch.
	Index     int
	Table     string
	Operation Operation
	// Removed is set for deletes that removed a row.
	Removed bool
}

// BatchResult lists the executed writes in execution order.
type BatchResult struct {
	Outcomes []WriteOutcome
}

// Counts returns the number of executed writes per operation.
func (r *BatchResult) Counts() map[Operation]int {
	counts := make(map[Operation]int)
	for _, o := range r.Outcomes {
		counts[o.Operation]++
	}
	return counts
}

// Batch is a list of writes applied atomically.
type Batch []Write

// Apply runs the batch with ApplyBatch.
func (b Batch) Apply(ctx context.Context, tr core.Transactor, opts ...BatchOption) (*BatchResult, error) {
	return ApplyBatch(ctx, tr, b, opts...)
}

// ApplyBatch runs writes in a single transaction of tr. Any failure rolls
// the whole batch back and is returned; the records of the batch are then
// restored to their state before the call, so keys assigned by storage or
// copied by AfterApply do not outlive the rollback. With the default ordering a cycle
// among the foreign keys of the involved tables fails the batch with
// *core.DependencyCycleError before any statement runs.
func ApplyBatch(ctx context.Context, tr core.Transactor, writes []Write, opts ...BatchOption) (*BatchResult, error) {
	cfg := batchConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	logger := cfg.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	planned := make([]plannedWrite, len(writes))
	for i, w := range writes {
		if w.run == nil {
			return nil, fmt.Errorf("batch write %d is empty; build writes with InsertWrite, UpdateWrite, SaveWrite or DeleteWrite", i)
		}
		m, err := w.mapping()
		if err != nil {
			return nil, err
		}
		planned[i] = plannedWrite{index: i, write: w, mapping: m}
	}

	if !cfg.preserveOrder {
		if err := orderWrites(planned); err != nil {
			return nil, err
		}
	}
	if logger.Enabled(ctx, slog.LevelDebug) {
		order := make([]string, len(planned))
		for i, pw := range planned {
			order[i] = pw.write.op.String() + " " + pw.mapping.table
		}
		logger.Debug("applying batch", "writes", len(planned), "preserve_order", cfg.preserveOrder, "order", order)
	}

	// keys assigned and copied during a rolled back batch must not survive it
	snapshots := make([]recordSnapshot, len(planned))
	for i, pw := range planned {
		snapshots[i] = snapshotRecord(pw.write.record)
	}

	result := &BatchResult{Outcomes: make([]WriteOutcome, 0, len(planned))}
	err := tr.WithTransaction(ctx, func(ctx context.Context, tx core.Executor) error {
		for _, pw := range planned {
			removed, err := pw.write.run(ctx, tx)
			if err != nil {
				logger.Debug("batch write failed", "index", pw.index, "op", pw.write.op.String(), "table", pw.mapping.table, "error", err)
				return fmt.Errorf("failed to %s %s (batch write %d): %w", pw.write.op, pw.mapping.table, pw.index, err)
			}
			result.Outcomes = append(result.Outcomes, WriteOutcome{
				Index:     pw.index,
				Table:     pw.mapping.table,
				Operation: pw.write.op,
				Removed:   removed,
			})
		}
		return nil
	})
	if err != nil {
		for _, snap := range snapshots {
			snap.restore()
		}
		return nil, err
	}
	logger.Debug("batch committed", "writes", len(result.Outcomes))
	return result, nil
}

// recordSnapshot is a copy of a record taken before a batch runs.
type recordSnapshot struct {
	target reflect.Value
	saved  reflect.Value
}

func snapshotRecord(rec any) recordSnapshot {
	rv := reflect.ValueOf(rec)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return recordSnapshot{}
	}
	saved := reflect.New(rv.Elem().Type()).Elem()
	saved.Set(rv.Elem())
	return recordSnapshot{target: rv.Elem(), saved: saved}
}

func (s recordSnapshot) restore() {
	if s.target.IsValid() {
		s.target.Set(s.saved)
	}
}

type plannedWrite struct {
	index   int
	write   Write
	mapping *KeyMapping
}

// orderWrites sorts planned in place: non-deletes by ascending table rank,
// then deletes by descending rank. Ranks come from a topological sort of
// the tables involved and every table their foreign keys reach.
func orderWrites(planned []plannedWrite) error {
	rank, err := tableRanks(planned)
	if err != nil {
		return err
	}
	sort.SliceStable(planned, func(i, j int) bool {
		a, b := planned[i], planned[j]
		aDel, bDel := a.write.op == OpDelete, b.write.op == OpDelete
		if aDel != bDel {
			return !aDel
		}
		if aDel {
			return rank[a.mapping.table] > rank[b.mapping.table]
		}
		return rank[a.mapping.table] < rank[b.mapping.table]
	})
	return nil
}

func tableRanks(planned []plannedWrite) (map[string]int, error) {
	g := dag.NewGraph()
	mappings := make(map[string]*KeyMapping)

	var visit func(m *KeyMapping) error
	visit = func(m *KeyMapping) error {
		if _, ok := mappings[m.table]; ok {
			return nil
		}
		mappings[m.table] = m
		g.AddNode(m.table)
		for _, fk := range m.foreignKeys {
			if fk.TargetTable == m.table {
				// self references order rows within one table, which the
				// caller controls through list order
				continue
			}
			target, err := defaultRegistry.Mapping(fk.target)
			if err != nil {
				return err
			}
			if err := visit(target); err != nil {
				return err
			}
			if err := g.AddEdge(target.table, m.table); err != nil {
				return fmt.Errorf("failed to order batch: %w", err)
			}
		}
		return nil
	}
	for _, pw := range planned {
		if err := visit(pw.mapping); err != nil {
			return nil, err
		}
	}

	order, err := g.TopologicalSort()
	if err != nil {
		var cycle *dag.CycleError
		if errors.As(err, &cycle) {
			return nil, &core.DependencyCycleError{Cycle: cycle.Path}
		}
		return nil, err
	}
	rank := make(map[string]int, len(order))
	for i, table := range order {
		rank[table] = i
	}
	return rank, nil
}
