// Package auditlog is the append-only audit trail of the Fleet Store
// Adapter (§4.1, §9): InductionDecision and OptimizationRun records,
// keyed by id and written once, held in an embedded badger key-value
// store rather than the relational tables sqlstore owns.
package auditlog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/metrofleet/induction/internal/apperr"
	"github.com/metrofleet/induction/internal/domain"
)

const (
	decisionPrefix = "decision:"
	runPrefix      = "run:"
)

// Log is a badger-backed AuditLog implementation, satisfying the
// sqlstore.AuditLog seam.
type Log struct {
	db *badger.DB
}

// Open opens (creating if necessary) the badger database at path.
func Open(path string) (*Log, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Log{db: db}, nil
}

// Close releases the underlying database.
func (l *Log) Close() error { return l.db.Close() }

// PutDecision writes one induction decision, keyed by its id.
func (l *Log) PutDecision(ctx context.Context, decision domain.InductionDecision) error {
	return l.put(decisionPrefix+decision.ID, decision)
}

// GetDecision looks up a decision by id.
func (l *Log) GetDecision(ctx context.Context, decisionID string) (domain.InductionDecision, error) {
	var out domain.InductionDecision
	err := l.get(decisionPrefix+decisionID, &out)
	if err != nil {
		return domain.InductionDecision{}, err
	}
	return out, nil
}

// PutRun writes one optimization run, keyed by its id.
func (l *Log) PutRun(ctx context.Context, run domain.OptimizationRun) error {
	return l.put(runPrefix+run.ID, run)
}

// GetRun looks up a run by id.
func (l *Log) GetRun(ctx context.Context, runID string) (domain.OptimizationRun, error) {
	var out domain.OptimizationRun
	err := l.get(runPrefix+runID, &out)
	if err != nil {
		return domain.OptimizationRun{}, err
	}
	return out, nil
}

// ListDecisionsSince scans every decision generated at or after since,
// for operator-facing audit queries (§9 "decisions are retained
// indefinitely for audit").
func (l *Log) ListDecisionsSince(ctx context.Context, since time.Time) ([]domain.InductionDecision, error) {
	var out []domain.InductionDecision
	err := l.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(decisionPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			var d domain.InductionDecision
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &d)
			}); err != nil {
				return err
			}
			if !d.GeneratedAt.Before(since) {
				out = append(out, d)
			}
		}
		return nil
	})
	return out, err
}

func (l *Log) put(key string, value any) error {
	buf, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return l.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), buf)
	})
}

func (l *Log) get(key string, out any) error {
	err := l.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, out)
		})
	})
	if err == badger.ErrKeyNotFound {
		return apperr.New(apperr.KindNotFound, "audit record not found").WithDetails(key)
	}
	return err
}
