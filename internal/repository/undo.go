package repository

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/stockbook/stockbook/internal/domain/errs"
)

// UndoLog records compensating actions for writes made without a store-side
// transaction. Rollback replays them newest first.
type UndoLog struct {
	entries []undoEntry
}

type undoEntry struct {
	label string
	undo  func(ctx context.Context) error
}

// Push registers the compensation for a write that has just succeeded.
func (l *UndoLog) Push(label string, undo func(ctx context.Context) error) {
	l.entries = append(l.entries, undoEntry{label: label, undo: undo})
}

// Len reports how many writes are recorded.
func (l *UndoLog) Len() int { return len(l.entries) }

// Rollback undoes every recorded write and returns cause annotated with the
// outcome. A PersistenceError cause gets RolledBack/Pending filled in; any other
// cause is returned as is when the rollback was clean and wrapped in a
// PersistenceError when some writes could not be undone.
func (l *UndoLog) Rollback(ctx context.Context, cause error, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	var pending []string
	for i := len(l.entries) - 1; i >= 0; i-- {
		entry := l.entries[i]
		if err := entry.undo(ctx); err != nil {
			logger.Error("compensation failed", zap.String("write", entry.label), zap.Error(err))
			pending = append(pending, entry.label)
			continue
		}
		logger.Warn("write compensated", zap.String("write", entry.label))
	}
	l.entries = nil

	var pe *errs.PersistenceError
	if errors.As(cause, &pe) {
		pe.RolledBack = len(pending) == 0
		pe.Pending = pending
		return cause
	}
	if len(pending) == 0 {
		return cause
	}
	return &errs.PersistenceError{Op: "rollback", Step: "compensate", Pending: pending, Err: cause}
}
