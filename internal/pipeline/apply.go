package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mkessler-dev/ledgermatch/internal/sources"
)

// Apply pushes proposed changes back to the transaction source. Flag changes
// are never applied automatically; they exist for manual review. Errors stop
// the apply at the failing change — the source treats re-applying already
// applied changes as a no-op, so the caller can simply retry the run.
func Apply(ctx context.Context, src sources.TransactionSource, changes []ProposedChange, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}

	applied := 0
	for _, change := range changes {
		switch change.Type {
		case ChangeRecategorize:
			if err := src.UpdateCategory(ctx, change.TransactionID, change.Category); err != nil {
				return applied, fmt.Errorf("recategorizing %s: %w", change.TransactionID, err)
			}
		case ChangeSplit:
			parts := make([]sources.SplitPart, len(change.Splits))
			for i, s := range change.Splits {
				parts[i] = sources.SplitPart{Amount: s.Amount, Category: s.Category, Notes: s.Notes}
			}
			if err := src.UpdateSplits(ctx, change.TransactionID, parts); err != nil {
				return applied, fmt.Errorf("splitting %s: %w", change.TransactionID, err)
			}
		case ChangeFlag:
			logger.Info("skipping flagged transaction", "transaction_id", change.TransactionID, "reason", change.Reason)
			continue
		default:
			return applied, fmt.Errorf("unknown change type %q for %s", change.Type, change.TransactionID)
		}
		applied++
	}

	return applied, nil
}
