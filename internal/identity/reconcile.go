package identity

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/fullcount-labs/athlete-cli/internal/model"
	"github.com/fullcount-labs/athlete-cli/internal/store"
)

// Reconcile recomputes every athlete's per-domain has-data flags and session
// counts from the fact tables, then returns how many athletes have data in
// each domain. The fact tables are the source of truth; the denormalized
// columns only ever catch up to them.
func Reconcile(ctx context.Context, st store.Store) (map[string]int64, error) {
	counts, err := st.ReconcileDomainStats(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "identity: reconcile domain stats")
	}
	for _, domain := range model.Domains {
		zap.L().Info("reconciled domain",
			zap.String("domain", domain),
			zap.Int64("athletes_with_data", counts[domain]),
		)
	}
	return counts, nil
}
