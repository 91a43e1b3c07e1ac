package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/gkobilansky/funnelstat/internal/config"
	"github.com/gkobilansky/funnelstat/internal/ledger"
	"github.com/gkobilansky/funnelstat/internal/store"
)

func openStore(cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case "memory":
		return store.NewMemoryStore(), nil
	case "sqlite", "":
		s, err := store.Open(cfg.Path)
		if err != nil {
			return nil, eris.Wrap(err, "failed to open database")
		}
		return s, nil
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// withLedger opens the store and a ledger over it, executes the function,
// and handles cleanup.
func (a *app) withLedger(fn func(st store.Store, l *ledger.Ledger) error) error {
	st, err := openStore(a.cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	l := ledger.New(st, ledger.WithLogger(zap.L()))
	defer l.Close()

	return fn(st, l)
}

// getExperiment maps store.ErrNotFound to a user-facing message.
func getExperiment(ctx context.Context, st store.Store, id string) (*store.Experiment, error) {
	exp, err := st.GetExperiment(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("experiment '%s' not found", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "failed to get experiment %s", id)
	}
	return exp, nil
}

func parseMetric(s string) (store.EventType, error) {
	if s == "" {
		return store.EventConverted, nil
	}
	return store.ParseEventType(strings.ToLower(strings.TrimSpace(s)))
}

func formatPercent(rate float64) string {
	if rate == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.2f%%", rate*100)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
