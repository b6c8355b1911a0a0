package metrics

import (
	"context"
	"time"

	"model-api/chainclient"
	"model-api/logging"
	"model-api/store"

	"github.com/pkg/errors"
)

// Collector periodically samples each active model's on-chain EMA score and
// appends it to the performance history. Sample timestamps are truncated to
// the collection interval, so an overlapping re-run writes no duplicates.
type Collector struct {
	store    *store.Store
	chain    chainclient.ChainBridge
	interval time.Duration
}

func NewCollector(st *store.Store, chain chainclient.ChainBridge, interval time.Duration) *Collector {
	return &Collector{store: st, chain: chain, interval: interval}
}

func (c *Collector) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				logging.Info("Metrics collector stopped", logging.Metrics)
				return
			case <-ticker.C:
				if err := c.CollectOnce(ctx); err != nil {
					logging.Error("Metrics collection failed", logging.Metrics, "err", err)
				}
			}
		}
	}()
}

// CollectOnce samples every active model. Per-model failures are logged and
// skipped so one unreachable topic cannot starve the rest.
func (c *Collector) CollectOnce(ctx context.Context) error {
	models, err := c.store.ListActiveModels(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to list active models")
	}

	timestamp := time.Now().UTC().Truncate(c.interval)
	for _, model := range models {
		if err := c.collectModel(ctx, model, timestamp); err != nil {
			logging.Warn("Failed to collect performance sample", logging.Metrics,
				"modelId", model.Id, "topicId", model.TopicId, "err", err)
		}
	}
	return nil
}

func (c *Collector) collectModel(ctx context.Context, model store.Model, timestamp time.Time) error {
	w, ok, err := c.store.GetWallet(ctx, model.WalletId)
	if err != nil {
		return errors.Wrap(err, "failed to load wallet")
	}
	if !ok {
		return errors.Errorf("wallet %s does not exist", model.WalletId)
	}

	perf, err := c.chain.GetWorkerPerformance(ctx, model.TopicId, w.Address)
	if err != nil {
		return errors.Wrap(err, "failed to query worker performance")
	}
	if perf == nil {
		// No score yet, the worker has not been included in an epoch.
		return nil
	}

	return c.store.InsertPerformanceMetric(ctx, store.PerformanceMetric{
		ModelId:   model.Id,
		Timestamp: timestamp,
		EmaScore:  perf.EmaScore,
	})
}
