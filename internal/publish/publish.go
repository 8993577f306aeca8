// Package publish uploads aggregated flow tables to the public bucket,
// skipping objects whose remote copy already has the same MD5.
package publish

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/census-pipeline/internal/config"
	"github.com/JakeFAU/census-pipeline/internal/ledger"
	"github.com/JakeFAU/census-pipeline/internal/lodes"
	"github.com/JakeFAU/census-pipeline/internal/metrics"
	"github.com/JakeFAU/census-pipeline/internal/notify"
	"github.com/JakeFAU/census-pipeline/internal/partition"
	"github.com/JakeFAU/census-pipeline/internal/storage"
)

// Hasher computes the hex digest compared against remote objects.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock supplies ledger timestamps.
type Clock interface {
	Now() time.Time
}

// Config carries the run-scoped settings.
type Config struct {
	Root  string
	Topic string
	RunID string
}

// Publisher pushes local partitions to a Store.
type Publisher struct {
	store    storage.Store
	hasher   Hasher
	recorder ledger.Recorder
	notifier notify.Notifier
	clock    Clock
	cfg      Config
	logger   *zap.Logger
}

// New wires a Publisher. notifier may be nil, in which case nothing is
// announced.
func New(
	store storage.Store,
	hasher Hasher,
	recorder ledger.Recorder,
	notifier notify.Notifier,
	clock Clock,
	cfg Config,
	logger *zap.Logger,
) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		store:    store,
		hasher:   hasher,
		recorder: recorder,
		notifier: notifier,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
	}
}

// Request selects the partitions to publish.
type Request struct {
	Dataset   string
	Year      string
	Geography string
	States    []string
	Origins   []string
}

// Result lists object keys by outcome.
type Result struct {
	Uploaded []string
	Skipped  []string
	Absent   []string
}

// ObjectKey is the remote key for one partition, e.g.
// od/year=2022/geography=tract/origin=home/state=wi/od-2022-tract-home-wi.parquet.
func ObjectKey(dataset, year, geography, origin, state string) string {
	name := fmt.Sprintf("%s-%s-%s-%s-%s.parquet", dataset, year, geography, origin, state)
	return dataset + "/" + partition.Path(keyFields(year, geography, origin, state), name)
}

func keyFields(year, geography, origin, state string) []partition.Field {
	return []partition.Field{
		partition.F(partition.Year, year),
		partition.F(partition.Geography, geography),
		partition.F(partition.Origin, origin),
		partition.F(partition.State, state),
	}
}

// Publish walks every state and origin in order. A missing local file is
// logged and recorded as absent. Any store or ledger error stops the run.
func (p *Publisher) Publish(ctx context.Context, req Request) (Result, error) {
	if req.Dataset == "" {
		return Result{}, fmt.Errorf("%w: dataset is required", config.ErrInvalidInput)
	}
	for _, s := range req.States {
		for _, o := range req.Origins {
			if err := partition.Validate(keyFields(req.Year, req.Geography, o, s)); err != nil {
				return Result{}, fmt.Errorf("%w: %w", config.ErrInvalidInput, err)
			}
		}
	}

	logger := p.logger.With(
		zap.String("dataset", req.Dataset),
		zap.String("year", req.Year),
		zap.String("geography", req.Geography),
	)
	var res Result
	for _, state := range req.States {
		for _, origin := range req.Origins {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			key := ObjectKey(req.Dataset, req.Year, req.Geography, origin, state)
			path := lodes.AggregatePath(p.cfg.Root, req.Year, req.Geography, origin, state)
			action, err := p.publishOne(ctx, logger, req, origin, state, key, path)
			if err != nil {
				return res, err
			}
			switch action {
			case ledger.ActionUploaded:
				res.Uploaded = append(res.Uploaded, key)
			case ledger.ActionSkipped:
				res.Skipped = append(res.Skipped, key)
			case ledger.ActionAbsent:
				res.Absent = append(res.Absent, key)
			}
		}
	}
	logger.Info("publish finished",
		zap.Int("uploaded", len(res.Uploaded)),
		zap.Int("skipped", len(res.Skipped)),
		zap.Int("absent", len(res.Absent)),
	)
	return res, nil
}

func (p *Publisher) publishOne(
	ctx context.Context,
	logger *zap.Logger,
	req Request,
	origin, state, key, path string,
) (string, error) {
	logger = logger.With(zap.String("key", key))

	//nolint:gosec // path is built from the configured data root
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn("local partition missing", zap.String("path", path))
		return ledger.ActionAbsent, p.record(ctx, req.Dataset, key, "", ledger.ActionAbsent, "")
	}
	if err != nil {
		return "", fmt.Errorf("read partition: %w", err)
	}
	sum, err := p.hasher.Hash(data)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}

	status, err := p.store.Head(ctx, key, sum)
	if err != nil {
		return "", fmt.Errorf("head %s: %w", key, err)
	}
	if status == storage.Match {
		logger.Info("remote object up to date")
		return ledger.ActionSkipped, p.record(ctx, req.Dataset, key, sum, ledger.ActionSkipped, "")
	}

	uri, err := p.store.Put(ctx, key, data, sum)
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	logger.Info("object uploaded", zap.Stringer("previous", status), zap.String("uri", uri), zap.Int("bytes", len(data)))
	if err := p.record(ctx, req.Dataset, key, sum, ledger.ActionUploaded, uri); err != nil {
		return "", err
	}
	p.announce(ctx, logger, notify.ObjectPublished{
		RunID:       p.cfg.RunID,
		Dataset:     req.Dataset,
		Year:        req.Year,
		Geography:   req.Geography,
		Origin:      origin,
		State:       state,
		Key:         key,
		URI:         uri,
		MD5:         sum,
		PublishedAt: p.now(),
	})
	return ledger.ActionUploaded, nil
}

func (p *Publisher) record(ctx context.Context, dataset, key, sum, action, uri string) error {
	metrics.ObservePublish(action)
	if p.recorder == nil {
		return nil
	}
	err := p.recorder.Record(ctx, ledger.Entry{
		RunID:      p.cfg.RunID,
		Dataset:    dataset,
		Key:        key,
		MD5:        sum,
		Action:     action,
		URI:        uri,
		RecordedAt: p.now(),
	})
	if err != nil {
		return fmt.Errorf("record %s: %w", key, err)
	}
	return nil
}

// announce is best effort: the object is already public when it runs.
func (p *Publisher) announce(ctx context.Context, logger *zap.Logger, msg notify.ObjectPublished) {
	if p.notifier == nil || p.cfg.Topic == "" {
		return
	}
	id, err := p.notifier.Publish(ctx, p.cfg.Topic, msg)
	if err != nil {
		logger.Warn("notification failed", zap.String("topic", p.cfg.Topic), zap.Error(err))
		return
	}
	logger.Debug("notification sent", zap.String("message_id", id))
}

func (p *Publisher) now() time.Time {
	if p.clock == nil {
		return time.Now().UTC()
	}
	return p.clock.Now()
}
