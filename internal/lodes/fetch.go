package lodes

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/census-pipeline/internal/config"
	"github.com/JakeFAU/census-pipeline/internal/fetcher/httpfetch"
	"github.com/JakeFAU/census-pipeline/internal/fetchmerge"
	"github.com/JakeFAU/census-pipeline/internal/metrics"
	"github.com/JakeFAU/census-pipeline/internal/partition"
)

const dataset = "lodes"

// Downloader streams a remote file to dir/name.
type Downloader interface {
	Download(ctx context.Context, rawURL, dir, name string) (string, int64, error)
}

// Fetcher downloads origin-destination files and writes one raw partition
// per (part, state).
type Fetcher struct {
	Downloader Downloader
	Exec       fetchmerge.Executor
	Logger     *zap.Logger
	BaseURL    string
	Root       string
	TempDir    string
}

// FetchResult summarizes one run.
type FetchResult struct {
	Written []string
	Rows    int
	Failed  []Key
}

// Fetch downloads both parts for every state and writes the successful ones
// under Root/lodes. When every key fails nothing is written and the error
// wraps fetchmerge.ErrNoRecords.
func (f *Fetcher) Fetch(ctx context.Context, year string, states []string) (FetchResult, error) {
	if len(states) == 0 {
		return FetchResult{}, fmt.Errorf("%w: no states configured", config.ErrInvalidInput)
	}
	keys := Keys(states)
	for _, k := range keys {
		if err := partition.Validate(rawFields(year, k)); err != nil {
			return FetchResult{}, err
		}
	}

	logger := f.logger().With(zap.String("year", year))
	scratch, err := httpfetch.NewScratch(f.TempDir, "lodes-")
	if err != nil {
		return FetchResult{}, err
	}
	defer func() {
		if cerr := scratch.Close(); cerr != nil {
			logger.Warn("failed to remove scratch dir", zap.Error(cerr))
		}
	}()

	fetchOne := func(ctx context.Context, k Key) (Record, error) {
		dir, err := scratch.Sub(k.Part + "-" + k.State + "-")
		if err != nil {
			return Record{}, err
		}
		path, _, err := f.Downloader.Download(ctx, URL(f.BaseURL, year, k), dir, k.State+".csv.gz")
		if err != nil {
			return Record{}, err
		}
		rows, err := ReadFile(path)
		if err != nil {
			return Record{}, err
		}
		return Record{Key: k, Rows: rows}, nil
	}

	outcomes := fetchmerge.Fetch(ctx, f.Exec, logger, dataset, keys, fetchOne)
	res := FetchResult{}
	for _, o := range fetchmerge.Failed(outcomes) {
		res.Failed = append(res.Failed, o.Key)
	}
	records := fetchmerge.Succeeded(outcomes)
	if len(records) == 0 {
		return res, fmt.Errorf("%s %s: %w", dataset, year, fetchmerge.ErrNoRecords)
	}

	for _, rec := range records {
		path := RawPath(f.Root, year, rec.Key)
		if err := WriteFile(path, rec.Rows); err != nil {
			return res, err
		}
		metrics.ObserveRowsWritten(dataset, len(rec.Rows))
		res.Written = append(res.Written, path)
		res.Rows += len(rec.Rows)
		logger.Info("partition written",
			zap.String("part", rec.Key.Part),
			zap.String("state", rec.Key.State),
			zap.String("path", path),
			zap.Int("rows", len(rec.Rows)),
		)
	}
	return res, nil
}

func (f *Fetcher) logger() *zap.Logger {
	if f.Logger == nil {
		return zap.NewNop()
	}
	return f.Logger
}
