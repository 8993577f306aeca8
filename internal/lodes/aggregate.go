package lodes

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"

	"github.com/JakeFAU/census-pipeline/internal/config"
	"github.com/JakeFAU/census-pipeline/internal/fetchmerge"
	"github.com/JakeFAU/census-pipeline/internal/metrics"
	"github.com/JakeFAU/census-pipeline/internal/partition"
)

const aggregateDataset = "od_lodes"

// Origins a flow table can be keyed by.
const (
	OriginHome = "home"
	OriginWork = "work"
)

var prefixLengths = map[string]int{
	"state":       2,
	"county":      5,
	"supertract":  7,
	"tract":       11,
	"block_group": 12,
}

// PrefixLength is the number of leading block-geocode characters that
// identify geography.
func PrefixLength(geography string) (int, error) {
	n, ok := prefixLengths[geography]
	if !ok {
		return 0, fmt.Errorf("%w: geography %q cannot be derived from block geocodes", config.ErrInvalidInput, geography)
	}
	return n, nil
}

// FlowRow is one aggregated origin-destination pair. Column names match
// what the map site reads.
type FlowRow struct {
	WorkGeo string `parquet:"w_geo"`
	HomeGeo string `parquet:"h_geo"`
	S000    int64  `parquet:"s000"`
	SA01    int64  `parquet:"sa01"`
	SA02    int64  `parquet:"sa02"`
	SA03    int64  `parquet:"sa03"`
	SE01    int64  `parquet:"se01"`
	SE02    int64  `parquet:"se02"`
	SE03    int64  `parquet:"se03"`
	SI01    int64  `parquet:"si01"`
	SI02    int64  `parquet:"si02"`
	SI03    int64  `parquet:"si03"`
}

// Jobs returns the counts in JobColumns order.
func (r FlowRow) Jobs() Jobs {
	return Jobs{r.S000, r.SA01, r.SA02, r.SA03, r.SE01, r.SE02, r.SE03, r.SI01, r.SI02, r.SI03}
}

func newFlowRow(work, home string, j Jobs) FlowRow {
	return FlowRow{
		WorkGeo: work, HomeGeo: home,
		S000: j[0], SA01: j[1], SA02: j[2], SA03: j[3],
		SE01: j[4], SE02: j[5], SE03: j[6],
		SI01: j[7], SI02: j[8], SI03: j[9],
	}
}

// Rollup truncates both geocodes of every row to prefix characters and sums
// job counts per pair. Rows are ordered by the origin side first: home
// geocode for OriginHome, work geocode for OriginWork.
func Rollup(rows []Row, prefix int, origin string) ([]FlowRow, error) {
	if origin != OriginHome && origin != OriginWork {
		return nil, fmt.Errorf("%w: origin %q", config.ErrInvalidInput, origin)
	}
	type pair struct{ work, home string }
	sums := make(map[pair]*Jobs)
	for _, r := range rows {
		if len(r.WorkGeocode) < prefix || len(r.HomeGeocode) < prefix {
			return nil, fmt.Errorf("geocode %q/%q shorter than %d", r.WorkGeocode, r.HomeGeocode, prefix)
		}
		p := pair{work: r.WorkGeocode[:prefix], home: r.HomeGeocode[:prefix]}
		j, ok := sums[p]
		if !ok {
			j = new(Jobs)
			sums[p] = j
		}
		j.Add(r.Jobs)
	}

	out := make([]FlowRow, 0, len(sums))
	for p, j := range sums {
		out = append(out, newFlowRow(p.work, p.home, *j))
	}
	sort.Slice(out, func(i, k int) bool {
		a, b := out[i], out[k]
		if origin == OriginHome {
			if a.HomeGeo != b.HomeGeo {
				return a.HomeGeo < b.HomeGeo
			}
			return a.WorkGeo < b.WorkGeo
		}
		if a.WorkGeo != b.WorkGeo {
			return a.WorkGeo < b.WorkGeo
		}
		return a.HomeGeo < b.HomeGeo
	})
	return out, nil
}

// AggregatePath is where the flow table for one partition lives under root.
func AggregatePath(root, year, geography, origin, state string) string {
	return partition.Local(filepath.Join(root, "intermediate", aggregateDataset), aggregateFields(year, geography, origin, state), state+".parquet")
}

func aggregateFields(year, geography, origin, state string) []partition.Field {
	return []partition.Field{
		partition.F(partition.Year, year),
		partition.F(partition.Geography, geography),
		partition.F(partition.Origin, origin),
		partition.F(partition.State, state),
	}
}

// WriteParquet writes rows to path.
func WriteParquet(path string, rows []FlowRow) error {
	if err := partition.EnsureDir(path); err != nil {
		return err
	}
	//nolint:gosec // path is built from the configured data root
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create flow table: %w", err)
	}
	w := parquet.NewGenericWriter[FlowRow](f, parquet.Compression(&parquet.Snappy))
	if _, err := w.Write(rows); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flush %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

// ReadParquet loads every row from path.
func ReadParquet(path string) ([]FlowRow, error) {
	//nolint:gosec // path is built from the configured data root
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open flow table: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat flow table: %w", err)
	}
	rows, err := parquet.Read[FlowRow](f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return rows, nil
}

// Aggregator rolls fetched main partitions up to flow tables.
type Aggregator struct {
	Exec   fetchmerge.Executor
	Logger *zap.Logger
	Root   string
}

// AggregateRequest selects the partitions to build.
type AggregateRequest struct {
	Year        string
	States      []string
	Geographies []string
	Origins     []string
}

// AggregateResult summarizes one run.
type AggregateResult struct {
	Written []string
	Failed  []string
}

// Aggregate builds one flow table per state, geography and origin from the
// main partitions under Root/lodes. A state whose partition is missing or
// unreadable is logged and skipped. When every state fails the error wraps
// fetchmerge.ErrNoRecords.
func (a *Aggregator) Aggregate(ctx context.Context, req AggregateRequest) (AggregateResult, error) {
	if len(req.States) == 0 {
		return AggregateResult{}, fmt.Errorf("%w: no states configured", config.ErrInvalidInput)
	}
	prefixes := make(map[string]int, len(req.Geographies))
	for _, g := range req.Geographies {
		n, err := PrefixLength(g)
		if err != nil {
			return AggregateResult{}, err
		}
		prefixes[g] = n
	}
	for _, o := range req.Origins {
		if o != OriginHome && o != OriginWork {
			return AggregateResult{}, fmt.Errorf("%w: origin %q", config.ErrInvalidInput, o)
		}
	}

	logger := a.logger().With(zap.String("year", req.Year))
	buildOne := func(_ context.Context, state string) ([]string, error) {
		rows, err := ReadFile(RawPath(a.Root, req.Year, Key{Part: "main", State: state}))
		if err != nil {
			return nil, err
		}
		var written []string
		for _, g := range req.Geographies {
			for _, o := range req.Origins {
				flows, err := Rollup(rows, prefixes[g], o)
				if err != nil {
					return written, fmt.Errorf("%s %s: %w", g, o, err)
				}
				path := AggregatePath(a.Root, req.Year, g, o, state)
				if err := WriteParquet(path, flows); err != nil {
					return written, err
				}
				metrics.ObserveRowsWritten(aggregateDataset, len(flows))
				written = append(written, path)
			}
		}
		return written, nil
	}

	outcomes := fetchmerge.Fetch(ctx, a.Exec, logger, aggregateDataset, req.States, buildOne)
	var res AggregateResult
	for _, o := range fetchmerge.Failed(outcomes) {
		res.Failed = append(res.Failed, o.Key)
	}
	for _, paths := range fetchmerge.Succeeded(outcomes) {
		res.Written = append(res.Written, paths...)
	}
	sort.Strings(res.Written)
	if len(res.Failed) == len(req.States) {
		return res, fmt.Errorf("%s %s: %w", aggregateDataset, req.Year, fetchmerge.ErrNoRecords)
	}
	logger.Info("flow tables written", zap.Int("files", len(res.Written)), zap.Int("failed_states", len(res.Failed)))
	return res, nil
}

func (a *Aggregator) logger() *zap.Logger {
	if a.Logger == nil {
		return zap.NewNop()
	}
	return a.Logger
}
