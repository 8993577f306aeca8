package tiger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"

	"github.com/JakeFAU/census-pipeline/internal/fetcher/httpfetch"
	"github.com/JakeFAU/census-pipeline/internal/fetchmerge"
	"github.com/JakeFAU/census-pipeline/internal/metrics"
	"github.com/JakeFAU/census-pipeline/internal/partition"
)

const dataset = "cb"

// Downloader streams a remote file to dir/name.
type Downloader interface {
	Download(ctx context.Context, rawURL, dir, name string) (string, int64, error)
}

// Fetcher downloads boundary archives and merges them into one GeoJSON
// layer per geography.
type Fetcher struct {
	Downloader Downloader
	Exec       fetchmerge.Executor
	Logger     *zap.Logger
	BaseURL    string
	// Root is the local data tree; output lands under Root/cb.
	Root string
	// TempDir is the parent of the per-run scratch directory. Empty means
	// os.TempDir.
	TempDir string
}

// Request names the boundary layer to build.
type Request struct {
	Year      string
	Geography string
	States    []string
}

// Result summarizes one run.
type Result struct {
	Path     string
	Features int
	Failed   []string
}

// Fetch downloads every archive for req, merges the successful ones and
// writes Root/cb/year=Y/geography=G/G.geojson. Unknown geographies and
// states are rejected before any request is made. When every key fails
// nothing is written and the error wraps fetchmerge.ErrNoRecords.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (Result, error) {
	geo, err := LookupGeography(req.Geography)
	if err != nil {
		return Result{}, err
	}
	keys, err := geo.Keys(req.States)
	if err != nil {
		return Result{}, err
	}
	fields := []partition.Field{
		partition.F(partition.Year, req.Year),
		partition.F(partition.Geography, geo.Name),
	}
	if err := partition.Validate(fields); err != nil {
		return Result{}, err
	}

	logger := f.logger().With(zap.String("year", req.Year), zap.String("geography", geo.Name))
	scratch, err := httpfetch.NewScratch(f.TempDir, "cb-")
	if err != nil {
		return Result{}, err
	}
	defer func() {
		if cerr := scratch.Close(); cerr != nil {
			logger.Warn("failed to remove scratch dir", zap.Error(cerr))
		}
	}()

	fetchOne := func(ctx context.Context, key string) ([]Feature, error) {
		dir, err := scratch.Sub(key + "-")
		if err != nil {
			return nil, err
		}
		name := geo.ArchiveName(req.Year, key)
		archive, _, err := f.Downloader.Download(ctx, geo.URL(f.BaseURL, req.Year, key), dir, name)
		if err != nil {
			return nil, err
		}
		features, err := LoadArchive(archive, filepath.Join(dir, "shp"), logger)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", name, err)
		}
		if len(features) > 0 {
			if _, ok := features[0].Attrs["geoid"]; !ok {
				return nil, fmt.Errorf("load %s: no geoid attribute", name)
			}
		}
		return features, nil
	}

	merge := func(records [][]Feature) (*geojson.FeatureCollection, error) {
		return Merge(geo, records), nil
	}

	fc, outcomes, err := fetchmerge.FetchMerge(ctx, f.Exec, logger, dataset, keys, fetchOne, merge)
	if err != nil {
		return Result{}, err
	}
	res := Result{Features: len(fc.Features)}
	for _, o := range fetchmerge.Failed(outcomes) {
		res.Failed = append(res.Failed, o.Key)
	}
	if len(fetchmerge.Succeeded(outcomes)) == 0 {
		return res, fmt.Errorf("%s %s: %w", dataset, geo.Name, fetchmerge.ErrNoRecords)
	}

	res.Path = partition.Local(filepath.Join(f.Root, dataset), fields, geo.Name+".geojson")
	if err := WriteGeoJSON(res.Path, fc); err != nil {
		return res, err
	}
	metrics.ObserveRowsWritten(dataset, res.Features)
	logger.Info("boundary layer written",
		zap.String("path", res.Path),
		zap.Int("features", res.Features),
		zap.Int("failed_keys", len(res.Failed)),
	)
	return res, nil
}

func (f *Fetcher) logger() *zap.Logger {
	if f.Logger == nil {
		return zap.NewNop()
	}
	return f.Logger
}

// Merge concatenates records and keeps the output columns: id (from geoid),
// plus name for geographies that carry one.
func Merge(geo Geography, records [][]Feature) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, rec := range records {
		for _, feat := range rec {
			out := geojson.NewFeature(feat.Geometry)
			out.Properties["id"] = feat.Attrs["geoid"]
			if geo.KeepName {
				out.Properties["name"] = feat.Attrs["name"]
			}
			fc.Append(out)
		}
	}
	return fc
}

// WriteGeoJSON writes fc to path, creating parent directories.
func WriteGeoJSON(path string, fc *geojson.FeatureCollection) error {
	if err := partition.EnsureDir(path); err != nil {
		return err
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal geojson: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// ReadGeoJSON loads a feature collection from path.
func ReadGeoJSON(path string) (*geojson.FeatureCollection, error) {
	//nolint:gosec // path is built from the configured data root
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read layer: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return fc, nil
}
