package tiger

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	shp "github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/project"
	"go.uber.org/zap"

	"github.com/JakeFAU/census-pipeline/internal/schema"
)

var (
	// ErrNoShapefile is returned when an archive holds no .shp file.
	ErrNoShapefile = errors.New("shapefile not found in archive")
	// ErrUnsupportedCRS is returned for projections that cannot be mapped to
	// EPSG:4326.
	ErrUnsupportedCRS = errors.New("unsupported coordinate reference system")
)

// Feature is one shape with its attribute row. Attribute names are
// normalized with schema.NormalizeColumn.
type Feature struct {
	Geometry orb.Geometry
	Attrs    map[string]string
}

// crs identifies the handful of reference systems boundary files ship in.
type crs int

const (
	// geographic covers NAD83 and WGS84 longitude/latitude. The datum shift
	// between them is below a metre, so coordinates pass through unchanged.
	geographic crs = iota
	webMercator
)

// LoadArchive unpacks a zipped shapefile into dir and reads it, returning
// features in EPSG:4326.
func LoadArchive(archive, dir string, logger *zap.Logger) ([]Feature, error) {
	if err := unzip(archive, dir); err != nil {
		return nil, err
	}
	path, err := findShapefile(dir)
	if err != nil {
		return nil, err
	}
	return ReadShapefile(path, logger)
}

// ReadShapefile reads polygon features from path. Non-polygon shapes are
// skipped. When two columns normalize to the same name (GEOID20 and GEOID)
// the first one is kept and the collision is logged.
func ReadShapefile(path string, logger *zap.Logger) ([]Feature, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ref, err := detectCRS(strings.TrimSuffix(path, filepath.Ext(path)) + ".prj")
	if err != nil {
		return nil, err
	}

	r, err := shp.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open shapefile %s: %w", path, err)
	}
	defer func() {
		_ = r.Close()
	}()

	fields := r.Fields()
	names := make([]string, len(fields))
	keep := make([]bool, len(fields))
	seen := make(map[string]string, len(fields))
	for i, f := range fields {
		names[i] = schema.NormalizeColumn(f.String())
		if first, dup := seen[names[i]]; dup {
			logger.Warn("attribute columns collide after normalization",
				zap.String("path", path),
				zap.String("column", names[i]),
				zap.String("kept", first),
				zap.String("dropped", f.String()),
			)
			continue
		}
		seen[names[i]] = f.String()
		keep[i] = true
	}

	var features []Feature
	for r.Next() {
		idx, shape := r.Shape()
		geom, ok := polygonGeometry(shape)
		if !ok {
			continue
		}
		if ref == webMercator {
			geom = project.Geometry(geom, project.Mercator.ToWGS84)
		}
		attrs := make(map[string]string, len(names))
		for i, name := range names {
			if keep[i] {
				attrs[name] = strings.TrimSpace(r.ReadAttribute(idx, i))
			}
		}
		features = append(features, Feature{Geometry: geom, Attrs: attrs})
	}
	return features, nil
}

// polygonGeometry converts shapefile rings into a Polygon or MultiPolygon.
// Shapefile outer rings run clockwise and holes counter-clockwise; output
// rings follow the GeoJSON convention instead.
func polygonGeometry(shape shp.Shape) (orb.Geometry, bool) {
	poly, ok := shape.(*shp.Polygon)
	if !ok || len(poly.Points) == 0 {
		return nil, false
	}

	var mp orb.MultiPolygon
	for i := range poly.Parts {
		start := int(poly.Parts[i])
		end := len(poly.Points)
		if i+1 < len(poly.Parts) {
			end = int(poly.Parts[i+1])
		}
		if start >= end {
			continue
		}
		ring := make(orb.Ring, 0, end-start+1)
		for _, pt := range poly.Points[start:end] {
			ring = append(ring, orb.Point{pt.X, pt.Y})
		}
		if !ring.Closed() {
			ring = append(ring, ring[0])
		}

		if ring.Orientation() == orb.CCW {
			if owner := holeOwner(mp, ring); owner >= 0 {
				ring.Reverse()
				mp[owner] = append(mp[owner], ring)
				continue
			}
		} else {
			ring.Reverse()
		}
		mp = append(mp, orb.Polygon{ring})
	}

	switch len(mp) {
	case 0:
		return nil, false
	case 1:
		return mp[0], true
	default:
		return mp, true
	}
}

// holeOwner returns the index of the polygon whose outer ring contains the
// hole, falling back to the most recent polygon, or -1 when there is none.
func holeOwner(mp orb.MultiPolygon, hole orb.Ring) int {
	if len(mp) == 0 {
		return -1
	}
	for i := len(mp) - 1; i >= 0; i-- {
		if planar.RingContains(mp[i][0], hole[0]) {
			return i
		}
	}
	return len(mp) - 1
}

// detectCRS inspects the .prj WKT. Boundary files without one are assumed
// to be NAD83.
func detectCRS(prjPath string) (crs, error) {
	//nolint:gosec // path comes from a freshly extracted archive
	data, err := os.ReadFile(prjPath)
	if errors.Is(err, fs.ErrNotExist) {
		return geographic, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read projection %s: %w", prjPath, err)
	}

	wkt := strings.ToUpper(strings.TrimSpace(string(data)))
	switch {
	case strings.HasPrefix(wkt, "GEOGCS") && knownGeographicDatum(wkt):
		return geographic, nil
	case strings.HasPrefix(wkt, "PROJCS") && isWebMercator(wkt):
		return webMercator, nil
	default:
		name := wkt
		if len(name) > 64 {
			name = name[:64]
		}
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedCRS, name)
	}
}

func knownGeographicDatum(wkt string) bool {
	for _, d := range []string{"NAD83", "NORTH_AMERICAN_1983", "WGS_1984", "WGS 84", "WGS84"} {
		if strings.Contains(wkt, d) {
			return true
		}
	}
	return false
}

func isWebMercator(wkt string) bool {
	for _, m := range []string{"PSEUDO", "WEB_MERCATOR", "AUXILIARY_SPHERE", "3857"} {
		if strings.Contains(wkt, m) {
			return true
		}
	}
	return false
}

func findShapefile(dir string) (string, error) {
	var found []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".shp") {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("scan %s: %w", dir, err)
	}
	if len(found) == 0 {
		return "", ErrNoShapefile
	}
	sort.Strings(found)
	return found[0], nil
}

func unzip(archive, dir string) error {
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return fmt.Errorf("open archive %s: %w", archive, err)
	}
	defer func() {
		_ = zr.Close()
	}()

	root := filepath.Clean(dir) + string(os.PathSeparator)
	for _, f := range zr.File {
		target := filepath.Join(dir, f.Name)
		if !strings.HasPrefix(target, root) {
			return fmt.Errorf("archive entry %q escapes extraction dir", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o750); err != nil {
				return fmt.Errorf("extract entry: %w", err)
			}
			continue
		}
		if err := extractFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(target), err)
	}
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open entry %s: %w", f.Name, err)
	}
	defer func() {
		_ = rc.Close()
	}()
	//nolint:gosec // target is checked against the extraction root
	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("extract entry: %w", err)
	}
	//nolint:gosec // boundary archives are trusted public data
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return fmt.Errorf("extract %s: %w", f.Name, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", target, err)
	}
	return nil
}
