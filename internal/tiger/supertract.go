package tiger

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/geojson"
	sfgeom "github.com/peterstace/simplefeatures/geom"
	"go.uber.org/zap"

	"github.com/JakeFAU/census-pipeline/internal/metrics"
	"github.com/JakeFAU/census-pipeline/internal/partition"
)

// SupertractPrefix is the length of the tract id prefix (state, county and
// the first two tract digits) shared by every tract in a supertract.
const SupertractPrefix = 7

// SupertractGeography names the layer BuildSupertracts writes.
const SupertractGeography = "supertract"

// Derived reports whether geography is built from fetched layers rather than
// downloaded.
func Derived(geography string) bool {
	return geography == SupertractGeography
}

// BuildSupertracts reads the tract layer for year under root and writes the
// supertract layer next to it, returning the output path.
func BuildSupertracts(root, year string, logger *zap.Logger) (string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	base := filepath.Join(root, dataset)
	in := partition.Local(base, []partition.Field{
		partition.F(partition.Year, year),
		partition.F(partition.Geography, "tract"),
	}, "tract.geojson")
	out := partition.Local(base, []partition.Field{
		partition.F(partition.Year, year),
		partition.F(partition.Geography, SupertractGeography),
	}, SupertractGeography+".geojson")

	tracts, err := ReadGeoJSON(in)
	if err != nil {
		return "", err
	}
	st, err := Supertracts(tracts, logger)
	if err != nil {
		return "", err
	}
	if err := WriteGeoJSON(out, st); err != nil {
		return "", err
	}
	metrics.ObserveRowsWritten(SupertractGeography, len(st.Features))
	logger.Info("supertract layer written",
		zap.String("path", out),
		zap.Int("tracts", len(tracts.Features)),
		zap.Int("supertracts", len(st.Features)),
	)
	return out, nil
}

// Supertracts groups tract features by the first SupertractPrefix characters
// of their id and dissolves each group into one Polygon or MultiPolygon with
// the shared boundaries removed. A group whose union fails keeps its member
// polygons undissolved and is logged. Output is sorted by id.
func Supertracts(tracts *geojson.FeatureCollection, logger *zap.Logger) (*geojson.FeatureCollection, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	groups := make(map[string]orb.MultiPolygon)
	for i, f := range tracts.Features {
		id, _ := f.Properties["id"].(string)
		if len(id) < SupertractPrefix {
			return nil, fmt.Errorf("tract feature %d: id %q shorter than %d", i, id, SupertractPrefix)
		}
		key := id[:SupertractPrefix]
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			groups[key] = append(groups[key], g)
		case orb.MultiPolygon:
			groups[key] = append(groups[key], g...)
		default:
			return nil, fmt.Errorf("tract %s: unexpected geometry %T", id, f.Geometry)
		}
	}

	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := geojson.NewFeatureCollection()
	for _, id := range ids {
		var geom orb.Geometry = groups[id]
		dissolved, err := dissolve(groups[id])
		if err != nil {
			logger.Warn("supertract union failed; keeping member polygons",
				zap.String("id", id),
				zap.Int("polygons", len(groups[id])),
				zap.Error(err),
			)
		} else {
			geom = dissolved
		}
		feat := geojson.NewFeature(geom)
		feat.Properties["id"] = id
		out.Append(feat)
	}
	return out, nil
}

// dissolve unions the polygons of mp. The result is a Polygon when the
// members form one connected area, otherwise a MultiPolygon, with rings
// wound as GeoJSON expects.
func dissolve(mp orb.MultiPolygon) (orb.Geometry, error) {
	var acc sfgeom.Geometry
	for i, p := range mp {
		g, err := toSimpleFeatures(p)
		if err != nil {
			return nil, fmt.Errorf("polygon %d: %w", i, err)
		}
		if i == 0 {
			acc = g
			continue
		}
		if acc, err = sfgeom.Union(acc, g); err != nil {
			return nil, fmt.Errorf("union polygon %d: %w", i, err)
		}
	}

	g, err := wkb.Unmarshal(acc.AsBinary())
	if err != nil {
		return nil, fmt.Errorf("decode union: %w", err)
	}
	switch u := g.(type) {
	case orb.Polygon:
		orientPolygon(u)
		return u, nil
	case orb.MultiPolygon:
		for _, p := range u {
			orientPolygon(p)
		}
		if len(u) == 1 {
			return u[0], nil
		}
		return u, nil
	default:
		return nil, fmt.Errorf("union produced %T", g)
	}
}

func toSimpleFeatures(p orb.Polygon) (sfgeom.Geometry, error) {
	data, err := wkb.Marshal(p)
	if err != nil {
		return sfgeom.Geometry{}, fmt.Errorf("encode: %w", err)
	}
	g, err := sfgeom.UnmarshalWKB(data)
	if err != nil {
		return sfgeom.Geometry{}, fmt.Errorf("decode: %w", err)
	}
	return g, nil
}

// orientPolygon winds the outer ring counter-clockwise and holes clockwise.
func orientPolygon(p orb.Polygon) {
	for i, ring := range p {
		want := orb.CW
		if i == 0 {
			want = orb.CCW
		}
		if ring.Orientation() != want {
			ring.Reverse()
		}
	}
}
