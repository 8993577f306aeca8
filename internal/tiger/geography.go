// Package tiger fetches Census cartographic boundary shapefiles and writes
// them as partitioned GeoJSON.
package tiger

import (
	"fmt"
	"sort"
	"strings"

	"github.com/JakeFAU/census-pipeline/internal/config"
)

// Scope says whether a geography is published as one national file or one
// file per state.
type Scope int

const (
	// National geographies ship as a single cb_<year>_us_<name> archive.
	National Scope = iota
	// PerState geographies ship as one cb_<year>_<fips>_<name> archive per state.
	PerState
)

// Geography describes how one geography is named on the boundary file server.
type Geography struct {
	Name     string
	FileName string
	Scope    Scope
	// KeepName selects whether the output carries the name attribute.
	KeepName bool
}

var geographies = map[string]Geography{
	"state":              {Name: "state", FileName: "state", Scope: National},
	"county":             {Name: "county", FileName: "county", Scope: National, KeepName: true},
	"zcta":               {Name: "zcta", FileName: "zcta520", Scope: National},
	"county_subdivision": {Name: "county_subdivision", FileName: "cousub", Scope: PerState, KeepName: true},
	"tract":              {Name: "tract", FileName: "tract", Scope: PerState},
	"block_group":        {Name: "block_group", FileName: "bg", Scope: PerState},
}

var stateFIPS = map[string]string{
	"ak": "02", "al": "01", "ar": "05", "az": "04", "ca": "06",
	"co": "08", "ct": "09", "dc": "11", "de": "10", "fl": "12",
	"ga": "13", "hi": "15", "ia": "19", "id": "16", "il": "17",
	"in": "18", "ks": "20", "ky": "21", "la": "22", "ma": "25",
	"md": "24", "me": "23", "mi": "26", "mn": "27", "mo": "29",
	"ms": "28", "mt": "30", "nc": "37", "nd": "38", "ne": "31",
	"nh": "33", "nj": "34", "nm": "35", "nv": "32", "ny": "36",
	"oh": "39", "ok": "40", "or": "41", "pa": "42", "ri": "44",
	"sc": "45", "sd": "46", "tn": "47", "tx": "48", "ut": "49",
	"va": "51", "vt": "50", "wa": "53", "wi": "55", "wv": "54",
	"wy": "56",
}

// LookupGeography returns the boundary-file description of name.
func LookupGeography(name string) (Geography, error) {
	g, ok := geographies[name]
	if !ok {
		return Geography{}, fmt.Errorf("%w: unknown geography %q (want one of %s)",
			config.ErrInvalidInput, name, strings.Join(GeographyNames(), ", "))
	}
	return g, nil
}

// GeographyNames lists the supported geography names, sorted.
func GeographyNames() []string {
	names := make([]string, 0, len(geographies))
	for n := range geographies {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// FIPS returns the two-digit FIPS code for a state abbreviation.
func FIPS(state string) (string, error) {
	code, ok := stateFIPS[strings.ToLower(state)]
	if !ok {
		return "", fmt.Errorf("%w: unknown state %q", config.ErrInvalidInput, state)
	}
	return code, nil
}

// Keys returns the file keys to fetch for g: "us" for national geographies,
// otherwise the FIPS code of every state.
func (g Geography) Keys(states []string) ([]string, error) {
	if g.Scope == National {
		return []string{"us"}, nil
	}
	keys := make([]string, 0, len(states))
	for _, s := range states {
		code, err := FIPS(s)
		if err != nil {
			return nil, err
		}
		keys = append(keys, code)
	}
	return keys, nil
}

// URL builds the archive URL for one key, e.g.
// https://www2.census.gov/geo/tiger/GENZ2022/shp/cb_2022_55_tract_500k.zip.
func (g Geography) URL(base, year, key string) string {
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return fmt.Sprintf("%sGENZ%s/shp/%s", base, year, g.ArchiveName(year, key))
}

// ArchiveName is the remote file name for one key.
func (g Geography) ArchiveName(year, key string) string {
	return fmt.Sprintf("cb_%s_%s_%s_500k.zip", year, key, g.FileName)
}
