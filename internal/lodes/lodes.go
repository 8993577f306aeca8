// Package lodes fetches LEHD origin-destination employment statistics and
// rolls them up to Census geographies.
package lodes

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/JakeFAU/census-pipeline/internal/partition"
	"github.com/JakeFAU/census-pipeline/internal/schema"
)

// Parts published per state: main covers in-state residents, aux covers
// residents of other states.
var Parts = []string{"main", "aux"}

// JobColumns are the job-count segments, in file order.
var JobColumns = []string{"s000", "sa01", "sa02", "sa03", "se01", "se02", "se03", "si01", "si02", "si03"}

// Columns is the canonical header written to raw partitions.
var Columns = append([]string{"w_geocode", "h_geocode"}, JobColumns...)

// Key identifies one origin-destination file.
type Key struct {
	Part  string
	State string
}

func (k Key) String() string {
	return k.Part + "/" + k.State
}

// Jobs holds one count per JobColumns entry.
type Jobs [10]int64

// Add sums o into j.
func (j *Jobs) Add(o Jobs) {
	for i := range j {
		j[i] += o[i]
	}
}

// Row is one block-to-block flow.
type Row struct {
	WorkGeocode string
	HomeGeocode string
	Jobs        Jobs
}

// Record is the parsed content of one file.
type Record struct {
	Key  Key
	Rows []Row
}

// URL builds the download URL, e.g.
// https://lehd.ces.census.gov/data/lodes/LODES8/wi/od/wi_od_main_JT00_2022.csv.gz.
func URL(base, year string, k Key) string {
	return fmt.Sprintf("%s/%s/od/%s_od_%s_JT00_%s.csv.gz",
		strings.TrimSuffix(base, "/"), k.State, k.State, k.Part, year)
}

// Keys returns every (part, state) pair for states.
func Keys(states []string) []Key {
	keys := make([]Key, 0, len(Parts)*len(states))
	for _, part := range Parts {
		for _, s := range states {
			keys = append(keys, Key{Part: part, State: s})
		}
	}
	return keys
}

// RawPath is where the fetched partition for k lives under root.
func RawPath(root, year string, k Key) string {
	return partition.Local(filepath.Join(root, "lodes"), rawFields(year, k), k.State+".zip")
}

func rawFields(year string, k Key) []partition.Field {
	return []partition.Field{
		partition.F(partition.Year, year),
		partition.F(partition.Part, k.Part),
		partition.F(partition.State, k.State),
	}
}

// Parse reads a gzip-compressed origin-destination CSV. Header names are
// lower-cased; columns outside Columns (such as createdate) are ignored.
func Parse(r io.Reader) ([]Row, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("open gzip: %w", err)
	}
	defer func() {
		_ = zr.Close()
	}()

	cr := csv.NewReader(zr)
	cr.ReuseRecord = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	names := make([]string, len(header))
	for i, h := range header {
		names[i] = schema.LowerColumn(h)
	}
	idx := schema.Index(names)
	pos := make([]int, len(Columns))
	for i, c := range Columns {
		p, ok := idx[c]
		if !ok {
			return nil, fmt.Errorf("missing column %q", c)
		}
		pos[i] = p
	}

	var rows []Row
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line, err)
		}
		row := Row{WorkGeocode: rec[pos[0]], HomeGeocode: rec[pos[1]]}
		for i := range JobColumns {
			v, err := strconv.ParseInt(rec[pos[i+2]], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %s: %w", line, JobColumns[i], err)
			}
			row.Jobs[i] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ReadFile parses the gzip CSV at path.
func ReadFile(path string) ([]Row, error) {
	//nolint:gosec // path is built from the configured data root
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open partition: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	rows, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return rows, nil
}

// WriteFile writes rows as a gzip CSV with the canonical header. The write
// is not atomic.
func WriteFile(path string, rows []Row) error {
	if err := partition.EnsureDir(path); err != nil {
		return err
	}
	//nolint:gosec // path is built from the configured data root
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create partition: %w", err)
	}
	if err := writeRows(f, rows); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

func writeRows(w io.Writer, rows []Row) error {
	zw := gzip.NewWriter(w)
	cw := csv.NewWriter(zw)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	rec := make([]string, len(Columns))
	for _, r := range rows {
		rec[0], rec[1] = r.WorkGeocode, r.HomeGeocode
		for i, v := range r.Jobs {
			rec[i+2] = strconv.FormatInt(v, 10)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return zw.Close()
}
