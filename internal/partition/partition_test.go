package partition

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathLODESRawLayout(t *testing.T) {
	t.Parallel()

	got := Path([]Field{F(Year, "2022"), F(Part, "main"), F(State, "wi")}, "wi.zip")
	require.Equal(t, "year=2022/part=main/state=wi/wi.zip", got)
}

func TestPathVariants(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		fields []Field
		file   string
		want   string
	}{
		{
			name:   "geography only",
			fields: []Field{F(Year, "2023"), F(Geography, "tract")},
			file:   "tract.geojson",
			want:   "year=2023/geography=tract/tract.geojson",
		},
		{
			name:   "no file",
			fields: []Field{F(Dataset, "od"), F(Origin, "home")},
			want:   "dataset=od/origin=home",
		},
		{
			name: "file only",
			file: "x.parquet",
			want: "x.parquet",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Path(tt.fields, tt.file))
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, Validate([]Field{F(Year, "2022"), F(State, "wi")}))
	require.Error(t, Validate([]Field{F(Year, "")}))
	require.Error(t, Validate([]Field{F(State, "w/i")}))
	require.Error(t, Validate([]Field{F(State, "a=b")}))
}

func TestEnsureDirIsIdempotent(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	target := Local(root, []Field{F(Year, "2022"), F(State, "wi")}, "wi.zip")
	require.Equal(t, filepath.Join(root, "year=2022", "state=wi", "wi.zip"), target)

	require.NoError(t, EnsureDir(target))
	require.NoError(t, EnsureDir(target))

	info, err := os.Stat(filepath.Dir(target))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
