package format

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/gocarina/gocsv"
)

// Geometry is a named preset for the formatter's NumInodes/NumDataBlocks
// options, the RAID-array equivalent of a floppy disk's head/track/sector
// geometry table.
type Geometry struct {
	Slug          string `csv:"slug"`
	Description   string `csv:"description"`
	NumInodes     uint32 `csv:"num_inodes"`
	NumDataBlocks uint32 `csv:"num_data_blocks"`
	MinDisks      uint32 `csv:"min_disks"`
}

//go:embed geometries.csv
var rawGeometriesCSV string

var geometries map[string]Geometry

// PredefinedGeometry looks up a named geometry preset such as "small",
// "default", or "large".
func PredefinedGeometry(slug string) (Geometry, error) {
	g, ok := geometries[slug]
	if !ok {
		return Geometry{}, fmt.Errorf("format: no predefined geometry named %q", slug)
	}
	return g, nil
}

// GeometryNames lists every known preset slug, for CLI help text.
func GeometryNames() []string {
	names := make([]string, 0, len(geometries))
	for slug := range geometries {
		names = append(names, slug)
	}
	return names
}

func init() {
	geometries = make(map[string]Geometry)
	reader := strings.NewReader(rawGeometriesCSV)
	err := gocsv.UnmarshalToCallback(reader, func(row Geometry) error {
		if _, exists := geometries[row.Slug]; exists {
			return fmt.Errorf("format: duplicate geometry slug %q", row.Slug)
		}
		geometries[row.Slug] = row
		return nil
	})
	if err != nil {
		panic(fmt.Errorf("format: malformed embedded geometries.csv: %w", err))
	}
}
