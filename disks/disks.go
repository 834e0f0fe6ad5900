// Package disks holds a catalog of predefined disk geometries that can be
// used to size fresh images.
package disks

import (
	_ "embed"
	"fmt"

	"github.com/gocarina/gocsv"
)

// Geometry describes the shape of one supported disk model. All models share
// the same sector size; they differ only in how many sectors they carry.
type Geometry struct {
	Slug            string `csv:"slug"`
	Name            string `csv:"name"`
	Tracks          uint   `csv:"tracks"`
	SectorsPerTrack uint   `csv:"sectors_per_track"`
	Notes           string `csv:"notes"`
}

// TotalSectors gives the number of sectors on a disk with this geometry.
func (g *Geometry) TotalSectors() uint {
	return g.Tracks * g.SectorsPerTrack
}

//go:embed disk-geometries.csv
var diskGeometriesRawCSV string
var diskGeometries map[string]Geometry

// Get returns the predefined geometry registered under `slug`.
func Get(slug string) (Geometry, error) {
	geometry, ok := diskGeometries[slug]
	if ok {
		return geometry, nil
	}
	return Geometry{}, fmt.Errorf("no predefined disk geometry exists with slug %q", slug)
}

// Slugs returns the slug of every registered geometry.
func Slugs() []string {
	slugs := make([]string, 0, len(diskGeometries))
	for slug := range diskGeometries {
		slugs = append(slugs, slug)
	}
	return slugs
}

func init() {
	var rows []Geometry
	if err := gocsv.UnmarshalString(diskGeometriesRawCSV, &rows); err != nil {
		panic(fmt.Errorf("failed to decode disk geometry catalog: %w", err))
	}

	diskGeometries = make(map[string]Geometry, len(rows))
	for i, row := range rows {
		if _, exists := diskGeometries[row.Slug]; exists {
			panic(fmt.Errorf(
				"duplicate definition for disk %q found on row %d", row.Slug, i+1))
		}
		diskGeometries[row.Slug] = row
	}
}
