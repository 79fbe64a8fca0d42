// Package geo projects WGS84 coordinates onto the ETRS89 / UTM zone 32N plane
// (EPSG:25832) and maps them onto the winter-network tile grid.
package geo

import "math"

// GRS80 ellipsoid and UTM zone 32N parameters.
const (
	semiMajorAxis = 6378137.0
	flattening    = 1.0 / 298.257222101

	centralMeridianDeg = 9.0
	scaleFactor        = 0.9996
	falseEasting       = 500000.0
)

// Tile grid of the winter-network pyramid. X grows east and Y grows south
// from the origin; tile size halves with each zoom level.
const (
	gridOriginX     = 120000.0
	gridOriginY     = 6500000.0
	gridExtentWidth = 1258291.2
)

// Tile addresses one tile of the pyramid.
type Tile struct {
	Zoom int
	X    int
	Y    int
}

// ProjectUTM32 converts a WGS84 latitude/longitude (degrees) to UTM zone 32N
// easting/northing in meters, using the Krüger series with terms through n^3.
// The series is accurate to well under a meter across Denmark.
func ProjectUTM32(lat, lon float64) (easting, northing float64) {
	phi := lat * math.Pi / 180
	lam := (lon - centralMeridianDeg) * math.Pi / 180

	n := flattening / (2 - flattening)
	c := 2 * math.Sqrt(n) / (1 + n)

	t := math.Sinh(math.Atanh(math.Sin(phi)) - c*math.Atanh(c*math.Sin(phi)))
	xi := math.Atan2(t, math.Cos(lam))
	eta := math.Atanh(math.Sin(lam) / math.Sqrt(1+t*t))

	a := semiMajorAxis / (1 + n) * (1 + n*n/4 + n*n*n*n/64)
	alpha := [3]float64{
		n/2 - 2*n*n/3 + 5*n*n*n/16,
		13*n*n/48 - 3*n*n*n/5,
		61 * n * n * n / 240,
	}

	e := eta
	no := xi
	for j, aj := range alpha {
		k := 2 * float64(j+1)
		e += aj * math.Cos(k*xi) * math.Sinh(k*eta)
		no += aj * math.Sin(k*xi) * math.Cosh(k*eta)
	}

	easting = falseEasting + scaleFactor*a*e
	northing = scaleFactor * a * no
	return easting, northing
}

// TileAt returns the tile containing the given EPSG:25832 coordinate at a
// zoom level. Coordinates outside the grid yield out-of-range tile indices;
// the tile server answers those with 404s, which callers already tolerate.
func TileAt(easting, northing float64, zoom int) (x, y int) {
	size := gridExtentWidth / float64(int(1)<<zoom)
	x = int(math.Floor((easting - gridOriginX) / size))
	y = int(math.Floor((gridOriginY - northing) / size))
	return x, y
}

// TileNeighborhood returns the (2*radius+1)^2 tiles centered on the tile
// containing the given location.
func TileNeighborhood(lat, lon float64, zoom, radius int) []Tile {
	easting, northing := ProjectUTM32(lat, lon)
	centerX, centerY := TileAt(easting, northing, zoom)

	tiles := make([]Tile, 0, (2*radius+1)*(2*radius+1))
	for dx := -radius; dx <= radius; dx++ {
		for dy := -radius; dy <= radius; dy++ {
			tiles = append(tiles, Tile{Zoom: zoom, X: centerX + dx, Y: centerY + dy})
		}
	}
	return tiles
}
