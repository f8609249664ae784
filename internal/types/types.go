// README: Common identifier and geo value objects used across modules.
package types

type ID string

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Zero reports whether the point carries no fix.
func (p Point) Zero() bool {
	return p.Lat == 0 && p.Lng == 0
}
