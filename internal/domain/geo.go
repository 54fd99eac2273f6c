package domain

// Region is an ISO country code. The zero value means unknown.
type Region string

const UnknownRegion Region = ""

func (r Region) Known() bool { return r != UnknownRegion }

// Geo is the best-effort location of a connecting client.
type Geo struct {
	Region    Region  `json:"country,omitempty"`
	Latitude  float64 `json:"lat,omitempty"`
	Longitude float64 `json:"lon,omitempty"`
}

// Mismatch reports whether both regions are known and differ.
// An unknown region on either side never mismatches.
func (r Region) Mismatch(other Region) bool {
	return r.Known() && other.Known() && r != other
}
