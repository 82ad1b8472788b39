package state

// Space is the size of a filesystem in bytes.
type Space struct {
	Total     uint64 `json:"total"`
	Available uint64 `json:"available"`
}

// UsedPct is the share of the filesystem in use, 0 to 100.
func (s Space) UsedPct() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Total-s.Available) / float64(s.Total) * 100
}

// Low reports whether less than minFreePct percent is left.
func (s Space) Low(minFreePct float64) bool {
	return s.Total > 0 && 100-s.UsedPct() < minFreePct
}
