package timeline

type Drift int

const (
	Match Drift = iota
	Mismatch
)

func (d Drift) String() string {
	if d == Match {
		return "match"
	}
	return "mismatch"
}

// Detect compares the fetched week with the stored catalog, order included.
// A reordered week is a new cycle.
func Detect(fetched, stored []string) Drift {
	if len(fetched) != len(stored) {
		return Mismatch
	}
	for i := range fetched {
		if fetched[i] != stored[i] {
			return Mismatch
		}
	}
	return Match
}
