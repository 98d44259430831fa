package model

import "sort"

// Load is a demand entry, either a county-level mean load spread across
// the substations inside the county or a single announced large
// consumer. Power splits evenly across the attached substations at
// export time.
type Load struct {
	ID      string
	PowerMW float64
	Sectors map[string]struct{}
	Subs    map[string]struct{}
}

// NewLoad builds a load with one sector and no substations yet.
func NewLoad(id string, powerMW float64, sector string) *Load {
	l := &Load{
		ID:      id,
		PowerMW: powerMW,
		Sectors: make(map[string]struct{}),
		Subs:    make(map[string]struct{}),
	}
	l.Sectors[sector] = struct{}{}
	return l
}

// Merge folds another entry for the same id into this one.
func (l *Load) Merge(powerMW float64, sector string) {
	l.PowerMW += powerMW
	l.Sectors[sector] = struct{}{}
}

// AddSub attaches a substation the load is served from.
func (l *Load) AddSub(subID string) {
	l.Subs[subID] = struct{}{}
}

// SectorList returns the sectors sorted for stable output.
func (l *Load) SectorList() []string {
	out := make([]string, 0, len(l.Sectors))
	for s := range l.Sectors {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// SubList returns the attached substations sorted for stable output.
func (l *Load) SubList() []string {
	out := make([]string, 0, len(l.Subs))
	for s := range l.Subs {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
