package model

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ohmwork/gridcore/internal/pkg/geo"
	"github.com/ohmwork/gridcore/internal/pkg/spatial"
)

// Registry owns every model element and the spatial indexes used to
// stitch them together. All construction and deletion runs through it so
// cross-references and indexes stay consistent. Deletions cascade and
// leave an audit trail.
type Registry struct {
	nodes  map[string]Node
	conns  map[string]*Connection
	trafos map[string]*Transformer
	gens   map[string]*Generator
	loads  map[string]*Load

	connEnds *spatial.Index
	subs     *spatial.Index

	deletedSubs  []string
	deletedConns []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		nodes:    make(map[string]Node),
		conns:    make(map[string]*Connection),
		trafos:   make(map[string]*Transformer),
		gens:     make(map[string]*Generator),
		loads:    make(map[string]*Load),
		connEnds: spatial.NewIndex(),
		subs:     spatial.NewIndex(),
	}
}

// BusID is the per-voltage bus key used across all exports.
func BusID(nodeID string, voltage float64) string {
	return fmt.Sprintf("%s_%d", nodeID, int(voltage)/1000)
}

func (r *Registry) Node(id string) (Node, bool) {
	n, ok := r.nodes[id]
	return n, ok
}

func (r *Registry) Substation(id string) (*Substation, bool) {
	s, ok := r.nodes[id].(*Substation)
	return s, ok
}

func (r *Registry) Conn(id string) (*Connection, bool) {
	c, ok := r.conns[id]
	return c, ok
}

func (r *Registry) Trafo(id string) (*Transformer, bool) {
	t, ok := r.trafos[id]
	return t, ok
}

func (r *Registry) Gen(id string) (*Generator, bool) {
	g, ok := r.gens[id]
	return g, ok
}

func (r *Registry) Load(id string) (*Load, bool) {
	l, ok := r.loads[id]
	return l, ok
}

func (r *Registry) Nodes() map[string]Node         { return r.nodes }
func (r *Registry) Conns() map[string]*Connection  { return r.conns }
func (r *Registry) Trafos() map[string]*Transformer { return r.trafos }
func (r *Registry) Gens() map[string]*Generator    { return r.gens }
func (r *Registry) Loads() map[string]*Load        { return r.loads }

// NodeIDs returns all node ids sorted. Iteration in id order keeps
// derived artifacts stable across runs.
func (r *Registry) NodeIDs() []string {
	return sortedKeys(r.nodes)
}

func (r *Registry) ConnIDs() []string {
	return sortedKeys(r.conns)
}

func (r *Registry) TrafoIDs() []string {
	return sortedKeys(r.trafos)
}

func (r *Registry) GenIDs() []string {
	return sortedKeys(r.gens)
}

func (r *Registry) LoadIDs() []string {
	return sortedKeys(r.loads)
}

// DeletedSubs lists substation ids removed so far, in deletion order.
func (r *Registry) DeletedSubs() []string { return r.deletedSubs }

// DeletedConns lists removed connections as "way/<id>" refs.
func (r *Registry) DeletedConns() []string { return r.deletedConns }

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// AddSubstation validates and registers a raw substation record. The
// station's transformers are generated from its voltage levels.
func (r *Registry) AddSubstation(rec SubRecord, keep Filter) (*Substation, error) {
	id := NormalizeID(rec.ID)

	voltages := append([]float64(nil), rec.Voltages...)
	sort.Float64s(voltages)
	if len(voltages) == 0 {
		return nil, &NoVoltageError{ID: id}
	}

	maxV := voltages[len(voltages)-1]
	if keep != nil && !keep(maxV) {
		return nil, fmt.Errorf("substation %s: %w", id, ErrFiltered)
	}
	if _, ok := r.nodes[id]; ok {
		return nil, fmt.Errorf("substation %s: %w", id, ErrAlreadyExists)
	}

	s := &Substation{
		node:       newNode(id, NodeSubstation, geo.NewCoord(rec.Lat, rec.Lon), nil),
		dbVoltages: voltages,
		power:      subPowerVA(maxV),
	}
	s.name = rec.Name
	s.operator = rec.Operator
	s.voltages = append([]float64(nil), voltages...)

	r.nodes[id] = s
	if err := r.subs.Add(id, s.coords); err != nil {
		delete(r.nodes, id)
		return nil, fmt.Errorf("substation %s: %w", id, err)
	}
	r.regenTransformers(s)
	return s, nil
}

// AddConnection decomposes and registers a raw line or cable record and
// indexes its endpoints.
func (r *Registry) AddConnection(rec ConnRecord, keep Filter) (*Connection, error) {
	conn, err := NewConnection(rec, keep)
	if err != nil {
		return nil, err
	}
	if _, ok := r.conns[conn.ID]; ok {
		return nil, fmt.Errorf("conn %s: %w", conn.ID, ErrAlreadyExists)
	}
	r.conns[conn.ID] = conn
	if err := r.connEnds.Add(endKey(conn.ID, EndStart), conn.StartPoint()); err != nil {
		delete(r.conns, conn.ID)
		return nil, fmt.Errorf("conn %s: %w", conn.ID, err)
	}
	if err := r.connEnds.Add(endKey(conn.ID, EndEnd), conn.EndPoint()); err != nil {
		r.connEnds.Remove(endKey(conn.ID, EndStart), conn.StartPoint())
		delete(r.conns, conn.ID)
		return nil, fmt.Errorf("conn %s: %w", conn.ID, err)
	}
	return conn, nil
}

// AddBranch creates a branch joining the pooled connection ends at a
// coordinate. Branch ids derive from the sorted connection ids so reruns
// produce the same graph. A second branch with the same pool at the same
// point is ErrAlreadyExists, at a different point it gets a counter
// suffix.
func (r *Registry) AddBranch(at geo.Coord, pool map[string]EndType) (*Branch, error) {
	ids := make([]string, 0, len(pool))
	for id := range pool {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	base := "br_" + strings.Join(ids, "_")
	brID := base
	nr := 1
	for {
		existing, ok := r.nodes[brID]
		if !ok {
			break
		}
		if existing.Coords() == at {
			return nil, fmt.Errorf("branch %s: %w", brID, ErrAlreadyExists)
		}
		nr++
		brID = fmt.Sprintf("%s_%d", base, nr)
	}

	b := &Branch{node: newNode(brID, NodeBranch, at, pool)}

	vset := make(map[float64]struct{})
	for cid := range pool {
		c, ok := r.conns[cid]
		if !ok {
			continue
		}
		for _, circ := range c.Circuits {
			vset[circ.Voltage] = struct{}{}
		}
	}
	b.voltages = sortedVoltages(vset)

	r.nodes[brID] = b
	return b, nil
}

func endKey(id string, end EndType) string {
	if end == EndStart {
		return "s|" + id
	}
	return "e|" + id
}

func parseEndKey(key string) (string, EndType) {
	if strings.HasPrefix(key, "s|") {
		return key[2:], EndStart
	}
	return key[2:], EndEnd
}

// SearchConnEnds pools all connection endpoints within radiusM of a
// point. When both ends of one connection fall inside the radius the
// farther one wins, those are degenerate loops either way.
func (r *Registry) SearchConnEnds(at geo.Coord, radiusM float64) map[string]EndType {
	matches := r.connEnds.Within(at, radiusM)
	if len(matches) == 0 {
		return nil
	}
	pool := make(map[string]EndType, len(matches))
	for _, m := range matches {
		id, end := parseEndKey(m.ID)
		pool[id] = end
	}
	return pool
}

// SearchSubs returns substations within radiusM of a point, closest
// first.
func (r *Registry) SearchSubs(at geo.Coord, radiusM float64) []string {
	matches := r.subs.Within(at, radiusM)
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.ID)
	}
	return ids
}

// NearestSub returns the closest substation to a point.
func (r *Registry) NearestSub(at geo.Coord) (string, bool) {
	m, ok := r.subs.Nearest(at)
	if !ok {
		return "", false
	}
	return m.ID, true
}

// Connect attaches a pooled set of connection ends to a node and
// resolves the endpoint references. An end whose opposite side already
// resolved to the same node stays unresolved, that would be a self loop.
func (r *Registry) Connect(nodeID string, pool map[string]EndType) {
	n, ok := r.nodes[nodeID]
	if !ok {
		return
	}
	for cid, end := range pool {
		n.base().addConn(cid, end)
	}
	for cid, end := range pool {
		c, ok := r.conns[cid]
		if !ok {
			continue
		}
		switch end {
		case EndStart:
			if c.EndNode != nodeID {
				c.StartNode = nodeID
			}
		case EndEnd:
			if c.StartNode != nodeID {
				c.EndNode = nodeID
			}
		}
	}
}

// UpdateVoltagesFromConns overrides every node's voltage set with the
// levels of its connected circuits. Raw station records disagree with
// the lines often enough that the circuits are authoritative. Substation
// transformers are regenerated from the new sets.
func (r *Registry) UpdateVoltagesFromConns() {
	for _, id := range r.NodeIDs() {
		n := r.nodes[id]
		vset := make(map[float64]struct{})
		for cid := range n.Connections() {
			c, ok := r.conns[cid]
			if !ok {
				continue
			}
			for _, circ := range c.Circuits {
				vset[circ.Voltage] = struct{}{}
			}
		}
		n.base().voltages = sortedVoltages(vset)
		if s, ok := n.(*Substation); ok {
			r.regenTransformers(s)
		}
	}
}

// regenTransformers rebuilds a station's transformer chain, one unit per
// adjacent voltage pair in ascending order.
func (r *Registry) regenTransformers(s *Substation) {
	for _, tid := range s.transformers {
		delete(r.trafos, tid)
	}
	s.transformers = s.transformers[:0]

	sort.Float64s(s.voltages)
	for i := 0; i+1 < len(s.voltages); i++ {
		t := r.addTransformer(s.id, s.voltages[i+1], s.voltages[i], 0)
		s.transformers = append(s.transformers, t.ID)
	}
}

func trafoID(subID string, hvV, lvV float64, nr int) string {
	return fmt.Sprintf("tr_%s_%d_%d_%d", subID, int(hvV)/1000, int(lvV)/1000, nr)
}

func (r *Registry) addTransformer(subID string, hvV, lvV, powerVA float64) *Transformer {
	nr := 1
	id := trafoID(subID, hvV, lvV, nr)
	for {
		if _, ok := r.trafos[id]; !ok {
			break
		}
		nr++
		id = trafoID(subID, hvV, lvV, nr)
	}
	if powerVA == 0 {
		powerVA = trafoPowerVA(hvV)
	}
	t := &Transformer{
		ID:      id,
		Sub:     subID,
		HvV:     hvV,
		LvV:     lvV,
		PowerVA: powerVA,
		HvBus:   BusID(subID, hvV),
		LvBus:   BusID(subID, lvV),
	}
	r.trafos[id] = t
	return t
}

// AttachGenerator registers an aggregated generation block at a
// substation and picks its feed-in voltage.
func (r *Registry) AttachGenerator(subID, genType string, powerW float64, commYear int, name string) (*Generator, error) {
	n, ok := r.nodes[subID]
	if !ok {
		return nil, fmt.Errorf("generator substation %s not found", subID)
	}
	id := GeneratorID(subID, genType, commYear)
	if name == "" {
		name = id
	}
	g := &Generator{
		ID:       id,
		Sub:      subID,
		Type:     genType,
		PowerW:   powerW,
		CommYear: commYear,
		Name:     name,
		Voltage:  genVoltage(powerW, n),
	}
	r.gens[id] = g
	n.base().gens[id] = struct{}{}
	return g, nil
}

// AttachGeneratorAt attaches a block to the substation nearest to the
// unit's location.
func (r *Registry) AttachGeneratorAt(at geo.Coord, genType string, powerW float64, commYear int, name string) (*Generator, error) {
	subID, ok := r.NearestSub(at)
	if !ok {
		return nil, fmt.Errorf("no substation near generator at %s", at)
	}
	return r.AttachGenerator(subID, genType, powerW, commYear, name)
}

// AddLoad registers a load entry, folding repeated ids together.
func (r *Registry) AddLoad(id string, powerMW float64, sector string) *Load {
	if l, ok := r.loads[id]; ok {
		l.Merge(powerMW, sector)
		return l
	}
	l := NewLoad(id, powerMW, sector)
	r.loads[id] = l
	return l
}

// AttachLoad links a load to one of the substations serving it.
func (r *Registry) AttachLoad(loadID, subID string) {
	l, ok := r.loads[loadID]
	if !ok {
		return
	}
	n, ok := r.nodes[subID]
	if !ok {
		return
	}
	l.AddSub(subID)
	n.base().loads[loadID] = struct{}{}
}

// SetRegion tags a node with the county it sits in.
func (r *Registry) SetRegion(nodeID, region string) {
	if n, ok := r.nodes[nodeID]; ok {
		n.base().region = region
	}
}

// DeleteNode removes a node and cascades to its generators, and for
// substations to the index entry and transformers. Substation removals
// are recorded for the audit files.
func (r *Registry) DeleteNode(id string) {
	n, ok := r.nodes[id]
	if !ok {
		return
	}
	delete(r.nodes, id)
	for gid := range n.Generators() {
		delete(r.gens, gid)
	}
	if s, ok := n.(*Substation); ok {
		r.subs.Remove(id, s.coords)
		for _, tid := range s.transformers {
			delete(r.trafos, tid)
		}
		r.deletedSubs = append(r.deletedSubs, id)
	}
}

// DeleteConn removes a connection and its endpoint index entries.
func (r *Registry) DeleteConn(id string) {
	c, ok := r.conns[id]
	if !ok {
		return
	}
	delete(r.conns, id)
	r.connEnds.Remove(endKey(id, EndStart), c.StartPoint())
	r.connEnds.Remove(endKey(id, EndEnd), c.EndPoint())
	r.deletedConns = append(r.deletedConns, "way/"+id)
}

// FuseSubstations collapses substations closer than toleranceM into one,
// the lexicographically first id survives. Voltage sets union, the
// larger power estimate wins, connection references re-point to the
// keeper. Returns the number of stations absorbed.
func (r *Registry) FuseSubstations(toleranceM float64) int {
	ids := make([]string, 0)
	for id, n := range r.nodes {
		if n.Type() == NodeSubstation {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	absorbed := make(map[string]struct{})
	for _, id := range ids {
		if _, gone := absorbed[id]; gone {
			continue
		}
		s, ok := r.nodes[id].(*Substation)
		if !ok {
			continue
		}
		for _, m := range r.subs.Within(s.coords, toleranceM) {
			if m.ID == id {
				continue
			}
			if _, gone := absorbed[m.ID]; gone {
				continue
			}
			other, ok := r.nodes[m.ID].(*Substation)
			if !ok {
				continue
			}

			for cid, end := range other.conns {
				s.conns[cid] = end
			}
			s.dbVoltages = unionVoltages(s.dbVoltages, other.dbVoltages)
			s.voltages = unionVoltages(s.voltages, other.voltages)
			if other.power > s.power {
				s.power = other.power
			}
			for _, c := range r.conns {
				if c.StartNode == other.id {
					c.StartNode = id
				}
				if c.EndNode == other.id {
					c.EndNode = id
				}
			}

			delete(r.nodes, other.id)
			r.subs.Remove(other.id, other.coords)
			for _, tid := range other.transformers {
				delete(r.trafos, tid)
			}
			absorbed[other.id] = struct{}{}
			r.regenTransformers(s)
		}
	}
	return len(absorbed)
}

// AuditRefs returns endpoint references that do not resolve to a node.
// Unresolved (empty) ends are tolerated, they mean a dangling line end
// in the field.
func (r *Registry) AuditRefs() []string {
	unfound := make(map[string]struct{})
	for _, c := range r.conns {
		if _, ok := r.nodes[c.StartNode]; !ok {
			unfound[c.StartNode] = struct{}{}
		}
		if _, ok := r.nodes[c.EndNode]; !ok {
			unfound[c.EndNode] = struct{}{}
		}
	}
	delete(unfound, "")
	out := make([]string, 0, len(unfound))
	for id := range unfound {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func sortedVoltages(vset map[float64]struct{}) []float64 {
	out := make([]float64, 0, len(vset))
	for v := range vset {
		out = append(out, v)
	}
	sort.Float64s(out)
	return out
}

func unionVoltages(a, b []float64) []float64 {
	vset := make(map[float64]struct{}, len(a)+len(b))
	for _, v := range a {
		vset[v] = struct{}{}
	}
	for _, v := range b {
		vset[v] = struct{}{}
	}
	return sortedVoltages(vset)
}
