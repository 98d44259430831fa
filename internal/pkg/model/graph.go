package model

import "sort"

// ReachableFrom walks the graph depth-first from seed and returns the
// visited node and connection id sets. A connection counts as visited
// once any visited node lists it, unresolved or dangling far ends are
// skipped.
func (r *Registry) ReachableFrom(seed string) (map[string]struct{}, map[string]struct{}) {
	visitedNodes := make(map[string]struct{})
	visitedConns := make(map[string]struct{})

	if _, ok := r.nodes[seed]; !ok {
		return visitedNodes, visitedConns
	}

	stack := []string{seed}
	visitedNodes[seed] = struct{}{}

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		n := r.nodes[cur]

		next := ""
		for _, cid := range sortedKeys(n.Connections()) {
			if _, seen := visitedConns[cid]; seen {
				continue
			}
			visitedConns[cid] = struct{}{}

			c, ok := r.conns[cid]
			if !ok {
				continue
			}
			other := c.EndNode
			if c.StartNode != cur {
				other = c.StartNode
			}
			if other == "" {
				continue
			}
			if _, ok := r.nodes[other]; !ok {
				continue
			}
			if _, seen := visitedNodes[other]; !seen {
				next = other
				break
			}
		}

		if next != "" {
			visitedNodes[next] = struct{}{}
			stack = append(stack, next)
		} else {
			stack = stack[:len(stack)-1]
		}
	}
	return visitedNodes, visitedConns
}

// Components returns the connected components as sorted node id lists,
// largest first. Ties order by first id so the result is stable.
func (r *Registry) Components() [][]string {
	seen := make(map[string]struct{})
	var comps [][]string

	for _, id := range r.NodeIDs() {
		if _, ok := seen[id]; ok {
			continue
		}
		nodes, _ := r.ReachableFrom(id)
		comp := make([]string, 0, len(nodes))
		for nid := range nodes {
			comp = append(comp, nid)
			seen[nid] = struct{}{}
		}
		sort.Strings(comp)
		comps = append(comps, comp)
	}

	sort.Slice(comps, func(i, j int) bool {
		if len(comps[i]) != len(comps[j]) {
			return len(comps[i]) > len(comps[j])
		}
		return comps[i][0] < comps[j][0]
	})
	return comps
}
