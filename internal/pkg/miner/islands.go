package miner

import (
	"io/ioutil"
	"log"
	"path/filepath"
	"strings"

	"github.com/ohmwork/gridcore/internal/pkg/model"
)

// PruneStats records what the island filter removed.
type PruneStats struct {
	Seed         string
	NodesKept    int
	ConnsKept    int
	NodesDeleted int
	ConnsDeleted int
}

// PruneIslands deletes every node and connection outside the island
// containing the seed node. The merge stage leaves disjoint fragments
// behind and downstream analysis needs one network. A missing or empty
// seed falls back to the largest island.
func PruneIslands(reg *model.Registry, seed string) PruneStats {
	if _, ok := reg.Node(seed); !ok {
		if seed != "" {
			log.Println("[Miner] seed node", seed, "not in model, keeping largest island")
		}
		comps := reg.Components()
		if len(comps) == 0 || len(comps[0]) == 0 {
			return PruneStats{}
		}
		seed = comps[0][0]
	}

	keepNodes, keepConns := reg.ReachableFrom(seed)

	var dropNodes, dropConns []string
	for _, id := range reg.NodeIDs() {
		if _, ok := keepNodes[id]; !ok {
			dropNodes = append(dropNodes, id)
		}
	}
	for _, id := range reg.ConnIDs() {
		if _, ok := keepConns[id]; !ok {
			dropConns = append(dropConns, id)
		}
	}

	for _, id := range dropNodes {
		reg.DeleteNode(id)
	}
	for _, id := range dropConns {
		reg.DeleteConn(id)
	}

	return PruneStats{
		Seed:         seed,
		NodesKept:    len(keepNodes),
		ConnsKept:    len(keepConns),
		NodesDeleted: len(dropNodes),
		ConnsDeleted: len(dropConns),
	}
}

// WriteDeletionLog persists the pruned ids next to the model CSVs so a
// shrinking export stays explainable.
func WriteDeletionLog(reg *model.Registry, dir string) error {
	if err := writeLines(filepath.Join(dir, "deleted_subs.txt"), reg.DeletedSubs()); err != nil {
		return err
	}
	return writeLines(filepath.Join(dir, "deleted_conns.txt"), reg.DeletedConns())
}

func writeLines(path string, lines []string) error {
	return ioutil.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644)
}
