package miner

import (
	"log"
	"sort"

	pb "gopkg.in/cheggaaa/pb.v1"

	"github.com/ohmwork/gridcore/internal/pkg/geo"
	"github.com/ohmwork/gridcore/internal/pkg/model"
)

// MergeStats counts what the endpoint resolution pass did.
type MergeStats struct {
	Fused       int
	SubJoins    int
	BranchJoins int
	DupBranches int
}

type endpoint struct {
	connID string
	at     geo.Coord
}

// Resolve stitches the imported records into one graph. Overlapping
// substations fuse first, then every connection endpoint pools the
// line ends within branchTolM around it and attaches the pool to the
// closest substation within subTolM, or to a new branch node when no
// substation is near. Endpoint candidates rank by raw degree distance,
// the merge order must not depend on latitude scaling.
func Resolve(reg *model.Registry, branchTolM, subTolM, fuseTolM float64) MergeStats {
	var stats MergeStats

	if fuseTolM > 0 {
		stats.Fused = reg.FuseSubstations(fuseTolM)
		log.Println("[Miner] fused", stats.Fused, "overlapping substations")
	}

	ends := connEndpoints(reg)
	log.Println("[Miner] resolving", len(ends), "connection endpoints")

	bar := pb.StartNew(len(ends))
	for _, ep := range ends {
		bar.Increment()

		pool := reg.SearchConnEnds(ep.at, branchTolM)
		if len(pool) == 0 {
			continue
		}

		var nodeID string
		if subs := reg.SearchSubs(ep.at, subTolM); len(subs) >= 1 {
			sortByDegreeDistance(reg, subs, ep.at)
			nodeID = subs[0]
			stats.SubJoins++
		} else {
			br, err := reg.AddBranch(ep.at, pool)
			if err != nil {
				// Same pool at the same point, an earlier endpoint
				// already made this branch.
				stats.DupBranches++
				continue
			}
			nodeID = br.ID()
			stats.BranchJoins++
		}

		reg.Connect(nodeID, pool)
	}
	bar.FinishPrint("[Miner] endpoint resolution done")

	// Raw station voltage flags disagree with the connected lines often
	// enough that the circuits win.
	reg.UpdateVoltagesFromConns()

	return stats
}

// connEndpoints lists both ends of every connection in id order.
func connEndpoints(reg *model.Registry) []endpoint {
	ids := reg.ConnIDs()
	ends := make([]endpoint, 0, 2*len(ids))
	for _, id := range ids {
		c, ok := reg.Conn(id)
		if !ok {
			continue
		}
		ends = append(ends, endpoint{id, c.StartPoint()}, endpoint{id, c.EndPoint()})
	}
	return ends
}

func sortByDegreeDistance(reg *model.Registry, subIDs []string, at geo.Coord) {
	sort.SliceStable(subIDs, func(i, j int) bool {
		ni, iok := reg.Node(subIDs[i])
		nj, jok := reg.Node(subIDs[j])
		if !iok || !jok {
			return iok
		}
		di := at.DegreeDistance(ni.Coords())
		dj := at.DegreeDistance(nj.Coords())
		if di != dj {
			return di < dj
		}
		return subIDs[i] < subIDs[j]
	})
}
