package allocation

import (
	"sort"

	"github.com/meridian-search/controlplane/pkg/types"
)

// StandardEngine implements strategy RESPECT_REPLICA_COUNT (spec.md
// §4.3.1): the reader set is bounded by the index's declared replica count
// and stabilised by retaining currently-planned readers first.
type StandardEngine struct{}

func (StandardEngine) Select(ctx ShardContext, writerCandidates, readerCandidates []types.Node, current types.PlannedAllocation) (Plan, []Diagnostic) {
	eligible := eligibleReaders(readerCandidates)
	byName := make(map[string]types.Node, len(eligible))
	for _, n := range eligible {
		byName[n.Name] = n
	}

	var retained []string
	for _, name := range current.SearchSUs {
		if _, ok := byName[name]; ok {
			retained = append(retained, name)
		}
	}
	sort.Strings(retained)

	r := ctx.ReplicaCount
	var readers []string
	if len(retained) >= r {
		readers = append(readers, retained[:r]...)
	} else {
		readers = append(readers, retained...)
		retainedSet := make(map[string]bool, len(retained))
		for _, name := range retained {
			retainedSet[name] = true
		}

		var remaining []string
		for _, n := range eligible {
			if !retainedSet[n.Name] {
				remaining = append(remaining, n.Name)
			}
		}
		sort.Strings(remaining)

		need := r - len(retained)
		if need > len(remaining) {
			need = len(remaining)
		}
		readers = append(readers, remaining[:need]...)
	}

	writer, diags := selectWriter(ctx, writerCandidates)
	return Plan{Writer: writer, Readers: readers}, diags
}
