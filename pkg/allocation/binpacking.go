package allocation

import (
	"sort"

	"github.com/meridian-search/controlplane/pkg/types"
)

// BinPackingEngine implements strategy USE_ALL_AVAILABLE_NODES (spec.md
// §4.3.2): replicas are selected and excluded as whole groups, and every
// healthy member of a selected group is used. Replica-count caps are
// ignored; only the desired group count matters.
type BinPackingEngine struct{}

func (BinPackingEngine) Select(ctx ShardContext, writerCandidates, readerCandidates []types.Node, current types.PlannedAllocation) (Plan, []Diagnostic) {
	eligible := eligibleReaders(readerCandidates)

	groups := make(map[string][]types.Node)
	for _, n := range eligible {
		_, group := ShardAffinity(n.ShardPoolID)
		groups[group] = append(groups[group], n)
	}

	plannedMembers := make(map[string]bool, len(current.SearchSUs))
	for _, name := range current.SearchSUs {
		plannedMembers[name] = true
	}
	groupsPlanned := make(map[string]bool)
	for group, members := range groups {
		for _, n := range members {
			if plannedMembers[n.Name] {
				groupsPlanned[group] = true
				break
			}
		}
	}

	selected := selectGroups(groups, groupsPlanned, ctx.GroupsAllocateCount)

	var readerNames []string
	for group := range selected {
		for _, n := range groups[group] {
			readerNames = append(readerNames, n.Name)
		}
	}
	sort.Strings(readerNames)

	writer, diags := selectWriter(ctx, writerCandidates)
	return Plan{Writer: writer, Readers: readerNames}, diags
}

// selectGroups implements spec.md §4.3.2 steps 1-5: keep the planned group
// set if it already has G members, extend it lexically if it is short, or
// contract it to the G groups with the most healthy members (ties broken
// lexically) if it has too many.
func selectGroups(groups map[string][]types.Node, planned map[string]bool, g int) map[string]bool {
	if g < 0 {
		g = 0
	}
	selected := make(map[string]bool, len(planned))
	for group := range planned {
		selected[group] = true
	}

	if len(selected) == g {
		return selected
	}

	if len(selected) < g {
		var available []string
		for group := range groups {
			if !selected[group] {
				available = append(available, group)
			}
		}
		sort.Strings(available)

		need := g - len(selected)
		if need > len(available) {
			need = len(available)
		}
		for _, group := range available[:need] {
			selected[group] = true
		}
		return selected
	}

	// len(selected) > g: contract to the g largest groups, ties lexical.
	candidates := make([]string, 0, len(selected))
	for group := range selected {
		candidates = append(candidates, group)
	}
	sort.Slice(candidates, func(i, j int) bool {
		si, sj := len(groups[candidates[i]]), len(groups[candidates[j]])
		if si != sj {
			return si > sj
		}
		return candidates[i] < candidates[j]
	})

	contracted := make(map[string]bool, g)
	for _, group := range candidates[:g] {
		contracted[group] = true
	}
	return contracted
}
