// Package cluster groups accepted merge pairs into review groups. Merging is
// transitive: if A merges with B and B merges with C, a reviewer should see
// {A, B, C} as one group, not two pairs. Groups are the connected components
// of the undirected graph whose edges are the accepted merges.
package cluster

import (
	"sort"
	"strings"

	"github.com/agenthands/coalesce/internal/core/model"
)

// Groups returns the merge groups implied by the accumulated merge set.
// Each group lists the verbatim concept names involved, sorted; groups are
// ordered by their first member. Singleton concepts never appear (every
// member is part of at least one merge pair).
func Groups(merges map[string]model.CandidateMerge) [][]string {
	adj := make(map[string][]string)
	display := make(map[string]string)

	node := func(name string) string {
		key := strings.ToLower(strings.TrimSpace(name))
		if _, ok := display[key]; !ok {
			display[key] = name
		}
		return key
	}

	for _, m := range merges {
		a := node(m.ConceptA)
		b := node(m.ConceptB)
		adj[a] = append(adj[a], b)
		adj[b] = append(adj[b], a)
	}

	keys := make([]string, 0, len(adj))
	for k := range adj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	visited := make(map[string]bool)
	var groups [][]string
	for _, k := range keys {
		if visited[k] {
			continue
		}
		var component []string
		walk(k, adj, visited, &component)

		group := make([]string, 0, len(component))
		for _, c := range component {
			group = append(group, display[c])
		}
		sort.Strings(group)
		groups = append(groups, group)
	}

	sort.Slice(groups, func(i, j int) bool { return groups[i][0] < groups[j][0] })
	return groups
}

func walk(u string, adj map[string][]string, visited map[string]bool, component *[]string) {
	visited[u] = true
	*component = append(*component, u)
	for _, v := range adj[u] {
		if !visited[v] {
			walk(v, adj, visited, component)
		}
	}
}
