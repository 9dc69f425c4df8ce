// Package community detects clusters of related entities with label
// propagation over recent co-occurrence edges and materializes membership
// as temporal facts.
package community

import "sort"

// Propagate runs synchronous label propagation over a weighted undirected
// adjacency map and returns the final label per node.
//
// The run is fully deterministic: nodes are visited in sorted order, each
// node adopts the weighted-majority label among its neighbors, and label
// ties break toward the lowest label. Returns the labels and whether the
// propagation converged within maxIterations.
func Propagate(adj map[string]map[string]int, maxIterations int) (map[string]string, bool) {
	nodes := make([]string, 0, len(adj))
	for n := range adj {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)

	// Every node starts in its own community.
	labels := make(map[string]string, len(nodes))
	for _, n := range nodes {
		labels[n] = n
	}

	for iter := 0; iter < maxIterations; iter++ {
		changed := false
		for _, n := range nodes {
			best := dominantLabel(n, adj[n], labels)
			if best != "" && best != labels[n] {
				labels[n] = best
				changed = true
			}
		}
		if !changed {
			return labels, true
		}
	}
	return labels, false
}

// dominantLabel returns the weighted-majority label among the node's
// neighbors, breaking ties toward the lowest label. A node with no
// neighbors keeps its own label.
func dominantLabel(node string, neighbors map[string]int, labels map[string]string) string {
	if len(neighbors) == 0 {
		return labels[node]
	}

	weights := make(map[string]int, len(neighbors))
	for neighbor, w := range neighbors {
		weights[labels[neighbor]] += w
	}

	best := ""
	bestWeight := -1
	for label, w := range weights {
		if w > bestWeight || (w == bestWeight && label < best) {
			best = label
			bestWeight = w
		}
	}
	return best
}

// Group inverts a label assignment into sorted member lists keyed by the
// lowest member ID, which serves as the stable community identity.
func Group(labels map[string]string) map[string][]string {
	byLabel := make(map[string][]string)
	for node, label := range labels {
		byLabel[label] = append(byLabel[label], node)
	}

	groups := make(map[string][]string, len(byLabel))
	for _, members := range byLabel {
		sort.Strings(members)
		groups[members[0]] = members
	}
	return groups
}
