// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package spatial

import "slices"

// Cluster groups points that are within thresholdMeters of any member of a
// group, returning the indexes of every group. Groups are ordered largest
// first, ties keep input order.
func Cluster(points []Point, thresholdMeters float64) [][]int {
	clusters := make([][]int, 0, len(points))
	visited := make([]bool, len(points))

	for i := range points {
		if visited[i] {
			continue
		}

		cluster := []int{i}
		visited[i] = true

		// members added later are checked against the rest too
		for k := 0; k < len(cluster); k++ {
			member := &points[cluster[k]]

			for j := range points {
				if !visited[j] && member.HaversineDistance(&points[j]) <= thresholdMeters {
					cluster = append(cluster, j)
					visited[j] = true
				}
			}
		}

		slices.Sort(cluster)
		clusters = append(clusters, cluster)
	}

	slices.SortStableFunc(clusters, func(a, b []int) int {
		return len(b) - len(a)
	})

	return clusters
}
