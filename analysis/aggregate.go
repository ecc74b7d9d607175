// Package analysis turns detector output into damage counts and derives the
// severity tier, health score and precautions from them. Everything here is a
// pure function and safe for concurrent use.
package analysis

import "github.com/camden-git/surfaceinspect/models"

// Tally counts the occurrences of each class label. An empty input yields an
// empty, non-nil map.
func Tally(labels []string) models.DamageCounts {
	counts := make(models.DamageCounts, len(labels))
	for _, label := range labels {
		if label == "" {
			continue
		}
		counts[label]++
	}
	return counts
}
