package analysis

import (
	"sort"

	"github.com/camden-git/surfaceinspect/models"
)

const maxHealthScore = 100

// penalties is the per-detection score deduction for each known class.
// Classes missing here cost nothing so a retrained model with new labels
// keeps working.
var penalties = map[string]int{
	"major_crack": 15,
	"crack":       12,
	"minor_crack": 8,
	"spalling":    20,
	"peeling":     10,
	"algae":       5,
	"stain":       5,
}

var precautionsByClass = map[string]string{
	"major_crack": "Immediate structural inspection required.",
	"crack":       "Seal cracks early to prevent expansion.",
	"minor_crack": "Monitor and seal if needed.",
	"spalling":    "Repair damaged concrete immediately.",
	"peeling":     "Remove loose paint and repaint.",
	"algae":       "Clean surface and improve drainage.",
	"stain":       "Identify moisture source and check for leakage.",
}

// Assessment is everything derived from a set of damage counts.
type Assessment struct {
	Severity    models.Severity
	HealthScore int
	Precautions []string
}

// Assess derives severity, health score and precautions from counts.
func Assess(counts models.DamageCounts) Assessment {
	return Assessment{
		Severity:    SeverityFor(counts.Total()),
		HealthScore: HealthScore(counts),
		Precautions: Precautions(counts),
	}
}

// SeverityFor buckets a total detection count: 0 is Good, 1-2 Moderate,
// 3 and above Critical.
func SeverityFor(total int) models.Severity {
	switch {
	case total <= 0:
		return models.SeverityGood
	case total <= 2:
		return models.SeverityModerate
	default:
		return models.SeverityCritical
	}
}

// HealthScore returns 100 minus the summed class penalties, clamped to [0, 100].
func HealthScore(counts models.DamageCounts) int {
	penalty := 0
	for class, n := range counts {
		if n <= 0 {
			continue
		}
		penalty += penalties[class] * n
		if penalty >= maxHealthScore {
			return 0
		}
	}
	return maxHealthScore - penalty
}

// Precautions returns the distinct advice strings for the detected classes,
// sorted. Never nil.
func Precautions(counts models.DamageCounts) []string {
	seen := make(map[string]struct{}, len(counts))
	advice := make([]string, 0, len(counts))
	for class, n := range counts {
		if n <= 0 {
			continue
		}
		text, ok := precautionsByClass[class]
		if !ok || text == "" {
			continue
		}
		if _, dup := seen[text]; dup {
			continue
		}
		seen[text] = struct{}{}
		advice = append(advice, text)
	}
	sort.Strings(advice)
	return advice
}

// Penalty exposes the deduction for a single class (0 when unknown).
func Penalty(class string) int {
	return penalties[class]
}

// KnownClasses lists the classes the scoring tables know about, sorted.
func KnownClasses() []string {
	classes := make([]string, 0, len(penalties))
	for class := range penalties {
		classes = append(classes, class)
	}
	sort.Strings(classes)
	return classes
}
