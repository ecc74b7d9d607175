package models

// Severity is the coarse condition tier derived from the total detection count.
type Severity string

const (
	SeverityGood     Severity = "Good"
	SeverityModerate Severity = "Moderate"
	SeverityCritical Severity = "Critical"
)

// DamageCounts maps a detector class name to the number of boxes found for it.
// Classes that were not seen are absent, never zero-valued.
type DamageCounts map[string]int

// Total returns the number of detections across all classes.
func (c DamageCounts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

// Inspection is the persisted analysis result stored at
// users/{uid}/inspections/{id}. The id is the store key and is not written
// into the record body.
type Inspection struct {
	ID              string       `json:"id,omitempty"`
	DetectedDamages DamageCounts `json:"detected_damages"`
	Severity        Severity     `json:"severity"`
	HealthScore     int          `json:"health_score"`
	Precautions     []string     `json:"precautions"`
	ImageURL        string       `json:"image_url"`
	CreatedAt       Timestamp    `json:"created_at"`
	CapturedAt      *Timestamp   `json:"captured_at,omitempty"`
}

// AnalysisResult is the response body of a successful analysis.
type AnalysisResult struct {
	DetectedDamages DamageCounts `json:"detected_damages"`
	Severity        Severity     `json:"severity"`
	HealthScore     int          `json:"health_score"`
	Precautions     []string     `json:"precautions"`
	ImageURL        string       `json:"image_url"`
	CreatedAt       Timestamp    `json:"created_at"`
	CapturedAt      *Timestamp   `json:"captured_at,omitempty"`
	InspectionID    string       `json:"inspection_id"`
}

func NewAnalysisResult(in Inspection) AnalysisResult {
	return AnalysisResult{
		DetectedDamages: in.DetectedDamages,
		Severity:        in.Severity,
		HealthScore:     in.HealthScore,
		Precautions:     in.Precautions,
		ImageURL:        in.ImageURL,
		CreatedAt:       in.CreatedAt,
		CapturedAt:      in.CapturedAt,
		InspectionID:    in.ID,
	}
}
