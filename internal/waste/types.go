// Package waste holds the domain values shared by every stage of the
// classification-and-reporting pipeline.
package waste

import "strings"

// Candidate is one proposed waste-type label for an image.
type Candidate struct {
	Type        string  `json:"type"`
	Confidence  float64 `json:"confidence"`
	Description string  `json:"description"`
	Points      int     `json:"points"`
}

// ClassificationResult is the ordered candidate list for one image, highest
// confidence first as returned by the model. An empty list means no waste was
// detected.
type ClassificationResult struct {
	Candidates []Candidate `json:"waste_types"`
}

// Empty reports whether no waste was detected.
func (r ClassificationResult) Empty() bool { return len(r.Candidates) == 0 }

// Contains reports whether c is one of the result's candidates.
func (r ClassificationResult) Contains(c Candidate) bool {
	for _, rc := range r.Candidates {
		if rc == c {
			return true
		}
	}
	return false
}

// ByType returns the first candidate whose type matches name case-insensitively.
func (r ClassificationResult) ByType(name string) (Candidate, bool) {
	for _, rc := range r.Candidates {
		if strings.EqualFold(rc.Type, strings.TrimSpace(name)) {
			return rc, true
		}
	}
	return Candidate{}, false
}

// BountyDescription is a generated cleanup brief derived from one
// classification result.
type BountyDescription struct {
	Title            string         `json:"bounty_title"`
	TargetWasteTypes []string       `json:"target_waste"`
	PotentialHazards string         `json:"potential_hazards"`
	CleanupApproach  string         `json:"cleanup_approach"`
	RewardPoints     map[string]int `json:"reward_points"`
}

// Location is a device geolocation fix.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// DefaultPoints are the advisory per-category points the classifier is asked
// to emit. They are not enforced anywhere in the pipeline.
var DefaultPoints = map[string]int{
	"Plastic":    10,
	"Paper":      5,
	"Organic":    3,
	"Metal":      15,
	"Glass":      8,
	"Electronic": 20,
}

// UniqueTypes de-duplicates labels case-insensitively, keeping the first
// spelling and dropping blanks.
func UniqueTypes(labels []string) []string {
	seen := make(map[string]struct{}, len(labels))
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		key := strings.ToLower(l)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, l)
	}
	return out
}
