package waste

// sumTolerance absorbs the rounding left by a previous rescale so that a
// normalized slice is never rescaled a second time.
const sumTolerance = 1e-9

// Normalize caps the total confidence mass at 1. When the confidences sum to
// more than 1 every value is divided by the sum; otherwise the slice is
// returned as is and the missing mass counts as unclassified. The input is
// never modified.
func Normalize(candidates []Candidate) []Candidate {
	if len(candidates) == 0 {
		return candidates
	}
	total := ConfidenceSum(candidates)
	if total <= 1+sumTolerance {
		return candidates
	}
	out := make([]Candidate, len(candidates))
	for i, c := range candidates {
		c.Confidence /= total
		out[i] = c
	}
	return out
}

// NormalizeResult applies Normalize to a whole result.
func NormalizeResult(r ClassificationResult) ClassificationResult {
	return ClassificationResult{Candidates: Normalize(r.Candidates)}
}

// ConfidenceSum adds up the confidences of candidates.
func ConfidenceSum(candidates []Candidate) float64 {
	var total float64
	for _, c := range candidates {
		total += c.Confidence
	}
	return total
}
