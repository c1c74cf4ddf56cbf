package classifier

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/HacksterAman/Clean-Bounty/internal/waste"
)

type wireCandidate struct {
	Type        string   `json:"type"`
	Confidence  *float64 `json:"confidence"`
	Description string   `json:"description"`
	Points      *float64 `json:"points"`
}

type wireClassification struct {
	WasteTypes *[]wireCandidate `json:"waste_types"`
}

type wireBounty struct {
	Title            *string        `json:"bounty_title"`
	TargetWaste      []string       `json:"target_waste"`
	PotentialHazards string         `json:"potential_hazards"`
	CleanupApproach  string         `json:"cleanup_approach"`
	RewardPoints     map[string]any `json:"reward_points"`
}

// ExtractJSON locates the JSON object inside free-form model output: code
// fences are stripped and the text between the first '{' and the last '}' is
// returned.
func ExtractJSON(text string) (string, error) {
	text = stripCodeFences(text)
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return "", fmt.Errorf("%w: no JSON object in model output", waste.ErrSchema)
	}
	return text[start : end+1], nil
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// ParseClassification decodes model output into a validated, not yet
// normalized, classification result.
func ParseClassification(text string) (waste.ClassificationResult, error) {
	raw, err := ExtractJSON(text)
	if err != nil {
		return waste.ClassificationResult{}, err
	}
	var wire wireClassification
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return waste.ClassificationResult{}, fmt.Errorf("%w: %v", waste.ErrSchema, err)
	}
	if wire.WasteTypes == nil {
		return waste.ClassificationResult{}, fmt.Errorf("%w: missing waste_types", waste.ErrSchema)
	}

	out := make([]waste.Candidate, 0, len(*wire.WasteTypes))
	for i, wc := range *wire.WasteTypes {
		c, err := wc.candidate()
		if err != nil {
			return waste.ClassificationResult{}, fmt.Errorf("%w: waste_types[%d]: %v", waste.ErrSchema, i, err)
		}
		out = append(out, c)
	}
	return waste.ClassificationResult{Candidates: out}, nil
}

func (wc wireCandidate) candidate() (waste.Candidate, error) {
	label := strings.TrimSpace(wc.Type)
	if label == "" {
		return waste.Candidate{}, fmt.Errorf("empty type")
	}
	if wc.Confidence == nil {
		return waste.Candidate{}, fmt.Errorf("missing confidence")
	}
	conf := *wc.Confidence
	if math.IsNaN(conf) || math.IsInf(conf, 0) || conf < 0 {
		return waste.Candidate{}, fmt.Errorf("confidence %v out of range", conf)
	}
	if conf > 1 {
		conf = 1
	}
	points := 0
	if wc.Points != nil {
		if *wc.Points < 0 || math.IsNaN(*wc.Points) {
			return waste.Candidate{}, fmt.Errorf("negative points")
		}
		points = int(math.Round(*wc.Points))
	} else if p, ok := waste.DefaultPoints[label]; ok {
		points = p
	}
	return waste.Candidate{
		Type:        label,
		Confidence:  conf,
		Description: strings.TrimSpace(wc.Description),
		Points:      points,
	}, nil
}

// ParseBounty decodes a bounty description from model output.
func ParseBounty(text string) (waste.BountyDescription, error) {
	raw, err := ExtractJSON(text)
	if err != nil {
		return waste.BountyDescription{}, err
	}
	var wire wireBounty
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return waste.BountyDescription{}, fmt.Errorf("%w: %v", waste.ErrSchema, err)
	}
	if wire.Title == nil || strings.TrimSpace(*wire.Title) == "" {
		return waste.BountyDescription{}, fmt.Errorf("%w: missing bounty_title", waste.ErrSchema)
	}

	rewards := make(map[string]int, len(wire.RewardPoints))
	for label, v := range wire.RewardPoints {
		n, ok := v.(float64)
		if !ok || n < 0 {
			return waste.BountyDescription{}, fmt.Errorf("%w: reward_points[%q] is not a non-negative number", waste.ErrSchema, label)
		}
		rewards[label] = int(math.Round(n))
	}

	return waste.BountyDescription{
		Title:            strings.TrimSpace(*wire.Title),
		TargetWasteTypes: waste.UniqueTypes(wire.TargetWaste),
		PotentialHazards: strings.TrimSpace(wire.PotentialHazards),
		CleanupApproach:  strings.TrimSpace(wire.CleanupApproach),
		RewardPoints:     rewards,
	}, nil
}

// EncodeResult serializes a full classification result in the wire shape the
// describer prompt embeds.
func EncodeResult(result waste.ClassificationResult) (string, error) {
	candidates := result.Candidates
	if candidates == nil {
		candidates = []waste.Candidate{}
	}
	b, err := json.Marshal(waste.ClassificationResult{Candidates: candidates})
	if err != nil {
		return "", err
	}
	return string(b), nil
}
