// Package report turns a confirmed waste candidate into an impact report with
// a one-time points claim.
package report

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/HacksterAman/Clean-Bounty/internal/waste"
)

// EnvironmentalImpact is the footprint panel attached to every report.
type EnvironmentalImpact struct {
	CO2SavedKg          float64 `json:"co2_saved_kg"`
	WaterSavedLiters    float64 `json:"water_saved_liters"`
	EnergySavedKWh      float64 `json:"energy_saved_kwh"`
	LandfillReductionKg float64 `json:"landfill_reduction_kg"`
}

// DefaultImpact is the fixed per-report footprint.
var DefaultImpact = EnvironmentalImpact{
	CO2SavedKg:          0.8,
	WaterSavedLiters:    15,
	EnergySavedKWh:      0.5,
	LandfillReductionKg: 0.2,
}

// WasteReport is the human-readable outcome of one confirmed classification.
// Claimed flips to true at most once.
type WasteReport struct {
	ID        string
	Candidate waste.Candidate
	ImageRef  string
	Location  *waste.Location
	Narrative string
	Impact    EnvironmentalImpact
	Category  *CategoryImpact
	CreatedAt time.Time

	mu      sync.Mutex
	claimed bool
}

// Claimed reports whether the points were already credited.
func (r *WasteReport) Claimed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.claimed
}

// Claim marks the report claimed and returns the points to credit. A second
// call fails with waste.ErrAlreadyClaimed and returns 0.
func (r *WasteReport) Claim() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.claimed {
		return 0, fmt.Errorf("report %s: %w", r.ID, waste.ErrAlreadyClaimed)
	}
	r.claimed = true
	return r.Candidate.Points, nil
}

// View is the JSON form of a report.
type View struct {
	ID        string              `json:"id"`
	Candidate waste.Candidate     `json:"candidate"`
	ImageRef  string              `json:"image_ref"`
	Location  *waste.Location     `json:"location"`
	Narrative string              `json:"narrative"`
	Impact    EnvironmentalImpact `json:"impact"`
	Category  *CategoryImpact     `json:"category_impact,omitempty"`
	Claimed   bool                `json:"claimed"`
	CreatedAt time.Time           `json:"created_at"`
}

// View copies the report for rendering.
func (r *WasteReport) View() View {
	return View{
		ID:        r.ID,
		Candidate: r.Candidate,
		ImageRef:  r.ImageRef,
		Location:  r.Location,
		Narrative: r.Narrative,
		Impact:    r.Impact,
		Category:  r.Category,
		Claimed:   r.Claimed(),
		CreatedAt: r.CreatedAt,
	}
}

// Builder creates reports. The zero value is ready to use.
type Builder struct {
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Build synthesizes the report for a confirmed candidate. loc may be nil.
func (b Builder) Build(c waste.Candidate, imageRef string, loc *waste.Location) *WasteReport {
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}

	narrative := Narrative(c.Type, c.Confidence)
	var locCopy *waste.Location
	if loc != nil {
		l := *loc
		locCopy = &l
		narrative += fmt.Sprintf("\n\nLocation: %.6f, %.6f", l.Lat, l.Lng)
	}
	var category *CategoryImpact
	if imp, ok := LookupImpact(c.Type); ok {
		category = &imp
	}

	return &WasteReport{
		ID:        uuid.NewString(),
		Candidate: c,
		ImageRef:  imageRef,
		Location:  locCopy,
		Narrative: narrative,
		Impact:    DefaultImpact,
		Category:  category,
		CreatedAt: now().UTC(),
	}
}

// Claim is the builder-level entry point for WasteReport.Claim.
func (Builder) Claim(r *WasteReport) (int, error) {
	return r.Claim()
}
