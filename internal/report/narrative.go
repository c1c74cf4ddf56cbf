package report

import (
	"fmt"
	"strings"
)

// CategoryImpact holds the fixed impact figures quoted for a waste category.
type CategoryImpact struct {
	Category string `json:"category"`

	DecompositionYears  int     `json:"decomposition_years,omitempty"`
	EnergySavedPercent  int     `json:"energy_saved_percent,omitempty"`
	WaterLitersPerItem  float64 `json:"water_liters_per_item,omitempty"`
	TreesSavedPerTon    int     `json:"trees_saved_per_ton,omitempty"`
	WaterPollutionCut   int     `json:"water_pollution_cut_percent,omitempty"`
	AirPollutionCut     int     `json:"air_pollution_cut_percent,omitempty"`
	MinRecycles         int     `json:"min_recycles,omitempty"`
	MaxRecycles         int     `json:"max_recycles,omitempty"`
	MethaneCO2Factor    int     `json:"methane_co2_factor,omitempty"`
	ShareOfWastePercent int     `json:"share_of_waste_percent,omitempty"`
	InfinitelyRecycled  bool    `json:"infinitely_recyclable,omitempty"`
}

// Impacts is the static per-category table. Labels outside it use the
// generic narrative.
var Impacts = map[string]CategoryImpact{
	"plastic": {Category: "plastic", DecompositionYears: 450, EnergySavedPercent: 75, WaterLitersPerItem: 0.5},
	"paper":   {Category: "paper", TreesSavedPerTon: 17, WaterPollutionCut: 35, AirPollutionCut: 74, EnergySavedPercent: 60, MinRecycles: 5, MaxRecycles: 7},
	"organic": {Category: "organic", MethaneCO2Factor: 25, ShareOfWastePercent: 30},
	"metal":   {Category: "metal", EnergySavedPercent: 95, InfinitelyRecycled: true},
}

// LookupImpact returns the figures for label, matched case-insensitively.
func LookupImpact(label string) (CategoryImpact, bool) {
	imp, ok := Impacts[strings.ToLower(strings.TrimSpace(label))]
	return imp, ok
}

func percent(confidence float64) string {
	return fmt.Sprintf("%.1f%%", confidence*100)
}

// Narrative renders the deterministic report text for a label and confidence.
func Narrative(label string, confidence float64) string {
	conf := percent(confidence)
	imp, ok := LookupImpact(label)
	if !ok {
		return fmt.Sprintf(`This waste has been identified as %s with %s confidence.

General Recycling Guidelines:
- Always check local recycling guidelines as they vary by location.
- Clean items before recycling to avoid contaminating other recyclables.
- Consider reusing items before recycling when possible.

Thank you for contributing to a cleaner environment through proper waste management.`, label, conf)
	}

	switch imp.Category {
	case "plastic":
		return fmt.Sprintf(`This plastic waste item has been identified with %s confidence. It appears to be a single-use plastic item that requires proper recycling.

Environmental Impact Analysis:
- If not recycled, this item would take approximately %d years to decompose in a landfill.
- Recycling this plastic can save up to %d%% of the energy required to produce new plastic.
- This item likely consumed %.1f liters of water during its production.

Recommended Disposal Method:
This item should be placed in a plastic recycling bin (typically blue) after rinsing. Many recycling facilities can process this type of plastic into new products, reducing landfill waste and conserving natural resources.`,
			conf, imp.DecompositionYears, imp.EnergySavedPercent, imp.WaterLitersPerItem)
	case "paper":
		return fmt.Sprintf(`This paper waste has been identified with %s confidence. It appears to be recyclable paper material.

Environmental Impact Analysis:
- Recycling this paper item saves approximately %d trees per ton of paper recycled.
- Paper recycling reduces water pollution by %d%% and air pollution by %d%% compared to new paper production.
- Recycling paper uses %d%% less energy than manufacturing new paper.

Recommended Disposal Method:
This item should be placed in a paper recycling bin. Ensure it is clean and free from food contaminants. Paper can typically be recycled %d-%d times before the fibers become too short for reuse.`,
			conf, imp.TreesSavedPerTon, imp.WaterPollutionCut, imp.AirPollutionCut, imp.EnergySavedPercent, imp.MinRecycles, imp.MaxRecycles)
	case "organic":
		return fmt.Sprintf(`This organic waste has been identified with %s confidence. It appears to be compostable organic material.

Environmental Impact Analysis:
- When sent to landfill, organic waste produces methane, a greenhouse gas %d times more potent than CO2.
- Composting this waste could reduce greenhouse gas emissions and create nutrient-rich soil.
- Organic waste accounts for approximately %d%% of what we throw away.

Recommended Disposal Method:
This item should be composted rather than sent to landfill. Home composting or municipal green waste collection are both excellent options. The resulting compost can enrich soil and reduce the need for chemical fertilizers.`,
			conf, imp.MethaneCO2Factor, imp.ShareOfWastePercent)
	default: // metal
		return fmt.Sprintf(`This metal waste has been identified with %s confidence. It appears to be recyclable metal material.

Environmental Impact Analysis:
- Recycling this metal item uses %d%% less energy than producing it from raw materials.
- Metal can be recycled indefinitely without loss of quality.
- Mining for virgin metal ore is extremely environmentally damaging, causing habitat destruction and water pollution.

Recommended Disposal Method:
This item should be placed in a metal recycling bin. Most metals are highly valuable in recycling streams and are actively sought by recyclers. Ensure the item is clean and free from non-metal attachments if possible.`,
			conf, imp.EnergySavedPercent)
	}
}
