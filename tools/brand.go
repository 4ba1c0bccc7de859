// Brand lookup tools - static guideline and palette data
package tools

import (
	"context"
	"fmt"
	"strings"
)

// RegionScheme is the approved palette for one market region
type RegionScheme struct {
	Region    string   `json:"region"`
	Approved  []string `json:"approved_colors"`
	Forbidden []string `json:"forbidden_colors"`
	Notes     string   `json:"notes,omitempty"`
}

// regionSchemes is the static regional palette table. Lookups against it
// are deterministic, so callers cache them with a long TTL.
var regionSchemes = map[string]RegionScheme{
	"us": {
		Region:    "us",
		Approved:  []string{"#1A73E8", "#FFFFFF", "#202124", "#34A853"},
		Forbidden: []string{"#FF0000"},
		Notes:     "Primary blue must dominate hero placements.",
	},
	"eu": {
		Region:    "eu",
		Approved:  []string{"#1A73E8", "#FFFFFF", "#202124", "#FBBC04"},
		Forbidden: []string{"#FF0000", "#00FF00"},
		Notes:     "Accent yellow limited to call-to-action elements.",
	},
	"apac": {
		Region:    "apac",
		Approved:  []string{"#D93025", "#FFFFFF", "#202124", "#FBBC04"},
		Forbidden: []string{},
		Notes:     "Red is approved for festive campaign variants.",
	},
	"latam": {
		Region:    "latam",
		Approved:  []string{"#1A73E8", "#FFFFFF", "#34A853", "#FBBC04"},
		Forbidden: []string{"#000000"},
	},
}

// brandGuidelines maps brand slug to its written guideline summary
var brandGuidelines = map[string]map[string]interface{}{
	"veribrand": {
		"brand":         "veribrand",
		"logo_min_px":   48,
		"clear_space":   "logo height x 0.5 on all sides",
		"primary_color": "#1A73E8",
		"typography":    "Inter for digital, Helvetica Neue for print",
		"tone":          "confident, plain-spoken, never jargon-heavy",
	},
	"acme": {
		"brand":         "acme",
		"logo_min_px":   32,
		"clear_space":   "logo height x 1.0 on all sides",
		"primary_color": "#D93025",
		"typography":    "Roboto everywhere",
		"tone":          "playful but precise",
	},
}

// RegionColorSchemeTool looks up the approved palette for a region
type RegionColorSchemeTool struct{}

func (t *RegionColorSchemeTool) Name() string { return "get_region_color_scheme" }

func (t *RegionColorSchemeTool) Description() string {
	return "Get the approved and forbidden brand colors for a market region (us, eu, apac, latam)."
}

func (t *RegionColorSchemeTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"region": map[string]interface{}{
				"type":        "string",
				"description": "Market region code, e.g. us, eu, apac, latam",
			},
		},
		"required": []string{"region"},
	}
}

func (t *RegionColorSchemeTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	region := strings.ToLower(GetString(args, "region"))
	if region == "" {
		return nil, fmt.Errorf("region is required")
	}
	scheme, ok := regionSchemes[region]
	if !ok {
		return nil, fmt.Errorf("unknown region: %s", region)
	}
	return scheme, nil
}

// BrandGuidelinesTool looks up the written guidelines for a brand
type BrandGuidelinesTool struct{}

func (t *BrandGuidelinesTool) Name() string { return "get_brand_guidelines" }

func (t *BrandGuidelinesTool) Description() string {
	return "Get the written brand guidelines (logo sizing, typography, tone) for a brand."
}

func (t *BrandGuidelinesTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"brand": map[string]interface{}{
				"type":        "string",
				"description": "Brand slug, e.g. veribrand",
			},
		},
		"required": []string{"brand"},
	}
}

func (t *BrandGuidelinesTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	brand := strings.ToLower(GetString(args, "brand"))
	if brand == "" {
		return nil, fmt.Errorf("brand is required")
	}
	g, ok := brandGuidelines[brand]
	if !ok {
		return nil, fmt.Errorf("unknown brand: %s", brand)
	}
	return g, nil
}

// CompletionSpec is the schema for attempt_completion. The tool itself is
// never executed: the agent loop treats a call to it as the final answer.
func CompletionSpec() (string, string, map[string]interface{}) {
	return CompletionToolName,
		"Present the final compliance verdict to the user. Call this once the check is done.",
		map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"result": map[string]interface{}{
					"type":        "string",
					"description": "The final compliance verdict and supporting findings",
				},
			},
			"required": []string{"result"},
		}
}

// CompletionTool exists so attempt_completion appears in the tool catalog
// sent to the model. Execute should be unreachable.
type CompletionTool struct{}

func (t *CompletionTool) Name() string { return CompletionToolName }

func (t *CompletionTool) Description() string {
	_, desc, _ := CompletionSpec()
	return desc
}

func (t *CompletionTool) Parameters() map[string]interface{} {
	_, _, params := CompletionSpec()
	return params
}

func (t *CompletionTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	return GetString(args, "result"), nil
}
