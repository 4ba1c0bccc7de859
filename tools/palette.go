// Palette tools - pixel-level color analysis for compliance checks
package tools

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"math"
	"sort"
	"strconv"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// ColorShare is one dominant color with its pixel coverage
type ColorShare struct {
	Hex      string  `json:"hex"`
	Coverage float64 `json:"coverage"` // fraction of sampled pixels, 0..1
}

// FramePalette is the dominant palette of one frame
type FramePalette struct {
	Frame  int          `json:"frame"`
	Colors []ColorShare `json:"colors"`
}

const defaultMaxColors = 5

// sampleStride caps analysis cost on large images. A 4k frame still yields
// tens of thousands of samples at stride 8.
const sampleStride = 4

func decodeImage(b64 string) (image.Image, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 image data: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("unsupported or corrupt image: %w", err)
	}
	return img, nil
}

// dominantColors samples the image on a grid, quantizes each sample to
// 4 bits per channel and returns the most frequent buckets with their
// share of samples.
func dominantColors(img image.Image, maxColors int) []ColorShare {
	if maxColors <= 0 {
		maxColors = defaultMaxColors
	}

	bounds := img.Bounds()
	counts := make(map[uint32]int)
	total := 0

	for y := bounds.Min.Y; y < bounds.Max.Y; y += sampleStride {
		for x := bounds.Min.X; x < bounds.Max.X; x += sampleStride {
			r, g, b, a := img.At(x, y).RGBA()
			if a == 0 {
				continue
			}
			// 16-bit channels down to 4-bit buckets
			key := (r >> 12 << 8) | (g >> 12 << 4) | (b >> 12)
			counts[key]++
			total++
		}
	}
	if total == 0 {
		return nil
	}

	type bucket struct {
		key uint32
		n   int
	}
	buckets := make([]bucket, 0, len(counts))
	for k, n := range counts {
		buckets = append(buckets, bucket{k, n})
	}
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].n != buckets[j].n {
			return buckets[i].n > buckets[j].n
		}
		return buckets[i].key < buckets[j].key
	})

	if len(buckets) > maxColors {
		buckets = buckets[:maxColors]
	}

	out := make([]ColorShare, len(buckets))
	for i, b := range buckets {
		// re-expand bucket midpoints to 8-bit
		r := uint8((b.key>>8&0xF)<<4 | 0x8)
		g := uint8((b.key>>4&0xF)<<4 | 0x8)
		bl := uint8((b.key&0xF)<<4 | 0x8)
		out[i] = ColorShare{
			Hex:      fmt.Sprintf("#%02X%02X%02X", r, g, bl),
			Coverage: float64(b.n) / float64(total),
		}
	}
	return out
}

func parseHex(hex string) (r, g, b int, err error) {
	hex = strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if len(hex) != 6 {
		return 0, 0, 0, fmt.Errorf("bad hex color: %q", hex)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("bad hex color: %q", hex)
	}
	return int(v >> 16 & 0xFF), int(v >> 8 & 0xFF), int(v & 0xFF), nil
}

// colorDistance is euclidean distance in RGB space, 0..~441
func colorDistance(a, b string) float64 {
	ar, ag, ab, err := parseHex(a)
	if err != nil {
		return math.MaxFloat64
	}
	br, bg, bb, err := parseHex(b)
	if err != nil {
		return math.MaxFloat64
	}
	dr := float64(ar - br)
	dg := float64(ag - bg)
	db := float64(ab - bb)
	return math.Sqrt(dr*dr + dg*dg + db*db)
}

// matchThreshold is how close a sampled color must sit to a palette entry
// to count as that entry. Quantization alone moves a color up to ~14 units
// per channel.
const matchThreshold = 60.0

// AnalyzeImageColorsTool extracts dominant colors from one image
type AnalyzeImageColorsTool struct{}

func (t *AnalyzeImageColorsTool) Name() string { return "analyze_image_colors" }

func (t *AnalyzeImageColorsTool) Description() string {
	return "Extract the dominant colors of an image with their pixel coverage."
}

func (t *AnalyzeImageColorsTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"image_base64": map[string]interface{}{
				"type":        "string",
				"description": "Base64-encoded PNG, JPEG or GIF image",
			},
			"max_colors": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum number of dominant colors to return (default 5)",
			},
		},
		"required": []string{"image_base64"},
	}
}

func (t *AnalyzeImageColorsTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	img, err := decodeImage(GetString(args, "image_base64"))
	if err != nil {
		return nil, err
	}
	colors := dominantColors(img, GetInt(args, "max_colors"))
	bounds := img.Bounds()
	return map[string]interface{}{
		"width":  bounds.Dx(),
		"height": bounds.Dy(),
		"colors": colors,
	}, nil
}

// CheckColorComplianceTool compares an image's dominant colors against a
// regional scheme
type CheckColorComplianceTool struct{}

func (t *CheckColorComplianceTool) Name() string { return "check_color_compliance" }

func (t *CheckColorComplianceTool) Description() string {
	return "Check an image's dominant colors against the approved palette for a region."
}

func (t *CheckColorComplianceTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"image_base64": map[string]interface{}{
				"type":        "string",
				"description": "Base64-encoded image to check",
			},
			"region": map[string]interface{}{
				"type":        "string",
				"description": "Market region code, e.g. us, eu, apac, latam",
			},
		},
		"required": []string{"image_base64", "region"},
	}
}

func (t *CheckColorComplianceTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	region := strings.ToLower(GetString(args, "region"))
	scheme, ok := regionSchemes[region]
	if !ok {
		return nil, fmt.Errorf("unknown region: %s", region)
	}
	img, err := decodeImage(GetString(args, "image_base64"))
	if err != nil {
		return nil, err
	}

	colors := dominantColors(img, defaultMaxColors)
	var matched, offPalette, forbidden []map[string]interface{}

	for _, c := range colors {
		hit := false
		for _, f := range scheme.Forbidden {
			if colorDistance(c.Hex, f) <= matchThreshold {
				forbidden = append(forbidden, map[string]interface{}{
					"color": c.Hex, "matches_forbidden": f, "coverage": c.Coverage,
				})
				hit = true
				break
			}
		}
		if hit {
			continue
		}
		for _, a := range scheme.Approved {
			if colorDistance(c.Hex, a) <= matchThreshold {
				matched = append(matched, map[string]interface{}{
					"color": c.Hex, "matches_approved": a, "coverage": c.Coverage,
				})
				hit = true
				break
			}
		}
		if !hit {
			offPalette = append(offPalette, map[string]interface{}{
				"color": c.Hex, "coverage": c.Coverage,
			})
		}
	}

	return map[string]interface{}{
		"region":      region,
		"compliant":   len(forbidden) == 0 && len(offPalette) == 0,
		"matched":     matched,
		"off_palette": offPalette,
		"forbidden":   forbidden,
	}, nil
}

// ExtractFramePaletteTool extracts per-frame dominant colors from a frame
// sequence
type ExtractFramePaletteTool struct{}

func (t *ExtractFramePaletteTool) Name() string { return "extract_frame_palette" }

func (t *ExtractFramePaletteTool) Description() string {
	return "Extract the dominant color palette of each frame in a video frame sequence."
}

func (t *ExtractFramePaletteTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"images_base64": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "string"},
				"description": "Base64-encoded frames in order",
			},
			"timestamp": map[string]interface{}{
				"type":        "number",
				"description": "Optional timestamp in seconds to focus on a single frame",
			},
			"max_colors": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum colors per frame (default 5)",
			},
		},
		"required": []string{"images_base64"},
	}
}

func (t *ExtractFramePaletteTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	frames := GetStringSlice(args, "images_base64")
	if len(frames) == 0 {
		return nil, fmt.Errorf("images_base64 is required")
	}
	maxColors := GetInt(args, "max_colors")

	palettes := make([]FramePalette, 0, len(frames))
	for i, frame := range frames {
		img, err := decodeImage(frame)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		palettes = append(palettes, FramePalette{
			Frame:  i,
			Colors: dominantColors(img, maxColors),
		})
	}
	return map[string]interface{}{"frames": palettes}, nil
}

// CompareFramesTool measures palette drift across a frame sequence
type CompareFramesTool struct{}

func (t *CompareFramesTool) Name() string { return "compare_frames" }

func (t *CompareFramesTool) Description() string {
	return "Measure how much the dominant palette drifts between consecutive video frames."
}

func (t *CompareFramesTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"images_base64": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "string"},
				"description": "Base64-encoded frames in order",
			},
		},
		"required": []string{"images_base64"},
	}
}

func (t *CompareFramesTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	frames := GetStringSlice(args, "images_base64")
	if len(frames) < 2 {
		return nil, fmt.Errorf("compare_frames needs at least two frames")
	}

	palettes := make([][]ColorShare, len(frames))
	for i, frame := range frames {
		img, err := decodeImage(frame)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		palettes[i] = dominantColors(img, defaultMaxColors)
	}

	drifts := make([]float64, 0, len(frames)-1)
	maxDrift := 0.0
	for i := 1; i < len(palettes); i++ {
		d := paletteDrift(palettes[i-1], palettes[i])
		drifts = append(drifts, d)
		if d > maxDrift {
			maxDrift = d
		}
	}

	return map[string]interface{}{
		"frame_count": len(frames),
		"drift":       drifts,
		"max_drift":   maxDrift,
	}, nil
}

// paletteDrift is the mean distance from each color in a to its nearest
// color in b
func paletteDrift(a, b []ColorShare) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	sum := 0.0
	for _, ca := range a {
		best := math.MaxFloat64
		for _, cb := range b {
			if d := colorDistance(ca.Hex, cb.Hex); d < best {
				best = d
			}
		}
		sum += best
	}
	return sum / float64(len(a))
}
