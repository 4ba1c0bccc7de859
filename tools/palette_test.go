package tools

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"testing"
)

// solidPNG returns a base64 PNG filled with one color
func solidPNG(t *testing.T, c color.RGBA, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode failed: %v", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestAnalyzeImageColorsSolid(t *testing.T) {
	tool := &AnalyzeImageColorsTool{}
	args := map[string]interface{}{
		"image_base64": solidPNG(t, color.RGBA{R: 255, A: 255}, 16, 16),
	}

	result, err := tool.Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}

	report := result.(map[string]interface{})
	colors := report["colors"].([]ColorShare)
	if len(colors) != 1 {
		t.Fatalf("Expected one dominant color for a solid image, got %d", len(colors))
	}
	if colors[0].Coverage != 1.0 {
		t.Errorf("Expected full coverage, got %f", colors[0].Coverage)
	}
	if colorDistance(colors[0].Hex, "#FF0000") > matchThreshold {
		t.Errorf("Expected a red dominant color, got %s", colors[0].Hex)
	}
}

func TestAnalyzeImageColorsBadData(t *testing.T) {
	tool := &AnalyzeImageColorsTool{}
	if _, err := tool.Execute(context.Background(), map[string]interface{}{"image_base64": "%%%"}); err == nil {
		t.Fatal("Expected error for invalid base64")
	}
	if _, err := tool.Execute(context.Background(), map[string]interface{}{
		"image_base64": base64.StdEncoding.EncodeToString([]byte("not an image")),
	}); err == nil {
		t.Fatal("Expected error for non-image data")
	}
}

func TestCheckColorComplianceForbidden(t *testing.T) {
	tool := &CheckColorComplianceTool{}
	args := map[string]interface{}{
		// pure red is forbidden in the eu scheme
		"image_base64": solidPNG(t, color.RGBA{R: 255, A: 255}, 16, 16),
		"region":       "eu",
	}

	result, err := tool.Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	report := result.(map[string]interface{})
	if report["compliant"].(bool) {
		t.Error("Expected non-compliant verdict for forbidden red")
	}
	if report["forbidden"] == nil {
		t.Error("Expected forbidden colors reported")
	}
}

func TestCheckColorComplianceApproved(t *testing.T) {
	tool := &CheckColorComplianceTool{}
	args := map[string]interface{}{
		// white is approved everywhere
		"image_base64": solidPNG(t, color.RGBA{R: 255, G: 255, B: 255, A: 255}, 16, 16),
		"region":       "us",
	}

	result, err := tool.Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	report := result.(map[string]interface{})
	if !report["compliant"].(bool) {
		t.Errorf("Expected compliant verdict for white image, got %v", report)
	}
}

func TestCheckColorComplianceUnknownRegion(t *testing.T) {
	tool := &CheckColorComplianceTool{}
	_, err := tool.Execute(context.Background(), map[string]interface{}{
		"image_base64": solidPNG(t, color.RGBA{A: 255}, 4, 4),
		"region":       "mars",
	})
	if err == nil {
		t.Fatal("Expected error for unknown region")
	}
}

func TestExtractFramePalette(t *testing.T) {
	tool := &ExtractFramePaletteTool{}
	args := map[string]interface{}{
		"images_base64": []interface{}{
			solidPNG(t, color.RGBA{R: 255, A: 255}, 8, 8),
			solidPNG(t, color.RGBA{B: 255, A: 255}, 8, 8),
		},
	}

	result, err := tool.Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	frames := result.(map[string]interface{})["frames"].([]FramePalette)
	if len(frames) != 2 {
		t.Fatalf("Expected 2 frame palettes, got %d", len(frames))
	}
	if frames[0].Frame != 0 || frames[1].Frame != 1 {
		t.Error("Expected frame indices in order")
	}
}

func TestCompareFramesDrift(t *testing.T) {
	tool := &CompareFramesTool{}

	red := solidPNG(t, color.RGBA{R: 255, A: 255}, 8, 8)
	blue := solidPNG(t, color.RGBA{B: 255, A: 255}, 8, 8)

	result, err := tool.Execute(context.Background(), map[string]interface{}{
		"images_base64": []interface{}{red, red, blue},
	})
	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	report := result.(map[string]interface{})
	drifts := report["drift"].([]float64)
	if len(drifts) != 2 {
		t.Fatalf("Expected 2 drift values, got %d", len(drifts))
	}
	if drifts[0] != 0 {
		t.Errorf("Expected zero drift between identical frames, got %f", drifts[0])
	}
	if drifts[1] <= drifts[0] {
		t.Errorf("Expected red to blue drift to exceed zero, got %f", drifts[1])
	}
	if report["max_drift"].(float64) != drifts[1] {
		t.Error("Expected max_drift to equal the largest step drift")
	}
}

func TestCompareFramesNeedsTwo(t *testing.T) {
	tool := &CompareFramesTool{}
	_, err := tool.Execute(context.Background(), map[string]interface{}{
		"images_base64": []interface{}{solidPNG(t, color.RGBA{A: 255}, 4, 4)},
	})
	if err == nil {
		t.Fatal("Expected error for a single frame")
	}
}

func TestRegionColorScheme(t *testing.T) {
	tool := &RegionColorSchemeTool{}

	result, err := tool.Execute(context.Background(), map[string]interface{}{"region": "EU"})
	if err != nil {
		t.Fatalf("Expected success for eu, got %v", err)
	}
	scheme := result.(RegionScheme)
	if scheme.Region != "eu" {
		t.Errorf("Expected region eu, got %s", scheme.Region)
	}
	if len(scheme.Approved) == 0 {
		t.Error("Expected approved colors")
	}

	if _, err := tool.Execute(context.Background(), map[string]interface{}{"region": "nowhere"}); err == nil {
		t.Fatal("Expected error for unknown region")
	}
}

func TestBrandGuidelines(t *testing.T) {
	tool := &BrandGuidelinesTool{}

	result, err := tool.Execute(context.Background(), map[string]interface{}{"brand": "veribrand"})
	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	g := result.(map[string]interface{})
	if g["brand"] != "veribrand" {
		t.Errorf("Expected veribrand guidelines, got %v", g["brand"])
	}

	if _, err := tool.Execute(context.Background(), map[string]interface{}{}); err == nil {
		t.Fatal("Expected error for missing brand")
	}
}
