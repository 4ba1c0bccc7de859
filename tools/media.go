// Media injector - attaches session media to tool arguments so the model
// never has to echo binary payloads through its own output.
package tools

import (
	"log"
	"math"
)

// Frame is one extracted video frame with its position in the source clip
type Frame struct {
	Timestamp   float64 `json:"timestamp"` // seconds
	FrameNumber int     `json:"frame_number"`
	Base64      string  `json:"base64"`
}

// Media holds the binary inputs attached to one check session
type Media struct {
	Image  string  // single uploaded image, base64
	Frames []Frame // extracted video frames in clip order
}

// HasAny reports whether any media is attached
func (m *Media) HasAny() bool {
	return m != nil && (m.Image != "" || len(m.Frames) > 0)
}

// Inject adds the session's media to a tool's arguments in place. Video
// tools receive frames as images_base64: the full set, or just the frame
// nearest a timestamp argument when one is present. Every other tool
// receives a single image_base64, picked the same way. Already-populated
// fields are left alone, and nothing here ever fails the caller.
func (m *Media) Inject(toolName string, args map[string]interface{}) {
	if args == nil || !m.HasAny() {
		return
	}

	if VideoTools[toolName] {
		if _, ok := args["images_base64"]; ok {
			return
		}
		if len(m.Frames) == 0 {
			log.Printf("[WARN] media: no frames available for video tool %s", toolName)
			return
		}
		if ts, ok := timestampArg(args); ok {
			args["images_base64"] = []string{m.nearestFrame(ts)}
			return
		}
		frames := make([]string, len(m.Frames))
		for i, f := range m.Frames {
			frames[i] = f.Base64
		}
		args["images_base64"] = frames
		return
	}

	if _, ok := args["image_base64"]; ok {
		return
	}

	image := m.Image
	if ts, ok := timestampArg(args); ok && len(m.Frames) > 0 {
		image = m.nearestFrame(ts)
	} else if image == "" && len(m.Frames) > 0 {
		image = m.Frames[0].Base64
	}
	if image == "" {
		log.Printf("[WARN] media: nothing to inject for tool %s", toolName)
		return
	}
	args["image_base64"] = image
}

// nearestFrame picks the frame closest to ts. Ties go to the earlier frame.
func (m *Media) nearestFrame(ts float64) string {
	best := 0
	bestDelta := math.Abs(m.Frames[0].Timestamp - ts)
	for i := 1; i < len(m.Frames); i++ {
		delta := math.Abs(m.Frames[i].Timestamp - ts)
		if delta < bestDelta {
			best = i
			bestDelta = delta
		}
	}
	return m.Frames[best].Base64
}

func timestampArg(args map[string]interface{}) (float64, bool) {
	v, ok := args["timestamp"]
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	}
	return 0, false
}
