package websocket

import (
	"math"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/lodterrain/quadtree"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/segmentio/encoding/json"
)

const (
	// ErrTypeInvalidFrame is the error type returned when a client sends a
	// viewer frame that can't be decoded or applied.
	ErrTypeInvalidFrame = "ws_invalid_viewer_frame"

	viewerFrameMsgType = "viewer_frame"
	tickSummaryMsgType = "tick_summary"
)

// ViewerFrame is the viewpoint reported by a client. Positions are in world
// space, Y up.
type ViewerFrame struct {
	X              float64 `json:"x"`
	Y              float64 `json:"y"`
	Z              float64 `json:"z"`
	ViewDistance   float64 `json:"view_distance"`
	SizeMultiplier float64 `json:"size_multiplier"`
}

// DecodeViewerFrame parses and validates a viewer frame. The size multiplier
// defaults to 1 when omitted.
func DecodeViewerFrame(b []byte) (ViewerFrame, error) {
	f := ViewerFrame{SizeMultiplier: 1}
	if err := json.Unmarshal(b, &f); err != nil {
		return ViewerFrame{}, errors.New("decoding viewer frame failed").
			WithType(ErrTypeInvalidFrame).
			Wrap(err)
	}

	if err := f.Validate(); err != nil {
		return ViewerFrame{}, err
	}
	return f, nil
}

// Validate returns an error when the frame holds values a viewer can't have.
func (f ViewerFrame) Validate() error {
	for _, v := range []float64{f.X, f.Y, f.Z, f.ViewDistance, f.SizeMultiplier} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.New("viewer frame has a non finite value").
				WithType(ErrTypeInvalidFrame)
		}
	}

	if f.ViewDistance < 0 || f.SizeMultiplier < 0 {
		return errors.New("viewer frame has a negative distance").
			WithType(ErrTypeInvalidFrame).
			WithTag("view_distance", f.ViewDistance).
			WithTag("size_multiplier", f.SizeMultiplier)
	}
	return nil
}

// Viewer returns the frame projected onto the terrain plane.
func (f ViewerFrame) Viewer() quadtree.StaticViewer {
	return quadtree.NewStaticViewer(
		quadtree.GroundPlane(mgl64.Vec3{f.X, f.Y, f.Z}),
		f.ViewDistance,
		f.SizeMultiplier,
	)
}
