package input

// DragThreshold is how far, in pixels, the pointer may move between press
// and release and still count as a click.
const DragThreshold = 4

// GestureKind is the outcome of feeding an event to a Gesture.
type GestureKind int

const (
	GestureNone GestureKind = iota
	GestureClick
	GestureDrag
	GestureZoom
)

// GestureEvent is a recognized pointer gesture.
type GestureEvent struct {
	Kind   GestureKind
	Button uint8
	X, Y   int     // click position
	DX, DY int     // drag delta since the previous drag event
	Zoom   float32 // wheel steps, positive away from the user
}

// Gesture separates clicks from drags. A press followed by a release within
// DragThreshold is a click at the press position; anything that moves further
// turns into a drag and produces no click.
type Gesture struct {
	down     bool
	button   uint8
	startX   int
	startY   int
	lastX    int
	lastY    int
	dragging bool
}

// Feed consumes one input event.
func (g *Gesture) Feed(e Event) GestureEvent {
	switch e.Type {
	case EventMouseDown:
		if g.down {
			return GestureEvent{}
		}
		g.down = true
		g.dragging = false
		g.button = e.Button
		g.startX, g.startY = e.MouseX, e.MouseY
		g.lastX, g.lastY = e.MouseX, e.MouseY

	case EventMouseMove:
		if !g.down {
			return GestureEvent{}
		}
		if !g.dragging && abs(e.MouseX-g.startX)+abs(e.MouseY-g.startY) > DragThreshold {
			g.dragging = true
		}
		if !g.dragging {
			return GestureEvent{}
		}
		ev := GestureEvent{
			Kind:   GestureDrag,
			Button: g.button,
			DX:     e.MouseX - g.lastX,
			DY:     e.MouseY - g.lastY,
		}
		g.lastX, g.lastY = e.MouseX, e.MouseY
		return ev

	case EventMouseUp:
		if !g.down || e.Button != g.button {
			return GestureEvent{}
		}
		g.down = false
		if g.dragging {
			g.dragging = false
			return GestureEvent{}
		}
		return GestureEvent{Kind: GestureClick, Button: g.button, X: g.startX, Y: g.startY}

	case EventMouseWheel:
		if e.Wheel != 0 {
			return GestureEvent{Kind: GestureZoom, Zoom: e.Wheel}
		}
	}
	return GestureEvent{}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
