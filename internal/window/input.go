package window

import (
	"github.com/veandco/go-sdl2/sdl"
)

const leftButtonMask = 1 << (sdl.BUTTON_LEFT - 1)

// Input is what the replica loop acts on after one poll.
type Input struct {
	Quit    bool
	Resized bool
	// DragX and DragY sum the mouse motion while the left button was held.
	DragX, DragY float32
	// Wheel sums vertical scroll steps.
	Wheel float32
	// Reframe asks to fit the camera to the scene (F key).
	Reframe bool
	// Snapshot asks for a glTF export (E key).
	Snapshot bool
}

// Poll drains the SDL event queue.
func (w *Window) Poll() Input {
	var events []sdl.Event
	for e := sdl.PollEvent(); e != nil; e = sdl.PollEvent() {
		events = append(events, e)
	}
	return translate(events)
}

func translate(events []sdl.Event) Input {
	var in Input
	for _, event := range events {
		switch e := event.(type) {
		case *sdl.QuitEvent:
			in.Quit = true
		case *sdl.WindowEvent:
			if e.Event == sdl.WINDOWEVENT_SIZE_CHANGED || e.Event == sdl.WINDOWEVENT_RESIZED {
				in.Resized = true
			}
		case *sdl.KeyboardEvent:
			if e.Type != sdl.KEYDOWN || e.Repeat != 0 {
				continue
			}
			switch e.Keysym.Scancode {
			case sdl.SCANCODE_ESCAPE:
				in.Quit = true
			case sdl.SCANCODE_F:
				in.Reframe = true
			case sdl.SCANCODE_E:
				in.Snapshot = true
			}
		case *sdl.MouseMotionEvent:
			if e.State&leftButtonMask != 0 {
				in.DragX += float32(e.XRel)
				in.DragY += float32(e.YRel)
			}
		case *sdl.MouseWheelEvent:
			in.Wheel += float32(e.Y)
		}
	}
	return in
}
