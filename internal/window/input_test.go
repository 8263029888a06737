package window

import (
	"testing"

	"github.com/veandco/go-sdl2/sdl"
)

func TestTranslate(t *testing.T) {
	in := translate([]sdl.Event{
		&sdl.MouseMotionEvent{State: leftButtonMask, XRel: 4, YRel: -2},
		&sdl.MouseMotionEvent{XRel: 100, YRel: 100}, // no button held
		&sdl.MouseMotionEvent{State: leftButtonMask, XRel: 1, YRel: 1},
		&sdl.MouseWheelEvent{Y: 2},
		&sdl.KeyboardEvent{Type: sdl.KEYDOWN, Keysym: sdl.Keysym{Scancode: sdl.SCANCODE_F}},
		&sdl.KeyboardEvent{Type: sdl.KEYDOWN, Repeat: 1, Keysym: sdl.Keysym{Scancode: sdl.SCANCODE_E}},
		&sdl.WindowEvent{Event: sdl.WINDOWEVENT_SIZE_CHANGED},
	})

	if in.DragX != 5 || in.DragY != -1 {
		t.Errorf("drag: got %v,%v", in.DragX, in.DragY)
	}
	if in.Wheel != 2 {
		t.Errorf("wheel: got %v", in.Wheel)
	}
	if !in.Reframe || in.Snapshot {
		t.Errorf("keys: reframe=%v snapshot=%v", in.Reframe, in.Snapshot)
	}
	if !in.Resized || in.Quit {
		t.Errorf("window: resized=%v quit=%v", in.Resized, in.Quit)
	}
}

func TestTranslateQuit(t *testing.T) {
	tests := []struct {
		name  string
		event sdl.Event
	}{
		{"close", &sdl.QuitEvent{}},
		{"escape", &sdl.KeyboardEvent{Type: sdl.KEYDOWN, Keysym: sdl.Keysym{Scancode: sdl.SCANCODE_ESCAPE}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !translate([]sdl.Event{tt.event}).Quit {
				t.Error("expected quit")
			}
		})
	}
}
