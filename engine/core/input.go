package core

import "sync"

type Button uint16

const (
	BUTTON_LEFT Button = iota
	BUTTON_RIGHT
	BUTTON_MIDDLE
	BUTTON_MAX_BUTTONS
)

// Key code definitions
type KeyCode uint16

const (
	KEY_BACKSPACE KeyCode = 0x08
	KEY_TAB       KeyCode = 0x09
	KEY_ENTER     KeyCode = 0x0D
	KEY_SHIFT     KeyCode = 0x10
	KEY_CONTROL   KeyCode = 0x11
	KEY_PAUSE     KeyCode = 0x13
	KEY_ESCAPE    KeyCode = 0x1B
	KEY_SPACE     KeyCode = 0x20
	KEY_END       KeyCode = 0x23
	KEY_HOME      KeyCode = 0x24
	KEY_LEFT      KeyCode = 0x25
	KEY_UP        KeyCode = 0x26
	KEY_RIGHT     KeyCode = 0x27
	KEY_DOWN      KeyCode = 0x28
	KEY_INSERT    KeyCode = 0x2D
	KEY_DELETE    KeyCode = 0x2E
	KEY_0         KeyCode = 0x30
	KEY_9         KeyCode = 0x39
	KEY_A         KeyCode = 0x41
	KEY_B         KeyCode = 0x42
	KEY_C         KeyCode = 0x43
	KEY_D         KeyCode = 0x44
	KEY_E         KeyCode = 0x45
	KEY_F         KeyCode = 0x46
	KEY_G         KeyCode = 0x47
	KEY_H         KeyCode = 0x48
	KEY_I         KeyCode = 0x49
	KEY_J         KeyCode = 0x4A
	KEY_K         KeyCode = 0x4B
	KEY_L         KeyCode = 0x4C
	KEY_M         KeyCode = 0x4D
	KEY_N         KeyCode = 0x4E
	KEY_O         KeyCode = 0x4F
	KEY_P         KeyCode = 0x50
	KEY_Q         KeyCode = 0x51
	KEY_R         KeyCode = 0x52
	KEY_S         KeyCode = 0x53
	KEY_T         KeyCode = 0x54
	KEY_U         KeyCode = 0x55
	KEY_V         KeyCode = 0x56
	KEY_W         KeyCode = 0x57
	KEY_X         KeyCode = 0x58
	KEY_Y         KeyCode = 0x59
	KEY_Z         KeyCode = 0x5A
	KEY_F1        KeyCode = 0x70
	KEY_F12       KeyCode = 0x7B
	KEYS_MAX_KEYS KeyCode = 0xFF
)

// Mouse state structure
type MouseState struct {
	X       uint16
	Y       uint16
	Buttons [BUTTON_MAX_BUTTONS]bool
}

// Keyboard state structure
type KeyboardState struct {
	Keys [256]bool
}

// Input state structure that holds current and previous states for keyboard and mouse
type InputState struct {
	KeyboardCurrent  KeyboardState
	KeyboardPrevious KeyboardState
	MouseCurrent     MouseState
	MousePrevious    MouseState
}

var inputMutex sync.Mutex
var inputState = &InputState{}

func InputInitialize() error {
	inputMutex.Lock()
	inputState = &InputState{}
	inputMutex.Unlock()
	LogInfo("Input subsystem initialized.")
	return nil
}

// InputUpdate copies the current states to the previous states. Call it once
// at the end of every frame.
func InputUpdate() {
	inputMutex.Lock()
	defer inputMutex.Unlock()
	inputState.KeyboardPrevious = inputState.KeyboardCurrent
	inputState.MousePrevious = inputState.MouseCurrent
}

// keyboard input
func InputIsKeyDown(key KeyCode) bool {
	inputMutex.Lock()
	defer inputMutex.Unlock()
	return inputState.KeyboardCurrent.Keys[key]
}

func InputIsKeyUp(key KeyCode) bool {
	return !InputIsKeyDown(key)
}

func InputWasKeyDown(key KeyCode) bool {
	inputMutex.Lock()
	defer inputMutex.Unlock()
	return inputState.KeyboardPrevious.Keys[key]
}

// InputKeyPressedThisFrame is true on the first frame a key goes down.
func InputKeyPressedThisFrame(key KeyCode) bool {
	return InputIsKeyDown(key) && !InputWasKeyDown(key)
}

func InputProcessKey(key KeyCode, pressed bool) {
	inputMutex.Lock()
	changed := inputState.KeyboardCurrent.Keys[key] != pressed
	inputState.KeyboardCurrent.Keys[key] = pressed
	inputMutex.Unlock()

	// Only fire if the state actually changed.
	if !changed {
		return
	}
	code := EVENT_CODE_KEY_RELEASED
	if pressed {
		code = EVENT_CODE_KEY_PRESSED
	}
	EventFire(EventContext{Type: code, Data: &KeyEvent{KeyCode: key}})
}

// mouse input
func InputIsButtonDown(button Button) bool {
	inputMutex.Lock()
	defer inputMutex.Unlock()
	return inputState.MouseCurrent.Buttons[button]
}

func InputGetMousePosition() (int32, int32) {
	inputMutex.Lock()
	defer inputMutex.Unlock()
	return int32(inputState.MouseCurrent.X), int32(inputState.MouseCurrent.Y)
}

func InputProcessButton(button Button, pressed bool) {
	inputMutex.Lock()
	changed := inputState.MouseCurrent.Buttons[button] != pressed
	inputState.MouseCurrent.Buttons[button] = pressed
	inputMutex.Unlock()

	if !changed {
		return
	}
	code := EVENT_CODE_BUTTON_RELEASED
	if pressed {
		code = EVENT_CODE_BUTTON_PRESSED
	}
	EventFire(EventContext{Type: code, Data: &MouseEvent{Button: button}})
}

func InputProcessMouseMove(x uint16, y uint16) {
	inputMutex.Lock()
	changed := inputState.MouseCurrent.X != x || inputState.MouseCurrent.Y != y
	inputState.MouseCurrent.X = x
	inputState.MouseCurrent.Y = y
	inputMutex.Unlock()

	if changed {
		EventFire(EventContext{Type: EVENT_CODE_MOUSE_MOVED, Data: &MouseEvent{PosX: x, PosY: y}})
	}
}

func InputProcessMouseWheel(zDelta int8) {
	EventFire(EventContext{Type: EVENT_CODE_MOUSE_WHEEL, Data: &MouseEvent{Scroll: zDelta}})
}
