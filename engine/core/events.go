package core

import "sync"

// System internal event codes. Application should use codes beyond 255.
type EventCode int

const (
	// Shuts the application down on the next frame.
	EVENT_CODE_APPLICATION_QUIT EventCode = 0x01
	// Keyboard key pressed. Data is *KeyEvent.
	EVENT_CODE_KEY_PRESSED EventCode = 0x02
	// Keyboard key released. Data is *KeyEvent.
	EVENT_CODE_KEY_RELEASED EventCode = 0x03
	// Mouse button pressed. Data is *MouseEvent.
	EVENT_CODE_BUTTON_PRESSED EventCode = 0x04
	// Mouse button released. Data is *MouseEvent.
	EVENT_CODE_BUTTON_RELEASED EventCode = 0x05
	// Mouse moved. Data is *MouseEvent.
	EVENT_CODE_MOUSE_MOVED EventCode = 0x06
	// Mouse wheel. Data is *MouseEvent.
	EVENT_CODE_MOUSE_WHEEL EventCode = 0x07
	// Framebuffer resized from the OS. Data is *SystemEvent.
	EVENT_CODE_RESIZED EventCode = 0x08
	// An asset on disk changed. Data is *AssetEvent.
	EVENT_CODE_ASSET_CHANGED EventCode = 0x09

	MAX_EVENT_CODE EventCode = 0xFF
)

type EventContext struct {
	Type EventCode
	Data interface{}
}

type KeyEvent struct {
	KeyCode KeyCode
}

type MouseEvent struct {
	Button Button
	PosX   uint16
	PosY   uint16
	Scroll int8
}

type SystemEvent struct {
	WindowWidth  uint32
	WindowHeight uint32
}

type AssetEvent struct {
	Path string
	Kind string
}

// Should return true if handled.
type FnOnEvent func(context EventContext) bool

type registeredEvent struct {
	id       uint64
	callback FnOnEvent
}

var eventMutex sync.RWMutex
var eventRegistered = map[EventCode][]registeredEvent{}
var eventNextID uint64

// EventRegister subscribes onEvent to code and returns a handle that can be
// passed to EventUnregister.
func EventRegister(code EventCode, onEvent FnOnEvent) uint64 {
	eventMutex.Lock()
	defer eventMutex.Unlock()

	eventNextID++
	eventRegistered[code] = append(eventRegistered[code], registeredEvent{id: eventNextID, callback: onEvent})
	return eventNextID
}

func EventUnregister(code EventCode, id uint64) bool {
	eventMutex.Lock()
	defer eventMutex.Unlock()

	events := eventRegistered[code]
	for i := range events {
		if events[i].id == id {
			eventRegistered[code] = append(events[:i], events[i+1:]...)
			return true
		}
	}
	return false
}

// EventFire delivers the event to listeners in registration order. If a
// handler returns true the event is considered handled and is not passed on.
func EventFire(context EventContext) bool {
	eventMutex.RLock()
	events := append([]registeredEvent(nil), eventRegistered[context.Type]...)
	eventMutex.RUnlock()

	for _, e := range events {
		if e.callback(context) {
			return true
		}
	}
	return false
}

// EventShutdown drops every registration.
func EventShutdown() {
	eventMutex.Lock()
	defer eventMutex.Unlock()
	eventRegistered = map[EventCode][]registeredEvent{}
}
