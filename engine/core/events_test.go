package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventFireStopsAtFirstHandler(t *testing.T) {
	t.Cleanup(EventShutdown)

	var calls []string
	EventRegister(EVENT_CODE_RESIZED, func(ctx EventContext) bool {
		calls = append(calls, "first")
		return true
	})
	EventRegister(EVENT_CODE_RESIZED, func(ctx EventContext) bool {
		calls = append(calls, "second")
		return false
	})

	handled := EventFire(EventContext{Type: EVENT_CODE_RESIZED, Data: &SystemEvent{WindowWidth: 1, WindowHeight: 1}})
	assert.True(t, handled)
	assert.Equal(t, []string{"first"}, calls)
}

func TestEventUnregister(t *testing.T) {
	t.Cleanup(EventShutdown)

	count := 0
	id := EventRegister(EVENT_CODE_APPLICATION_QUIT, func(ctx EventContext) bool {
		count++
		return false
	})
	EventFire(EventContext{Type: EVENT_CODE_APPLICATION_QUIT})
	require.True(t, EventUnregister(EVENT_CODE_APPLICATION_QUIT, id))
	assert.False(t, EventUnregister(EVENT_CODE_APPLICATION_QUIT, id))
	EventFire(EventContext{Type: EVENT_CODE_APPLICATION_QUIT})
	assert.Equal(t, 1, count)
}

func TestInputFiresOnlyOnChange(t *testing.T) {
	t.Cleanup(EventShutdown)
	require.NoError(t, InputInitialize())

	pressed := 0
	EventRegister(EVENT_CODE_KEY_PRESSED, func(ctx EventContext) bool {
		pressed++
		return false
	})

	InputProcessKey(KEY_P, true)
	InputProcessKey(KEY_P, true)
	assert.Equal(t, 1, pressed)
	assert.True(t, InputKeyPressedThisFrame(KEY_P))

	InputUpdate()
	assert.True(t, InputIsKeyDown(KEY_P))
	assert.False(t, InputKeyPressedThisFrame(KEY_P))
}

func TestSetLogLevel(t *testing.T) {
	require.NoError(t, SetLogLevel("info"))
	err := SetLogLevel("loud")
	require.Error(t, err)
	require.NoError(t, SetLogLevel("debug"))
}
