package engine

type GameState int32

const (
	// Input and drawing continue, the simulation is frozen.
	GameStatePaused GameState = iota
	GameStateRunning
	// The loop ends after the current frame.
	GameStateExit
)

func (s GameState) String() string {
	switch s {
	case GameStatePaused:
		return "paused"
	case GameStateRunning:
		return "running"
	case GameStateExit:
		return "exit"
	}
	return "unknown"
}

// Game holds the callbacks the engine drives. Every callback is optional.
// Engine is set by New before any callback runs.
type Game struct {
	ApplicationConfig *ApplicationConfig
	Engine            *Engine
	State             interface{}
	FnInitialize      Initialize
	FnCheckInput      CheckInput
	FnUpdate          Update
	FnDraw            Draw
	FnOnResize        OnResize
	FnShutdown        Shutdown
}

// Initialize runs once the window, assets and renderer exist.
type Initialize func() error

// CheckInput runs every frame, paused or not, before Update.
type CheckInput func(deltaTime float64) error

// Update runs every frame while the game is running. deltaTime already
// includes the time scale.
type Update func(deltaTime float64) error

// Draw runs before the frame is submitted. Sprite and shape changes made
// here show up in the same frame.
type Draw func() error

type OnResize func(width uint32, height uint32) error
type Shutdown func() error
