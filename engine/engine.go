package engine

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/spaghettifunk/vulkanmonkey/engine/assets"
	"github.com/spaghettifunk/vulkanmonkey/engine/core"
	"github.com/spaghettifunk/vulkanmonkey/engine/platform"
	"github.com/spaghettifunk/vulkanmonkey/engine/renderer"
	"github.com/spaghettifunk/vulkanmonkey/engine/renderer/metadata"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

type Engine struct {
	currentStage Stage
	gameInstance *Game
	config       *ApplicationConfig
	platform     *platform.Platform
	assetManager *assets.AssetManager
	renderer     *renderer.Renderer
	clock        *core.Clock
	metrics      *core.Metrics
	lastTime     float64
	delta        float64

	state     atomic.Int32
	timeScale float64
	maxFPS    uint32

	width  uint32
	height uint32

	eventIDs map[core.EventCode]uint64
}

func New(g *Game) (*Engine, error) {
	if g.ApplicationConfig == nil {
		g.ApplicationConfig = DefaultApplicationConfig()
	}
	if err := g.ApplicationConfig.Validate(); err != nil {
		return nil, err
	}

	am, err := assets.NewAssetManager()
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	e := newEngine(g)
	e.platform = platform.New()
	e.assetManager = am
	return e, nil
}

func newEngine(g *Game) *Engine {
	config := g.ApplicationConfig
	e := &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		config:       config,
		clock:        core.NewClock(),
		metrics:      core.NewMetrics(),
		timeScale:    config.Game.TimeScale,
		maxFPS:       config.Game.MaxFPS,
		width:        config.Window.StartWidth,
		height:       config.Window.StartHeight,
		eventIDs:     make(map[core.EventCode]uint64),
	}
	e.state.Store(int32(GameStateRunning))
	g.Engine = e
	return e
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing
	config := e.config

	if err := core.SetLogLevel(config.LogLevel); err != nil {
		return err
	}

	// initialize input
	if err := core.InputInitialize(); err != nil {
		return err
	}
	e.registerEvents()

	if err := e.platform.Startup(config.Name,
		config.Window.StartPosX,
		config.Window.StartPosY,
		config.Window.StartWidth,
		config.Window.StartHeight); err != nil {
		return err
	}

	if err := e.assetManager.Initialize(config.AssetsDir); err != nil {
		return err
	}
	// images that fail here fail again when a sprite asks for them
	if err := e.assetManager.PreloadImages(); err != nil {
		core.LogWarn("some images could not be preloaded: %s", err)
	}

	r, err := renderer.New(e.platform.Window, config.RendererConfig(), e.assetManager, e.assetManager)
	if err != nil {
		return err
	}
	e.renderer = r

	// shaders edited on disk are picked up at the next frame boundary
	e.assetManager.OnChange(func(info assets.AssetInfo, removed bool) {
		if info.Type == metadata.ResourceTypeShader && !removed {
			core.LogInfo("shader %s changed, rebuilding pipelines", info.Name)
			e.renderer.InvalidatePipelines()
		}
	})

	width, height := e.platform.GetFramebufferSize()
	e.width, e.height = uint32(width), uint32(height)

	if err := e.initializeGame(); err != nil {
		return err
	}
	e.currentStage = EngineStageInitialized
	return nil
}

func (e *Engine) initializeGame() error {
	g := e.gameInstance
	if g.FnInitialize != nil {
		if err := g.FnInitialize(); err != nil {
			return err
		}
	}
	if g.FnOnResize != nil {
		return g.FnOnResize(e.width, e.height)
	}
	return nil
}

func (e *Engine) registerEvents() {
	e.eventIDs[core.EVENT_CODE_APPLICATION_QUIT] = core.EventRegister(core.EVENT_CODE_APPLICATION_QUIT, e.onEvent)
	e.eventIDs[core.EVENT_CODE_KEY_PRESSED] = core.EventRegister(core.EVENT_CODE_KEY_PRESSED, e.onKey)
	e.eventIDs[core.EVENT_CODE_RESIZED] = core.EventRegister(core.EVENT_CODE_RESIZED, e.onResized)
}

func (e *Engine) unregisterEvents() {
	for code, id := range e.eventIDs {
		core.EventUnregister(code, id)
	}
	e.eventIDs = make(map[core.EventCode]uint64)
}

// Run drives the game until it exits or the window closes.
func (e *Engine) Run() error {
	if e.currentStage != EngineStageInitialized {
		return fmt.Errorf("engine is not initialized")
	}
	e.currentStage = EngineStageRunning

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	for e.GameState() != GameStateExit {
		if !e.platform.PumpMessages() {
			e.SetGameState(GameStateExit)
			break
		}

		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime
		e.lastTime = currentTime
		frameStartTime := platform.GetAbsoluteTime()

		if err := e.frame(delta); err != nil {
			core.LogError("frame failed, shutting down: %s", err)
			e.SetGameState(GameStateExit)
			return err
		}

		// Figure out how long the frame took and, if below the target,
		// give the rest back to the OS.
		frameElapsedTime := platform.GetAbsoluteTime() - frameStartTime
		if wait := frameLimit(e.maxFPS, frameElapsedTime); wait > 0 {
			time.Sleep(wait)
		}
		e.metrics.Update(platform.GetAbsoluteTime() - frameStartTime)
	}
	return nil
}

// frame runs one iteration of the loop with delta seconds of wall time.
func (e *Engine) frame(delta float64) error {
	g := e.gameInstance
	e.delta = delta * e.timeScale

	if g.FnCheckInput != nil {
		if err := g.FnCheckInput(e.delta); err != nil {
			return fmt.Errorf("check input: %w", err)
		}
	}

	if e.GameState() == GameStateRunning && g.FnUpdate != nil {
		if err := g.FnUpdate(e.delta); err != nil {
			return fmt.Errorf("update: %w", err)
		}
	}

	if g.FnDraw != nil {
		if err := g.FnDraw(); err != nil {
			return fmt.Errorf("draw: %w", err)
		}
	}
	if err := e.renderer.Summit(e.config.Renderer.DynamicCommandBuffers); err != nil {
		// a slow GPU is not fatal, the next frame tries again
		if errors.Is(err, core.ErrAcquireTimeout) {
			core.LogWarn("frame skipped: %s", err)
		} else {
			return fmt.Errorf("summit: %w", err)
		}
	}

	// NOTE: Input update/state copying should always be handled
	// after any input should be recorded; I.E. before this line.
	// As a safety, input is the last thing to be updated before
	// this frame ends.
	core.InputUpdate()
	return nil
}

// frameLimit returns how long to sleep so a frame that took elapsed
// seconds does not exceed maxFPS. Zero maxFPS means unlimited.
func frameLimit(maxFPS uint32, elapsed float64) time.Duration {
	if maxFPS == 0 {
		return 0
	}
	remaining := 1.0/float64(maxFPS) - elapsed
	if remaining <= 0 {
		return 0
	}
	return time.Duration(remaining * float64(time.Second))
}

func (e *Engine) Shutdown() error {
	e.currentStage = EngineStageShuttingDown
	var errs []error

	if e.gameInstance.FnShutdown != nil {
		errs = append(errs, e.gameInstance.FnShutdown())
	}
	e.unregisterEvents()
	if e.renderer != nil {
		e.renderer.Shutdown()
		e.renderer = nil
	}
	if e.assetManager != nil {
		errs = append(errs, e.assetManager.Shutdown())
	}
	if e.platform != nil {
		errs = append(errs, e.platform.Shutdown())
	}
	e.currentStage = EngineStageUninitialized
	return errors.Join(errs...)
}

// RequestExit ends the loop after the current frame. Safe to call from any
// goroutine.
func (e *Engine) RequestExit() {
	e.SetGameState(GameStateExit)
}

func (e *Engine) GameState() GameState {
	return GameState(e.state.Load())
}

func (e *Engine) SetGameState(state GameState) {
	previous := GameState(e.state.Swap(int32(state)))
	if previous != state {
		core.LogInfo("game state %s -> %s", previous, state)
	}
}

// TogglePause switches between running and paused. An exiting game stays
// exiting.
func (e *Engine) TogglePause() {
	switch e.GameState() {
	case GameStateRunning:
		e.SetGameState(GameStatePaused)
	case GameStatePaused:
		e.SetGameState(GameStateRunning)
	}
}

func (e *Engine) SetTimeScale(timeScale float64) {
	if timeScale < 0 {
		timeScale = 0
	}
	e.timeScale = timeScale
}

func (e *Engine) TimeScale() float64 {
	return e.timeScale
}

func (e *Engine) SetMaxFPS(fps uint32) {
	e.maxFPS = fps
}

func (e *Engine) MaxFPS() uint32 {
	return e.maxFPS
}

// Delta is the scaled duration of the current frame in seconds.
func (e *Engine) Delta() float64 {
	return e.delta
}

// FPS is the number of frames counted during the last full second.
func (e *Engine) FPS() float64 {
	return e.metrics.FPS()
}

// Physics2DStep advances the physics world owned by the renderer
// resources by delta seconds.
func (e *Engine) Physics2DStep(delta float64) error {
	world, err := e.renderer.Resources().World()
	if err != nil {
		return err
	}
	world.Step(delta)
	return nil
}

func (e *Engine) Renderer() *renderer.Renderer {
	return e.renderer
}

func (e *Engine) Assets() *assets.AssetManager {
	return e.assetManager
}

// ApplicationGetFramebufferSize returns the width and height (in this order)
// of the application Framebuffer
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

func (e *Engine) onEvent(context core.EventContext) bool {
	switch context.Type {
	case core.EVENT_CODE_APPLICATION_QUIT:
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.SetGameState(GameStateExit)
		return true
	}
	return false
}

func (e *Engine) onKey(context core.EventContext) bool {
	ke, ok := context.Data.(*core.KeyEvent)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", context.Type)
		return false
	}

	switch ke.KeyCode {
	case core.KEY_ESCAPE:
		// NOTE: Technically firing an event to itself, but there may be other listeners.
		core.EventFire(core.EventContext{Type: core.EVENT_CODE_APPLICATION_QUIT})
		// Block anything else from processing this.
		return true
	case core.KEY_P:
		e.TogglePause()
		return true
	}
	return false
}

func (e *Engine) onResized(context core.EventContext) bool {
	se, ok := context.Data.(*core.SystemEvent)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", context.Type)
		return false
	}

	width := se.WindowWidth
	height := se.WindowHeight
	if width == e.width && height == e.height {
		return false
	}
	e.width = width
	e.height = height
	core.LogDebug("Window resize: %d, %d", width, height)

	// a minimized window leaves the renderer suspended until it is restored
	if e.renderer != nil {
		if err := e.renderer.ReInitSwapchain(); err != nil {
			core.LogError("failed to resize the swapchain: %s", err)
		}
	}
	if width == 0 || height == 0 {
		return false
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(width, height); err != nil {
			core.LogError(err.Error())
		}
	}
	return false
}
