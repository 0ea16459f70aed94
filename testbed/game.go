package testbed

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/vulkanmonkey/engine"
	"github.com/spaghettifunk/vulkanmonkey/engine/core"
	"github.com/spaghettifunk/vulkanmonkey/engine/physics"
	"github.com/spaghettifunk/vulkanmonkey/engine/renderer/metadata"
)

const (
	cameraSpeed float32 = 8
	zoomSpeed   float32 = 1.5
	maxCrates           = 32
)

type TestGame struct {
	*engine.Game
}

type crate struct {
	body   physics.BodyID
	sprite *metadata.Sprite
}

type gameState struct {
	width  uint32
	height uint32

	player *metadata.Sprite
	crates []crate

	groundSlot  int
	outlineSlot int

	lights []metadata.PointLight
	// the sprite list changed and has to be pushed again
	spritesDirty bool
	elapsed      float64
	logTimer     float64
}

func NewTestGame(config *engine.ApplicationConfig) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: config,
			State: &gameState{
				groundSlot:  -1,
				outlineSlot: -1,
			},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnCheckInput = tg.CheckInput
	tg.FnUpdate = tg.Update
	tg.FnDraw = tg.Draw
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown

	return tg
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

// texture falls back to the default white texture when the asset directory
// does not ship the image.
func (g *TestGame) texture(name string) string {
	if _, ok := g.Engine.Assets().Lookup(name, metadata.ResourceTypeImage); ok {
		return name
	}
	core.LogWarn("texture %q not found, using the default texture", name)
	return metadata.DefaultTextureName
}

func (g *TestGame) Initialize() error {
	core.LogDebug("TestGame Initialize fn....")

	if g.Engine == nil || g.Engine.Renderer() == nil {
		return fmt.Errorf("the engine is not yet initialized")
	}
	state := g.state()
	r := g.Engine.Renderer()
	res := r.Resources()

	state.player = metadata.NewSprite("player", g.texture("player"), mgl32.Vec3{0, 1, 0}, mgl32.Vec2{1, 2})

	// ground outline, matching the static body of the physics world
	world, err := res.World()
	if err != nil {
		return err
	}
	if state.groundSlot, err = res.CreateUserDefinedBuffers(world.Ground, false); err != nil {
		return err
	}

	// a concave outline to show polygon shapes
	star := metadata.Rect{
		Name:  "outline",
		X:     -6,
		Y:     3,
		Color: mgl32.Vec4{0.9, 0.8, 0.1, 1},
		Points: []mgl32.Vec2{
			{0, 0}, {2, 0}, {2, 2}, {1, 1}, {0, 2},
		},
	}
	if state.outlineSlot, err = res.CreateUserDefinedBuffers(star, false); err != nil {
		return err
	}

	state.lights = []metadata.PointLight{
		metadata.NewPointLight(mgl32.Vec3{-4, 4, 1}, mgl32.Vec3{1, 0.6, 0.3}, 8),
		metadata.NewPointLight(mgl32.Vec3{4, 4, 1}, mgl32.Vec3{0.3, 0.6, 1}, 8),
	}
	if err := r.SetPointLights(state.lights); err != nil {
		return err
	}
	r.SetAmbientColor(mgl32.Vec4{0.2, 0.2, 0.25, 1})

	for i := 0; i < 4; i++ {
		if err := g.spawnCrate(mgl32.Vec2{float32(i) - 1.5, 4 + float32(i)*1.5}); err != nil {
			return err
		}
	}
	state.spritesDirty = true
	return nil
}

func (g *TestGame) spawnCrate(position mgl32.Vec2) error {
	state := g.state()
	if len(state.crates) >= maxCrates {
		return nil
	}
	world, err := g.Engine.Renderer().Resources().World()
	if err != nil {
		return err
	}
	id, err := world.AddBox(position, mgl32.Vec2{0.5, 0.5}, true)
	if err != nil {
		return err
	}
	sprite := metadata.NewSprite(fmt.Sprintf("crate-%d", len(state.crates)), g.texture("crate"),
		mgl32.Vec3{position.X(), position.Y(), 0}, mgl32.Vec2{1, 1})
	state.crates = append(state.crates, crate{body: id, sprite: sprite})
	state.spritesDirty = true
	return nil
}

func (g *TestGame) removeCrate() error {
	state := g.state()
	if len(state.crates) == 0 {
		return nil
	}
	world, err := g.Engine.Renderer().Resources().World()
	if err != nil {
		return err
	}
	last := state.crates[len(state.crates)-1]
	world.RemoveBody(last.body)
	state.crates = state.crates[:len(state.crates)-1]
	state.spritesDirty = true
	return nil
}

// CheckInput runs while paused too, so the camera can still be moved.
func (g *TestGame) CheckInput(deltaTime float64) error {
	camera := g.Engine.Renderer().MainCamera()
	step := cameraSpeed * float32(deltaTime)

	var move mgl32.Vec2
	if core.InputIsKeyDown(core.KEY_A) || core.InputIsKeyDown(core.KEY_LEFT) {
		move[0] -= step
	}
	if core.InputIsKeyDown(core.KEY_D) || core.InputIsKeyDown(core.KEY_RIGHT) {
		move[0] += step
	}
	if core.InputIsKeyDown(core.KEY_W) || core.InputIsKeyDown(core.KEY_UP) {
		move[1] += step
	}
	if core.InputIsKeyDown(core.KEY_S) || core.InputIsKeyDown(core.KEY_DOWN) {
		move[1] -= step
	}
	if move.Len() > 0 {
		camera.Move(move)
	}

	if core.InputIsKeyDown(core.KEY_E) {
		camera.ZoomBy(1 + zoomSpeed*float32(deltaTime))
	}
	if core.InputIsKeyDown(core.KEY_Q) {
		camera.ZoomBy(1 / (1 + zoomSpeed*float32(deltaTime)))
	}
	if core.InputKeyPressedThisFrame(core.KEY_C) {
		camera.Reset()
		w, h := g.Engine.GetFramebufferSize()
		camera.SetViewport(w, h)
	}

	if core.InputKeyPressedThisFrame(core.KEY_SPACE) {
		if err := g.spawnCrate(mgl32.Vec2{0, 8}); err != nil {
			return err
		}
	}
	if core.InputKeyPressedThisFrame(core.KEY_BACKSPACE) {
		if err := g.removeCrate(); err != nil {
			return err
		}
	}
	if core.InputKeyPressedThisFrame(core.KEY_O) {
		if err := g.toggleOutline(); err != nil {
			return err
		}
	}

	if core.InputKeyPressedThisFrame(core.KEY_Z) {
		g.Engine.SetTimeScale(g.Engine.TimeScale() / 2)
	}
	if core.InputKeyPressedThisFrame(core.KEY_X) {
		g.Engine.SetTimeScale(g.Engine.TimeScale() * 2)
	}
	return nil
}

func (g *TestGame) toggleOutline() error {
	state := g.state()
	res := g.Engine.Renderer().Resources()
	if state.outlineSlot >= 0 {
		if err := res.FreeUserDefinedBuffers(state.outlineSlot); err != nil {
			return err
		}
		state.outlineSlot = -1
		return nil
	}
	slot, err := res.CreateUserDefinedBuffers(metadata.NewBoxRect("outline", -6, 3, 2, 2, mgl32.Vec4{0.9, 0.8, 0.1, 1}), false)
	if err != nil {
		return err
	}
	state.outlineSlot = slot
	return nil
}

func (g *TestGame) Update(deltaTime float64) error {
	state := g.state()
	state.elapsed += deltaTime

	if err := g.Engine.Physics2DStep(deltaTime); err != nil {
		return err
	}

	world, err := g.Engine.Renderer().Resources().World()
	if err != nil {
		return err
	}
	for _, c := range state.crates {
		position, angle, ok := world.Transform(c.body)
		if !ok {
			continue
		}
		c.sprite.Position = mgl32.Vec3{position.X(), position.Y(), 0}
		c.sprite.Rotation = angle
	}
	if len(state.crates) > 0 {
		state.spritesDirty = true
	}

	// let the first light orbit the player
	if len(state.lights) > 0 {
		x := float32(4 * math.Cos(state.elapsed))
		y := float32(3 + 2*math.Sin(state.elapsed))
		state.lights[0].Position = mgl32.Vec4{x, y, 1, 1}
		if err := g.Engine.Renderer().SetPointLights(state.lights); err != nil {
			return err
		}
	}

	state.logTimer += deltaTime
	if state.logTimer >= 1 {
		state.logTimer = 0
		camera := g.Engine.Renderer().MainCamera()
		core.LogDebug("FPS: %5.1f crates=%d camera=[%.2f %.2f] zoom=%.1f time scale=%.2f",
			g.Engine.FPS(), len(state.crates), camera.Position.X(), camera.Position.Y(), camera.Zoom, g.Engine.TimeScale())
	}
	return nil
}

func (g *TestGame) Draw() error {
	state := g.state()
	if !state.spritesDirty {
		return nil
	}

	sprites := make([]*metadata.Sprite, 0, len(state.crates)+1)
	sprites = append(sprites, state.player)
	for _, c := range state.crates {
		sprites = append(sprites, c.sprite)
	}
	r := g.Engine.Renderer()
	r.SetSprites(sprites)
	if err := r.PushSpritesToBuffers(); err != nil {
		return err
	}
	state.spritesDirty = false
	return nil
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	state := g.state()
	state.width = width
	state.height = height
	return nil
}

func (g *TestGame) Shutdown() error {
	core.LogInfo("testbed shutting down after %.1fs of game time", g.state().elapsed)
	return nil
}
