// Package physics wraps a Box2D world with the static ground body the game
// stands on.
package physics

import (
	"fmt"

	"github.com/ByteArena/box2d"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"github.com/spaghettifunk/vulkanmonkey/engine/core"
	"github.com/spaghettifunk/vulkanmonkey/engine/renderer/metadata"
)

const (
	VelocityIterations = 8
	PositionIterations = 3
)

// GroundRect is the default ground: a wide flat box below the origin.
var GroundRect = metadata.NewBoxRect("ground", -50, -10, 100, 10, mgl32.Vec4{0.4, 0.3, 0.2, 1})

// BodyID identifies a body added with AddBox.
type BodyID = uuid.UUID

// World owns every Box2D body. It is not safe for concurrent use; the game
// loop steps it between frames.
type World struct {
	world  *box2d.B2World
	ground *box2d.B2Body
	bodies map[BodyID]*box2d.B2Body
	// Ground is the rect the ground body was made from.
	Ground metadata.Rect
}

// NewWorld creates a world with the given gravity and a static body for
// ground.
func NewWorld(gravity mgl32.Vec2, ground metadata.Rect) *World {
	b2world := box2d.MakeB2World(box2d.MakeB2Vec2(float64(gravity.X()), float64(gravity.Y())))
	w := &World{
		world:  &b2world,
		bodies: make(map[BodyID]*box2d.B2Body),
		Ground: ground,
	}

	def := box2d.MakeB2BodyDef()
	def.Type = box2d.B2BodyType.B2_staticBody
	def.Position.Set(float64(ground.X+ground.W/2), float64(ground.Y+ground.H/2))
	w.ground = w.world.CreateBody(&def)

	shape := box2d.MakeB2PolygonShape()
	shape.SetAsBox(float64(ground.W/2), float64(ground.H/2))
	w.ground.CreateFixture(&shape, 0)

	core.LogDebug("physics world created, gravity (%.2f, %.2f)", gravity.X(), gravity.Y())
	return w
}

// AddBox adds a box body centered at position. Dynamic bodies have density
// 1 and friction 0.3; static ones never move.
func (w *World) AddBox(position, halfSize mgl32.Vec2, dynamic bool) (BodyID, error) {
	if halfSize.X() <= 0 || halfSize.Y() <= 0 {
		return uuid.Nil, fmt.Errorf("box half size must be positive, got (%f, %f)", halfSize.X(), halfSize.Y())
	}
	def := box2d.MakeB2BodyDef()
	if dynamic {
		def.Type = box2d.B2BodyType.B2_dynamicBody
	}
	def.Position.Set(float64(position.X()), float64(position.Y()))
	body := w.world.CreateBody(&def)

	shape := box2d.MakeB2PolygonShape()
	shape.SetAsBox(float64(halfSize.X()), float64(halfSize.Y()))
	fixture := box2d.MakeB2FixtureDef()
	fixture.Shape = &shape
	fixture.Density = 1
	fixture.Friction = 0.3
	body.CreateFixtureFromDef(&fixture)

	id := uuid.New()
	w.bodies[id] = body
	return id, nil
}

// RemoveBody destroys the body. It reports false for unknown ids.
func (w *World) RemoveBody(id BodyID) bool {
	body, ok := w.bodies[id]
	if !ok {
		return false
	}
	w.world.DestroyBody(body)
	delete(w.bodies, id)
	return true
}

// Transform returns the center and the rotation in radians of a body.
func (w *World) Transform(id BodyID) (mgl32.Vec2, float32, bool) {
	body, ok := w.bodies[id]
	if !ok {
		return mgl32.Vec2{}, 0, false
	}
	p := body.GetPosition()
	return mgl32.Vec2{float32(p.X), float32(p.Y)}, float32(body.GetAngle()), true
}

// Step advances the simulation by dt seconds.
func (w *World) Step(dt float64) {
	if dt <= 0 {
		return
	}
	w.world.Step(dt, VelocityIterations, PositionIterations)
}

// GroundBody is the static body created with the world. It lives until
// Destroy.
func (w *World) GroundBody() *box2d.B2Body {
	return w.ground
}

// BodyCount includes the ground body.
func (w *World) BodyCount() int {
	return w.world.GetBodyCount()
}

func (w *World) Destroy() {
	for id, body := range w.bodies {
		w.world.DestroyBody(body)
		delete(w.bodies, id)
	}
	if w.ground != nil {
		w.world.DestroyBody(w.ground)
		w.ground = nil
	}
}
