// Package instance defines the boundary between the streaming engine and the
// host runtime that actually materializes entities. The engine never knows
// how an instance is rendered; it only creates, transforms, and destroys.
package instance

import (
	"fmt"

	"github.com/worldstream/engine/internal/data"
	"github.com/worldstream/engine/internal/world"
)

// Instance is a live, materialized entity owned by the host runtime.
type Instance interface {
	Source() string
	Transform() (pos, rot, scale world.Vec3)
	SetTransform(pos, rot, scale world.Vec3)
	// ApplyProperties overlays a property diff onto the instance's defaults.
	ApplyProperties(props map[string]any)
	// Properties returns the instance's full current property map.
	Properties() map[string]any
}

// Factory creates and destroys instances. Injected by the host.
type Factory interface {
	Create(source string) (Instance, error)
	Destroy(inst Instance)
}

// SimInstance is a plain in-memory instance used by the simulated factory,
// the daemon, and tests.
type SimInstance struct {
	source          string
	pos, rot, scale world.Vec3
	props           map[string]any
}

func (si *SimInstance) Source() string { return si.source }

func (si *SimInstance) Transform() (pos, rot, scale world.Vec3) {
	return si.pos, si.rot, si.scale
}

func (si *SimInstance) SetTransform(pos, rot, scale world.Vec3) {
	si.pos, si.rot, si.scale = pos, rot, scale
}

func (si *SimInstance) ApplyProperties(props map[string]any) {
	for k, v := range props {
		si.props[k] = v
	}
}

func (si *SimInstance) Properties() map[string]any { return si.props }

// SimFactory materializes instances from the type registry, with default
// properties cloned per instance. Unknown sources fail, which exercises the
// engine's abandon-and-log path.
type SimFactory struct {
	registry *data.Registry
	created  int
	live     int
}

func NewSimFactory(registry *data.Registry) *SimFactory {
	return &SimFactory{registry: registry}
}

func (f *SimFactory) Create(source string) (Instance, error) {
	if !f.registry.Known(source) {
		return nil, fmt.Errorf("unknown source %q", source)
	}
	f.created++
	f.live++
	return &SimInstance{
		source: source,
		scale:  world.Vec3{X: 1, Y: 1, Z: 1},
		props:  cloneProps(f.registry.Baseline(source)),
	}, nil
}

func (f *SimFactory) Destroy(inst Instance) {
	if inst != nil {
		f.live--
	}
}

// Created returns the total number of instances ever created.
func (f *SimFactory) Created() int { return f.created }

// Live returns the number of currently existing instances.
func (f *SimFactory) Live() int { return f.live }

func cloneProps(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneProps(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
