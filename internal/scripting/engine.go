// Package scripting runs optional Lua lifecycle hooks. Hosts drop .lua files
// into the scripts directory defining any of:
//
//	on_entity_loaded(uid, source, x, y, z)
//	on_entity_unloaded(uid, source)
//	on_world_saved(path, count)
//
// Hook errors are logged and swallowed; scripting can never stall the stream.
package scripting

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/worldstream/engine/internal/world"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Engine wraps a single gopher-lua VM. Single-goroutine access only (engine
// tick loop). A nil *Engine is valid and does nothing.
type Engine struct {
	vm  *lua.LState
	log *zap.Logger
}

// NewEngine creates a Lua engine and loads all scripts from the directory.
// A missing directory is not an error; it just yields an engine with no hooks.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, log: log}
	if err := e.loadDir(scriptsDir); err != nil {
		vm.Close()
		return nil, fmt.Errorf("load scripts: %w", err)
	}
	return e, nil
}

func (e *Engine) Close() {
	if e != nil {
		e.vm.Close()
	}
}

func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// DoString executes inline Lua. Tests use it to define hooks without files.
func (e *Engine) DoString(src string) error {
	if e == nil {
		return nil
	}
	return e.vm.DoString(src)
}

// EntityLoaded invokes on_entity_loaded, if defined.
func (e *Engine) EntityLoaded(uid, source string, pos world.Vec3) {
	if e == nil {
		return
	}
	e.call("on_entity_loaded",
		lua.LString(uid), lua.LString(source),
		lua.LNumber(pos.X), lua.LNumber(pos.Y), lua.LNumber(pos.Z))
}

// EntityUnloaded invokes on_entity_unloaded, if defined.
func (e *Engine) EntityUnloaded(uid, source string) {
	if e == nil {
		return
	}
	e.call("on_entity_unloaded", lua.LString(uid), lua.LString(source))
}

// WorldSaved invokes on_world_saved, if defined.
func (e *Engine) WorldSaved(path string, count int) {
	if e == nil {
		return
	}
	e.call("on_world_saved", lua.LString(path), lua.LNumber(count))
}

func (e *Engine) call(name string, args ...lua.LValue) {
	fn := e.vm.GetGlobal(name)
	if fn == lua.LNil {
		return
	}
	err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    0,
		Protect: true,
	}, args...)
	if err != nil {
		e.log.Warn("lua hook failed", zap.String("hook", name), zap.Error(err))
	}
}
