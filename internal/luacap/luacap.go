// Package luacap runs capsules written in Lua. Each invocation gets a fresh
// sandboxed interpreter with only the base, table, string and math
// libraries plus a "capsule" module table.
package luacap

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
	"go.uber.org/zap"

	"github.com/mokrunka/taskwarrior-capsules/internal/capsule"
	"github.com/mokrunka/taskwarrior-capsules/internal/errors"
	"github.com/mokrunka/taskwarrior-capsules/internal/meta"
	"github.com/mokrunka/taskwarrior-capsules/internal/registry"
	"github.com/mokrunka/taskwarrior-capsules/internal/taskw"
)

// Runtime is the registry runtime for "lua" manifests. The script is
// compiled once, at discovery, so syntax errors skip the capsule.
func Runtime(m *registry.Manifest) (capsule.Factory, error) {
	path, err := m.EntrypointPath()
	if err != nil {
		return nil, err
	}
	proto, err := compileFile(path)
	if err != nil {
		return nil, err
	}
	return func(env capsule.Env) (capsule.Capsule, error) {
		return &Capsule{Instance: capsule.NewInstance(env), proto: proto}, nil
	}, nil
}

func compileFile(path string) (*lua.FunctionProto, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return compile(f, path)
}

func compile(r io.Reader, name string) (*lua.FunctionProto, error) {
	chunk, err := parse.Parse(r, name)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	proto, err := lua.Compile(chunk, name)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}
	return proto, nil
}

// Capsule is a Lua capsule bound to one invocation.
type Capsule struct {
	*capsule.Instance
	proto *lua.FunctionProto
}

func (c *Capsule) Preprocess(ctx context.Context, in capsule.Context) (capsule.Context, error) {
	out := in
	err := c.call(ctx, "preprocess", func(L *lua.LState, fn *lua.LFunction) error {
		ret, err := c.invoke(L, fn, contextToTable(L, in))
		if err != nil {
			return err
		}
		switch v := ret.(type) {
		case *lua.LNilType:
			return nil
		case *lua.LTable:
			out, err = tableToContext(v)
			return err
		default:
			return fmt.Errorf("preprocess must return a context table or nil, got %s", ret.Type())
		}
	})
	if err != nil {
		return in, err
	}
	return out, nil
}

func (c *Capsule) Handle(ctx context.Context, in capsule.Context) (capsule.Result, error) {
	res := capsule.NotApplicable()
	err := c.call(ctx, "handle", func(L *lua.LState, fn *lua.LFunction) error {
		ret, err := c.invoke(L, fn, contextToTable(L, in))
		if err != nil {
			return err
		}
		switch v := ret.(type) {
		case *lua.LNilType:
			return nil
		case lua.LNumber:
			res = capsule.Handled(int(v))
			return nil
		default:
			return fmt.Errorf("handle must return an exit code or nil, got %s", ret.Type())
		}
	})
	if err != nil {
		return capsule.Result{}, err
	}
	return res, nil
}

func (c *Capsule) Postprocess(ctx context.Context, in capsule.Context, result int) error {
	return c.call(ctx, "postprocess", func(L *lua.LState, fn *lua.LFunction) error {
		_, err := c.invoke(L, fn, contextToTable(L, in), lua.LNumber(result))
		return err
	})
}

// call loads the script into a fresh state, looks up the hook and runs it.
// Metadata changes made through capsule.meta_set are saved only when the
// hook succeeds.
func (c *Capsule) call(ctx context.Context, hook string, run func(*lua.LState, *lua.LFunction) error) error {
	doc, err := c.Metadata(ctx)
	if err != nil {
		return errors.NewCapsuleRuntime(c.Name(), err)
	}

	L := newSandbox()
	defer L.Close()
	L.SetContext(ctx)

	h := &host{c: c, ctx: ctx, doc: doc}
	L.SetGlobal("capsule", h.module(L))

	L.Push(L.NewFunctionFromProto(c.proto))
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		return errors.NewCapsuleRuntime(c.Name(), err)
	}

	fn, ok := L.GetGlobal(hook).(*lua.LFunction)
	if !ok {
		return errors.NewMissingHandler(c.Name(), roleFor(hook), hook)
	}
	if err := run(L, fn); err != nil {
		return errors.NewCapsuleRuntime(c.Name(), err)
	}

	if h.dirty {
		if err := c.SaveMetadata(ctx, h.doc); err != nil {
			return errors.NewCapsuleRuntime(c.Name(), err)
		}
	}
	return nil
}

// invoke calls fn in protected mode and returns its first result.
func (c *Capsule) invoke(L *lua.LState, fn *lua.LFunction, args ...lua.LValue) (lua.LValue, error) {
	if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, args...); err != nil {
		if apiErr, ok := err.(*lua.ApiError); ok {
			return nil, fmt.Errorf("%s", apiErr.Object.String())
		}
		return nil, err
	}
	ret := L.Get(-1)
	L.Pop(1)
	return ret, nil
}

func newSandbox() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
	// Base functions that reach the filesystem.
	for _, name := range []string{"dofile", "loadfile", "require", "module"} {
		L.SetGlobal(name, lua.LNil)
	}
	return L
}

func roleFor(hook string) string {
	for _, r := range capsule.Roles {
		if r.Handler() == hook {
			return string(r)
		}
	}
	return hook
}

// host backs the "capsule" module table for one hook call.
type host struct {
	c     *Capsule
	ctx   context.Context
	doc   meta.Document
	dirty bool
}

func (h *host) module(L *lua.LState) *lua.LTable {
	mod := L.NewTable()
	mod.RawSetString("name", lua.LString(h.c.Name()))
	mod.RawSetString("run_id", lua.LString(h.c.RunID()))
	mod.RawSetString("config", toLua(L, h.c.Config()))
	L.SetFuncs(mod, map[string]lua.LGFunction{
		"meta_get":      h.metaGet,
		"meta_set":      h.metaSet,
		"meta_delete":   h.metaDelete,
		"export":        h.export,
		"changed_since": h.changedSince,
		"print":         h.print,
		"log":           h.log,
	})
	return mod
}

// capsule.meta_get([path]) returns the stored value at path, or nil. With
// no path it returns the whole document.
func (h *host) metaGet(L *lua.LState) int {
	path := L.OptString(1, "")
	if path == "" {
		L.Push(toLua(L, h.doc.Map()))
		return 1
	}
	r := h.doc.Get(path)
	if !r.Exists() {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(toLua(L, r.Value()))
	return 1
}

// capsule.meta_set(path, value) stages a metadata change.
func (h *host) metaSet(L *lua.LState) int {
	path := L.CheckString(1)
	value := toGo(L.CheckAny(2))
	doc, err := h.doc.Set(path, value)
	if err != nil {
		L.RaiseError("meta_set: %s", err.Error())
		return 0
	}
	h.doc, h.dirty = doc, true
	return 0
}

// capsule.meta_delete(path) stages removal of the value at path.
func (h *host) metaDelete(L *lua.LState) int {
	doc, err := h.doc.Delete(L.CheckString(1))
	if err != nil {
		L.RaiseError("meta_delete: %s", err.Error())
		return 0
	}
	h.doc, h.dirty = doc, true
	return 0
}

// capsule.export(filter...) returns the pending tasks matching filter.
func (h *host) export(L *lua.LState) int {
	exporter := h.exporter(L, "export")
	filter := make([]string, 0, L.GetTop())
	for i := 1; i <= L.GetTop(); i++ {
		filter = append(filter, L.CheckString(i))
	}
	tasks, err := exporter.Export(h.ctx, filter)
	if err != nil {
		L.RaiseError("export: %s", err.Error())
		return 0
	}
	L.Push(tasksToTable(L, tasks))
	return 1
}

// capsule.changed_since(when) returns the pending tasks modified at or
// after when: a Unix timestamp, an RFC 3339 string or a Taskwarrior date.
func (h *host) changedSince(L *lua.LState) int {
	var since time.Time
	switch v := L.CheckAny(1).(type) {
	case lua.LNumber:
		since = time.Unix(int64(v), 0).UTC()
	case lua.LString:
		at, err := taskw.ParseTime(string(v))
		if err != nil {
			L.ArgError(1, err.Error())
			return 0
		}
		since = at
	default:
		L.ArgError(1, "timestamp or date string expected, got "+v.Type().String())
		return 0
	}

	tasks, err := h.exporter(L, "changed_since").Export(h.ctx, nil)
	if err != nil {
		L.RaiseError("changed_since: %s", err.Error())
		return 0
	}
	L.Push(tasksToTable(L, taskw.ChangedSince(tasks, since)))
	return 1
}

func (h *host) exporter(L *lua.LState, fn string) taskw.Exporter {
	exporter, ok := h.c.Tool().(taskw.Exporter)
	if !ok {
		L.RaiseError("%s: no task client available", fn)
	}
	return exporter
}

func tasksToTable(L *lua.LState, tasks []taskw.Task) *lua.LTable {
	list := L.CreateTable(len(tasks), 0)
	for i, t := range tasks {
		list.RawSetInt(i+1, toLua(L, map[string]any(t)))
	}
	return list
}

// capsule.print(...) writes its arguments, tab-separated, to the capsule's
// stdout.
func (h *host) print(L *lua.LState) int {
	parts := make([]string, L.GetTop())
	for i := range parts {
		parts[i] = L.ToStringMeta(L.Get(i + 1)).String()
	}
	fmt.Fprintln(h.c.Stdout(), strings.Join(parts, "\t"))
	return 0
}

// capsule.log(msg) logs at info level.
func (h *host) log(L *lua.LState) int {
	h.c.Logger().Info(L.CheckString(1), zap.String("run_id", h.c.RunID()))
	return 0
}
