package luacap

import (
	"fmt"
	"sort"

	lua "github.com/yuin/gopher-lua"

	"github.com/mokrunka/taskwarrior-capsules/internal/capsule"
)

// toLua converts decoded JSON-style Go values into Lua values.
func toLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case string:
		return lua.LString(val)
	case []string:
		t := L.NewTable()
		for i, s := range val {
			t.RawSetInt(i+1, lua.LString(s))
		}
		return t
	case []any:
		t := L.NewTable()
		for i, item := range val {
			t.RawSetInt(i+1, toLua(L, item))
		}
		return t
	case map[string]any:
		t := L.NewTable()
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			t.RawSetString(k, toLua(L, val[k]))
		}
		return t
	default:
		return lua.LString(fmt.Sprint(val))
	}
}

// toGo converts a Lua value into plain Go values. Tables with keys 1..n
// become slices, other tables maps; integral numbers become int64.
func toGo(lv lua.LValue) any {
	return toGoVisited(lv, make(map[*lua.LTable]bool))
}

func toGoVisited(lv lua.LValue, visited map[*lua.LTable]bool) any {
	switch v := lv.(type) {
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		f := float64(v)
		if f == float64(int64(f)) {
			return int64(f)
		}
		return f
	case lua.LString:
		return string(v)
	case *lua.LTable:
		if visited[v] {
			return nil
		}
		visited[v] = true
		defer delete(visited, v)
		return tableToGo(v, visited)
	default:
		return nil
	}
}

func tableToGo(t *lua.LTable, visited map[*lua.LTable]bool) any {
	n := t.Len()
	count := 0
	t.ForEach(func(_, _ lua.LValue) { count++ })

	if n > 0 && n == count {
		arr := make([]any, n)
		for i := 1; i <= n; i++ {
			arr[i-1] = toGoVisited(t.RawGetInt(i), visited)
		}
		return arr
	}

	m := make(map[string]any, count)
	t.ForEach(func(k, v lua.LValue) {
		m[k.String()] = toGoVisited(v, visited)
	})
	return m
}

func stringsToTable(L *lua.LState, s []string) *lua.LTable {
	t := L.CreateTable(len(s), 0)
	for i, v := range s {
		t.RawSetInt(i+1, lua.LString(v))
	}
	return t
}

func tableToStrings(lv lua.LValue, field string) ([]string, error) {
	switch v := lv.(type) {
	case *lua.LNilType:
		return []string{}, nil
	case *lua.LTable:
		out := make([]string, 0, v.Len())
		for i := 1; i <= v.Len(); i++ {
			s, ok := v.RawGetInt(i).(lua.LString)
			if !ok {
				return nil, fmt.Errorf("%s[%d] must be a string, got %s", field, i, v.RawGetInt(i).Type())
			}
			out = append(out, string(s))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s must be a list of strings, got %s", field, lv.Type())
	}
}

func contextToTable(L *lua.LState, c capsule.Context) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("filter_args", stringsToTable(L, c.FilterArgs))
	t.RawSetString("command_name", lua.LString(c.CommandName))
	t.RawSetString("extra_args", stringsToTable(L, c.ExtraArgs))
	return t
}

func tableToContext(t *lua.LTable) (capsule.Context, error) {
	filter, err := tableToStrings(t.RawGetString("filter_args"), "filter_args")
	if err != nil {
		return capsule.Context{}, err
	}
	extra, err := tableToStrings(t.RawGetString("extra_args"), "extra_args")
	if err != nil {
		return capsule.Context{}, err
	}
	var name string
	switch v := t.RawGetString("command_name").(type) {
	case lua.LString:
		name = string(v)
	case *lua.LNilType:
	default:
		return capsule.Context{}, fmt.Errorf("command_name must be a string, got %s", v.Type())
	}
	return capsule.Context{FilterArgs: filter, CommandName: name, ExtraArgs: extra}, nil
}
