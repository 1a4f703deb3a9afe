package lua

import (
	"fmt"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// maxDepth bounds conversion of nested or self-referencing tables.
const maxDepth = 32

// ToLuaValue converts a Go value passed to a script. Times become epoch
// seconds and values of unknown type are formatted with %v.
func ToLuaValue(L *lua.LState, value interface{}) lua.LValue {
	switch v := value.(type) {
	case nil:
		return lua.LNil
	case lua.LValue:
		return v
	case bool:
		return lua.LBool(v)
	case int:
		return lua.LNumber(v)
	case int64:
		return lua.LNumber(v)
	case float64:
		return lua.LNumber(v)
	case string:
		return lua.LString(v)
	case time.Time:
		return lua.LNumber(v.Unix())
	case []string:
		seq := L.CreateTable(len(v), 0)
		for _, s := range v {
			seq.Append(lua.LString(s))
		}
		return seq
	case []interface{}:
		seq := L.CreateTable(len(v), 0)
		for _, elem := range v {
			seq.Append(ToLuaValue(L, elem))
		}
		return seq
	case map[string]interface{}:
		record := L.CreateTable(0, len(v))
		for key, elem := range v {
			record.RawSetString(key, ToLuaValue(L, elem))
		}
		return record
	default:
		return lua.LString(fmt.Sprintf("%v", v))
	}
}

// ToGoValue converts a script result. Sequences become []interface{}, other
// tables map[string]interface{} keyed by their string keys, and numbers
// float64. Tables nested deeper than maxDepth convert to nil.
func ToGoValue(lv lua.LValue) interface{} {
	return toGoValue(lv, 0)
}

func toGoValue(lv lua.LValue, depth int) interface{} {
	switch v := lv.(type) {
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		return float64(v)
	case lua.LString:
		return string(v)
	case *lua.LTable:
		if depth >= maxDepth {
			return nil
		}
		return tableToGo(v, depth+1)
	default:
		return nil
	}
}

func tableToGo(t *lua.LTable, depth int) interface{} {
	if n := t.MaxN(); n > 0 {
		seq := make([]interface{}, n)
		for i := range seq {
			seq[i] = toGoValue(t.RawGetInt(i+1), depth)
		}
		return seq
	}

	record := make(map[string]interface{})
	t.ForEach(func(key, value lua.LValue) {
		if name, ok := key.(lua.LString); ok {
			record[string(name)] = toGoValue(value, depth)
		}
	})
	return record
}
