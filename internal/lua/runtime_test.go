package lua

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"testing/fstest"
	"time"
)

type mapLoader map[string]string

func (m mapLoader) Load(identifier string) (string, error) {
	if src, ok := m[identifier]; ok {
		return src, nil
	}
	return "", errors.New("not found")
}

func TestRuntimeCall(t *testing.T) {
	rt := NewRuntime()
	defer rt.Close()

	if err := rt.LoadScript(`
function pair(a, b, opts)
  return a + b, opts.name .. "!"
end
`); err != nil {
		t.Fatalf("LoadScript() error = %v", err)
	}

	results, err := rt.Call(context.Background(), "pair", int64(2), 3, map[string]interface{}{"name": "lua"})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if !reflect.DeepEqual(results, []interface{}{float64(5), "lua!"}) {
		t.Errorf("results = %#v", results)
	}

	if _, err := rt.Call(context.Background(), "missing"); err == nil {
		t.Error("expected error calling an undefined function")
	}
}

func TestRuntimeSecureMode(t *testing.T) {
	rt := NewRuntime(WithSecureMode(true))
	defer rt.Close()

	rt.LoadScript(`function probe() return os == nil and io == nil end`)
	results, err := rt.Call(context.Background(), "probe")
	if err != nil || len(results) != 1 || results[0] != true {
		t.Errorf("probe = (%v, %v), want os and io removed", results, err)
	}
}

func TestRuntimeRequireFromLoader(t *testing.T) {
	rt := NewRuntime(WithLoader(mapLoader{
		"greet": `return { hello = function(n) return "hello " .. n end }`,
	}))
	defer rt.Close()

	if err := rt.LoadScript(`
local greet = require("greet")
function run(n) return greet.hello(n) end
`); err != nil {
		t.Fatalf("LoadScript() error = %v", err)
	}

	results, err := rt.Call(context.Background(), "run", "world")
	if err != nil || results[0] != "hello world" {
		t.Errorf("run = (%v, %v)", results, err)
	}
}

func TestRuntimeCallHonorsContext(t *testing.T) {
	rt := NewRuntime()
	defer rt.Close()

	rt.LoadScript(`function spin() while true do end end`)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	if _, err := rt.Call(ctx, "spin"); err == nil {
		t.Fatal("expected cancellation error")
	}
	if time.Since(start) > 2*time.Second {
		t.Error("script was not interrupted by the context")
	}
}

func TestHTMLModule(t *testing.T) {
	rt := NewRuntime()
	defer rt.Close()

	if err := rt.Register(NewHTMLModule()); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	rt.LoadScript(`
function extract(body)
  local doc = html.parse(body)
  local out = {}
  for _, a in ipairs(html.select(doc, "a")) do
    table.insert(out, html.text(a) .. "=" .. (html.attr(a, "href") or "none"))
  end
  local missing = html.select_one(doc, ".absent")
  table.insert(out, tostring(missing == nil))
  return out
end
`)

	results, err := rt.Call(context.Background(), "extract", `<p><a href="/x"> one </a><a>two</a></p>`)
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	got, _ := results[0].([]interface{})
	want := []interface{}{"one=/x", "two=none", "true"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("extract = %v, want %v", got, want)
	}
}

func TestLoaders(t *testing.T) {
	fsys := fstest.MapFS{"scripts/greet.lua": {Data: []byte("return 1")}}
	if src, err := NewFSLoader(fsys, "scripts").Load("greet"); err != nil || src != "return 1" {
		t.Errorf("FSLoader.Load(greet) = (%q, %v)", src, err)
	}

	loader := NewFilesystemLoader(t.TempDir())
	if _, err := loader.Load("absent.lua"); err == nil || !strings.Contains(err.Error(), "absent") {
		t.Errorf("FilesystemLoader.Load() error = %v", err)
	}
}
