package lua

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// Loader resolves a script name to its source.
type Loader interface {
	Load(identifier string) (string, error)
}

// FSLoader reads scripts from an fs.FS, typically an embedded directory.
type FSLoader struct {
	fsys     fs.FS
	basePath string
}

func NewFSLoader(fsys fs.FS, basePath string) *FSLoader {
	return &FSLoader{fsys: fsys, basePath: basePath}
}

func (l *FSLoader) Load(identifier string) (string, error) {
	name := path.Join(l.basePath, identifier)
	if !strings.HasSuffix(name, ".lua") {
		name += ".lua"
	}

	data, err := fs.ReadFile(l.fsys, name)
	if err != nil {
		return "", fmt.Errorf("failed to load bundled script %s: %w", identifier, err)
	}
	return string(data), nil
}

type FilesystemLoader struct {
	basePath string
}

func NewFilesystemLoader(basePath string) *FilesystemLoader {
	return &FilesystemLoader{basePath: basePath}
}

func (l *FilesystemLoader) Load(identifier string) (string, error) {
	p := identifier
	if !filepath.IsAbs(p) {
		p = filepath.Join(l.basePath, identifier)
	}

	data, err := os.ReadFile(p)
	if err != nil {
		return "", fmt.Errorf("failed to load script %s: %w", identifier, err)
	}
	return string(data), nil
}

// SetupRequire replaces require so that preloaded Go modules resolve as
// usual and everything else comes from loader.
func SetupRequire(L *lua.LState, loader Loader) {
	originalRequire, _ := L.GetGlobal("require").(*lua.LFunction)

	L.SetGlobal("require", L.NewFunction(func(L *lua.LState) int {
		module := L.CheckString(1)

		pkg := L.GetField(L.Get(lua.EnvironIndex), "package")
		if preload, ok := L.GetField(pkg, "preload").(*lua.LTable); ok && originalRequire != nil {
			if L.GetField(preload, module) != lua.LNil {
				L.Push(originalRequire)
				L.Push(lua.LString(module))
				L.Call(1, 1)
				return 1
			}
		}

		scriptContent, err := loader.Load(module)
		if err != nil {
			L.RaiseError("failed to require module %s: %s", module, err.Error())
			return 0
		}

		fn, err := L.LoadString(scriptContent)
		if err != nil {
			L.RaiseError("failed to load module %s: %s", module, err.Error())
			return 0
		}

		top := L.GetTop()
		L.Push(fn)
		L.Call(0, lua.MultRet)
		return L.GetTop() - top
	}))
}
