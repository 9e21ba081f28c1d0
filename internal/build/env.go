package build

import (
	"maps"
	"os"
	"runtime"
	"strings"

	"github.com/goplus/brewer/formula"
	"github.com/goplus/brewer/internal/keg"
	"github.com/goplus/brewer/internal/pipeline"
)

// environ is the environment of one build: a base environment plus the
// variables the build changed. The process environment is never touched.
type environ struct {
	base []string
	over map[string]string
}

func newEnviron(base []string) *environ {
	return &environ{base: base, over: map[string]string{}}
}

func (e *environ) get(key string) string {
	if v, ok := e.over[key]; ok {
		return v
	}
	prefix := key + "="
	for i := len(e.base) - 1; i >= 0; i-- {
		if strings.HasPrefix(e.base[i], prefix) {
			return e.base[i][len(prefix):]
		}
	}
	return ""
}

func (e *environ) set(key, value string) {
	e.over[key] = value
}

// prependPath prepends a directory to a path list variable.
func (e *environ) prependPath(key, dir string) {
	sep := ":"
	if runtime.GOOS == "windows" {
		sep = ";"
	}
	if current := e.get(key); current != "" {
		dir += sep + current
	}
	e.set(key, dir)
}

// appendFlag appends a flag to a space separated variable.
func (e *environ) appendFlag(key, flag string) {
	e.set(key, strings.TrimSpace(e.get(key)+" "+flag))
}

// use makes the headers, libraries, pkg-config files and tools of k
// visible to the build.
func (e *environ) use(k *keg.Keg) {
	if exists(k.PkgConfig()) {
		e.prependPath("PKG_CONFIG_PATH", k.PkgConfig())
	}
	if exists(k.Prefix) {
		e.prependPath("CMAKE_PREFIX_PATH", k.Prefix)
	}
	if exists(k.Bin()) {
		e.prependPath("PATH", k.Bin())
	}
	if runtime.GOOS == "windows" {
		if exists(k.Include()) {
			e.prependPath("INCLUDE", k.Include())
		}
		if exists(k.Lib()) {
			e.prependPath("LIB", k.Lib())
		}
		return
	}
	if exists(k.Include()) {
		e.appendFlag("CPPFLAGS", "-I"+k.Include())
	}
	if exists(k.Lib()) {
		e.appendFlag("LDFLAGS", "-L"+k.Lib())
	}
}

// tweak applies one evaluated formula environment change.
func (e *environ) tweak(name string, mode formula.EnvMode, value string) {
	switch mode {
	case formula.EnvAppend:
		e.appendFlag(name, value)
	case formula.EnvPrependPath:
		e.prependPath(name, value)
	default:
		e.set(name, value)
	}
}

// list returns the complete environment with extra applied on top.
func (e *environ) list(extra map[string]string) []string {
	over := maps.Clone(e.over)
	maps.Copy(over, extra)
	return pipeline.MergeEnv(e.base, over)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
