package build

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goplus/brewer/formula"
	"github.com/goplus/brewer/internal/deps"
	"github.com/goplus/brewer/internal/inspect"
	"github.com/goplus/brewer/internal/keg"
	"github.com/goplus/brewer/internal/lockedfile"
	"github.com/goplus/brewer/internal/patch"
	"github.com/goplus/brewer/internal/pipeline"
	"github.com/goplus/brewer/internal/recipe"
)

const octaveFormula = `
formula "octave-head" {
  version = "HEAD"
}

option "qt" {
  default = true
}

option "docs" {
  default = true
}

option "test" {}

depends_on "pkg-config" { phase = "build" }
depends_on "texinfo" {}

depends_on "java" {
  version     = ">= 1.8"
  recommended = true
}

depends_on "qt" { condition = option.qt }
depends_on "qscintilla2" { condition = option.qt }

requirement "mactex" {
  executable = "@LATEX@"
  message    = "MacTeX must be installed in order to build with docs."
  condition  = option.docs
}

conflicts_with "octave" {
  because = "both install the same package"
}

patch "retina-scaling" {
  url       = "https://example.com/retina.patch"
  sha256    = "@SHA@"
  condition = option.qt
}

patch "window-freeze" {
  file      = "freeze.diff"
  condition = option.qt
}

inreplace "libinterp/octave-value/ov-java.cc" {
  pattern     = "usejava (\"awt\")"
  replacement = "false ()"
}

inreplace "scripts/startup/site-rcfile" {
  append = ["makeinfo_program(\"${dep.texinfo.bin}/makeinfo\");"]
}

env "CXXFLAGS" {
  value     = "-I${dep.qscintilla2.include}"
  mode      = "append"
  condition = option.qt
}

step "bootstrap" { command = ["./bootstrap"] }

step "configure" {
  command = compact([
    "./configure",
    "--prefix=${prefix}",
    option.qt ? "--with-qt=5" : "--without-qt",
    option.docs ? "" : "--disable-docs",
  ])
}

step "make" { command = ["make", "all"] }

step "check" {
  command     = ["make", "check"]
  capture     = "test/make-check.log"
  inspect     = true
  ignore_exit = true
  condition   = option.test
}

step "install" { command = ["make", "install"] }

artifact "make-check-log" {
  source    = "test/make-check.log"
  condition = option.test
}

placeholder "qt-help" {
  path        = "doc/octave_interpreter.qhcp"
  root        = "QHelpCollectionProject"
  attributes  = { version = "1.0" }
  generator   = ["${dep.qt.bin}/qcollectiongenerator", "doc/octave_interpreter.qhcp", "-o", "doc/octave_interpreter.qhc"]
  output      = "doc/octave_interpreter.qhc"
  destination = "share/octave/${version}/doc/octave_interpreter.qhc"
  condition   = !option.docs && option.qt
}

test "pi" {
  command = ["${prefix}/bin/octave", "--eval", "(22/7 - pi)/pi"]
}

test "java" {
  command   = ["${prefix}/bin/octave", "--eval", "try; javaclasspath; catch; quit(1); end;"]
  condition = option.java
}
`

const retinaPatch = `diff --git a/configure.ac b/configure.ac
--- a/configure.ac
+++ b/configure.ac
@@ -1,2 +1,2 @@
-AC_INIT([octave])
+AC_INIT([octave], [HEAD])
 AC_OUTPUT
`

const freezePatch = `diff --git a/libgui/src/main-window.cc b/libgui/src/main-window.cc
--- a/libgui/src/main-window.cc
+++ b/libgui/src/main-window.cc
@@ -1,3 +1,3 @@
 connect (m_interpreter);
-connect (m_main_thread, quit);
+handle_octave_finished ();
 qApp->exit ();
`

var sourceFiles = map[string]string{
	"configure.ac":                      "AC_INIT([octave])\nAC_OUTPUT\n",
	"libgui/src/main-window.cc":         "connect (m_interpreter);\nconnect (m_main_thread, quit);\nqApp->exit ();\n",
	"libinterp/octave-value/ov-java.cc": "if (usejava (\"awt\"))\n  return;\n",
	"scripts/startup/site-rcfile":       "more off",
}

type fixture struct {
	f        *formula.Formula
	src      string
	prefix   string
	registry *mockRegistry
	runner   *mockRunner
	fetcher  *mockFetcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	formulaDir := t.TempDir()
	sum := sha256.Sum256([]byte(retinaPatch))
	text := strings.NewReplacer(
		"@SHA@", hex.EncodeToString(sum[:]),
		"@LATEX@", filepath.Join(formulaDir, "texbin", "latex"),
	).Replace(octaveFormula)
	require.NoError(t, os.WriteFile(filepath.Join(formulaDir, "octave-head.hcl"), []byte(text), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(formulaDir, "freeze.diff"), []byte(freezePatch), 0o644))

	f, err := recipe.Load(context.Background(), filepath.Join(formulaDir, "octave-head.hcl"))
	require.NoError(t, err)

	src := t.TempDir()
	for name, content := range sourceFiles {
		path := filepath.Join(src, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	return &fixture{
		f:      f,
		src:    src,
		prefix: filepath.Join(t.TempDir(), "Cellar", "octave-head", "HEAD"),
		registry: newMockRegistry(t.TempDir(), map[string]string{
			"pkg-config":  "0.29.2",
			"texinfo":     "7.1",
			"java":        "1.8.0_292",
			"qt":          "5.15.2",
			"qscintilla2": "2.13.1",
		}),
		runner: &mockRunner{
			exit:   map[string]int{},
			output: map[string]string{"make check": "Summary:\n\n  PASS    16243\n  FAIL        0\n"},
		},
		fetcher: &mockFetcher{content: map[string]string{"https://example.com/retina.patch": retinaPatch}},
	}
}

func (fx *fixture) builder() *Builder {
	return NewBuilder(Options{
		Registry: fx.registry,
		Runner:   fx.runner,
		Fetcher:  fx.fetcher,
		Environ:  []string{"PATH=/usr/bin:/bin", "CXXFLAGS=-O2"},
	})
}

func (fx *fixture) build(overrides map[string]bool) (*Result, error) {
	return fx.builder().Build(context.Background(), Request{
		Formula:   fx.f,
		Overrides: overrides,
		SourceDir: fx.src,
		Prefix:    fx.prefix,
	})
}

func (fx *fixture) read(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(fx.src, filepath.FromSlash(name)))
	require.NoError(t, err)
	return string(data)
}

func envValue(env []string, key string) string {
	for _, kv := range env {
		if k, v, ok := strings.Cut(kv, "="); ok && k == key {
			return v
		}
	}
	return ""
}

func TestBuildWithTestsWithoutDocs(t *testing.T) {
	fx := newFixture(t)
	res, err := fx.build(formula.ParseOverrides([]string{"test"}, []string{"docs"}))
	require.NoError(t, err)

	assert.Equal(t, "docs-off|java-on|qt-on|test-on", res.Options.String())
	assert.ElementsMatch(t, []string{"octave", "pkg-config", "texinfo", "java", "qt", "qscintilla2"}, fx.registry.lookups)

	// Patches, in order, then edits.
	assert.Equal(t, "AC_INIT([octave], [HEAD])\nAC_OUTPUT\n", fx.read(t, "configure.ac"))
	assert.Equal(t, "connect (m_interpreter);\nhandle_octave_finished ();\nqApp->exit ();\n", fx.read(t, "libgui/src/main-window.cc"))
	assert.Equal(t, "if (false ())\n  return;\n", fx.read(t, "libinterp/octave-value/ov-java.cc"))
	texinfo := fx.registry.kegs["texinfo"]
	assert.Equal(t, "more off\nmakeinfo_program(\""+texinfo.Bin()+"/makeinfo\");\n", fx.read(t, "scripts/startup/site-rcfile"))

	assert.Equal(t, []string{
		"bootstrap",
		"configure --prefix=" + fx.prefix + " --with-qt=5 --disable-docs",
		"make all",
		"make check",
		"make install",
		"qcollectiongenerator doc/octave_interpreter.qhcp -o doc/octave_interpreter.qhc",
	}, fx.runner.started())

	configure := fx.runner.find("configure")
	require.NotNil(t, configure)
	assert.Equal(t, fx.src, configure.Dir)
	qsci := fx.registry.kegs["qscintilla2"]
	assert.Equal(t, "-O2 -I"+qsci.Include(), envValue(configure.Env, "CXXFLAGS"))
	assert.True(t, strings.HasPrefix(envValue(configure.Env, "PATH"), fx.registry.kegs["qscintilla2"].Bin()+":"))
	assert.Contains(t, envValue(configure.Env, "PKG_CONFIG_PATH"), fx.registry.kegs["qt"].PkgConfig())
	assert.Contains(t, envValue(configure.Env, "CPPFLAGS"), "-I"+fx.registry.kegs["java"].Include())

	require.NotNil(t, res.Outcome)
	assert.Equal(t, pipeline.Complete, res.Outcome.State)
	assert.Equal(t, -1, res.Outcome.FirstFailure)

	log, err := os.ReadFile(filepath.Join(fx.prefix, "make-check.log"))
	require.NoError(t, err)
	assert.Contains(t, string(log), "FAIL        0")

	placeholder := filepath.Join(fx.prefix, "share", "octave", "HEAD", "doc", "octave_interpreter.qhc")
	assert.FileExists(t, placeholder)
	qhcp := fx.read(t, "doc/octave_interpreter.qhcp")
	assert.Contains(t, qhcp, `<QHelpCollectionProject version="1.0"></QHelpCollectionProject>`)

	assert.Empty(t, res.Advisories)

	receipt, err := keg.ReadReceipt(fx.prefix)
	require.NoError(t, err)
	assert.Equal(t, res.BuildID, receipt.BuildID)
	assert.Equal(t, map[string]bool{"docs": false, "java": true, "qt": true, "test": true}, receipt.Options)
	assert.Equal(t, []string{"texinfo", "java", "qt", "qscintilla2"}, receipt.RuntimeDeps)
}

func TestBuildWithoutQt(t *testing.T) {
	fx := newFixture(t)
	res, err := fx.build(formula.ParseOverrides(nil, []string{"qt", "docs"}))
	require.NoError(t, err)

	assert.NotContains(t, fx.registry.lookups, "qt")
	assert.NotContains(t, fx.registry.lookups, "qscintilla2")
	assert.Equal(t, sourceFiles["configure.ac"], fx.read(t, "configure.ac"))
	assert.Equal(t, sourceFiles["libgui/src/main-window.cc"], fx.read(t, "libgui/src/main-window.cc"))

	assert.Equal(t, []string{
		"bootstrap",
		"configure --prefix=" + fx.prefix + " --without-qt --disable-docs",
		"make all",
		"make install",
	}, fx.runner.started())
	assert.True(t, res.Outcome.Steps[3].Skipped)
	assert.Equal(t, "-O2", envValue(fx.runner.find("configure").Env, "CXXFLAGS"))

	assert.NoFileExists(t, filepath.Join(fx.prefix, "make-check.log"))
	assert.NoDirExists(t, filepath.Join(fx.prefix, "share"))
}

func TestBuildAdvisoryTestFailures(t *testing.T) {
	tests := []struct {
		name   string
		output string
		exit   int
		want   string
	}{
		{name: "failures", output: "  PASS 16240\n  FAIL    3\n", exit: 2, want: "3 tests failed. Details are given in "},
		{name: "no summary", output: "make: *** [check] Error 2\n", exit: 2, want: "could not find a test summary. Details are given in "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t)
			fx.runner.output["make check"] = tt.output
			fx.runner.exit["make check"] = tt.exit

			res, err := fx.build(formula.ParseOverrides([]string{"test"}, []string{"docs"}))
			require.NoError(t, err, "advisories never fail a build")
			require.Len(t, res.Advisories, 1)
			assert.ErrorIs(t, res.Advisories[0], inspect.ErrAdvisory)
			assert.Equal(t, tt.want+filepath.Join(fx.prefix, "make-check.log"), res.Advisories[0].Error())

			assert.Equal(t, tt.exit, res.Outcome.Steps[3].ExitCode)
			assert.Equal(t, pipeline.Succeeded, res.Outcome.Steps[3].State)
			assert.Contains(t, fx.runner.started(), "make install")

			receipt, err := keg.ReadReceipt(fx.prefix)
			require.NoError(t, err)
			assert.Len(t, receipt.Advisories, 1)
		})
	}
}

func TestBuildStepFailure(t *testing.T) {
	fx := newFixture(t)
	fx.runner.exit["make all"] = 2

	res, err := fx.build(map[string]bool{"docs": false})
	require.Error(t, err)
	assert.ErrorIs(t, err, pipeline.ErrStepFailed)

	var serr *pipeline.StepError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, 2, serr.Index)
	assert.Equal(t, 2, serr.ExitCode)

	assert.Equal(t, []string{"bootstrap", "configure --prefix=" + fx.prefix + " --with-qt=5 --disable-docs", "make all"}, fx.runner.started())
	assert.Equal(t, pipeline.PipelineAborted, res.Outcome.State)
	assert.Equal(t, pipeline.Aborted, res.Outcome.Steps[4].State)
	assert.NoFileExists(t, filepath.Join(fx.prefix, keg.ReceiptFile))
}

func TestBuildFailsBeforeSideEffects(t *testing.T) {
	tests := []struct {
		name      string
		overrides map[string]bool
		setup     func(fx *fixture)
		target    error
	}{
		{
			name:      "missing dependency",
			overrides: map[string]bool{"docs": false},
			setup:     func(fx *fixture) { delete(fx.registry.kegs, "qscintilla2") },
			target:    deps.ErrUnsatisfied,
		},
		{
			name:      "version mismatch",
			overrides: map[string]bool{"docs": false},
			setup:     func(fx *fixture) { fx.registry.kegs["java"].Version = "1.7.0" },
			target:    deps.ErrVersionMismatch,
		},
		{
			name:      "conflict installed",
			overrides: map[string]bool{"docs": false},
			setup: func(fx *fixture) {
				fx.registry.kegs["octave"] = &keg.Keg{Name: "octave", Version: "6.1.0", Prefix: "/x"}
			},
			target: deps.ErrConflict,
		},
		{
			name:   "missing requirement",
			setup:  func(fx *fixture) {},
			target: deps.ErrUnsatisfied,
		},
		{
			name:      "integrity violation",
			overrides: map[string]bool{"docs": false},
			setup: func(fx *fixture) {
				fx.fetcher.content["https://example.com/retina.patch"] = retinaPatch + "tampered\n"
			},
			target: patch.ErrIntegrity,
		},
		{
			name:      "unknown option",
			overrides: map[string]bool{"gui": true},
			setup:     func(fx *fixture) {},
			target:    formula.ErrConfiguration,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t)
			tt.setup(fx)

			_, err := fx.build(tt.overrides)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.target)

			assert.Empty(t, fx.runner.commands)
			for name, content := range sourceFiles {
				assert.Equal(t, content, fx.read(t, name), name)
			}
		})
	}
}

func TestBuildLockedTree(t *testing.T) {
	fx := newFixture(t)
	unlock, err := lockedfile.MutexAt(filepath.Join(fx.src, LockFile)).TryLock()
	require.NoError(t, err)
	defer unlock()

	_, err = fx.build(map[string]bool{"docs": false})
	require.Error(t, err)
	assert.ErrorIs(t, err, lockedfile.ErrLocked)
	assert.Empty(t, fx.runner.commands)
}

func TestRunTests(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.build(map[string]bool{"docs": false, "java": false})
	require.NoError(t, err)

	fx.runner.commands = nil
	out, err := fx.builder().RunTests(context.Background(), Request{Formula: fx.f, Prefix: fx.prefix})
	require.NoError(t, err)
	assert.Equal(t, pipeline.Complete, out.State)

	// java was off when the keg was built.
	assert.Equal(t, []string{"octave --eval (22/7 - pi)/pi"}, fx.runner.started())
	assert.Equal(t, filepath.Join(fx.prefix, "bin", "octave"), fx.runner.commands[0].Name)
}

func TestEnviron(t *testing.T) {
	env := newEnviron([]string{"PATH=/usr/bin", "LDFLAGS=-L/usr/lib"})
	env.tweak("PATH", formula.EnvPrependPath, "/opt/tex/bin")
	env.tweak("LDFLAGS", formula.EnvAppend, "-L/opt/lib")
	env.tweak("LANG", formula.EnvSet, "C")

	list := env.list(map[string]string{"LANG": "en_US.UTF-8"})
	assert.Equal(t, []string{
		"LANG=en_US.UTF-8",
		"LDFLAGS=-L/usr/lib -L/opt/lib",
		"PATH=/opt/tex/bin:/usr/bin",
	}, list)
	assert.Equal(t, "C", env.get("LANG"), "extra variables apply to one command only")
}
