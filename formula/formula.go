// Package formula describes how one package is fetched, patched, built and
// installed. A Formula is pure data: conditions and argument templates are kept
// as HCL expressions and evaluated per invocation.
package formula

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
)

// -----------------------------------------------------------------------------

// Formula is the declarative recipe of a single package.
type Formula struct {
	Name     string
	Desc     string
	Homepage string
	Version  string

	// Head, when set, is where the source tree of a HEAD build is fetched
	// from.
	Head *Source

	// Dir is the directory holding the formula file. Relative patch files
	// are resolved against it.
	Dir string

	Options      []Option
	Dependencies []Dependency
	Requirements []Requirement
	Conflicts    []Conflict
	Patches      []Patch
	Edits        []Edit
	Env          []EnvTweak
	Steps        []Step
	Artifacts    []Artifact
	Placeholders []Placeholder
	Tests        []Step
}

// Source is a version control location.
type Source struct {
	URL string
	Ref string // branch, tag or commit; empty means the remote HEAD
}

// Option returns the declared option with the given name.
func (f *Formula) Option(name string) (Option, bool) {
	for _, o := range f.Options {
		if o.Name == name {
			return o, true
		}
	}
	return Option{}, false
}

// Dependency returns the declared dependency with the given name.
func (f *Formula) Dependency(name string) (Dependency, bool) {
	for _, d := range f.Dependencies {
		if d.Name == name {
			return d, true
		}
	}
	return Dependency{}, false
}

// NewOptionSet resolves the formula options against caller overrides.
func (f *Formula) NewOptionSet(overrides map[string]bool) (*OptionSet, error) {
	return NewOptionSet(f.Options, overrides)
}

// -----------------------------------------------------------------------------

// Option is a named boolean build switch.
type Option struct {
	Name        string
	Description string
	Default     bool
}

// Phase tells when a dependency is needed.
type Phase int

const (
	// Runtime dependencies are needed while building and by the installed software.
	Runtime Phase = iota
	// BuildOnly dependencies are needed only while compiling.
	BuildOnly
)

func (p Phase) String() string {
	switch p {
	case BuildOnly:
		return "build"
	default:
		return "runtime"
	}
}

// ParsePhase parses "build" or "runtime". The empty string means runtime.
func ParsePhase(s string) (Phase, error) {
	switch s {
	case "", "runtime":
		return Runtime, nil
	case "build":
		return BuildOnly, nil
	}
	return Runtime, fmt.Errorf("unknown dependency phase %q", s)
}

// Dependency is another package this formula needs.
type Dependency struct {
	Name  string
	Phase Phase

	// Version is an optional predicate on the installed version,
	// such as ">= 2.7.0".
	Version string

	Condition Condition
}

// Requirement is a host tool that must exist outside of the package tree.
type Requirement struct {
	Name       string
	Executable string
	Message    string
	Condition  Condition
}

// Conflict names a package that must not be installed alongside this one.
type Conflict struct {
	Name    string
	Because string
}

// Patch is a source patch in unified diff format. Exactly one of Data and
// URL is set. Remote patches must carry a SHA256 digest.
type Patch struct {
	Name   string
	Data   []byte
	URL    string
	SHA256 string

	// Strip removes leading path components from file names, like
	// patch -p. Git headers are already stripped of their a/ and b/.
	Strip int

	Condition Condition
}

// Remote reports whether the patch has to be downloaded.
func (p *Patch) Remote() bool {
	return p.URL != ""
}

// Edit is an in-place substitution into, or an append to, a source file.
type Edit struct {
	File        string
	Pattern     string
	Regex       bool
	Replacement hcl.Expression // string
	Append      hcl.Expression // list(string)
	Condition   Condition
}

// EnvMode tells how an EnvTweak combines with the current value.
type EnvMode int

const (
	EnvSet EnvMode = iota
	EnvAppend
	EnvPrependPath
)

// ParseEnvMode parses "set", "append" or "prepend_path".
func ParseEnvMode(s string) (EnvMode, error) {
	switch s {
	case "", "set":
		return EnvSet, nil
	case "append":
		return EnvAppend, nil
	case "prepend_path":
		return EnvPrependPath, nil
	}
	return EnvSet, fmt.Errorf("unknown env mode %q", s)
}

// EnvTweak changes one environment variable of the build.
type EnvTweak struct {
	Name      string
	Mode      EnvMode
	Value     hcl.Expression // string
	Condition Condition
}

// Step is one external command of the build, or of the post-install test.
type Step struct {
	Name    string
	Command hcl.Expression // list(string)
	Dir     string
	Env     hcl.Expression // map(string)

	// Capture is a path, relative to the working tree, receiving the
	// combined output of the command.
	Capture string

	// Inspect marks the captured output for test summary inspection.
	Inspect bool

	// IgnoreExit keeps the step successful whatever its exit status.
	IgnoreExit bool

	Condition Condition
}

// Artifact is a build output copied into the installation prefix.
type Artifact struct {
	Name        string
	Source      hcl.Expression // string, relative to the working tree
	Destination hcl.Expression // string, relative to the prefix
	Condition   Condition
}

// Placeholder is an empty, well-formed XML document synthesized when the
// real one was not built.
type Placeholder struct {
	Name       string
	Path       string // relative to the working tree
	Root       string
	Attributes map[string]string

	// Generator optionally turns Path into Output.
	Generator hcl.Expression // list(string)
	Output    string

	Destination hcl.Expression // string, relative to the prefix
	Condition   Condition
}
