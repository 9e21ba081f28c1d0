package recipe

import "github.com/hashicorp/hcl/v2"

// fileRoot decodes every top-level block of a formula file.
type fileRoot struct {
	Formula      *formulaBlock       `hcl:"formula,block"`
	Options      []*optionBlock      `hcl:"option,block"`
	Dependencies []*dependsBlock     `hcl:"depends_on,block"`
	Requirements []*requirementBlock `hcl:"requirement,block"`
	Conflicts    []*conflictBlock    `hcl:"conflicts_with,block"`
	Patches      []*patchBlock       `hcl:"patch,block"`
	Edits        []*editBlock        `hcl:"inreplace,block"`
	Env          []*envBlock         `hcl:"env,block"`
	Steps        []*stepBlock        `hcl:"step,block"`
	Artifacts    []*artifactBlock    `hcl:"artifact,block"`
	Placeholders []*placeholderBlock `hcl:"placeholder,block"`
	Tests        []*stepBlock        `hcl:"test,block"`
}

type formulaBlock struct {
	Name     string `hcl:"name,label"`
	Desc     string `hcl:"desc,optional"`
	Homepage string `hcl:"homepage,optional"`
	Version  string `hcl:"version,optional"`

	Head *headBlock `hcl:"head,block"`
}

type headBlock struct {
	URL    string `hcl:"url"`
	Branch string `hcl:"branch,optional"`
}

type optionBlock struct {
	Name        string `hcl:"name,label"`
	Description string `hcl:"description,optional"`
	Default     bool   `hcl:"default,optional"`
}

type dependsBlock struct {
	Name        string         `hcl:"name,label"`
	Phase       string         `hcl:"phase,optional"`
	Version     string         `hcl:"version,optional"`
	Recommended bool           `hcl:"recommended,optional"`
	Optional    bool           `hcl:"optional,optional"`
	Condition   hcl.Expression `hcl:"condition,optional"`
	DefRange    hcl.Range      `hcl:",def_range"`
}

type requirementBlock struct {
	Name       string         `hcl:"name,label"`
	Executable string         `hcl:"executable"`
	Message    string         `hcl:"message,optional"`
	Condition  hcl.Expression `hcl:"condition,optional"`
}

type conflictBlock struct {
	Name    string `hcl:"name,label"`
	Because string `hcl:"because,optional"`
}

type patchBlock struct {
	Name      string         `hcl:"name,label"`
	URL       string         `hcl:"url,optional"`
	SHA256    string         `hcl:"sha256,optional"`
	File      string         `hcl:"file,optional"`
	Data      string         `hcl:"data,optional"`
	Strip     int            `hcl:"strip,optional"`
	Condition hcl.Expression `hcl:"condition,optional"`
	DefRange  hcl.Range      `hcl:",def_range"`
}

type editBlock struct {
	File        string         `hcl:"file,label"`
	Pattern     string         `hcl:"pattern,optional"`
	Regex       bool           `hcl:"regex,optional"`
	Replacement hcl.Expression `hcl:"replacement,optional"`
	Append      hcl.Expression `hcl:"append,optional"`
	Condition   hcl.Expression `hcl:"condition,optional"`
	DefRange    hcl.Range      `hcl:",def_range"`
}

type envBlock struct {
	Name      string         `hcl:"name,label"`
	Value     hcl.Expression `hcl:"value"`
	Mode      string         `hcl:"mode,optional"`
	Condition hcl.Expression `hcl:"condition,optional"`
}

type stepBlock struct {
	Name       string         `hcl:"name,label"`
	Command    hcl.Expression `hcl:"command"`
	Dir        string         `hcl:"dir,optional"`
	Env        hcl.Expression `hcl:"env,optional"`
	Capture    string         `hcl:"capture,optional"`
	Inspect    bool           `hcl:"inspect,optional"`
	IgnoreExit bool           `hcl:"ignore_exit,optional"`
	Condition  hcl.Expression `hcl:"condition,optional"`
}

type artifactBlock struct {
	Name        string         `hcl:"name,label"`
	Source      hcl.Expression `hcl:"source"`
	Destination hcl.Expression `hcl:"destination,optional"`
	Condition   hcl.Expression `hcl:"condition,optional"`
}

type placeholderBlock struct {
	Name        string            `hcl:"name,label"`
	Path        string            `hcl:"path"`
	Root        string            `hcl:"root"`
	Attributes  map[string]string `hcl:"attributes,optional"`
	Generator   hcl.Expression    `hcl:"generator,optional"`
	Output      string            `hcl:"output,optional"`
	Destination hcl.Expression    `hcl:"destination,optional"`
	Condition   hcl.Expression    `hcl:"condition,optional"`
	DefRange    hcl.Range         `hcl:",def_range"`
}
