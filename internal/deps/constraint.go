package deps

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// Constraint is a predicate on an installed version, such as ">= 2.7.0".
// A bare version means ">=".
type Constraint struct {
	Op      string
	Version string // canonical semver, "v" prefixed
}

var ops = []string{">=", "<=", "!=", "==", ">", "<", "="}

// ParseConstraint parses s. The empty string yields the zero Constraint,
// which accepts every version.
func ParseConstraint(s string) (Constraint, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Constraint{}, nil
	}
	op := ">="
	for _, o := range ops {
		if strings.HasPrefix(s, o) {
			op, s = o, strings.TrimSpace(s[len(o):])
			break
		}
	}
	if op == "=" {
		op = "=="
	}
	v := canonical(s)
	if v == "" {
		return Constraint{}, fmt.Errorf("invalid version %q in constraint", s)
	}
	return Constraint{Op: op, Version: v}, nil
}

// IsZero reports whether c accepts every version.
func (c Constraint) IsZero() bool {
	return c.Op == ""
}

// Check reports whether version satisfies c. Versions that are not
// semantic versions, such as "HEAD", only satisfy the zero Constraint.
func (c Constraint) Check(version string) bool {
	if c.IsZero() {
		return true
	}
	v := canonical(version)
	if v == "" {
		return false
	}
	cmp := semver.Compare(v, c.Version)
	switch c.Op {
	case ">=":
		return cmp >= 0
	case ">":
		return cmp > 0
	case "<=":
		return cmp <= 0
	case "<":
		return cmp < 0
	case "!=":
		return cmp != 0
	default:
		return cmp == 0
	}
}

func (c Constraint) String() string {
	if c.IsZero() {
		return ""
	}
	return c.Op + " " + strings.TrimPrefix(c.Version, "v")
}

// canonical maps "2.7", "v2.7.0" and "2.7.0_1" to "v2.7.0". It returns ""
// for anything that is not a semantic version.
func canonical(v string) string {
	v = strings.TrimSpace(v)
	if i := strings.LastIndex(v, "_"); i > 0 {
		v = v[:i]
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return semver.Canonical(v)
}
