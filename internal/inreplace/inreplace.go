// Package inreplace edits files of a working tree in place.
package inreplace

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/goplus/brewer/formula"
)

// ErrNoMatch is returned when a substitution pattern is not found.
var ErrNoMatch = errors.New("pattern not found")

// Edit is a fully evaluated source edit.
type Edit struct {
	File        string
	Pattern     string
	Regex       bool
	Replacement string
	Append      []string
}

// Apply performs e on proj. A substitution whose pattern does not occur in
// the file fails, so that a formula notices upstream changes.
func Apply(proj *formula.Project, e Edit) error {
	data, err := proj.ReadFile(e.File)
	if err != nil {
		return fmt.Errorf("inreplace %s: %w", e.File, err)
	}

	if e.Pattern != "" {
		data, err = replace(data, e)
		if err != nil {
			return fmt.Errorf("inreplace %s: %w", e.File, err)
		}
	}
	if len(e.Append) > 0 {
		data = appendLines(data, e.Append)
	}
	return proj.WriteFile(e.File, data)
}

func replace(data []byte, e Edit) ([]byte, error) {
	if !e.Regex {
		if !bytes.Contains(data, []byte(e.Pattern)) {
			return nil, fmt.Errorf("%w: %q", ErrNoMatch, e.Pattern)
		}
		return bytes.ReplaceAll(data, []byte(e.Pattern), []byte(e.Replacement)), nil
	}
	re, err := regexp.Compile(e.Pattern)
	if err != nil {
		return nil, err
	}
	if !re.Match(data) {
		return nil, fmt.Errorf("%w: /%s/", ErrNoMatch, e.Pattern)
	}
	return re.ReplaceAllLiteral(data, []byte(e.Replacement)), nil
}

// appendLines adds lines after the last line of data, terminating the
// existing content first if needed.
func appendLines(data []byte, lines []string) []byte {
	var buf bytes.Buffer
	buf.Write(data)
	if len(data) > 0 && data[len(data)-1] != '\n' {
		buf.WriteByte('\n')
	}
	buf.WriteString(strings.Join(lines, "\n"))
	buf.WriteByte('\n')
	return buf.Bytes()
}
