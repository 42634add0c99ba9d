package config

import (
	"fmt"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
)

// loadCUEFile compiles a single CUE protocol.
func (p *Parser) loadCUEFile(path string, data []byte) (*rawProtocol, error) {
	val := p.cue.CompileString(string(data), cue.Filename(path))
	if err := val.Err(); err != nil {
		return nil, ValidationErrors(convertCUEErrors(err))
	}
	return p.extractCUE(path, val)
}

// loadCUEDirectory loads a directory as a CUE package.
func (p *Parser) loadCUEDirectory(dir string) (*rawProtocol, error) {
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, ValidationErrors{{File: dir, Message: "no CUE files found"}}
	}

	inst := instances[0]
	if inst.Err != nil {
		return nil, ValidationErrors(convertCUEErrors(inst.Err))
	}

	val := p.cue.BuildInstance(inst)
	if err := val.Err(); err != nil {
		return nil, ValidationErrors(convertCUEErrors(err))
	}
	return p.extractCUE(dir, val)
}

// extractCUE decodes the protocol value and records where each step starts.
func (p *Parser) extractCUE(source string, val cue.Value) (*rawProtocol, error) {
	if err := val.Validate(cue.Concrete(true)); err != nil {
		return nil, ValidationErrors(convertCUEErrors(err))
	}

	var data map[string]any
	if err := val.Decode(&data); err != nil {
		return nil, ValidationErrors{{File: source, Message: fmt.Sprintf("failed to decode protocol: %v", err)}}
	}

	raw := &rawProtocol{source: source, data: data}
	steps := val.LookupPath(cue.ParsePath("steps"))
	if steps.Exists() && steps.Kind() == cue.ListKind {
		list, err := steps.List()
		if err == nil {
			for list.Next() {
				raw.lines = append(raw.lines, list.Value().Pos().Line())
			}
		}
	}
	return raw, nil
}

// isCUEPackage reports whether dir holds at least one .cue file.
func isCUEPackage(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".cue") {
			return true
		}
	}
	return false
}

// convertCUEErrors converts CUE errors to a ValidationError slice.
func convertCUEErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	for _, e := range errors.Errors(err) {
		var file string
		var line, column int
		if pos := errors.Positions(e); len(pos) > 0 {
			file = pos[0].Filename()
			line = pos[0].Line()
			column = pos[0].Column()
		}

		format, args := e.Msg()
		validationErrors = append(validationErrors, ValidationError{
			File:    file,
			Line:    line,
			Column:  column,
			Path:    strings.Join(e.Path(), "."),
			Message: fmt.Sprintf(format, args...),
		})
	}

	return validationErrors
}
