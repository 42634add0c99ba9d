package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/trackforge/trackforge/pkg/errdefs"
)

// Format is a protocol file format.
type Format string

const (
	FormatCUE  Format = "cue"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatHCL  Format = "hcl"
)

// FormatOf infers the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		return FormatCUE, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".hcl":
		return FormatHCL, nil
	default:
		return "", fmt.Errorf("unsupported protocol format %q", filepath.Ext(path))
	}
}

// rawProtocol is a decoded protocol document before validation.
type rawProtocol struct {
	source string
	data   map[string]any
	// lines holds the source line of each step, 0 when unknown.
	lines []int
}

// Parser loads, validates and builds protocols.
type Parser struct {
	cue       *cue.Context
	schemas   *SchemaRegistry
	starlark  *StarlarkEvaluator
	validator *validator.Validate
}

// NewParser creates a new protocol parser.
func NewParser() *Parser {
	return &Parser{
		cue:       cuecontext.New(),
		schemas:   NewSchemaRegistry(),
		starlark:  NewStarlarkEvaluator(30 * time.Second),
		validator: validator.New(),
	}
}

// Schemas returns the schema registry.
func (p *Parser) Schemas() *SchemaRegistry {
	return p.schemas
}

// Load reads a protocol file, or a directory holding a CUE package.
func Load(ctx context.Context, path string) (*Protocol, error) {
	return NewParser().Load(ctx, path)
}

// Load reads a protocol file, or a directory holding a CUE package.
func (p *Parser) Load(ctx context.Context, path string) (*Protocol, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errdefs.NewConfigurationError(fmt.Sprintf("failed to stat protocol %s", path), err).
			WithCode(errdefs.CodeNotFound)
	}

	if info.IsDir() {
		if !isCUEPackage(path) {
			return nil, errdefs.NewConfigurationError(fmt.Sprintf("directory %s holds no CUE files", path), nil).
				WithCode(errdefs.CodeInvalidParameter)
		}
		raw, err := p.loadCUEDirectory(path)
		if err != nil {
			return nil, invalid(path, err)
		}
		return p.build(ctx, raw)
	}

	format, err := FormatOf(path)
	if err != nil {
		return nil, errdefs.NewConfigurationError(err.Error(), nil).WithCode(errdefs.CodeInvalidParameter)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errdefs.NewConfigurationError(fmt.Sprintf("failed to read protocol %s", path), err)
	}
	return p.Parse(ctx, path, format, data)
}

// Parse decodes protocol content in the given format. source names the
// content in error messages.
func (p *Parser) Parse(ctx context.Context, source string, format Format, data []byte) (*Protocol, error) {
	var (
		raw *rawProtocol
		err error
	)
	switch format {
	case FormatCUE:
		raw, err = p.loadCUEFile(source, data)
	case FormatYAML:
		raw, err = loadYAML(source, data)
	case FormatJSON:
		raw, err = loadJSON(source, data)
	case FormatHCL:
		raw, err = loadHCL(source, data)
	default:
		return nil, errdefs.NewConfigurationError(fmt.Sprintf("unsupported protocol format %q", format), nil).
			WithCode(errdefs.CodeInvalidParameter)
	}
	if err != nil {
		return nil, invalid(source, err)
	}
	return p.build(ctx, raw)
}

// build validates a decoded document and turns it into a Protocol.
func (p *Parser) build(ctx context.Context, raw *rawProtocol) (*Protocol, error) {
	if raw.data == nil {
		return nil, invalid(raw.source, ValidationErrors{{File: raw.source, Message: "empty protocol"}})
	}

	problems, err := p.schemas.Validate("protocol", raw.data)
	if err != nil {
		return nil, errdefs.NewConfigurationError("schema validation failed", err)
	}
	if len(problems) > 0 {
		for i := range problems {
			problems[i] = raw.locate(problems[i])
		}
		return nil, invalid(raw.source, ValidationErrors(problems))
	}

	encoded, err := json.Marshal(raw.data)
	if err != nil {
		return nil, errdefs.NewConfigurationError("failed to encode protocol", err)
	}
	dec := json.NewDecoder(bytes.NewReader(encoded))
	dec.DisallowUnknownFields()
	proto := &Protocol{}
	if err := dec.Decode(proto); err != nil {
		return nil, invalid(raw.source, ValidationErrors{{File: raw.source, Message: err.Error()}})
	}
	proto.Source = raw.source
	proto.ParsedAt = time.Now()

	for i := range proto.Steps {
		if i < len(raw.lines) {
			proto.Steps[i].Line = raw.lines[i]
		}
	}

	if err := p.validator.Struct(proto); err != nil {
		return nil, invalid(raw.source, p.structErrors(raw, err))
	}
	if proto.Store.Driver != "" {
		if err := proto.Store.Driver.Validate(); err != nil {
			return nil, invalid(raw.source, ValidationErrors{{File: raw.source, Path: "store.driver", Message: err.Error()}})
		}
	}

	if proto.Script != "" {
		res, err := p.starlark.Evaluate(ctx, proto.Script, proto.Variables)
		if err != nil {
			return nil, errdefs.NewConfigurationError("protocol script failed", err)
		}
		if proto.Variables == nil {
			proto.Variables = make(map[string]float64, len(res.Variables))
		}
		for name, v := range res.Variables {
			proto.Variables[name] = v
		}
		if len(res.Ignored) > 0 {
			log.Debug().Strs("globals", res.Ignored).Msg("ignoring non-numeric script globals")
		}
	}

	var conditionErrs ValidationErrors
	for i := range proto.Steps {
		step := &proto.Steps[i]
		step.Operation = strings.ToLower(step.Operation)
		var err error
		if step.where, err = BuildCondition(step.Where); err != nil {
			conditionErrs = append(conditionErrs, stepError(raw.source, step, i, "where", err))
		}
		if step.within, err = BuildCondition(step.Within); err != nil {
			conditionErrs = append(conditionErrs, stepError(raw.source, step, i, "within", err))
		}
	}
	if len(conditionErrs) > 0 {
		return nil, invalid(raw.source, conditionErrs)
	}

	log.Debug().
		Str("protocol", proto.Name).
		Str("source", proto.Source).
		Int("steps", len(proto.Steps)).
		Msg("Protocol loaded")

	return proto, nil
}

func stepError(source string, step *Step, i int, field string, err error) ValidationError {
	return ValidationError{
		File:    source,
		Line:    step.Line,
		Path:    fmt.Sprintf("steps[%d].%s", i, field),
		Message: err.Error(),
	}
}

// structErrors maps validator failures to validation errors.
func (p *Parser) structErrors(raw *rawProtocol, err error) ValidationErrors {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return ValidationErrors{{File: raw.source, Message: err.Error()}}
	}
	out := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		path := strings.TrimPrefix(fe.Namespace(), "Protocol.")
		msg := fmt.Sprintf("failed on the '%s' rule", fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("failed on the '%s=%s' rule", fe.Tag(), fe.Param())
		}
		out = append(out, raw.locate(ValidationError{Path: path, Message: msg}))
	}
	return out
}

// locate attaches the source file and, for step problems, the step line.
func (raw *rawProtocol) locate(v ValidationError) ValidationError {
	v.File = raw.source
	v.Line, v.Column = 0, 0
	if i, ok := stepIndex(v.Path); ok && i < len(raw.lines) {
		v.Line = raw.lines[i]
	}
	return v
}

// stepIndex extracts i from paths like "steps.3.where" or "Steps[3].Operation".
func stepIndex(path string) (int, bool) {
	lower := strings.ToLower(path)
	if !strings.HasPrefix(lower, "steps") {
		return 0, false
	}
	rest := strings.TrimLeft(lower[len("steps"):], ".[")
	end := strings.IndexAny(rest, ".]")
	if end < 0 {
		end = len(rest)
	}
	i, err := strconv.Atoi(rest[:end])
	if err != nil {
		return 0, false
	}
	return i, true
}

// invalid wraps a decoding or validation failure as a configuration error.
func invalid(source string, err error) error {
	return errdefs.NewConfigurationError(fmt.Sprintf("invalid protocol %s", source), err).
		WithCode(errdefs.CodeInvalidParameter)
}
