package config

import (
	"encoding/json"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
	"gopkg.in/yaml.v3"
)

// loadYAML decodes a YAML protocol. Step lines come from the node tree.
func loadYAML(source string, data []byte) (*rawProtocol, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, ValidationErrors{{File: source, Message: err.Error()}}
	}
	if len(doc.Content) == 0 {
		return &rawProtocol{source: source}, nil
	}

	root := doc.Content[0]
	var out map[string]any
	if err := root.Decode(&out); err != nil {
		return nil, ValidationErrors{{File: source, Line: root.Line, Column: root.Column, Message: err.Error()}}
	}

	raw := &rawProtocol{source: source, data: out}
	if root.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(root.Content); i += 2 {
			key, val := root.Content[i], root.Content[i+1]
			if key.Value != "steps" || val.Kind != yaml.SequenceNode {
				continue
			}
			for _, item := range val.Content {
				raw.lines = append(raw.lines, item.Line)
			}
		}
	}
	return raw, nil
}

// loadJSON decodes a JSON protocol.
func loadJSON(source string, data []byte) (*rawProtocol, error) {
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		v := ValidationError{File: source, Message: err.Error()}
		if se, ok := err.(*json.SyntaxError); ok {
			v.Line, v.Column = lineColumn(data, se.Offset)
		}
		return nil, ValidationErrors{v}
	}
	return &rawProtocol{source: source, data: out}, nil
}

func lineColumn(data []byte, offset int64) (int, int) {
	line, col := 1, 1
	for i := int64(0); i < offset && i < int64(len(data)); i++ {
		if data[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}

type hclProtocol struct {
	Name        string             `hcl:"name"`
	Parallelism int                `hcl:"parallelism,optional"`
	Script      string             `hcl:"script,optional"`
	Variables   map[string]float64 `hcl:"variables,optional"`
	Defaults    cty.Value          `hcl:"defaults,optional"`
	Store       *hclStore          `hcl:"store,block"`
	Steps       []hclStep          `hcl:"step,block"`
}

type hclStore struct {
	Body hcl.Body `hcl:",remain"`
}

type hclStep struct {
	Operation string    `hcl:"operation,label"`
	Params    cty.Value `hcl:"params,optional"`
	Where     cty.Value `hcl:"where,optional"`
	Within    cty.Value `hcl:"within,optional"`
}

// loadHCL decodes an HCL protocol:
//
//	name = "smooth"
//	store { driver = "sqlite" path = "tracks.db" }
//	step "arithmetic" {
//	  params = { sourceData = "signal", targetData = "scaled", method = "multiply", argument = 2 }
//	  where  = { numeric = { track = "signal", op = ">", value = 0 } }
//	}
func loadHCL(source string, data []byte) (*rawProtocol, error) {
	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCL(data, source)
	if diags.HasErrors() {
		return nil, diagnostics(diags)
	}

	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{},
	}

	var hp hclProtocol
	diags = gohcl.DecodeBody(hclFile.Body, evalCtx, &hp)
	if diags.HasErrors() {
		return nil, diagnostics(diags)
	}

	out := map[string]any{"name": hp.Name}
	if hp.Parallelism != 0 {
		out["parallelism"] = hp.Parallelism
	}
	if hp.Script != "" {
		out["script"] = hp.Script
	}
	if len(hp.Variables) > 0 {
		vars := make(map[string]any, len(hp.Variables))
		for k, v := range hp.Variables {
			vars[k] = v
		}
		out["variables"] = vars
	}
	if err := setCty(out, "defaults", hp.Defaults); err != nil {
		return nil, ValidationErrors{{File: source, Path: "defaults", Message: err.Error()}}
	}

	if hp.Store != nil {
		attrs, diags := hp.Store.Body.JustAttributes()
		if diags.HasErrors() {
			return nil, diagnostics(diags)
		}
		store := make(map[string]any, len(attrs))
		for name, attr := range attrs {
			val, diags := attr.Expr.Value(evalCtx)
			if diags.HasErrors() {
				return nil, diagnostics(diags)
			}
			if err := setCty(store, name, val); err != nil {
				return nil, ValidationErrors{{File: source, Line: attr.Range.Start.Line, Path: "store." + name, Message: err.Error()}}
			}
		}
		out["store"] = store
	}

	raw := &rawProtocol{source: source, data: out}
	if body, ok := hclFile.Body.(*hclsyntax.Body); ok {
		for _, b := range body.Blocks {
			if b.Type == "step" {
				raw.lines = append(raw.lines, b.DefRange().Start.Line)
			}
		}
	}

	steps := make([]any, 0, len(hp.Steps))
	for i, s := range hp.Steps {
		step := map[string]any{"operation": s.Operation}
		for _, f := range []struct {
			key string
			val cty.Value
		}{{"params", s.Params}, {"where", s.Where}, {"within", s.Within}} {
			if err := setCty(step, f.key, f.val); err != nil {
				v := ValidationError{File: source, Path: fmt.Sprintf("steps[%d].%s", i, f.key), Message: err.Error()}
				if i < len(raw.lines) {
					v.Line = raw.lines[i]
				}
				return nil, ValidationErrors{v}
			}
		}
		steps = append(steps, step)
	}
	out["steps"] = steps

	return raw, nil
}

// setCty stores the plain Go form of v under key, skipping null values.
func setCty(dst map[string]any, key string, v cty.Value) error {
	if v.IsNull() {
		return nil
	}
	if !v.IsWhollyKnown() {
		return fmt.Errorf("value is not known")
	}
	data, err := ctyjson.SimpleJSONValue{Value: v}.MarshalJSON()
	if err != nil {
		return err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	dst[key] = out
	return nil
}

func diagnostics(diags hcl.Diagnostics) ValidationErrors {
	var out ValidationErrors
	for _, d := range diags {
		if d.Severity != hcl.DiagError {
			continue
		}
		v := ValidationError{Message: d.Summary}
		if d.Detail != "" {
			v.Message += ": " + d.Detail
		}
		if d.Subject != nil {
			v.File = d.Subject.Filename
			v.Line = d.Subject.Start.Line
			v.Column = d.Subject.Start.Column
		}
		out = append(out, v)
	}
	return out
}
