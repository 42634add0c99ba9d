package config

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackforge/trackforge/pkg/errdefs"
)

const yamlProtocol = `name: scale
parallelism: 2
variables:
  factor: 2
defaults:
  sequenceCollection: genome
steps:
  - operation: arithmetic
    params:
      sourceData: signal
      targetData: scaled
      method: multiply
      argument: factor
    where:
      numeric: {track: signal, op: ">", value: 3}
  - operation: filter_regions
    params:
      sourceData: peaks
      targetData: kept
      mode: keep
    where:
      property: {name: type, op: "=", value: A}
`

const jsonProtocol = `{
  "name": "scale",
  "parallelism": 2,
  "variables": {"factor": 2},
  "defaults": {"sequenceCollection": "genome"},
  "steps": [
    {
      "operation": "arithmetic",
      "params": {"sourceData": "signal", "targetData": "scaled", "method": "multiply", "argument": "factor"},
      "where": {"numeric": {"track": "signal", "op": ">", "value": 3}}
    },
    {
      "operation": "filter_regions",
      "params": {"sourceData": "peaks", "targetData": "kept", "mode": "keep"},
      "where": {"property": {"name": "type", "op": "=", "value": "A"}}
    }
  ]
}
`

const hclProtocolSource = `name        = "scale"
parallelism = 2
variables   = { factor = 2 }
defaults    = { sequenceCollection = "genome" }

step "arithmetic" {
  params = {
    sourceData = "signal"
    targetData = "scaled"
    method     = "multiply"
    argument   = "factor"
  }
  where = { numeric = { track = "signal", op = ">", value = 3 } }
}

step "filter_regions" {
  params = { sourceData = "peaks", targetData = "kept", mode = "keep" }
  where  = { property = { name = "type", op = "=", value = "A" } }
}
`

const cueProtocol = `name:        "scale"
parallelism: 2
variables: factor: 2
defaults: sequenceCollection: "genome"
steps: [{
	operation: "arithmetic"
	params: {
		sourceData: "signal"
		targetData: "scaled"
		method:     "multiply"
		argument:   "factor"
	}
	where: numeric: {track: "signal", op: ">", value: 3}
}, {
	operation: "filter_regions"
	params: {sourceData: "peaks", targetData: "kept", mode: "keep"}
	where: property: {name: "type", op: "=", value: "A"}
}]
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func validationErrors(t *testing.T, err error) ValidationErrors {
	t.Helper()
	require.Error(t, err)
	assert.True(t, errdefs.IsConfiguration(err), "expected a configuration error, got %v", err)
	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs), "expected validation errors, got %v", err)
	require.NotEmpty(t, verrs)
	return verrs
}

func TestLoadFormatsAgree(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		file    string
		content string
		lines   []int
	}{
		{"scale.yaml", yamlProtocol, []int{8, 16}},
		{"scale.json", jsonProtocol, []int{0, 0}},
		{"scale.hcl", hclProtocolSource, []int{6, 16}},
		{"scale.cue", cueProtocol, nil},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			proto, err := Load(context.Background(), writeFile(t, dir, tt.file, tt.content))
			require.NoError(t, err)

			assert.Equal(t, "scale", proto.Name)
			assert.Equal(t, 2, proto.Parallelism)
			assert.Equal(t, map[string]float64{"factor": 2}, proto.Variables)
			assert.Equal(t, "genome", proto.Defaults["sequenceCollection"])
			assert.Equal(t, filepath.Join(dir, tt.file), proto.Source)
			require.Len(t, proto.Steps, 2)

			first := proto.Steps[0]
			assert.Equal(t, "arithmetic", first.Operation)
			assert.Equal(t, "signal", first.Params["sourceData"])
			require.NotNil(t, first.Where)
			require.NotNil(t, first.Where.Numeric)
			assert.Equal(t, Scalar("3"), first.Where.Numeric.Value)
			where, within := first.Conditions()
			assert.Equal(t, "signal > 3", where.String())
			assert.Nil(t, within)

			assert.Equal(t, "filter_regions", proto.Steps[1].Operation)
			assert.Equal(t, Scalar("A"), proto.Steps[1].Where.Property.Value)

			if tt.lines != nil {
				assert.Equal(t, tt.lines, []int{proto.Steps[0].Line, proto.Steps[1].Line})
			} else {
				assert.Positive(t, proto.Steps[0].Line)
				assert.Greater(t, proto.Steps[1].Line, proto.Steps[0].Line)
			}
		})
	}
}

func TestLoadCUEDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "protocol.cue", "package smooth\n\nname: \"smooth\"\n")
	writeFile(t, dir, "steps.cue", `package smooth

steps: [{
	operation: "interpolate"
	params: {sourceData: "signal", targetData: "filled", sequenceCollection: "genome", period: 4}
}]
`)

	proto, err := Load(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, "smooth", proto.Name)
	require.Len(t, proto.Steps, 1)
	assert.Equal(t, "interpolate", proto.Steps[0].Operation)
	assert.EqualValues(t, 4, proto.Steps[0].Params["period"])

	_, err = Load(context.Background(), t.TempDir())
	assert.True(t, errdefs.IsConfiguration(err))
}

func TestLoadErrors(t *testing.T) {
	ctx := context.Background()
	p := NewParser()

	_, err := Load(ctx, filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Equal(t, errdefs.CodeNotFound, errdefs.CodeOf(err))

	_, err = p.Parse(ctx, "p.toml", Format("toml"), []byte("name = 1"))
	assert.True(t, errdefs.IsConfiguration(err))

	t.Run("unknown field", func(t *testing.T) {
		_, err := p.Parse(ctx, "p.yaml", FormatYAML, []byte("name: x\nbogus: 1\nsteps:\n  - operation: arithmetic\n"))
		validationErrors(t, err)
	})

	t.Run("no steps", func(t *testing.T) {
		_, err := p.Parse(ctx, "p.json", FormatJSON, []byte(`{"name": "x", "steps": []}`))
		validationErrors(t, err)
	})

	t.Run("missing name", func(t *testing.T) {
		_, err := p.Parse(ctx, "p.json", FormatJSON, []byte(`{"steps": [{"operation": "arithmetic"}]}`))
		validationErrors(t, err)
	})

	t.Run("unknown store driver", func(t *testing.T) {
		_, err := p.Parse(ctx, "p.json", FormatJSON,
			[]byte(`{"name": "x", "store": {"driver": "redis"}, "steps": [{"operation": "arithmetic"}]}`))
		validationErrors(t, err)
	})

	t.Run("json syntax", func(t *testing.T) {
		_, err := p.Parse(ctx, "p.json", FormatJSON, []byte("{\n  \"name\": \"x\",\n  oops\n}"))
		verrs := validationErrors(t, err)
		assert.Equal(t, 3, verrs[0].Line)
	})

	t.Run("yaml syntax", func(t *testing.T) {
		_, err := p.Parse(ctx, "p.yaml", FormatYAML, []byte("name: [x\n"))
		validationErrors(t, err)
	})

	t.Run("hcl syntax", func(t *testing.T) {
		_, err := p.Parse(ctx, "p.hcl", FormatHCL, []byte("name = \n"))
		verrs := validationErrors(t, err)
		assert.Equal(t, "p.hcl", verrs[0].File)
		assert.Positive(t, verrs[0].Line)
	})

	t.Run("two selectors in one condition", func(t *testing.T) {
		src := "name: x\nsteps:\n  - operation: arithmetic\n    where:\n      sequences: \"chr*\"\n      expr: \"True\"\n"
		_, err := p.Parse(ctx, "p.yaml", FormatYAML, []byte(src))
		verrs := validationErrors(t, err)
		assert.Equal(t, "steps[0].where", verrs[0].Path)
		assert.Equal(t, 3, verrs[0].Line)
		assert.Contains(t, verrs[0].Message, "exactly one")
	})

	t.Run("unknown operator", func(t *testing.T) {
		src := `{"name": "x", "steps": [{"operation": "arithmetic",
			"within": {"numeric": {"track": "signal", "op": "~", "value": 1}}}]}`
		_, err := p.Parse(ctx, "p.json", FormatJSON, []byte(src))
		verrs := validationErrors(t, err)
		assert.Equal(t, "steps[0].within", verrs[0].Path)
	})
}

func TestValidationErrorString(t *testing.T) {
	v := ValidationError{File: "p.yaml", Line: 4, Column: 2, Path: "steps[0]", Message: "bad"}
	assert.Equal(t, "p.yaml:4:2: steps[0]: bad", v.String())
	assert.Equal(t, "bad", ValidationError{Message: "bad"}.String())
	assert.Equal(t, "a; b", ValidationErrors{{Message: "a"}, {Message: "b"}}.Error())
}

func TestStepIndex(t *testing.T) {
	tests := []struct {
		path string
		want int
		ok   bool
	}{
		{"steps.3.where", 3, true},
		{"Steps[12].Operation", 12, true},
		{"steps", 0, false},
		{"name", 0, false},
	}
	for _, tt := range tests {
		got, ok := stepIndex(tt.path)
		assert.Equal(t, tt.ok, ok, tt.path)
		assert.Equal(t, tt.want, got, tt.path)
	}
}

func TestScalarUnmarshal(t *testing.T) {
	var s struct {
		A, B, C, D Scalar
	}
	require.NoError(t, json.Unmarshal([]byte(`{"A": "text", "B": 2.5, "C": true, "D": null}`), &s))
	assert.Equal(t, Scalar("text"), s.A)
	assert.Equal(t, Scalar("2.5"), s.B)
	assert.Equal(t, Scalar("true"), s.C)
	assert.Equal(t, Scalar(""), s.D)
}

func TestSchemaRegistry(t *testing.T) {
	sr := NewSchemaRegistry()
	assert.Equal(t, []string{"protocol"}, sr.ListSchemas())

	require.NoError(t, sr.RegisterSchema("threshold", "#T: {value: number & >=0}", "#T"))
	problems, err := sr.Validate("threshold", map[string]any{"value": -1})
	require.NoError(t, err)
	assert.NotEmpty(t, problems)

	problems, err = sr.Validate("threshold", map[string]any{"value": 3})
	require.NoError(t, err)
	assert.Empty(t, problems)

	_, err = sr.Validate("missing", nil)
	assert.Error(t, err)
	assert.Error(t, sr.RegisterSchema("broken", "#T: {", ""))
	assert.Error(t, sr.RegisterSchema("nodef", "x: 1", "#T"))
}
