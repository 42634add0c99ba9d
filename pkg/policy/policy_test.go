package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/trackforge/trackforge/pkg/config"
)

const protocolSource = `name: checks
parallelism: 128
defaults: {sequenceCollection: genome}
steps:
  - operation: arithmetic
    params: {sourceData: signal, targetData: signal, method: multiply, argument: 2}
  - operation: arithmetic
    params: {sourceData: signal, targetData: "9bad", method: increase, argument: 1}
  - operation: combine_numeric
    params: {sourceData: [signal, other], targetData: total, method: sum}
`

func testInput(t *testing.T, src string) *Input {
	t.Helper()
	proto, err := config.NewParser().Parse(context.Background(), "p.yaml", config.FormatYAML, []byte(src))
	if err != nil {
		t.Fatalf("Failed to parse protocol: %v", err)
	}
	in, err := NewInput(proto)
	if err != nil {
		t.Fatalf("Failed to build input: %v", err)
	}
	return in
}

func testEngine(t *testing.T) *Engine {
	t.Helper()
	eng, err := NewEngine(context.Background(), zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	return eng
}

func TestNewInput(t *testing.T) {
	in := testInput(t, protocolSource)

	if in.Protocol != "checks" || in.Parallelism != 128 {
		t.Errorf("unexpected protocol header: %+v", in)
	}
	if len(in.Steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(in.Steps))
	}
	if in.Steps[0].Line != 5 || in.Steps[2].Line != 9 {
		t.Errorf("unexpected step lines: %d, %d", in.Steps[0].Line, in.Steps[2].Line)
	}
	if !in.Steps[2].Combine || len(in.Steps[2].Sources) != 2 {
		t.Errorf("combine step not described: %+v", in.Steps[2])
	}
	if in.Steps[1].Target != "9bad" {
		t.Errorf("expected target 9bad, got %q", in.Steps[1].Target)
	}
}

func TestBuiltinPolicies(t *testing.T) {
	eng := testEngine(t)

	names := make(map[string]bool)
	for _, p := range eng.ListPolicies() {
		names[p.Name] = true
	}
	for _, expected := range []string{"target-naming", "target-overwrite", "parallelism-limit"} {
		if !names[expected] {
			t.Errorf("Expected built-in policy not found: %s", expected)
		}
	}

	res, err := eng.Evaluate(context.Background(), testInput(t, protocolSource))
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if res.Allowed {
		t.Error("expected the invalid target to block")
	}

	byPolicy := make(map[string]Violation)
	for _, v := range res.Violations {
		byPolicy[v.Policy] = v
	}
	if len(byPolicy) != 3 {
		t.Fatalf("expected violations from 3 policies, got %+v", res.Violations)
	}
	if v := byPolicy["target-naming"]; v.Step != 2 || v.Line != 7 || v.Severity != SeverityError {
		t.Errorf("unexpected naming violation: %+v", v)
	}
	if v := byPolicy["target-overwrite"]; v.Step != 1 || v.Severity != SeverityWarning {
		t.Errorf("unexpected overwrite violation: %+v", v)
	}
	if v := byPolicy["parallelism-limit"]; v.Step != 0 || v.Message == "" {
		t.Errorf("unexpected parallelism violation: %+v", v)
	}
}

func TestCleanProtocolIsAllowed(t *testing.T) {
	eng := testEngine(t)
	in := testInput(t, `name: clean
steps:
  - operation: arithmetic
    params: {sourceData: signal, targetData: scaled, sequenceCollection: genome, method: multiply, argument: 2}
`)

	res, err := eng.Evaluate(context.Background(), in)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !res.Allowed || len(res.Violations) != 0 {
		t.Errorf("expected no violations, got %+v", res.Violations)
	}
	if len(res.EvaluatedPolicies) != 3 {
		t.Errorf("expected 3 evaluated policies, got %v", res.EvaluatedPolicies)
	}
}

func TestDisablePolicy(t *testing.T) {
	eng := testEngine(t)
	if err := eng.DisablePolicy("target-naming"); err != nil {
		t.Fatalf("DisablePolicy failed: %v", err)
	}
	if err := eng.DisablePolicy("missing"); err == nil {
		t.Error("expected an error for an unknown policy")
	}

	res, err := eng.Evaluate(context.Background(), testInput(t, protocolSource))
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !res.Allowed {
		t.Errorf("warnings alone must not block: %+v", res.Violations)
	}

	if err := eng.EnablePolicy("target-naming"); err != nil {
		t.Fatalf("EnablePolicy failed: %v", err)
	}
	p, err := eng.Policy("target-naming")
	if err != nil || !p.Enabled {
		t.Errorf("expected target-naming enabled, got %+v, %v", p, err)
	}
}

func TestLoadPolicies(t *testing.T) {
	dir := t.TempDir()
	custom := `# Regions may only be merged within 1kb.
# severity: error
package site.merge

import rego.v1

deny contains msg if {
	some step in input.steps
	step.operation == "merge_regions"
	step.params.maxDistance > 1000
	msg := sprintf("step %d merges across %v bases", [step.step, step.params.maxDistance])
}
`
	if err := os.WriteFile(filepath.Join(dir, "merge-distance.rego"), []byte(custom), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.rego"), []byte("package"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}

	policies, err := NewLoader(zerolog.Nop()).LoadFromPaths(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("LoadFromPaths failed: %v", err)
	}
	if len(policies) != 2 {
		t.Fatalf("expected 2 policy files, got %d", len(policies))
	}

	eng := testEngine(t)
	if err := eng.LoadPolicies(context.Background(), []string{filepath.Join(dir, "broken.rego")}); err == nil {
		t.Error("expected a compile error for broken.rego")
	}
	if err := eng.LoadPolicies(context.Background(), []string{filepath.Join(dir, "merge-distance.rego")}); err != nil {
		t.Fatalf("LoadPolicies failed: %v", err)
	}

	p, err := eng.Policy("merge-distance")
	if err != nil {
		t.Fatalf("Policy failed: %v", err)
	}
	if p.Severity != SeverityError || p.Description != "Regions may only be merged within 1kb." {
		t.Errorf("unexpected header parse: %+v", p)
	}

	in := testInput(t, `name: merge
steps:
  - operation: merge_regions
    params: {sourceData: peaks, targetData: merged, sequenceCollection: genome, maxDistance: 5000}
`)
	res, err := eng.Evaluate(context.Background(), in)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if res.Allowed || len(res.Violations) != 1 || res.Violations[0].Policy != "merge-distance" {
		t.Errorf("expected one blocking merge-distance violation, got %+v", res.Violations)
	}

	if _, err := NewLoader(zerolog.Nop()).LoadFromPaths(context.Background(), []string{filepath.Join(dir, "missing")}); err == nil {
		t.Error("expected an error for a missing path")
	}
}
