package policy

import (
	"fmt"

	"github.com/trackforge/trackforge/pkg/config"
	"github.com/trackforge/trackforge/pkg/engine"
)

// NewInput plans proto and describes it for policy evaluation.
func NewInput(proto *config.Protocol) (*Input, error) {
	plan, err := proto.Plan()
	if err != nil {
		return nil, err
	}

	in := &Input{
		Protocol:    proto.Name,
		Source:      proto.Source,
		Parallelism: proto.Parallelism,
		Variables:   proto.Variables,
		Steps:       make([]StepInput, 0, len(plan)),
	}
	if in.Variables == nil {
		in.Variables = map[string]float64{}
	}

	for _, ps := range plan {
		sources, _ := ps.Params.Strings(engine.ParamSourceData)
		if sources == nil {
			sources = []string{}
		}
		params := make(map[string]any, len(ps.Params))
		for k, v := range ps.Params {
			// conditions are not JSON documents
			if s, ok := v.(fmt.Stringer); ok {
				v = s.String()
			}
			params[k] = v
		}
		in.Steps = append(in.Steps, StepInput{
			Step:      ps.Index + 1,
			Line:      ps.Step.Line,
			Operation: ps.Transform.Name(),
			Combine:   ps.Transform.IsCombine(),
			Sources:   sources,
			Target:    ps.Params.StringOr(engine.ParamTargetData, ""),
			Params:    params,
		})
	}
	return in, nil
}
