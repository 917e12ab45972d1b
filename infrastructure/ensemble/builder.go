package ensemble

import (
	"github.com/isectech/hospital-threat-engine/domain/entity"
)

// BuildParams are the ensemble parameters handed to a TreeBuilder
type BuildParams struct {
	MaxDepth       int
	MinLeafSamples int
}

// TreeBuilder produces one ensemble rule from the training samples.
// index is the position of the rule in the ensemble, so a randomized
// builder can derive a per-tree seed from it.
type TreeBuilder interface {
	Build(samples []entity.TrainingSample, index int, params BuildParams) entity.DecisionRule
}

// FixedPolicyBuilder emits the fixed decision list for every tree. It is
// pure, so retraining is deterministic and every ensemble is unanimous.
type FixedPolicyBuilder struct{}

// Build implements TreeBuilder
func (FixedPolicyBuilder) Build(_ []entity.TrainingSample, _ int, _ BuildParams) entity.DecisionRule {
	return entity.FixedPolicyRule()
}

// TreeBuilderFunc adapts a plain function to TreeBuilder
type TreeBuilderFunc func(samples []entity.TrainingSample, index int, params BuildParams) entity.DecisionRule

// Build implements TreeBuilder
func (fn TreeBuilderFunc) Build(samples []entity.TrainingSample, index int, params BuildParams) entity.DecisionRule {
	return fn(samples, index, params)
}

// Train builds a fresh model of model.TreeCount rules from samples.
// The input model only supplies parameters.
func Train(builder TreeBuilder, params entity.Model, samples []entity.TrainingSample) entity.Model {
	if builder == nil {
		builder = FixedPolicyBuilder{}
	}

	out := entity.NewModel(params.TreeCount, params.MaxDepth, params.MinLeafSamples)
	out.Trees = make([]entity.DecisionRule, 0, params.TreeCount)

	bp := BuildParams{MaxDepth: params.MaxDepth, MinLeafSamples: params.MinLeafSamples}
	for i := 0; i < params.TreeCount; i++ {
		out.Trees = append(out.Trees, builder.Build(samples, i, bp))
	}
	return out
}
