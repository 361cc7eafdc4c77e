package pipeline

import (
	"promptsupport/internal/adjust"
	"promptsupport/internal/analyze"
	"promptsupport/internal/config"
	"promptsupport/internal/generate"
	"promptsupport/internal/oracle"
	"promptsupport/internal/outline"
	"promptsupport/internal/prewrite"
	"promptsupport/internal/publish"
	"promptsupport/internal/qa"
	"promptsupport/internal/store"
	"promptsupport/internal/validate"
	"promptsupport/internal/version"
)

// Build assembles a pipeline with the standard stage implementations on top
// of the given store and oracle chain.
func Build(st *store.Store, chain *oracle.Chain, cfg *config.Config) (*Pipeline, error) {
	versioner, err := version.New(st)
	if err != nil {
		return nil, err
	}
	planner := outline.NewPlanner(chain)
	return NewPipeline(
		st,
		analyze.New(chain, cfg.Pipeline),
		planner,
		planner,
		prewrite.NewExtractor(chain),
		generate.NewGenerator(chain),
		validate.New(chain, cfg.Quality),
		qa.New(cfg.QA),
		adjust.New(cfg.Adjuster),
		versioner,
		publish.New(st),
		cfg.Pipeline.Workers,
	), nil
}
