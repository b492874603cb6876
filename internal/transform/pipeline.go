package transform

import (
	"context"
	"fmt"
)

// Stage names accepted by the pipeline runner.
const (
	StageImport    = "import"
	StageNormalize = "normalize"
	StageDerive    = "derive"
)

// AllStages is the full pipeline in execution order.
var AllStages = []string{StageImport, StageNormalize, StageDerive}

// Pipeline runs the transform stages in order for one market date.
type Pipeline struct {
	importer   *Importer
	normalizer *Normalizer
	deriver    *Deriver
}

// NewPipeline assembles the three stages.
func NewPipeline(importer *Importer, normalizer *Normalizer, deriver *Deriver) *Pipeline {
	return &Pipeline{importer: importer, normalizer: normalizer, deriver: deriver}
}

// Run executes the requested stages for marketDate, stopping at the
// first failure. An empty stage list runs the whole pipeline.
func (p *Pipeline) Run(ctx context.Context, marketDate string, stages ...string) error {
	if len(stages) == 0 {
		stages = AllStages
	}
	for _, stage := range stages {
		var err error
		switch stage {
		case StageImport:
			err = p.importer.Run(ctx, marketDate)
		case StageNormalize:
			err = p.normalizer.Run(ctx, marketDate)
		case StageDerive:
			err = p.deriver.Run(ctx, marketDate)
		default:
			return fmt.Errorf("unknown pipeline stage %q", stage)
		}
		if err != nil {
			return fmt.Errorf("stage %s for %s: %w", stage, marketDate, err)
		}
	}
	return nil
}
