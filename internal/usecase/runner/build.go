package runner

import (
	"context"
	"fmt"

	"canvasmith/internal/domain"
)

// StubBuilder reports a successful build without doing any work.
type StubBuilder struct{}

func (StubBuilder) Build(context.Context, domain.AbortSignal) (*domain.BuildResult, error) {
	return &domain.BuildResult{Path: "dist", ExitCode: 0, Output: "build skipped"}, nil
}

// BuildExecutor runs build actions and reports the building stage.
type BuildExecutor struct {
	builder  domain.Builder
	notifier *Notifier
	source   string
}

// NewBuildExecutor creates a build executor. source labels deploy alerts.
func NewBuildExecutor(b domain.Builder, n *Notifier, source string) *BuildExecutor {
	if b == nil {
		b = StubBuilder{}
	}
	return &BuildExecutor{builder: b, notifier: n, source: source}
}

func (e *BuildExecutor) Execute(ctx context.Context, call Call) (Outcome, error) {
	details := DeployDetails{Source: e.source}
	e.notifier.deployAlert(ProjectDeploy(domain.StageBuilding, domain.StageRunning, details))

	res, err := e.builder.Build(ctx, call.Abort)
	if err == nil && res != nil && res.ExitCode != 0 {
		err = fmt.Errorf("exit code %d: %s", res.ExitCode, res.Output)
	}
	if err != nil {
		if call.Abort.Aborted() {
			return Outcome{}, nil
		}
		e.notifier.deployAlert(ProjectDeploy(domain.StageBuilding, domain.StageFailed, details))
		return Outcome{}, fmt.Errorf("%w: %v", domain.ErrBuildFailed, err)
	}

	e.notifier.deployAlert(ProjectDeploy(domain.StageBuilding, domain.StageComplete, details))
	out := Outcome{}
	if res != nil {
		out.Output = res.Output
	}
	return out, nil
}
