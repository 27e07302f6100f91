package runner

import (
	"fmt"

	"canvasmith/internal/domain"
)

// Notifier holds the optional observer callbacks an engine reports side
// effects through. A nil Notifier or nil callback drops the event.
type Notifier struct {
	OnAlert         func(domain.Alert)
	OnDatabaseAlert func(domain.DatabaseAlert)
	OnDeployAlert   func(domain.DeployAlert)
}

func (n *Notifier) alert(a domain.Alert) {
	if n != nil && n.OnAlert != nil {
		n.OnAlert(a)
	}
}

func (n *Notifier) databaseAlert(a domain.DatabaseAlert) {
	if n != nil && n.OnDatabaseAlert != nil {
		n.OnDatabaseAlert(a)
	}
}

func (n *Notifier) deployAlert(a domain.DeployAlert) {
	if n != nil && n.OnDeployAlert != nil {
		n.OnDeployAlert(a)
	}
}

// DeployDetails are optional fields carried on a deploy alert.
type DeployDetails struct {
	URL    string
	Source string
}

// ProjectDeploy derives a display-ready deploy alert from a pipeline stage
// and its status. Stages before the reported one are complete and stages
// after it are pending.
func ProjectDeploy(stage domain.DeployStage, status domain.StageStatus, d DeployDetails) domain.DeployAlert {
	a := domain.DeployAlert{
		Stage:  stage,
		URL:    d.URL,
		Source: d.Source,
		Level:  deployLevel(status),
	}

	switch stage {
	case domain.StageBuilding:
		a.BuildStatus = status
		a.DeployStatus = domain.StagePending
		a.Title, a.Description = stageText(status,
			"Building Application", "Building your application...",
			"Build Completed", "Your application was built successfully.",
			"Build Failed", "The build did not complete.")
	case domain.StageDeploying:
		a.BuildStatus = domain.StageComplete
		a.DeployStatus = status
		a.Title, a.Description = stageText(status,
			"Deploying Application", "Deploying your application...",
			"Deployment Completed", "Your application was deployed.",
			"Deployment Failed", "The deployment did not complete.")
	case domain.StageDone:
		a.BuildStatus = domain.StageComplete
		a.DeployStatus = domain.StageComplete
		a.Level = domain.AlertSuccess
		a.Title = "Deployment Successful"
		a.Description = "Your application is live."
		if d.URL != "" {
			a.Description = fmt.Sprintf("Your application is live at %s", d.URL)
		}
	default:
		a.BuildStatus = domain.StagePending
		a.DeployStatus = domain.StagePending
		a.Title = "Deployment"
		a.Description = fmt.Sprintf("Deployment stage %q is %s.", stage, status)
	}
	return a
}

func deployLevel(status domain.StageStatus) domain.AlertLevel {
	switch status {
	case domain.StageFailed:
		return domain.AlertError
	case domain.StageComplete:
		return domain.AlertSuccess
	default:
		return domain.AlertInfo
	}
}

func stageText(status domain.StageStatus, runTitle, runDesc, doneTitle, doneDesc, failTitle, failDesc string) (string, string) {
	switch status {
	case domain.StageComplete:
		return doneTitle, doneDesc
	case domain.StageFailed:
		return failTitle, failDesc
	default:
		return runTitle, runDesc
	}
}
