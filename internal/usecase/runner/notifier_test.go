package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"canvasmith/internal/domain"
)

func TestProjectDeploy(t *testing.T) {
	tests := []struct {
		stage      domain.DeployStage
		status     domain.StageStatus
		wantTitle  string
		wantLevel  domain.AlertLevel
		wantBuild  domain.StageStatus
		wantDeploy domain.StageStatus
	}{
		{domain.StageBuilding, domain.StageRunning, "Building Application", domain.AlertInfo, domain.StageRunning, domain.StagePending},
		{domain.StageBuilding, domain.StageComplete, "Build Completed", domain.AlertSuccess, domain.StageComplete, domain.StagePending},
		{domain.StageBuilding, domain.StageFailed, "Build Failed", domain.AlertError, domain.StageFailed, domain.StagePending},
		{domain.StageDeploying, domain.StagePending, "Deploying Application", domain.AlertInfo, domain.StageComplete, domain.StagePending},
		{domain.StageDeploying, domain.StageRunning, "Deploying Application", domain.AlertInfo, domain.StageComplete, domain.StageRunning},
		{domain.StageDeploying, domain.StageComplete, "Deployment Completed", domain.AlertSuccess, domain.StageComplete, domain.StageComplete},
		{domain.StageDeploying, domain.StageFailed, "Deployment Failed", domain.AlertError, domain.StageComplete, domain.StageFailed},
		{domain.StageDone, domain.StageComplete, "Deployment Successful", domain.AlertSuccess, domain.StageComplete, domain.StageComplete},
	}
	for _, tt := range tests {
		t.Run(string(tt.stage)+"/"+string(tt.status), func(t *testing.T) {
			a := ProjectDeploy(tt.stage, tt.status, DeployDetails{Source: "vercel"})
			assert.Equal(t, tt.wantTitle, a.Title)
			assert.Equal(t, tt.wantLevel, a.Level)
			assert.Equal(t, tt.wantBuild, a.BuildStatus)
			assert.Equal(t, tt.wantDeploy, a.DeployStatus)
			assert.Equal(t, tt.stage, a.Stage)
			assert.Equal(t, "vercel", a.Source)
			assert.NotEmpty(t, a.Description)
		})
	}
}

func TestProjectDeploy_CompleteCarriesURL(t *testing.T) {
	a := ProjectDeploy(domain.StageDone, domain.StageComplete, DeployDetails{URL: "https://app.example.com"})
	assert.Equal(t, "https://app.example.com", a.URL)
	assert.Contains(t, a.Description, "https://app.example.com")
}

func TestNotifier_NilSafe(t *testing.T) {
	var n *Notifier
	assert.NotPanics(t, func() {
		n.alert(domain.Alert{})
		n.databaseAlert(domain.DatabaseAlert{})
		n.deployAlert(domain.DeployAlert{})
	})

	partial := &Notifier{}
	assert.NotPanics(t, func() { partial.alert(domain.Alert{}) })
}
