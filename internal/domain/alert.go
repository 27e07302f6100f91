package domain

// AlertLevel is the severity of an alert shown to the user.
type AlertLevel string

const (
	AlertInfo    AlertLevel = "info"
	AlertSuccess AlertLevel = "success"
	AlertWarning AlertLevel = "warning"
	AlertError   AlertLevel = "error"
)

// Alert is a generic diagnostic or informational status event.
type Alert struct {
	Level       AlertLevel `json:"level"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Content     string     `json:"content,omitempty"`
	Source      string     `json:"source,omitempty"` // "terminal", "preview"
	ActionID    string     `json:"action_id,omitempty"`
}

// DatabaseAlert carries a migration or query for an external consumer to act on.
// The engine never executes the query itself.
type DatabaseAlert struct {
	Level       AlertLevel        `json:"level"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Content     string            `json:"content"`
	Source      string            `json:"source"`
	Operation   DatabaseOperation `json:"operation"`
	ActionID    string            `json:"action_id,omitempty"`
}

// DeployStage is a phase of the external deployment pipeline.
type DeployStage string

const (
	StageBuilding  DeployStage = "building"
	StageDeploying DeployStage = "deploying"
	StageDone      DeployStage = "complete"
)

// StageStatus is the progress of a deploy stage.
type StageStatus string

const (
	StagePending  StageStatus = "pending"
	StageRunning  StageStatus = "running"
	StageComplete StageStatus = "complete"
	StageFailed   StageStatus = "failed"
)

// DeployAlert is a projection of the deployment pipeline's status.
type DeployAlert struct {
	Level        AlertLevel  `json:"level"`
	Title        string      `json:"title"`
	Description  string      `json:"description"`
	Stage        DeployStage `json:"stage"`
	BuildStatus  StageStatus `json:"build_status"`
	DeployStatus StageStatus `json:"deploy_status"`
	URL          string      `json:"url,omitempty"`
	Source       string      `json:"source"`
}
