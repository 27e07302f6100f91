package runner

import (
	"context"
	"fmt"

	"canvasmith/internal/domain"
)

// DatabaseExecutor handles database-operation actions. It never runs SQL:
// migrations are written as files and queries are handed to whoever
// consumes the database alert.
type DatabaseExecutor struct {
	files    *FileExecutor
	notifier *Notifier
	source   string
}

// NewDatabaseExecutor creates a database executor. Migration files are
// written through files; source labels the alerts.
func NewDatabaseExecutor(files *FileExecutor, n *Notifier, source string) *DatabaseExecutor {
	if files == nil {
		files = NewFileExecutor(nil, nil)
	}
	return &DatabaseExecutor{files: files, notifier: n, source: source}
}

func (e *DatabaseExecutor) Execute(ctx context.Context, call Call) (Outcome, error) {
	a := call.Action
	switch a.Operation {
	case domain.DatabaseMigration:
		if a.Target == "" {
			return Outcome{}, domain.NewSubSystemError("action", "DatabaseExecutor.Execute", domain.ErrInvalidInput, "migration requires a target path")
		}
		e.notifier.databaseAlert(domain.DatabaseAlert{
			Level:       domain.AlertInfo,
			Title:       "Database Migration",
			Description: fmt.Sprintf("Create migration file: %s", a.Target),
			Content:     call.Content,
			Source:      e.source,
			Operation:   domain.DatabaseMigration,
			ActionID:    a.ID,
		})
		applied, err := e.files.write(ctx, a.Target, call.Content)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Output: fmt.Sprintf("migration written to %s", applied.Path)}, nil

	case domain.DatabaseQuery:
		e.notifier.databaseAlert(domain.DatabaseAlert{
			Level:       domain.AlertInfo,
			Title:       "Database Query",
			Description: "Review and run this query",
			Content:     call.Content,
			Source:      e.source,
			Operation:   domain.DatabaseQuery,
			ActionID:    a.ID,
		})
		return Outcome{Deferred: true, Output: "query awaiting confirmation"}, nil

	default:
		return Outcome{}, domain.NewSubSystemError("action", "DatabaseExecutor.Execute", domain.ErrInvalidInput,
			fmt.Sprintf("unsupported database operation %q", a.Operation))
	}
}
