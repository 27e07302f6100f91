package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/sync/errgroup"

	"canvasmith/internal/domain"
	"canvasmith/internal/usecase/runner"
)

const directiveSchema = `{
	"type": "object",
	"required": ["op"],
	"additionalProperties": false,
	"properties": {
		"op":        {"enum": ["register", "append", "seal", "run", "abort", "deploy"]},
		"id":        {"type": "string", "minLength": 1},
		"kind":      {"type": "string"},
		"target":    {"type": "string"},
		"operation": {"enum": ["migration", "query"]},
		"content":   {"type": "string"},
		"streaming": {"type": "boolean"},
		"stage":     {"enum": ["building", "deploying", "complete"]},
		"status":    {"enum": ["pending", "running", "complete", "failed"]},
		"url":       {"type": "string"}
	},
	"allOf": [
		{"if": {"properties": {"op": {"const": "register"}}}, "then": {"required": ["id", "kind"]}},
		{"if": {"properties": {"op": {"enum": ["append", "seal", "run", "abort"]}}}, "then": {"required": ["id"]}},
		{"if": {"properties": {"op": {"const": "append"}}}, "then": {"required": ["content"]}},
		{"if": {"properties": {"op": {"const": "deploy"}}}, "then": {"required": ["stage", "status"]}}
	]
}`

// directive is one line of a replay stream, standing in for what the
// upstream action parser would call on the engine.
type directive struct {
	Op        string `json:"op"`
	ID        string `json:"id,omitempty"`
	Kind      string `json:"kind,omitempty"`
	Target    string `json:"target,omitempty"`
	Operation string `json:"operation,omitempty"`
	Content   string `json:"content,omitempty"`
	Streaming bool   `json:"streaming,omitempty"`
	Stage     string `json:"stage,omitempty"`
	Status    string `json:"status,omitempty"`
	URL       string `json:"url,omitempty"`
}

// replayResult is the JSON document printed per input file.
type replayResult struct {
	SessionID string               `json:"session_id"`
	Source    string               `json:"source"`
	Actions   []domain.ActionState `json:"actions"`
	Deploys   []domain.DeployAlert `json:"deploys,omitempty"`
	Errors    []string             `json:"errors,omitempty"`
}

func compileDirectiveSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("directive.json", strings.NewReader(directiveSchema)); err != nil {
		return nil, fmt.Errorf("add directive schema: %w", err)
	}
	return compiler.Compile("directive.json")
}

// parseDirectives reads a JSONL stream, skipping blank lines and # comments.
func parseDirectives(r io.Reader, schema *jsonschema.Schema) ([]directive, error) {
	var out []directive
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var raw any
		if err := json.Unmarshal([]byte(text), &raw); err != nil {
			return nil, fmt.Errorf("line %d: invalid JSON: %w", line, err)
		}
		if err := schema.Validate(raw); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		var d directive
		if err := json.Unmarshal([]byte(text), &d); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, d)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read directives: %w", err)
	}
	return out, nil
}

func runReplay(args []string) error {
	if len(args) == 0 {
		return errors.New("at least one directive file is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	schema, err := compileDirectiveSchema()
	if err != nil {
		return err
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	results := make([]replayResult, len(args))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range args {
		g.Go(func() error {
			res, err := a.replayFile(gctx, path, schema)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			results[i] = *res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

// replayFile drives one engine through the directives in path. The session
// ID is the file name without extension.
func (a *app) replayFile(ctx context.Context, path string, schema *jsonschema.Schema) (*replayResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	directives, err := parseDirectives(f, schema)
	if err != nil {
		return nil, err
	}

	sessionID := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	e, err := a.newEngine(sessionID)
	if err != nil {
		return nil, err
	}
	defer e.close()

	res, err := replay(ctx, e.runner, directives)
	if err != nil {
		return nil, err
	}
	res.Source = path
	a.logger.Info("replay finished", "session_id", sessionID, "actions", len(res.Actions), "errors", len(res.Errors))
	return res, nil
}

// replay applies directives in order. Runs are requested asynchronously,
// as a streaming parser would, and awaited at the end. Directive-level
// problems are collected rather than aborting the stream.
func replay(ctx context.Context, r *runner.Runner, directives []directive) (*replayResult, error) {
	res := &replayResult{SessionID: r.SessionID()}
	actions := make(map[string]*domain.Action)
	var pending []<-chan error

	note := func(i int, err error) {
		res.Errors = append(res.Errors, fmt.Sprintf("directive %d (%s): %v", i+1, directives[i].Op, err))
	}

	for i, d := range directives {
		switch d.Op {
		case "register":
			a := &domain.Action{
				ID:        d.ID,
				Kind:      domain.ActionKind(d.Kind),
				Target:    d.Target,
				Operation: domain.DatabaseOperation(d.Operation),
				Payload:   domain.NewPayload(d.Content),
			}
			if _, err := r.Register(a); err != nil {
				note(i, err)
				continue
			}
			if _, ok := actions[d.ID]; !ok {
				actions[d.ID] = a
			}
		case "append":
			a, ok := actions[d.ID]
			if !ok {
				note(i, domain.NewSubSystemError("action", "replay", domain.ErrNotFound, d.ID))
				continue
			}
			if err := a.Payload.Append(d.Content); err != nil {
				note(i, err)
			}
		case "seal":
			a, ok := actions[d.ID]
			if !ok {
				note(i, domain.NewSubSystemError("action", "replay", domain.ErrNotFound, d.ID))
				continue
			}
			a.Payload.Seal()
		case "run":
			pending = append(pending, r.RunAsync(ctx, d.ID, d.Streaming))
		case "abort":
			if err := r.Abort(d.ID); err != nil {
				note(i, err)
			}
		case "deploy":
			res.Deploys = append(res.Deploys, r.ReportDeploy(
				domain.DeployStage(d.Stage), domain.StageStatus(d.Status), runner.DeployDetails{URL: d.URL},
			))
		}
	}

	for _, ch := range pending {
		select {
		case err := <-ch:
			if err != nil && !errors.Is(err, context.Canceled) {
				res.Errors = append(res.Errors, err.Error())
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	res.Actions = r.Snapshot()
	return res, nil
}
