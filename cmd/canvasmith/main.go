package main

import (
	"fmt"
	"os"
	"strings"
)

func main() {
	args := stripConfigFlag(os.Args[1:])
	if len(args) == 0 {
		showUsage()
		os.Exit(1)
	}

	var err error
	switch args[0] {
	case "--help", "-h", "help":
		showUsage()
		return
	case "replay":
		err = runReplay(args[1:])
	case "history":
		err = runHistory(args[1:])
	case "doctor":
		err = runDoctor()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'canvasmith --help' for usage information.\n", args[0])
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", args[0], err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`canvasmith - action execution engine for AI-generated projects

USAGE:
    canvasmith COMMAND [FLAGS] [ARGS]

COMMANDS:
    replay FILE...   Drive one engine per JSONL directive file and print
                     the final action states as JSON
    history          List persisted action history
                     Flags: --session ID, --status STATUS, --limit N
    doctor           Run health checks on your setup
    help             Show this help message

FLAGS:
    --config PATH    Config file path (default: ./canvasmith.yaml)

CONFIGURATION:
    Config file: ./canvasmith.yaml (missing file means defaults)
    Environment: CANVASMITH_* variables override config

DIRECTIVES (one JSON object per line):
    {"op":"register","id":"a1","kind":"file","target":"index.html"}
    {"op":"append","id":"a1","content":"<h1>Hi"}
    {"op":"run","id":"a1","streaming":true}
    {"op":"seal","id":"a1"}
    {"op":"run","id":"a1"}
    {"op":"abort","id":"a1"}
    {"op":"deploy","stage":"building","status":"running"}

EXAMPLES:
    canvasmith replay session.jsonl
    canvasmith --config ./dev.yaml replay a.jsonl b.jsonl
    canvasmith history --session a --limit 20`)
}

// configPath returns the --config flag value, $CANVASMITH_CONFIG, or the default.
func configPath() string {
	for i, arg := range os.Args {
		if arg == "--config" && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	if p := os.Getenv("CANVASMITH_CONFIG"); p != "" {
		return p
	}
	return "canvasmith.yaml"
}

// stripConfigFlag removes --config and its value from args.
func stripConfigFlag(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--config":
			i++
		case strings.HasPrefix(args[i], "--config="):
		default:
			out = append(out, args[i])
		}
	}
	return out
}
