package runner

import (
	"fmt"
	"regexp"
	"strings"
)

// Diagnosis is a human-readable explanation of a failed command.
type Diagnosis struct {
	Title   string
	Details string
}

type failureRule struct {
	pattern *regexp.Regexp
	title   string
	details func(command, output string, m []string) (title, details string)
}

// failureRules are tried in order against the command output; first match wins.
var failureRules = []failureRule{
	{
		pattern: regexp.MustCompile(`cannot remove '?([^':\n]*)'?: No such file or directory`),
		title:   "File Not Found",
		details: func(_, _ string, m []string) (string, string) {
			name := strings.TrimSpace(m[1])
			if name == "" {
				name = "the file"
			}
			return "", fmt.Sprintf("The file '%s' does not exist and cannot be removed.\n\n"+
				"Check the name with `ls`, or use `rm -f` to ignore missing files.", name)
		},
	},
	{
		pattern: regexp.MustCompile(`No such file or directory`),
		title:   "File or Directory Not Found",
		details: func(command, _ string, _ []string) (string, string) {
			if dir, ok := cdTarget(command); ok {
				return "Directory Not Found", fmt.Sprintf("The directory '%s' does not exist.\n\n"+
					"Create it first with `mkdir -p %s`.", dir, dir)
			}
			return "", "A file or directory referenced by the command does not exist.\n\n" +
				"Check the path and make sure earlier steps created it."
		},
	},
	{
		pattern: regexp.MustCompile(`Permission denied`),
		title:   "Permission Denied",
		details: func(command, _ string, _ []string) (string, string) {
			return "", fmt.Sprintf("The command was not allowed to access a file or run a program.\n\n"+
				"Check the file permissions, for example with `chmod +x` for scripts: %s", strings.TrimSpace(command))
		},
	},
	{
		pattern: regexp.MustCompile(`(?:([\w.\-/]+): )?command not found`),
		title:   "Command Not Found",
		details: func(command, _ string, m []string) (string, string) {
			name := m[1]
			if name == "" {
				name = firstWord(command)
			}
			return "", fmt.Sprintf("The command '%s' is not available in this environment.\n\n"+
				"Install it or check the spelling.", name)
		},
	},
	{
		pattern: regexp.MustCompile(`Is a directory`),
		title:   "Is a Directory",
		details: func(string, string, []string) (string, string) {
			return "", "The command expected a file but was given a directory.\n\n" +
				"Use a file path, or a recursive flag such as `-r` when working with directories."
		},
	},
	{
		pattern: regexp.MustCompile(`File exists`),
		title:   "File Already Exists",
		details: func(string, string, []string) (string, string) {
			return "", "The target already exists.\n\n" +
				"Remove it first, or use a flag such as `mkdir -p` that tolerates existing paths."
		},
	},
}

var cdPattern = regexp.MustCompile(`(?:^|[;&|]\s*)cd\s+([^\s;&|]+)`)

func cdTarget(command string) (string, bool) {
	m := cdPattern.FindStringSubmatch(command)
	if m == nil {
		return "", false
	}
	return strings.Trim(m[1], `'"`), true
}

func firstWord(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// ClassifyCommandFailure turns a non-zero exit into a diagnosis for display.
// It never influences execution.
func ClassifyCommandFailure(command string, exitCode int, output string) Diagnosis {
	for _, r := range failureRules {
		m := r.pattern.FindStringSubmatch(output)
		if m == nil {
			continue
		}
		title, details := r.details(command, output, m)
		if title == "" {
			title = r.title
		}
		return Diagnosis{Title: title, Details: details}
	}

	details := fmt.Sprintf("Command failed with exit code %d.", exitCode)
	if out := strings.TrimSpace(output); out != "" {
		details += "\n\nOutput:\n" + out
	}
	if hint := commandHint(strings.TrimSpace(command)); hint != "" {
		details += "\n\n" + hint
	}
	return Diagnosis{Title: "Command Failed", Details: details}
}

var fileCommandPattern = regexp.MustCompile(`^(ls|cat|rm|cp|mv)\b`)

func commandHint(command string) string {
	switch {
	case strings.HasPrefix(command, "npm "):
		return "Try running `npm install` first and check that package.json defines the script."
	case strings.HasPrefix(command, "git "):
		return "Make sure this is a git repository and the remote is configured."
	case fileCommandPattern.MatchString(command):
		return "Check that the file paths exist, for example with `ls`."
	default:
		return ""
	}
}
