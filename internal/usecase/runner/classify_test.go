package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyCommandFailure_Rules(t *testing.T) {
	tests := []struct {
		name        string
		command     string
		output      string
		wantTitle   string
		wantDetails string
	}{
		{
			name:        "remove missing file",
			command:     "rm missing.txt",
			output:      "rm: cannot remove 'missing.txt': No such file or directory",
			wantTitle:   "File Not Found",
			wantDetails: "'missing.txt'",
		},
		{
			name:        "cd into missing directory",
			command:     "cd missing_dir && npm install",
			output:      "sh: 1: cd: can't cd to missing_dir: No such file or directory",
			wantTitle:   "Directory Not Found",
			wantDetails: "mkdir -p missing_dir",
		},
		{
			name:        "missing file",
			command:     "cat notes.md",
			output:      "cat: notes.md: No such file or directory",
			wantTitle:   "File or Directory Not Found",
			wantDetails: "does not exist",
		},
		{
			name:        "permission denied",
			command:     "./deploy.sh",
			output:      "sh: ./deploy.sh: Permission denied",
			wantTitle:   "Permission Denied",
			wantDetails: "chmod",
		},
		{
			name:        "command not found",
			command:     "pnpm dev",
			output:      "sh: 1: pnpm: command not found",
			wantTitle:   "Command Not Found",
			wantDetails: "'pnpm'",
		},
		{
			name:        "is a directory",
			command:     "cat src",
			output:      "cat: src: Is a directory",
			wantTitle:   "Is a Directory",
			wantDetails: "-r",
		},
		{
			name:        "file exists",
			command:     "mkdir src",
			output:      "mkdir: cannot create directory 'src': File exists",
			wantTitle:   "File Already Exists",
			wantDetails: "mkdir -p",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := ClassifyCommandFailure(tt.command, 1, tt.output)
			assert.Equal(t, tt.wantTitle, d.Title)
			assert.Contains(t, d.Details, tt.wantDetails)
		})
	}
}

func TestClassifyCommandFailure_CdOnly(t *testing.T) {
	d := ClassifyCommandFailure("cd missing_dir", 1, "No such file or directory")
	assert.Equal(t, "Directory Not Found", d.Title)
	assert.Contains(t, d.Details, "mkdir -p missing_dir")
}

func TestClassifyCommandFailure_CdWithTab(t *testing.T) {
	d := ClassifyCommandFailure("cd\tmissing_dir", 1, "No such file or directory")
	assert.Equal(t, "Directory Not Found", d.Title)
	assert.Contains(t, d.Details, "mkdir -p missing_dir")
}

func TestClassifyCommandFailure_FirstMatchWins(t *testing.T) {
	// Both the remove rule and the generic missing-file rule match.
	d := ClassifyCommandFailure("cd app && rm a.txt", 1, "rm: cannot remove 'a.txt': No such file or directory")
	assert.Equal(t, "File Not Found", d.Title)
}

func TestClassifyCommandFailure_Fallback(t *testing.T) {
	tests := []struct {
		command  string
		wantHint string
	}{
		{"npm run build", "npm install"},
		{"git push origin main", "remote"},
		{"ls dist", "file paths"},
		{"make", ""},
	}
	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			d := ClassifyCommandFailure(tt.command, 2, "something went wrong")
			assert.Equal(t, "Command Failed", d.Title)
			assert.Contains(t, d.Details, "exit code 2")
			assert.Contains(t, d.Details, "something went wrong")
			if tt.wantHint != "" {
				assert.Contains(t, d.Details, tt.wantHint)
			}
		})
	}
}

func TestClassifyCommandFailure_EmptyOutput(t *testing.T) {
	d := ClassifyCommandFailure("false", 1, "")
	assert.Equal(t, "Command Failed", d.Title)
	assert.Equal(t, "Command failed with exit code 1.", d.Details)
}
