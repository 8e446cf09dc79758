package api

import (
	"os"
	"path/filepath"
	"regexp"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Command lines arrive from the calling execution framework with symbolic
// placeholders for environment variables and file paths. These match the
// framework's <ENV:NAME> and <FILE:NAME> syntax.
var (
	envRegex  = regexp.MustCompile(`<ENV:([^>]+)>`)
	fileRegex = regexp.MustCompile(`<FILE:([^>]+)>`)
)

// Job is a single unit of pipeline work to be routed onto an executor.
type Job struct {
	// Unique id assigned by the calling framework.
	Id string
	// Human-readable name, unique within a workflow.
	Name string
	// Label groups jobs of the same kind; used for log directory layout.
	Label string
	// Command to execute on a worker, possibly containing <ENV:X> and
	// <FILE:X> placeholders.
	Command string
	// Paths for the job's stdout and stderr on the shared filesystem.
	Stdout string
	Stderr string
	// Resource request for this job, immutable once submitted.
	Resources ResourceSpec
}

// NewJob creates a job with stdout/stderr paths laid out under the workflow
// submit directory, grouped by job label. Frameworks that track no ids of
// their own can pass an empty id and get a generated one.
func NewJob(id string, name string, label string, command string, submitPath string, resources ResourceSpec) *Job {
	if id == "" {
		id = uuid.NewString()
	}
	base := filepath.Join(submitPath, "logs", label, name)
	return &Job{
		Id:        id,
		Name:      name,
		Label:     label,
		Command:   command,
		Stdout:    base + ".stdout",
		Stderr:    base + ".stderr",
		Resources: resources,
	}
}

// EvaluateCommand resolves the symbolic placeholders in the job command into a
// concrete command line that can run on a worker. Environment placeholders
// become shell variable references; file placeholders are replaced by the
// paths supplied by the calling framework. Actual values may themselves
// contain placeholders, so substitution iterates until a fixed point.
func (j *Job) EvaluateCommand(filePaths map[string]string) (string, error) {
	command := j.Command
	for {
		previous := command
		command = envRegex.ReplaceAllString(command, `${$1}`)
		var missing string
		command = fileRegex.ReplaceAllStringFunc(command, func(match string) string {
			name := fileRegex.FindStringSubmatch(match)[1]
			path, ok := filePaths[name]
			if !ok {
				missing = name
				return match
			}
			return path
		})
		if missing != "" {
			return "", errors.Errorf("no path known for file %q in command for job %s", missing, j.Name)
		}
		if command == previous {
			return command, nil
		}
	}
}

// EnsureLogDirs creates the directories holding the job's stdout and stderr.
func (j *Job) EnsureLogDirs() error {
	for _, path := range []string{j.Stdout, j.Stderr} {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}
