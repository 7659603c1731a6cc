// File: cmd/goalfile.go
package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/autopilot/api/schemas"
)

// GoalSpec is one goal as written in a goal file or assembled from flags.
type GoalSpec struct {
	Name            string        `yaml:"name"`
	Task            string        `yaml:"task"`
	URL             string        `yaml:"url"`
	Constraints     []string      `yaml:"constraints"`
	SuccessCriteria []string      `yaml:"success_criteria"`
	Timeout         time.Duration `yaml:"timeout"`
}

// goalFile is the batch layout. A file holding a single bare GoalSpec is
// accepted as well.
type goalFile struct {
	Defaults struct {
		URL         string        `yaml:"url"`
		Timeout     time.Duration `yaml:"timeout"`
		Constraints []string      `yaml:"constraints"`
	} `yaml:"defaults"`
	Goals []GoalSpec `yaml:"goals"`
}

// LoadGoalFile reads and validates the goals in path.
func LoadGoalFile(path string) ([]GoalSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read goal file: %w", err)
	}
	specs, err := parseGoalFile(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return specs, nil
}

func parseGoalFile(data []byte) ([]GoalSpec, error) {
	var f goalFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse goal file: %w", err)
	}

	if len(f.Goals) == 0 {
		var single GoalSpec
		if err := yaml.Unmarshal(data, &single); err != nil {
			return nil, fmt.Errorf("failed to parse goal file: %w", err)
		}
		if strings.TrimSpace(single.Task) != "" {
			f.Goals = []GoalSpec{single}
		}
	}
	if len(f.Goals) == 0 {
		return nil, fmt.Errorf("goal file defines no goals")
	}

	for i := range f.Goals {
		g := &f.Goals[i]
		g.Task = strings.TrimSpace(g.Task)
		if g.Task == "" {
			return nil, fmt.Errorf("goal %d has no task", i+1)
		}
		if g.URL == "" {
			g.URL = f.Defaults.URL
		}
		if g.Timeout == 0 {
			g.Timeout = f.Defaults.Timeout
		}
		if g.Timeout < 0 {
			return nil, fmt.Errorf("goal %d has a negative timeout", i+1)
		}
		g.Constraints = append(append([]string{}, f.Defaults.Constraints...), g.Constraints...)
		if g.Name == "" {
			g.Name = fmt.Sprintf("goal-%d", i+1)
		}
	}
	return f.Goals, nil
}

// Goal converts the spec. defaultTimeout applies when the spec has none; zero
// leaves the goal unbounded.
func (g GoalSpec) Goal(defaultTimeout time.Duration) schemas.Goal {
	goal := schemas.Goal{
		Task:            g.Task,
		Constraints:     g.Constraints,
		SuccessCriteria: g.SuccessCriteria,
	}
	timeout := g.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if timeout > 0 {
		goal = goal.WithTimeout(timeout.Milliseconds())
	}
	return goal
}
