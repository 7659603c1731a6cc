// File: cmd/goalfile_test.go
package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGoalFile_Batch(t *testing.T) {
	specs, err := parseGoalFile([]byte(`
defaults:
  url: https://shop.example
  timeout: 2m
  constraints: ["do not buy anything"]
goals:
  - name: pricing
    task: find the pricing page
  - task: open the cart
    url: https://shop.example/cart
    timeout: 30s
    success_criteria: ["cart is visible"]
`))
	require.NoError(t, err)
	require.Len(t, specs, 2)

	assert.Equal(t, "pricing", specs[0].Name)
	assert.Equal(t, "https://shop.example", specs[0].URL)
	assert.Equal(t, 2*time.Minute, specs[0].Timeout)
	assert.Equal(t, []string{"do not buy anything"}, specs[0].Constraints)

	assert.Equal(t, "goal-2", specs[1].Name)
	assert.Equal(t, "https://shop.example/cart", specs[1].URL)
	assert.Equal(t, 30*time.Second, specs[1].Timeout)
	assert.Equal(t, []string{"cart is visible"}, specs[1].SuccessCriteria)
}

func TestParseGoalFile_Single(t *testing.T) {
	specs, err := parseGoalFile([]byte("task: '  read the news  '\nurl: https://news.example\n"))
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, "read the news", specs[0].Task)
	assert.Equal(t, "https://news.example", specs[0].URL)
	assert.Empty(t, specs[0].Constraints)
}

func TestParseGoalFile_Errors(t *testing.T) {
	cases := map[string]struct {
		doc  string
		want string
	}{
		"Empty":           {"", "defines no goals"},
		"NoTask":          {"goals:\n  - url: https://a.example\n", "goal 1 has no task"},
		"BlankTask":       {"goals:\n  - task: ok\n  - task: '   '\n", "goal 2 has no task"},
		"NegativeTimeout": {"goals:\n  - task: x\n    timeout: -1s\n", "negative timeout"},
		"Malformed":       {"goals: [", "failed to parse goal file"},
		"BadDuration":     {"goals:\n  - task: x\n    timeout: soon\n", "failed to parse goal file"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parseGoalFile([]byte(tc.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoadGoalFile(t *testing.T) {
	_, err := LoadGoalFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read goal file")

	path := filepath.Join(t.TempDir(), "goals.yaml")
	require.NoError(t, os.WriteFile(path, []byte("goals: []\n"), 0o644))
	_, err = LoadGoalFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)
}

func TestGoalSpec_Goal(t *testing.T) {
	spec := GoalSpec{Task: "t", Constraints: []string{"c"}, SuccessCriteria: []string{"s"}}

	goal := spec.Goal(0)
	assert.Equal(t, "t", goal.Task)
	assert.Equal(t, []string{"c"}, goal.Constraints)
	assert.Equal(t, []string{"s"}, goal.SuccessCriteria)
	assert.Nil(t, goal.TimeoutMs, "no timeout anywhere leaves the goal unbounded")

	goal = spec.Goal(time.Minute)
	require.NotNil(t, goal.TimeoutMs)
	assert.Equal(t, int64(60000), *goal.TimeoutMs)

	spec.Timeout = 1500 * time.Millisecond
	goal = spec.Goal(time.Minute)
	require.NotNil(t, goal.TimeoutMs)
	assert.Equal(t, int64(1500), *goal.TimeoutMs, "the goal's own timeout wins")
}
