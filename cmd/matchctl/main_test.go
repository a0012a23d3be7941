package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-resume-matcher/internal/app"
	"github.com/fairyhunter13/ai-resume-matcher/internal/config"
	"github.com/fairyhunter13/ai-resume-matcher/internal/domain"
)

const resumeYAML = `
id: r1
candidate_name: Ana
skills: [python, aws]
raw_text: Python engineer with 4 years of experience on AWS
`

const jobYAML = `
id: j1
required_skills: [python, sql]
optional_skills: [docker]
min_experience: 2
raw_text: Python SQL engineer
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func setEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("INDEX_DIR", filepath.Join(dir, "index"))
	t.Setenv("EMBEDDING_DIM", "64")
	t.Setenv("VECTOR_BACKEND", "flat")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("REDIS_URL", "")
	return dir
}

func TestRootCommand(t *testing.T) {
	root := newRootCmd()
	assert.Equal(t, appName, root.Use)
	names := []string{}
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"evaluate", "seed", "query", "rebuild"})
}

func TestEvaluateCommand(t *testing.T) {
	dir := setEnv(t)
	r := writeFile(t, dir, "r.yaml", resumeYAML)
	j := writeFile(t, dir, "j.yaml", jobYAML)

	out, err := run(t, "evaluate", "--resume", r, "--job", j)
	require.NoError(t, err)
	var ev domain.Evaluation
	require.NoError(t, json.Unmarshal([]byte(out), &ev))
	assert.Equal(t, "r1", ev.ResumeID)
	assert.Equal(t, "j1", ev.JobID)
	assert.InDelta(t, 35.0, ev.Analysis.Hard.SkillsMatch, 1e-9)
	assert.Equal(t, []string{"python"}, ev.MatchedSkills)
	assert.GreaterOrEqual(t, ev.RelevanceScore, 0.0)
	assert.LessOrEqual(t, ev.RelevanceScore, 100.0)
}

func TestEvaluateCommand_Errors(t *testing.T) {
	dir := setEnv(t)
	_, err := run(t, "evaluate", "--resume", filepath.Join(dir, "missing.yaml"), "--job", filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
	_, err = run(t, "evaluate")
	assert.Error(t, err)
}

func TestQueryAndRebuildCommands(t *testing.T) {
	dir := setEnv(t)
	cfg, err := config.Load()
	require.NoError(t, err)
	ctx := context.Background()
	st, err := app.OpenStore(ctx, cfg, app.NewEncoder(cfg, nil), nil)
	require.NoError(t, err)
	_, err = st.Store(ctx, domain.NamespaceResume, "r1", "python sql engineer", map[string]any{"name": "Ana"})
	require.NoError(t, err)
	_, err = st.Store(ctx, domain.NamespaceResume, "r2", "java spring developer", nil)
	require.NoError(t, err)
	require.NoError(t, st.Close(ctx))

	j := writeFile(t, dir, "j.yaml", jobYAML)
	out, err := run(t, "query", "--job", j, "-k", "1")
	require.NoError(t, err)
	var res struct {
		Namespace string            `json:"namespace"`
		Neighbors []domain.Neighbor `json:"neighbors"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "resume", res.Namespace)
	require.Len(t, res.Neighbors, 1)
	assert.Equal(t, "r1", res.Neighbors[0].RecordID)
	assert.Equal(t, "Ana", res.Neighbors[0].Metadata["name"])

	_, err = run(t, "query")
	assert.Error(t, err)
	for _, k := range []string{"0", "20000000"} {
		_, err = run(t, "query", "--job", j, "-k", k)
		assert.ErrorIs(t, err, domain.ErrInvalidArgument, "k=%s", k)
	}

	out, err = run(t, "rebuild", "--namespace", "resume")
	require.NoError(t, err)
	var reports []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &reports))
	require.Len(t, reports, 1)
	assert.Equal(t, "resume", reports[0]["namespace"])
	assert.Equal(t, 2.0, reports[0]["reembedded"])
	assert.Equal(t, "rebuilt", reports[0]["recovery"])

	_, err = run(t, "rebuild", "--namespace", "people")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}
