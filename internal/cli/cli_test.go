package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes one funnelstat invocation against db and returns its output.
func run(t *testing.T, db, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append(args, "--db", db))
	err := cmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, db, stdin string, args ...string) string {
	t.Helper()
	out, err := run(t, db, stdin, args...)
	require.NoError(t, err, out)
	return out
}

func testDB(t *testing.T) string {
	return filepath.Join(t.TempDir(), "funnelstat.db")
}

// funnelEvents writes n sent events per variant and the given conversions.
func funnelEvents(n int, converted map[string]int) string {
	var b strings.Builder
	for _, v := range []string{"a", "b"} {
		for i := 0; i < n; i++ {
			fmt.Fprintf(&b, `{"variant_id":%q,"participant_id":"%s-%d","event_type":"sent"}`+"\n", v, v, i)
		}
		for i := 0; i < converted[v]; i++ {
			fmt.Fprintf(&b, `{"variant_id":%q,"participant_id":"%s-%d","event_type":"converted"}`+"\n", v, v, i)
		}
	}
	return b.String()
}

func seeded(t *testing.T) string {
	t.Helper()
	db := testDB(t)
	mustRun(t, db, "", "create", "subject", "--variants", "a=Quick question,b=Saw your launch")
	mustRun(t, db, funnelEvents(200, map[string]int{"a": 10, "b": 40}), "record", "subject")
	return db
}

func TestCreateAndList(t *testing.T) {
	db := testDB(t)

	out := mustRun(t, db, "", "create", "subject", "--variants", "a=Quick question,b=Saw your launch", "--weights", "1,3")
	assert.Contains(t, out, "Created experiment 'subject' with 2 variants")
	assert.Contains(t, out, "a: Quick question (weight 1) [control]")

	out = mustRun(t, db, "", "list")
	assert.Contains(t, out, "subject")
	assert.Contains(t, out, "RUNNING")

	_, err := run(t, db, "", "create", "subject", "--variants", "a,b")
	assert.ErrorContains(t, err, "already exists")

	_, err = run(t, db, "", "create", "single", "--variants", "a")
	assert.Error(t, err)
}

func TestListEmpty(t *testing.T) {
	out := mustRun(t, testDB(t), "", "list")
	assert.Contains(t, out, "No experiments yet.")
}

func TestAssignIsDeterministic(t *testing.T) {
	db := testDB(t)
	mustRun(t, db, "", "create", "subject", "--variants", "a,b,c")

	first := mustRun(t, db, "", "assign", "subject", "jane@example.com", "sam@example.com", "--explain")
	second := mustRun(t, db, "", "assign", "subject", "jane@example.com", "sam@example.com", "--explain")
	assert.Equal(t, first, second)
	assert.Contains(t, first, "jane@example.com -> ")
	assert.Contains(t, first, "hash=0x")

	_, err := run(t, db, "", "assign", "missing", "jane@example.com")
	assert.ErrorContains(t, err, "experiment 'missing' not found")
}

func TestRecordAndResults(t *testing.T) {
	db := seeded(t)

	out := mustRun(t, db, "", "results", "subject")
	assert.Contains(t, out, "EXPERIMENT: subject")
	assert.Contains(t, out, "← LEADING")
	assert.Contains(t, out, `"Saw your launch" is the winner`)

	out = mustRun(t, db, "", "results", "subject", "--bayes", "--seed", "7")
	assert.Contains(t, out, "Bayesian (10,000 simulations): P(b beats a)")
}

func TestResultsUnknownExperiment(t *testing.T) {
	_, err := run(t, testDB(t), "", "results", "missing")
	assert.ErrorContains(t, err, "experiment 'missing' not found")
}

func TestRecordIsAllOrNothing(t *testing.T) {
	db := testDB(t)
	mustRun(t, db, "", "create", "subject", "--variants", "a,b")

	input := `{"variant_id":"a","participant_id":"p1","event_type":"sent"}
{"variant_id":"a","event_type":"sent"}
`
	_, err := run(t, db, input, "record", "subject")
	require.Error(t, err)

	out := mustRun(t, db, "", "export", "subject", "--format", "csv")
	assert.Equal(t, "timestamp,variant_id,event_type,participant_id,sequence_id,touch_id\n", out)

	_, err = run(t, db, `{"test_id":"other","variant_id":"a","participant_id":"p1","event_type":"sent"}`, "record", "subject")
	assert.ErrorContains(t, err, "line 1")
}

func TestExportFormats(t *testing.T) {
	db := testDB(t)
	mustRun(t, db, "", "create", "subject", "--variants", "a,b")
	mustRun(t, db, funnelEvents(2, map[string]int{"b": 1}), "record", "subject")

	out := mustRun(t, db, "", "export", "subject", "--format", "json")
	var doc exportDoc
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "subject", doc.Experiment.ID)
	require.Len(t, doc.Events, 5)
	assert.Equal(t, "converted", doc.Events[4].EventType)

	out = mustRun(t, db, "", "export", "subject", "--format", "yaml")
	assert.Contains(t, out, "variant_id: b")
	assert.Contains(t, out, "event_type: converted")

	out = mustRun(t, db, "", "export", "subject")
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 6)

	_, err := run(t, db, "", "export", "subject", "--format", "xml")
	assert.Error(t, err)
}

func TestWinner(t *testing.T) {
	db := seeded(t)

	_, err := run(t, db, "", "winner", "subject", "--variant", "z")
	assert.ErrorContains(t, err, "invalid variant")

	out := mustRun(t, db, "", "winner", "subject", "--variant", "b")
	assert.Contains(t, out, `Declared winner for experiment 'subject': b ("Saw your launch")`)

	out = mustRun(t, db, "", "results", "subject")
	assert.Contains(t, out, "STATE: completed")
	assert.Contains(t, out, "WINNER: b")

	_, err = run(t, db, "", "winner", "subject", "--variant", "a")
	assert.ErrorContains(t, err, "already completed")
}

func TestSequential(t *testing.T) {
	db := seeded(t)

	out := mustRun(t, db, "", "sequential", "subject", "--period", "1h")
	assert.Contains(t, out, "b vs a on converted")
	assert.Contains(t, out, "looks=1")
	assert.Contains(t, out, "Stopping now is valid")
}

func TestWatchPrintsLiveResults(t *testing.T) {
	db := testDB(t)
	mustRun(t, db, "", "create", "subject", "--variants", "a,b")

	input := `{"variant_id":"a","participant_id":"p1","event_type":"sent"}
not json
{"variant_id":"b","participant_id":"p2","event_type":"sent"}
{"variant_id":"b","participant_id":"p2","event_type":"converted"}
`
	out := mustRun(t, db, input, "watch", "subject")
	assert.Contains(t, out, "Recorded 3 events")
	assert.Equal(t, 3, strings.Count(out, "leader="))
	assert.Contains(t, out, "leader=b")
}

func TestPlan(t *testing.T) {
	db := testDB(t)

	out := mustRun(t, db, "", "plan", "--baseline", "0.1", "--mde", "0.2", "--daily-traffic", "1000")
	assert.Contains(t, out, "Sample per variant:")
	assert.Contains(t, out, "Duration:")

	out = mustRun(t, db, "", "plan", "--baseline", "0.01", "--mde", "0.1")
	assert.Contains(t, out, "Low baseline rate")
	assert.Contains(t, out, "Large sample required")

	_, err := run(t, db, "", "plan", "--baseline", "0.1")
	assert.ErrorContains(t, err, "--baseline and --mde are required")

	_, err = run(t, db, "", "plan", "--baseline", "1.5", "--mde", "0.1")
	assert.Error(t, err)
}

func TestDelete(t *testing.T) {
	db := seeded(t)

	_, err := run(t, db, "", "delete", "subject")
	assert.ErrorContains(t, err, "--yes")

	out := mustRun(t, db, "", "delete", "subject", "--yes")
	assert.Contains(t, out, "Deleted experiment 'subject'")

	_, err = run(t, db, "", "results", "subject")
	assert.ErrorContains(t, err, "not found")
}

func TestToken(t *testing.T) {
	out := mustRun(t, testDB(t), "", "token")
	line := strings.TrimSpace(strings.Split(out, "\n")[0])
	require.True(t, strings.HasPrefix(line, "export FUNNELSTAT_SERVER_TOKEN="))
	assert.Len(t, strings.TrimPrefix(line, "export FUNNELSTAT_SERVER_TOKEN="), 32)
}

func TestBuildExperiment(t *testing.T) {
	exp, err := buildExperiment("cta", "", " a = Buy now , b ", "", "b")
	require.NoError(t, err)
	assert.Equal(t, "cta", exp.Name)
	assert.Equal(t, "Buy now", exp.Variants[0].Name)
	assert.Equal(t, "b", exp.Variants[1].Name)
	assert.Equal(t, "b", exp.ControlID)

	_, err = buildExperiment("cta", "", "a,b", "1", "")
	assert.ErrorContains(t, err, "got 1 weights for 2 variants")

	_, err = buildExperiment("cta", "", "a,b", "1,x", "")
	assert.Error(t, err)
}
