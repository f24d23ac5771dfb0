package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/studytrack/internal/domain"
	"example.com/studytrack/internal/persistence/local"
	"example.com/studytrack/internal/progress"
	"example.com/studytrack/internal/timer"
)

var fixedNow = time.Date(2024, 5, 3, 18, 0, 0, 0, time.UTC)

type harness struct {
	store     *local.Store
	timerOpts []timer.Option
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := local.Open(context.Background(), &local.MemoryBackend{})
	require.NoError(t, err)
	return &harness{store: store}
}

func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := Run(context.Background(), App{
		Out:          &out,
		Err:          &out,
		Now:          func() time.Time { return fixedNow },
		Location:     time.UTC,
		Store:        h.store,
		TimerOptions: h.timerOpts,
	}, args)
	return out.String(), err
}

func (h *harness) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := h.run(t, args...)
	require.NoError(t, err, "studytrack %s", strings.Join(args, " "))
	return out
}

func (h *harness) createSession(t *testing.T, args ...string) domain.Session {
	t.Helper()
	out := h.mustRun(t, append([]string{"session", "create", "-o", "json"}, args...)...)
	var session domain.Session
	require.NoError(t, json.Unmarshal([]byte(out), &session))
	return session
}

func TestCommandsRequireCurrentUser(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "session", "list")
	require.ErrorIs(t, err, errNoCurrentUser)
}

func TestUnknownOutputFormat(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "user", "list", "-o", "xml")
	require.ErrorContains(t, err, "unknown output format")
}

func TestFirstUserBecomesCurrent(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "user", "add", "Ada", "--id", "ada")
	h.mustRun(t, "user", "add", "Grace", "--id", "grace")

	out := h.mustRun(t, "user", "list")
	require.Contains(t, out, "* ada")
	require.Contains(t, out, "  grace")

	h.mustRun(t, "user", "switch", "grace")
	require.Equal(t, "grace", h.store.CurrentUserID())

	_, err := h.run(t, "user", "switch", "nobody")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLogAndProgress(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "user", "add", "Ada", "--id", "ada")
	session := h.createSession(t, "--name", "Go", "--target", "60")

	h.mustRun(t, "log", session.ID, "--minutes", "45", "--notes", "channels")
	h.mustRun(t, "log", session.ID, "--minutes", "20", "--date", "2024-05-02")

	out := h.mustRun(t, "progress", "-o", "json")
	var summary progress.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	require.Equal(t, domain.MustParseDate("2024-05-03"), summary.Today)
	require.Equal(t, 45, summary.TodayMinutes)
	require.Equal(t, 60, summary.TodayTarget)
	require.Equal(t, 65, summary.WeeklyMinutes)
	require.Equal(t, 2, summary.Streak)
	require.Len(t, summary.Sessions, 1)
	require.Equal(t, 75, summary.Sessions[0].GoalPercent)

	text := h.mustRun(t, "progress")
	require.Contains(t, text, "Streak: 2 days")
	require.Contains(t, text, "Next:   Week Warrior in 5 days")

	days := h.mustRun(t, "activities")
	require.Contains(t, days, "2024-05-03  45 min")
	require.Contains(t, days, "channels")
	require.Less(t, strings.Index(days, "2024-05-03"), strings.Index(days, "2024-05-02"))

	_, err := h.run(t, "log", session.ID, "--minutes", "5", "--date", "03/05/2024")
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestSessionUpdateAppliesOnlyChangedFlags(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "user", "add", "Ada", "--id", "ada")
	session := h.createSession(t, "--name", "Go", "--target", "60", "--theme", "blue")

	out := h.mustRun(t, "session", "update", session.ID, "--name", "Golang", "-o", "json")
	var updated domain.Session
	require.NoError(t, json.Unmarshal([]byte(out), &updated))
	require.Equal(t, "Golang", updated.Name)
	require.Equal(t, 60, updated.DailyTargetMinutes)
	require.Equal(t, "blue", updated.Theme)

	_, err := h.run(t, "session", "update", session.ID)
	require.ErrorContains(t, err, "nothing to update")

	_, err = h.run(t, "session", "update", "missing", "--name", "x")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSessionRemoveCascades(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "user", "add", "Ada", "--id", "ada")
	session := h.createSession(t, "--name", "Go")
	h.mustRun(t, "log", session.ID, "--minutes", "15")

	h.mustRun(t, "session", "remove", session.ID)

	out := h.mustRun(t, "activities", "-o", "json")
	require.JSONEq(t, "[]", out)
}

func TestSessionImportFromYAML(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "user", "add", "Ada", "--id", "ada")
	old := h.createSession(t, "--name", "Old")
	h.mustRun(t, "log", old.ID, "--minutes", "10")

	path := filepath.Join(t.TempDir(), "sessions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- id: s-math
  name: Maths
  dailyTargetMinutes: 25
- name: Piano
  dailyTargetMinutes: 15
  theme: green
`), 0o600))

	h.mustRun(t, "session", "import", path)

	out := h.mustRun(t, "session", "list", "-o", "json")
	var rows []sessionRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)
	names := []string{rows[0].Name, rows[1].Name}
	require.ElementsMatch(t, []string{"Maths", "Piano"}, names)

	activities := h.mustRun(t, "activities", "-o", "json")
	require.JSONEq(t, "[]", activities)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`[{"name":"","dailyTargetMinutes":5}]`), 0o600))
	_, err := h.run(t, "session", "import", bad)
	require.ErrorIs(t, err, domain.ErrValidation)

	out = h.mustRun(t, "session", "list", "-o", "json")
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)
}

type bufferedTicker struct{ c chan time.Time }

func (b *bufferedTicker) C() <-chan time.Time { return b.c }
func (b *bufferedTicker) Stop()               {}

// oneMinuteOfTicks returns tickers preloaded with sixty ticks.
func oneMinuteOfTicks(time.Duration) timer.Ticker {
	c := make(chan time.Time, 60)
	for i := 0; i < 60; i++ {
		c <- time.Time{}
	}
	return &bufferedTicker{c: c}
}

func TestTimerLogsCompletedMinutes(t *testing.T) {
	h := newHarness(t)
	h.timerOpts = []timer.Option{timer.WithTicker(oneMinuteOfTicks)}
	h.mustRun(t, "user", "add", "Ada", "--id", "ada")
	session := h.createSession(t, "--name", "Go", "--target", "30")

	out := h.mustRun(t, "timer", session.ID, "--minutes", "1", "--log", "-o", "json")
	var result timerResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.Equal(t, "completed", result.State)
	require.Equal(t, 1, result.Minutes)
	require.NotNil(t, result.Activity)
	require.Equal(t, 1, result.Activity.DurationMinutes)
	require.Equal(t, "Go", result.Activity.SessionName)

	_, err := h.run(t, "timer", "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBackupRoundTrip(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "user", "add", "Ada", "--id", "ada")
	session := h.createSession(t, "--name", "Go")
	h.mustRun(t, "log", session.ID, "--minutes", "15")

	path := filepath.Join(t.TempDir(), "backup.json")
	h.mustRun(t, "backup", "export", "--file", path)

	restored := newHarness(t)
	restored.mustRun(t, "backup", "import", path)
	require.Equal(t, "ada", restored.store.CurrentUserID())

	out := restored.mustRun(t, "activities", "-o", "json")
	var days []progress.DayGroup
	require.NoError(t, json.Unmarshal([]byte(out), &days))
	require.Len(t, days, 1)
	require.Equal(t, 15, days[0].TotalMinutes)
}

func TestSQLiteDatabasePersistsAcrossRuns(t *testing.T) {
	db := filepath.Join(t.TempDir(), "data", "studytrack.db")
	run := func(args ...string) string {
		var out bytes.Buffer
		err := Run(context.Background(), App{
			Out:      &out,
			Err:      &out,
			Now:      func() time.Time { return fixedNow },
			Location: time.UTC,
			DBPath:   db,
		}, args)
		require.NoError(t, err)
		return out.String()
	}

	run("user", "add", "Ada", "--id", "ada")
	run("session", "create", "--name", "Go")

	out := run("session", "list", "-o", "yaml")
	require.Contains(t, out, "name: Go")
	require.Contains(t, out, "userId: ada")
}
