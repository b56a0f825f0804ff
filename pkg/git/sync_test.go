package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipUnlessGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not on PATH")
	}
}

func runGit(t *testing.T, dir string, args ...string) string {
	t.Helper()
	c := exec.Command("git", args...)
	c.Dir = dir
	c.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=papercd", "GIT_AUTHOR_EMAIL=papercd@localhost",
		"GIT_COMMITTER_NAME=papercd", "GIT_COMMITTER_EMAIL=papercd@localhost",
		"GIT_TERMINAL_PROMPT=0",
	)
	out, err := c.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
	return string(out)
}

func commitFile(t *testing.T, dir, name, contents, message string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(contents), 0644))
	runGit(t, dir, "add", "--", name)
	runGit(t, dir, "commit", "-q", "-m", message)
}

// newUpstream creates a repo standing in for the remote deployment
// repo, with one commit on branch main.
func newUpstream(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	runGit(t, dir, "init", "-q")
	commitFile(t, dir, "compose.yaml", "services: {}\n", "initial")
	runGit(t, dir, "branch", "-M", "main")
	return dir
}

func cloneOf(t *testing.T, upstream string) string {
	t.Helper()
	parent := t.TempDir()
	dir := filepath.Join(parent, "deploy")
	runGit(t, parent, "clone", "-q", upstream, dir)
	return dir
}

func newTestSyncer(upstream, workdir string) *Syncer {
	return NewSyncer(Remote{URL: upstream}, Config{
		Dir:       workdir,
		Branch:    "main",
		UserName:  "papercd",
		UserEmail: "papercd@localhost",
		Timeout:   30 * time.Second,
	}, log.NewNopLogger())
}

func TestSyncFastForwards(t *testing.T) {
	skipUnlessGit(t)

	upstream := newUpstream(t)
	workdir := cloneOf(t, upstream)
	commitFile(t, upstream, "players.yml", "players: []\n", "add roster")

	s := newTestSyncer(upstream, workdir)
	require.NoError(t, s.Ready(context.Background()))
	require.NoError(t, s.Sync(context.Background(), "token"))

	want := runGit(t, upstream, "rev-parse", "HEAD")
	got := runGit(t, workdir, "rev-parse", "HEAD")
	assert.Equal(t, want, got)
}

func TestSyncUpToDateIsNoError(t *testing.T) {
	skipUnlessGit(t)

	upstream := newUpstream(t)
	workdir := cloneOf(t, upstream)

	s := newTestSyncer(upstream, workdir)
	require.NoError(t, s.Sync(context.Background(), "token"))
	// Running again with nothing new is still a success.
	require.NoError(t, s.Sync(context.Background(), "token"))
}

func TestSyncFailsOnDivergedTree(t *testing.T) {
	skipUnlessGit(t)

	upstream := newUpstream(t)
	workdir := cloneOf(t, upstream)
	commitFile(t, upstream, "compose.yaml", "services: {a: {}}\n", "upstream change")
	commitFile(t, workdir, "compose.yaml", "services: {b: {}}\n", "local change")

	s := newTestSyncer(upstream, workdir)
	assert.Error(t, s.Sync(context.Background(), "token"))
}

func TestSyncRemovesTokenOnFailure(t *testing.T) {
	skipUnlessGit(t)

	upstream := newUpstream(t)
	workdir := cloneOf(t, upstream)

	// An unreachable origin: the fetch fails after the token has been
	// bound to the remote.
	origin := Remote{URL: "http://127.0.0.1:1/deploy.git"}
	s := NewSyncer(origin, Config{
		Dir:     workdir,
		Branch:  "main",
		Timeout: 30 * time.Second,
	}, log.NewNopLogger())

	err := s.Sync(context.Background(), "s3cr3t")
	require.Error(t, err)

	// The credential binding must not survive the call, whatever the
	// outcome of the fetch.
	url, err := remoteURL(context.Background(), workdir, "origin")
	require.NoError(t, err)
	assert.Equal(t, origin.URL, url)

	conf, err := os.ReadFile(filepath.Join(workdir, ".git", "config"))
	require.NoError(t, err)
	assert.NotContains(t, string(conf), "s3cr3t")
}

func TestSyncRemovesTokenOnSuccess(t *testing.T) {
	skipUnlessGit(t)

	upstream := newUpstream(t)
	workdir := cloneOf(t, upstream)

	s := newTestSyncer(upstream, workdir)
	require.NoError(t, s.Sync(context.Background(), "s3cr3t"))

	conf, err := os.ReadFile(filepath.Join(workdir, ".git", "config"))
	require.NoError(t, err)
	assert.NotContains(t, string(conf), "s3cr3t")
}

func TestReadyRejectsMissingTree(t *testing.T) {
	skipUnlessGit(t)

	s := newTestSyncer("https://github.com/example/deploy.git", t.TempDir())
	assert.Error(t, s.Ready(context.Background()))
}

func TestReadyRejectsWrongRemote(t *testing.T) {
	skipUnlessGit(t)

	upstream := newUpstream(t)
	workdir := cloneOf(t, upstream)

	s := newTestSyncer("https://github.com/example/other.git", workdir)
	assert.Error(t, s.Ready(context.Background()))
}
