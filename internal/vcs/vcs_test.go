package vcs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initRepo(t *testing.T) (string, *git.Repository) {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	return dir, repo
}

func commitFile(t *testing.T, dir string, repo *git.Repository, path, content string) {
	t.Helper()
	full := filepath.Join(dir, path)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))

	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add(path)
	require.NoError(t, err)
	_, err = wt.Commit("commit "+path, &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com"},
	})
	require.NoError(t, err)
}

func TestHeadTreeFailsWithoutCommits(t *testing.T) {
	dir, _ := initRepo(t)
	r, err := Open(dir)
	require.NoError(t, err)

	_, err = r.HeadTree()
	assert.Error(t, err)
}

func TestHeadTreeAfterCommit(t *testing.T) {
	dir, repo := initRepo(t)
	commitFile(t, dir, repo, "a.go", "package a\n")

	r, err := Open(dir)
	require.NoError(t, err)

	tree, err := r.HeadTree()
	require.NoError(t, err)
	assert.NotEmpty(t, tree)
	assert.NotEqual(t, EmptyTreeSHA, tree)
}

func TestListFilesAtHead(t *testing.T) {
	dir, repo := initRepo(t)
	commitFile(t, dir, repo, "a.go", "package a\n")
	commitFile(t, dir, repo, "sub/b.go", "package sub\n")

	r, err := Open(dir)
	require.NoError(t, err)

	tree, err := r.HeadTree()
	require.NoError(t, err)

	files, err := r.ListFiles(tree)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.go", "sub/b.go"}, files)
}

func TestReadFileReturnsBytes(t *testing.T) {
	dir, repo := initRepo(t)
	commitFile(t, dir, repo, "a.go", "package a\n")

	r, err := Open(dir)
	require.NoError(t, err)
	tree, err := r.HeadTree()
	require.NoError(t, err)

	data, err := r.ReadFile(tree, "a.go")
	require.NoError(t, err)
	assert.Equal(t, "package a\n", string(data))
}

func TestReadFileMissingPathIsNotFound(t *testing.T) {
	dir, repo := initRepo(t)
	commitFile(t, dir, repo, "a.go", "package a\n")

	r, err := Open(dir)
	require.NoError(t, err)
	tree, err := r.HeadTree()
	require.NoError(t, err)

	_, err = r.ReadFile(tree, "missing.go")
	assert.Error(t, err)
}

func TestDiffFromEmptyTreeYieldsAllAdded(t *testing.T) {
	dir, repo := initRepo(t)
	commitFile(t, dir, repo, "a.go", "package a\n")

	r, err := Open(dir)
	require.NoError(t, err)
	tree, err := r.HeadTree()
	require.NoError(t, err)

	changes, err := r.Diff(context.Background(), EmptyTreeSHA, tree)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, Added, changes[0].Status)
	assert.Equal(t, "a.go", changes[0].Path)
}

func TestDiffDetectsModification(t *testing.T) {
	dir, repo := initRepo(t)
	commitFile(t, dir, repo, "a.go", "package a\n")
	r, err := Open(dir)
	require.NoError(t, err)
	first, err := r.HeadTree()
	require.NoError(t, err)

	commitFile(t, dir, repo, "a.go", "package a\n\nfunc X() {}\n")
	second, err := r.HeadTree()
	require.NoError(t, err)

	changes, err := r.Diff(context.Background(), first, second)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, Modified, changes[0].Status)
}

func TestIsIgnoredHonorsGitignore(t *testing.T) {
	dir, repo := initRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".gitignore"), []byte("*.log\n"), 0o644))
	commitFile(t, dir, repo, ".gitignore", "*.log\n")

	r, err := Open(dir)
	require.NoError(t, err)

	ignored, err := r.IsIgnored("debug.log")
	require.NoError(t, err)
	assert.True(t, ignored)

	ignored, err = r.IsIgnored("main.go")
	require.NoError(t, err)
	assert.False(t, ignored)
}

func TestIsIgnoredHonorsEmberIgnore(t *testing.T) {
	dir, repo := initRepo(t)
	commitFile(t, dir, repo, "a.go", "package a\n")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".ember"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".ember", "ignore"), []byte("vendor/\n"), 0o644))

	r, err := Open(dir)
	require.NoError(t, err)

	ignored, err := r.IsIgnored("vendor/lib.go")
	require.NoError(t, err)
	assert.True(t, ignored)
}

func TestWorktreeTreeReflectsUncommittedEdit(t *testing.T) {
	dir, repo := initRepo(t)
	commitFile(t, dir, repo, "a.go", "package a\n")

	r, err := Open(dir)
	require.NoError(t, err)
	head, err := r.HeadTree()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("package a\n\nvar X int\n"), 0o644))

	work, err := r.WorktreeTree()
	require.NoError(t, err)
	assert.NotEqual(t, head, work)

	data, err := r.ReadFile(work, "a.go")
	require.NoError(t, err)
	assert.Equal(t, "package a\n\nvar X int\n", string(data))
}

func TestStagedTreeReflectsIndexNotWorktree(t *testing.T) {
	dir, repo := initRepo(t)
	commitFile(t, dir, repo, "a.go", "package a\n")

	wt, err := repo.Worktree()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("package a\n\nvar Staged int\n"), 0o644))
	_, err = wt.Add("a.go")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("package a\n\nvar Unstaged int\n"), 0o644))

	r, err := Open(dir)
	require.NoError(t, err)
	staged, err := r.StagedTree()
	require.NoError(t, err)

	data, err := r.ReadFile(staged, "a.go")
	require.NoError(t, err)
	assert.Equal(t, "package a\n\nvar Staged int\n", string(data))
}

func TestResolveRevResolvesHEAD(t *testing.T) {
	dir, repo := initRepo(t)
	commitFile(t, dir, repo, "a.go", "package a\n")

	r, err := Open(dir)
	require.NoError(t, err)

	head, err := r.HeadTree()
	require.NoError(t, err)

	resolved, err := r.ResolveRev("HEAD")
	require.NoError(t, err)
	assert.Equal(t, head, resolved)
}
