// Package vcs exposes tree-identity, diff, and ignore-rule primitives
// over a git repository. It never writes to the repository's
// persistent index (.git/index); the working-tree view is built as a
// synthetic tree of ordinary content-addressed objects instead.
package vcs

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/sammcvicker/ember/internal/embererr"
)

// EmptyTreeSHA is the documented git empty-tree hash, used as the
// diff base for first-time indexing.
const EmptyTreeSHA = "4b825dc642cb6eb9a060e54bf8d69288fbee4904"

// ChangeStatus classifies one diff entry.
type ChangeStatus string

const (
	Added    ChangeStatus = "added"
	Modified ChangeStatus = "modified"
	Deleted  ChangeStatus = "deleted"
	Renamed  ChangeStatus = "renamed"
	Copied   ChangeStatus = "copied"
)

// Change is one entry of a tree diff.
type Change struct {
	Status  ChangeStatus
	Path    string
	OldPath string
}

// Repo wraps a go-git repository and provides the VCS-probe contract.
type Repo struct {
	repo *git.Repository
	root string
}

// Open opens the git repository rooted at path.
func Open(path string) (*Repo, error) {
	r, err := git.PlainOpen(path)
	if err != nil {
		return nil, &embererr.VcsFailureError{Op: "open", Err: err}
	}
	return &Repo{repo: r, root: path}, nil
}

// Root returns the repository's working-tree root.
func (r *Repo) Root() string { return r.root }

// HeadTree returns the tree identity of the committed tree at HEAD.
func (r *Repo) HeadTree() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", &embererr.NoCommitsError{Root: r.root}
	}
	commit, err := r.repo.CommitObject(head.Hash())
	if err != nil {
		return "", &embererr.VcsFailureError{Op: "head commit", Err: err}
	}
	return commit.TreeHash.String(), nil
}

// WorktreeTree builds a virtual tree reflecting current working-tree
// bytes, including unstaged and untracked but non-ignored files. The
// synthetic blob/tree objects are written to the repository's own
// object store (content-addressed, so this is idempotent) so the
// returned hash can be resolved later; the persistent index
// (.git/index) is never written to on any path through this function.
func (r *Repo) WorktreeTree() (string, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return "", &embererr.VcsFailureError{Op: "worktree", Err: err}
	}

	status, err := wt.Status()
	if err != nil {
		return "", &embererr.VcsFailureError{Op: "worktree status", Err: err}
	}

	// Tracked files come from HEAD's tree. With no commits yet there is
	// no such tree; every file is then untracked or newly staged and
	// the status scan below picks it up.
	var paths []string
	if headTree, headErr := r.HeadTree(); headErr == nil {
		if paths, err = r.ListFiles(headTree); err != nil {
			return "", err
		}
	}

	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		seen[p] = true
	}
	for p, st := range status {
		if (st.Worktree == git.Untracked || st.Staging == git.Added) && !seen[p] {
			seen[p] = true
		}
	}

	var all []string
	for p := range seen {
		st, tracked := status[p]
		if tracked && (st.Worktree == git.Deleted || st.Staging == git.Deleted) {
			continue
		}
		if ignored, _ := r.IsIgnored(p); ignored {
			continue
		}
		all = append(all, p)
	}

	builder := newTreeBuilder(r.repo.Storer)
	defer builder.discard()

	for _, p := range all {
		data, err := os.ReadFile(filepath.Join(r.root, p))
		if err != nil {
			continue
		}
		if err := builder.add(p, data); err != nil {
			return "", &embererr.VcsFailureError{Op: "build worktree tree", Err: err}
		}
	}

	hash, err := builder.write()
	if err != nil {
		return "", &embererr.VcsFailureError{Op: "write worktree tree", Err: err}
	}
	return hash.String(), nil
}

// StagedTree builds a synthetic tree reflecting the contents of the
// git index (the staging area) rather than the working directory or
// HEAD. Staged entries were already hashed and written to the object
// store by whatever staged them, so their blobs are reused by hash
// instead of being re-read and re-written.
func (r *Repo) StagedTree() (string, error) {
	idx, err := r.repo.Storer.Index()
	if err != nil {
		return "", &embererr.VcsFailureError{Op: "read index", Err: err}
	}

	builder := newTreeBuilder(r.repo.Storer)
	defer builder.discard()

	for _, entry := range idx.Entries {
		if !utf8.ValidString(entry.Name) {
			continue
		}
		if ignored, _ := r.IsIgnored(entry.Name); ignored {
			continue
		}
		builder.addHash(entry.Name, entry.Hash)
	}

	hash, err := builder.write()
	if err != nil {
		return "", &embererr.VcsFailureError{Op: "write staged tree", Err: err}
	}
	return hash.String(), nil
}

// ResolveRev resolves an arbitrary revision string (branch, tag,
// short or full hash, `HEAD~2`, etc.) to the tree identity of the
// commit it names.
func (r *Repo) ResolveRev(ref string) (string, error) {
	hash, err := r.repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return "", &embererr.VcsFailureError{Op: fmt.Sprintf("resolve revision %q", ref), Err: err}
	}
	commit, err := r.repo.CommitObject(*hash)
	if err != nil {
		return "", &embererr.VcsFailureError{Op: fmt.Sprintf("commit object for %q", ref), Err: err}
	}
	return commit.TreeHash.String(), nil
}

// Diff compares two tree identities and returns rename-aware changes.
// Unknown change shapes are skipped, not surfaced as entries.
func (r *Repo) Diff(ctx context.Context, fromTree, toTree string) ([]Change, error) {
	from, err := r.resolveTree(fromTree)
	if err != nil {
		return nil, err
	}
	to, err := r.resolveTree(toTree)
	if err != nil {
		return nil, err
	}

	changes, err := object.DiffTreeWithOptions(ctx, from, to, &object.DiffTreeOptions{DetectRenames: true})
	if err != nil {
		return nil, &embererr.VcsFailureError{Op: "diff trees", Err: err}
	}

	var out []Change
	for _, c := range changes {
		change, ok := classify(c)
		if !ok {
			continue
		}
		if change.Path != "" && !utf8.ValidString(change.Path) {
			slog.Warn("vcs: skipping non-UTF-8 path", "path", fmt.Sprintf("%q", change.Path))
			continue
		}
		if change.OldPath != "" && !utf8.ValidString(change.OldPath) {
			slog.Warn("vcs: skipping non-UTF-8 path", "path", fmt.Sprintf("%q", change.OldPath))
			continue
		}
		out = append(out, change)
	}
	return out, nil
}

func classify(c *object.Change) (Change, bool) {
	fromEmpty := c.From.Name == ""
	toEmpty := c.To.Name == ""

	switch {
	case fromEmpty && toEmpty:
		return Change{}, false
	case fromEmpty:
		return Change{Status: Added, Path: c.To.Name}, true
	case toEmpty:
		return Change{Status: Deleted, Path: c.From.Name}, true
	case c.From.Name != c.To.Name:
		return Change{Status: Renamed, Path: c.To.Name, OldPath: c.From.Name}, true
	default:
		return Change{Status: Modified, Path: c.To.Name}, true
	}
}

// ListFiles lists every path in the tree identified by treeID.
func (r *Repo) ListFiles(treeID string) ([]string, error) {
	tree, err := r.resolveTree(treeID)
	if err != nil {
		return nil, err
	}
	var paths []string
	err = tree.Files().ForEach(func(f *object.File) error {
		if !utf8.ValidString(f.Name) {
			slog.Warn("vcs: skipping non-UTF-8 path", "path", fmt.Sprintf("%q", f.Name))
			return nil
		}
		paths = append(paths, f.Name)
		return nil
	})
	if err != nil {
		return nil, &embererr.VcsFailureError{Op: "list files", Err: err}
	}
	return paths, nil
}

// ReadFile reads path's bytes out of the tree identified by treeID.
func (r *Repo) ReadFile(treeID, path string) ([]byte, error) {
	tree, err := r.resolveTree(treeID)
	if err != nil {
		return nil, err
	}
	f, err := tree.File(path)
	if err != nil {
		return nil, &embererr.NotFoundError{Path: path}
	}
	reader, err := f.Reader()
	if err != nil {
		return nil, &embererr.VcsFailureError{Op: "open blob reader", Err: err}
	}
	defer reader.Close()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(reader); err != nil {
		return nil, &embererr.VcsFailureError{Op: "read blob", Err: err}
	}
	return buf.Bytes(), nil
}

// IsIgnored reports whether path is excluded by the repository's own
// ignore rules or by an optional .ember/ignore file in the same
// pattern format.
func (r *Repo) IsIgnored(path string) (bool, error) {
	patterns, err := gitignore.ReadPatterns(osfsFor(r.root), nil)
	if err != nil {
		return false, &embererr.VcsFailureError{Op: "read gitignore", Err: err}
	}

	emberIgnore := filepath.Join(r.root, ".ember", "ignore")
	if data, err := os.ReadFile(emberIgnore); err == nil {
		for _, line := range splitLines(data) {
			if line == "" || line[0] == '#' {
				continue
			}
			patterns = append(patterns, gitignore.ParsePattern(line, nil))
		}
	}

	matcher := gitignore.NewMatcher(patterns)
	parts := strings.Split(filepath.ToSlash(path), "/")
	return matcher.Match(parts, false), nil
}

func (r *Repo) resolveTree(treeID string) (*object.Tree, error) {
	if treeID == "" || treeID == EmptyTreeSHA {
		return &object.Tree{}, nil
	}
	hash := plumbing.NewHash(treeID)
	tree, err := object.GetTree(r.repo.Storer, hash)
	if err != nil {
		return nil, &embererr.VcsFailureError{Op: fmt.Sprintf("resolve tree %s", treeID), Err: err}
	}
	return tree, nil
}

func osfsFor(root string) billy.Filesystem {
	return osfs.New(root)
}

func splitLines(b []byte) []string {
	var lines []string
	start := 0
	for i, c := range b {
		if c == '\n' {
			lines = append(lines, string(b[start:i]))
			start = i + 1
		}
	}
	if start < len(b) {
		lines = append(lines, string(b[start:]))
	}
	return lines
}

