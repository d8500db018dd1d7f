package vcs

import (
	"sort"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage"
)

// treeBuilder assembles a synthetic tree of blob/tree objects against
// the repository's own object store. This writes loose, content-
// addressed objects to .git/objects, which is distinct from and never
// touches the persistent *index* (.git/index, the staging area) — the
// thing the VCS probe contract guarantees it never mutates. Writing
// through the repo's real storer (rather than a throwaway one) is
// required so the returned tree hash is resolvable by ordinary tree
// lookups for the rest of the synthetic tree's lifetime; an orphan
// blob/tree with no ref pointing at it is otherwise indistinguishable
// from one git itself wrote and is harmless to leave behind.
type treeBuilder struct {
	scratch storage.Storer
	blobs   map[string]plumbing.Hash
}

func newTreeBuilder(s storage.Storer) *treeBuilder {
	return &treeBuilder{
		scratch: s,
		blobs:   make(map[string]plumbing.Hash),
	}
}

// add stores data as a blob in the repository's object store, keyed by
// path.
func (b *treeBuilder) add(path string, data []byte) error {
	obj := b.scratch.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	w, err := obj.Writer()
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	hash, err := b.scratch.SetEncodedObject(obj)
	if err != nil {
		return err
	}
	b.blobs[path] = hash
	return nil
}

// addHash records path as already pointing at an existing blob hash,
// for entries whose content is already in the object store (staged
// index entries were hashed and written by `git add` itself).
func (b *treeBuilder) addHash(path string, hash plumbing.Hash) {
	b.blobs[path] = hash
}

// write recursively encodes the directory hierarchy implied by the
// added paths and returns the root tree's hash.
func (b *treeBuilder) write() (plumbing.Hash, error) {
	paths := make([]string, 0, len(b.blobs))
	for p := range b.blobs {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return b.writeDir(paths, "")
}

// writeDir writes the tree for the directory prefix (empty for root),
// given the full sorted set of blob paths.
func (b *treeBuilder) writeDir(allPaths []string, prefix string) (plumbing.Hash, error) {
	type dirEntry struct {
		name    string
		isDir   bool
		hash    plumbing.Hash
		subTree []string
	}
	var entries []dirEntry
	seen := make(map[string]int)

	for _, p := range allPaths {
		if prefix != "" && !strings.HasPrefix(p, prefix+"/") {
			continue
		}
		rel := p
		if prefix != "" {
			rel = strings.TrimPrefix(p, prefix+"/")
		}
		parts := strings.SplitN(rel, "/", 2)
		if len(parts) == 1 {
			entries = append(entries, dirEntry{name: parts[0], hash: b.blobs[p]})
			continue
		}
		idx, ok := seen[parts[0]]
		if !ok {
			idx = len(entries)
			seen[parts[0]] = idx
			entries = append(entries, dirEntry{name: parts[0], isDir: true})
		}
		child := rel
		if prefix != "" {
			child = prefix + "/" + rel
		}
		entries[idx].subTree = append(entries[idx].subTree, child)
	}

	tree := &object.Tree{}
	for _, e := range entries {
		if e.isDir {
			childPrefix := e.name
			if prefix != "" {
				childPrefix = prefix + "/" + e.name
			}
			hash, err := b.writeDir(allPaths, childPrefix)
			if err != nil {
				return plumbing.ZeroHash, err
			}
			tree.Entries = append(tree.Entries, object.TreeEntry{Name: e.name, Mode: filemode.Dir, Hash: hash})
			continue
		}
		tree.Entries = append(tree.Entries, object.TreeEntry{Name: e.name, Mode: filemode.Regular, Hash: e.hash})
	}

	sort.Slice(tree.Entries, func(i, j int) bool { return tree.Entries[i].Name < tree.Entries[j].Name })

	obj := b.scratch.NewEncodedObject()
	if err := tree.Encode(obj); err != nil {
		return plumbing.ZeroHash, err
	}
	return b.scratch.SetEncodedObject(obj)
}

// discard drops the builder's references. The objects it wrote remain
// in the repository's object store as unreachable loose objects; there
// is no index entry or ref to revert.
func (b *treeBuilder) discard() {
	b.scratch = nil
	b.blobs = nil
}
