// Package filedb maps resource references to JSON documents on disk.
//
// Layout is {root}/{namespace}/{collection}/{id}.json, one pretty-printed
// document per file. The file system is the single source of truth: no
// cache survives across operations, every read re-parses the file and
// every write overwrites it. Writes are optionally committed to a local
// git repository as a best-effort audit trail.
package filedb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/indecisive-app/indecisive/internal/models"
)

// Def is the static descriptor for a resource collection. Name and
// Singular compute file paths: they must be unique within a namespace and
// must never change once data has been stored.
type Def struct {
	Namespace string
	Name      string // collection name, plural
	Singular  string
	Param     string // URL path parameter name
	SortField string
	Parents   []*Def // enclosing resources, outermost first
}

// Ref is a resolved pointer to one stored document. Refs are produced
// fresh per operation and never cached across requests, because parent ids
// vary with request context.
type Ref struct {
	Def       *Def
	ID        string
	ParentIDs []string // one per entry in Def.Parents, same order
}

// String returns the canonical "namespace:collection:id" form, with parent
// collection/id pairs interleaved for nested resources. It doubles as the
// named-mutex lock name for this document.
func (r Ref) String() string {
	parts := []string{r.Def.Namespace}
	for i, p := range r.Def.Parents {
		parts = append(parts, p.Name)
		if i < len(r.ParentIDs) {
			parts = append(parts, r.ParentIDs[i])
		}
	}
	parts = append(parts, r.Def.Name, r.ID)
	return strings.Join(parts, ":")
}

// Equal reports whether two refs identify the same document.
func (r Ref) Equal(o Ref) bool {
	return r.String() == o.String()
}

// ValidateID rejects ids that cannot safely become a path component.
func ValidateID(id string) error {
	if id == "" {
		return models.BadRequest("resource id is empty")
	}
	if id == "." || id == ".." || strings.ContainsAny(id, "/\\") || strings.Contains(id, "..") {
		return models.BadRequest(fmt.Sprintf("invalid resource id %q", id))
	}
	return nil
}

// WriteOptions controls a single Write.
type WriteOptions struct {
	// SkipCommit suppresses the git commit for this write.
	SkipCommit bool
	// Message overrides the default commit message.
	Message string
}

// DB is the file-backed store.
type DB struct {
	root string
	repo *repo // nil when commits are disabled
}

// New opens a store rooted at dir. When commits is true, dir is opened (or
// initialized) as a git repository and every write is committed.
func New(dir string, commits bool) (*DB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, models.StorageError("failed to create database root", err)
	}
	d := &DB{root: dir}
	if commits {
		r, err := openRepo(dir)
		if err != nil {
			return nil, err
		}
		d.repo = r
	}
	return d, nil
}

// Root returns the database root directory.
func (d *DB) Root() string { return d.root }

// path computes the backing file path for ref, validating every id
// component against traversal.
func (d *DB) path(ref Ref) (string, error) {
	if err := ValidateID(ref.ID); err != nil {
		return "", err
	}
	if len(ref.ParentIDs) != len(ref.Def.Parents) {
		return "", models.Internal(fmt.Sprintf("resource %s needs %d parent ids, got %d",
			ref.Def.Name, len(ref.Def.Parents), len(ref.ParentIDs)))
	}
	dir := filepath.Join(d.root, ref.Def.Namespace)
	for i, p := range ref.Def.Parents {
		if err := ValidateID(ref.ParentIDs[i]); err != nil {
			return "", err
		}
		dir = filepath.Join(dir, p.Name, ref.ParentIDs[i])
	}
	return filepath.Join(dir, ref.Def.Name, ref.ID+".json"), nil
}

// collectionDir computes the directory holding a collection.
func (d *DB) collectionDir(def *Def, parentIDs []string) (string, error) {
	if len(parentIDs) != len(def.Parents) {
		return "", models.Internal(fmt.Sprintf("resource %s needs %d parent ids, got %d",
			def.Name, len(def.Parents), len(parentIDs)))
	}
	dir := filepath.Join(d.root, def.Namespace)
	for i, p := range def.Parents {
		if err := ValidateID(parentIDs[i]); err != nil {
			return "", err
		}
		dir = filepath.Join(dir, p.Name, parentIDs[i])
	}
	return filepath.Join(dir, def.Name), nil
}

// Exists reports whether the backing file for ref is present.
func (d *DB) Exists(ref Ref) bool {
	path, err := d.path(ref)
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Read parses the backing file for ref into dst. A missing file yields a
// not-found error so callers can distinguish absence from corruption; an
// unparseable file is a corrupt-resource error, never treated as absent.
func (d *DB) Read(ref Ref, dst any) error {
	path, err := d.path(ref)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return models.NotFound(ref.Def.Singular).WithDetail("id", ref.ID)
		}
		return models.StorageError(fmt.Sprintf("failed to read %s", ref.Def.Singular), err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return models.CorruptResource(path, err)
	}
	return nil
}

// Write serializes doc deterministically (2-space indent, struct field
// order) and overwrites the backing file, creating directories as needed.
// Unless opts.SkipCommit, the change is also committed to the git history;
// a commit failure is logged, never raised, since history is best-effort.
func (d *DB) Write(ctx context.Context, ref Ref, doc any, opts *WriteOptions) (string, error) {
	path, err := d.path(ref)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", models.Internal(fmt.Sprintf("failed to serialize %s", ref.Def.Singular)).Wrap(err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", models.StorageError("failed to create collection directory", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", models.StorageError(fmt.Sprintf("failed to write %s", ref.Def.Singular), err)
	}
	d.commit(ctx, ref, path, opts, "write")
	return path, nil
}

// Delete removes the backing file for ref. It reports whether a file was
// actually removed; deleting an absent document is not an error.
func (d *DB) Delete(ctx context.Context, ref Ref) (bool, error) {
	path, err := d.path(ref)
	if err != nil {
		return false, err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, models.StorageError(fmt.Sprintf("failed to delete %s", ref.Def.Singular), err)
	}
	d.commit(ctx, ref, path, nil, "delete")
	return true, nil
}

// ListAll calls each for every document file in the collection, in
// unspecified order. A missing collection directory is an empty
// collection, not an error. Undecodable entries are each's concern.
func (d *DB) ListAll(def *Def, parentIDs []string, each func(path string, data []byte) error) error {
	dir, err := d.collectionDir(def, parentIDs)
	if err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return models.StorageError(fmt.Sprintf("failed to read %s directory", def.Name), err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return models.StorageError(fmt.Sprintf("failed to read %s", path), err)
		}
		if err := each(path, data); err != nil {
			return err
		}
	}
	return nil
}

// ListParents calls each for every child id directory of a parent
// collection (e.g. the rubric ids that have grades under them).
func (d *DB) ListParents(def *Def, each func(id string) error) error {
	if len(def.Parents) == 0 {
		return nil
	}
	dir := filepath.Join(d.root, def.Namespace, def.Parents[len(def.Parents)-1].Name)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return models.StorageError(fmt.Sprintf("failed to read %s directory", dir), err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if err := each(entry.Name()); err != nil {
			return err
		}
	}
	return nil
}

// commit stages path and records it in the git history, logging failures.
func (d *DB) commit(ctx context.Context, ref Ref, path string, opts *WriteOptions, op string) {
	if d.repo == nil || (opts != nil && opts.SkipCommit) {
		return
	}
	msg := ""
	if opts != nil {
		msg = opts.Message
	}
	if msg == "" {
		msg = fmt.Sprintf("%s: %s %s", op, ref.Def.Singular, ref.ID)
	}
	rel, err := filepath.Rel(d.root, path)
	if err != nil {
		rel = path
	}
	if err := d.repo.commit(ctx, rel, msg); err != nil {
		slog.WarnContext(ctx, "Failed to commit change", "ref", ref.String(), "err", err)
	}
}
