// Package resource implements the uniform CRUD protocol every domain
// collection is built on.
//
// A Collection binds a filedb.Def to a concrete document type and routes
// every mutation through the named mutex keyed by the target reference, so
// read-modify-write cycles on one document never interleave. Creation is
// locked too: the existence check and the first write happen inside the
// same critical section, so two concurrent creates of one id produce
// exactly one success and one conflict.
package resource

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/indecisive-app/indecisive/internal/filedb"
	"github.com/indecisive-app/indecisive/internal/genid"
	"github.com/indecisive-app/indecisive/internal/models"
	"github.com/indecisive-app/indecisive/internal/mutex"
)

// Options configures a Collection.
type Options[T models.Document] struct {
	// New returns a default-initialized document (the def's builder hook).
	New func() T
	// Less orders List output; nil leaves the scan order.
	Less func(a, b T) bool
	// LockTimeout bounds mutex acquisition, mutex.DefaultTimeout if zero.
	LockTimeout time.Duration
}

// Collection is the CRUD surface for one resource definition.
type Collection[T models.Document] struct {
	def     *filedb.Def
	db      *filedb.DB
	locks   *mutex.Table
	newDoc  func() T
	less    func(a, b T) bool
	timeout time.Duration
}

// NewCollection binds def to a document type over db and locks.
func NewCollection[T models.Document](db *filedb.DB, locks *mutex.Table, def *filedb.Def, opts Options[T]) *Collection[T] {
	if opts.New == nil {
		panic("resource: Options.New is required")
	}
	return &Collection[T]{
		def:     def,
		db:      db,
		locks:   locks,
		newDoc:  opts.New,
		less:    opts.Less,
		timeout: opts.LockTimeout,
	}
}

// Def returns the collection's resource definition.
func (c *Collection[T]) Def() *filedb.Def { return c.def }

// Ref builds the resource reference for id under the given parent ids.
func (c *Collection[T]) Ref(id string, parentIDs ...string) filedb.Ref {
	return filedb.Ref{Def: c.def, ID: id, ParentIDs: parentIDs}
}

// List returns all documents in the collection. When hook is non-nil it
// runs per item; items for which it returns false are omitted, and the
// returned document (possibly redacted) replaces the original. Output is
// ordered by the collection's sort function when one is configured.
func (c *Collection[T]) List(ctx context.Context, hook func(T) (T, bool), parentIDs ...string) ([]T, error) {
	var out []T
	err := c.db.ListAll(c.def, parentIDs, func(path string, data []byte) error {
		doc := c.newDoc()
		if err := json.Unmarshal(data, doc); err != nil {
			return models.CorruptResource(path, err)
		}
		if hook != nil {
			mapped, keep := hook(doc)
			if !keep {
				return nil
			}
			doc = mapped
		}
		out = append(out, doc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if c.less != nil {
		sort.Slice(out, func(i, j int) bool { return c.less(out[i], out[j]) })
	}
	return out, nil
}

// Get resolves one document by id.
func (c *Collection[T]) Get(ctx context.Context, id string, parentIDs ...string) (T, error) {
	doc := c.newDoc()
	if err := c.db.Read(c.Ref(id, parentIDs...), doc); err != nil {
		var zero T
		return zero, err
	}
	return doc, nil
}

// Create persists a new document. An absent id is minted; an id that
// already exists is a conflict. The existence check and write share the
// target reference's lock.
func (c *Collection[T]) Create(ctx context.Context, doc T, parentIDs ...string) (T, error) {
	if doc.GetID() == "" {
		doc.SetID(genid.Random(0))
	}
	ref := c.Ref(doc.GetID(), parentIDs...)
	err := c.locks.WithLock(ref.String(), c.timeout, func() error {
		if c.db.Exists(ref) {
			return models.Conflict(c.def.Singular, doc.GetID())
		}
		doc.Stamp(time.Now(), true)
		_, err := c.db.Write(ctx, ref, doc, nil)
		return err
	})
	if err != nil {
		var zero T
		return zero, c.mapLockErr(err)
	}
	return doc, nil
}

// Update runs a locked read-modify-write cycle: the current document is
// re-read from storage (never trusted from a caller's copy), mutate is
// applied, the update timestamp refreshed, and the result persisted.
// Mutate must be pure with respect to storage; its error aborts the write.
func (c *Collection[T]) Update(ctx context.Context, id string, mutate func(T) error, parentIDs ...string) (T, error) {
	ref := c.Ref(id, parentIDs...)
	doc, err := mutex.Do(c.locks, ref.String(), c.timeout, func() (T, error) {
		cur := c.newDoc()
		if err := c.db.Read(ref, cur); err != nil {
			var zero T
			return zero, err
		}
		if err := mutate(cur); err != nil {
			var zero T
			return zero, err
		}
		cur.Stamp(time.Now(), false)
		if _, err := c.db.Write(ctx, ref, cur, nil); err != nil {
			var zero T
			return zero, err
		}
		return cur, nil
	})
	if err != nil {
		var zero T
		return zero, c.mapLockErr(err)
	}
	return doc, nil
}

// Put fully replaces the document at id. The payload id must match the
// path id; the creation timestamp is carried over from the stored copy.
func (c *Collection[T]) Put(ctx context.Context, id string, doc T, parentIDs ...string) (T, error) {
	if doc.GetID() == "" {
		doc.SetID(id)
	} else if doc.GetID() != id {
		var zero T
		return zero, models.BadRequest("payload id does not match path id").
			WithDetail("pathId", id).WithDetail("payloadId", doc.GetID())
	}
	ref := c.Ref(id, parentIDs...)
	out, err := mutex.Do(c.locks, ref.String(), c.timeout, func() (T, error) {
		cur := c.newDoc()
		if err := c.db.Read(ref, cur); err != nil {
			var zero T
			return zero, err
		}
		doc.Stamp(time.Now(), false)
		preserveCreated(doc, cur)
		if _, err := c.db.Write(ctx, ref, doc, nil); err != nil {
			var zero T
			return zero, err
		}
		return doc, nil
	})
	if err != nil {
		var zero T
		return zero, c.mapLockErr(err)
	}
	return out, nil
}

// Delete removes the document. When cascade is non-nil it runs after the
// removal with the deleted document; each cascading cleanup step reports
// its own error, and partial cascade failure never silently aborts the
// operation — the errors come back alongside the result.
func (c *Collection[T]) Delete(ctx context.Context, id string, cascade func(context.Context, T) []error, parentIDs ...string) (bool, []error, error) {
	ref := c.Ref(id, parentIDs...)
	var deleted T
	haveDoc := false
	removed, err := mutex.Do(c.locks, ref.String(), c.timeout, func() (bool, error) {
		doc := c.newDoc()
		if err := c.db.Read(ref, doc); err != nil {
			if models.IsNotFound(err) {
				return false, nil
			}
			return false, err
		}
		deleted = doc
		haveDoc = true
		return c.db.Delete(ctx, ref)
	})
	if err != nil {
		return false, nil, c.mapLockErr(err)
	}
	var cascadeErrs []error
	if removed && haveDoc && cascade != nil {
		cascadeErrs = cascade(ctx, deleted)
	}
	return removed, cascadeErrs, nil
}

// WithLock exposes the collection's lock for multi-step domain operations
// that span more than one CRUD call on the same reference.
func (c *Collection[T]) WithLock(ref filedb.Ref, fn func() error) error {
	err := c.locks.WithLock(ref.String(), c.timeout, fn)
	return c.mapLockErr(err)
}

// mapLockErr converts a mutex timeout into the API error taxonomy.
func (c *Collection[T]) mapLockErr(err error) error {
	var te *mutex.TimeoutError
	if errors.As(err, &te) {
		return models.LockTimeout(te.Name, te.Elapsed)
	}
	return err
}

// preserveCreated copies the stored creation timestamp onto a replacement
// document so Put does not reset it.
func preserveCreated(dst, src models.Document) {
	type created interface{ CreatedAt() time.Time }
	// Meta is embedded in every document; reach it through the interface.
	if d, ok := dst.(interface{ SetCreated(time.Time) }); ok {
		if s, ok := src.(created); ok {
			d.SetCreated(s.CreatedAt())
		}
	}
}
