// Package bolt provides a storage.Adapter backed by an embedded bbolt file.
//
// Every class is a top-level bucket. Keys are the big-endian bucket sequence
// assigned at insert, so a cursor walks objects in insertion order, and the
// object id is the decimal form of that sequence. Values are msgpack encoded
// documents without their id.
package bolt

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	bolt "go.etcd.io/bbolt"

	"github.com/syssam/veloxdb"
	"github.com/syssam/veloxdb/schema"
	"github.com/syssam/veloxdb/storage"
)

// Adapter is a bbolt backed storage.Adapter. bbolt serialises writers, so
// every mutation is atomic for the objects it touches.
type Adapter struct {
	path    string
	mode    os.FileMode
	timeout time.Duration

	mu sync.RWMutex
	db *bolt.DB
}

// Option configures the Adapter.
type Option func(*Adapter)

// WithTimeout sets how long Connect waits for the file lock. Default is 1s.
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		a.timeout = d
	}
}

// WithFileMode sets the mode of a newly created database file.
func WithFileMode(m os.FileMode) Option {
	return func(a *Adapter) {
		a.mode = m
	}
}

// New returns an adapter storing its data in the file at path. The file is
// opened by Connect.
func New(path string, opts ...Option) *Adapter {
	a := &Adapter{path: path, mode: 0o600, timeout: time.Second}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

var _ storage.Adapter = (*Adapter)(nil)

// Connect implements storage.Adapter.
func (a *Adapter) Connect(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db != nil {
		return nil
	}
	db, err := bolt.Open(a.path, a.mode, &bolt.Options{Timeout: a.timeout})
	if err != nil {
		return veloxdb.NewAdapterError("", "connect", err)
	}
	a.db = db
	return nil
}

// Close implements storage.Adapter.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}

func (a *Adapter) conn(class, op string) (*bolt.DB, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.db == nil {
		return nil, veloxdb.NewAdapterError(class, op, storage.ErrClosed)
	}
	return a.db, nil
}

// CreateClassIfNotExist implements storage.Adapter.
func (a *Adapter) CreateClassIfNotExist(_ context.Context, c *schema.Class) error {
	db, err := a.conn(c.Name, "createClass")
	if err != nil {
		return err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(c.Name))
		return err
	})
	return veloxdb.NewAdapterError(c.Name, "createClass", err)
}

// ClearDatabase implements storage.Adapter. Buckets are emptied and their
// sequences reset.
func (a *Adapter) ClearDatabase(context.Context) error {
	db, err := a.conn("", "clearDatabase")
	if err != nil {
		return err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		var names [][]byte
		if err := tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			names = append(names, bytes.Clone(name))
			return nil
		}); err != nil {
			return err
		}
		for _, name := range names {
			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}
		return nil
	})
	return veloxdb.NewAdapterError("", "clearDatabase", err)
}

func bucket(tx *bolt.Tx, class string) (*bolt.Bucket, error) {
	b := tx.Bucket([]byte(class))
	if b == nil {
		return nil, fmt.Errorf("class %q does not exist", class)
	}
	return b, nil
}

func key(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}

func parseID(id string) ([]byte, bool) {
	seq, err := strconv.ParseUint(id, 10, 64)
	if err != nil || seq == 0 {
		return nil, false
	}
	return key(seq), true
}

func encode(doc veloxdb.Object) ([]byte, error) {
	data := make(map[string]any, len(doc))
	for k, v := range doc {
		if k != veloxdb.FieldID {
			data[k] = v
		}
	}
	return msgpack.Marshal(data)
}

func decode(k, v []byte) (veloxdb.Object, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(v))
	dec.UseLooseInterfaceDecoding(true)
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	doc := veloxdb.Object(m)
	if doc == nil {
		doc = veloxdb.Object{}
	}
	doc[veloxdb.FieldID] = strconv.FormatUint(binary.BigEndian.Uint64(k), 10)
	return doc, nil
}

// scan returns the documents of b matching q.
func scan(b *bolt.Bucket, q storage.Query) ([]veloxdb.Object, error) {
	var docs []veloxdb.Object
	if ids, ok := storage.IDConstraint(q.Where); ok {
		for _, id := range storage.Dedup(ids) {
			k, ok := parseID(id)
			if !ok {
				continue
			}
			v := b.Get(k)
			if v == nil {
				continue
			}
			doc, err := decode(k, v)
			if err != nil {
				return nil, err
			}
			docs = append(docs, doc)
		}
		return q.Apply(docs), nil
	}
	err := b.ForEach(func(k, v []byte) error {
		doc, err := decode(k, v)
		if err != nil {
			return err
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return q.Apply(docs), nil
}

func (a *Adapter) view(class, op string, fn func(*bolt.Bucket) error) error {
	db, err := a.conn(class, op)
	if err != nil {
		return err
	}
	err = db.View(func(tx *bolt.Tx) error {
		b, err := bucket(tx, class)
		if err != nil {
			return err
		}
		return fn(b)
	})
	return veloxdb.NewAdapterError(class, op, err)
}

func (a *Adapter) update(class, op string, fn func(*bolt.Bucket) error) error {
	db, err := a.conn(class, op)
	if err != nil {
		return err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		b, err := bucket(tx, class)
		if err != nil {
			return err
		}
		return fn(b)
	})
	return veloxdb.NewAdapterError(class, op, err)
}

// Count implements storage.Adapter.
func (a *Adapter) Count(_ context.Context, p storage.CountParams) (n int, err error) {
	err = a.view(p.ClassName, "count", func(b *bolt.Bucket) error {
		docs, err := scan(b, storage.Query{Where: p.Where})
		n = len(docs)
		return err
	})
	return n, err
}

// GetObject implements storage.Adapter.
func (a *Adapter) GetObject(_ context.Context, p storage.GetObjectParams) (obj veloxdb.Object, err error) {
	err = a.view(p.ClassName, "getObject", func(b *bolt.Bucket) error {
		docs, err := scan(b, storage.Query{Where: storage.ByID(p.ID, p.Where)})
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			return veloxdb.NewNotFoundErrorWithID(p.ClassName, p.ID)
		}
		obj = docs[0].Project(p.Fields)
		return nil
	})
	return obj, err
}

// GetObjects implements storage.Adapter.
func (a *Adapter) GetObjects(_ context.Context, p storage.GetObjectsParams) (objs []veloxdb.Object, err error) {
	err = a.view(p.ClassName, "getObjects", func(b *bolt.Bucket) error {
		docs, err := scan(b, storage.Query{Where: p.Where, Order: p.Order, Offset: p.Offset, First: p.First})
		objs = storage.ProjectAll(docs, p.Fields)
		return err
	})
	return objs, err
}

func insert(b *bolt.Bucket, data veloxdb.Object) (veloxdb.Object, error) {
	seq, err := b.NextSequence()
	if err != nil {
		return nil, err
	}
	doc := storage.Patch(nil, data)
	v, err := encode(doc)
	if err != nil {
		return nil, err
	}
	if err := b.Put(key(seq), v); err != nil {
		return nil, err
	}
	doc[veloxdb.FieldID] = strconv.FormatUint(seq, 10)
	return doc, nil
}

// CreateObject implements storage.Adapter.
func (a *Adapter) CreateObject(_ context.Context, p storage.CreateObjectParams) (obj veloxdb.Object, err error) {
	err = a.update(p.ClassName, "createObject", func(b *bolt.Bucket) error {
		doc, err := insert(b, p.Data)
		if err != nil {
			return err
		}
		obj = doc.Project(p.Fields)
		return nil
	})
	return obj, err
}

// CreateObjects implements storage.Adapter. The batch is written in one
// transaction.
func (a *Adapter) CreateObjects(_ context.Context, p storage.CreateObjectsParams) (objs []veloxdb.Object, err error) {
	err = a.update(p.ClassName, "createObjects", func(b *bolt.Bucket) error {
		objs = make([]veloxdb.Object, 0, len(p.Data))
		for _, data := range p.Data {
			doc, err := insert(b, data)
			if err != nil {
				return err
			}
			objs = append(objs, doc.Project(p.Fields))
		}
		return nil
	})
	return objs, err
}

func put(b *bolt.Bucket, doc veloxdb.Object) error {
	k, ok := parseID(doc.ID())
	if !ok {
		return fmt.Errorf("invalid object id %q", doc.ID())
	}
	v, err := encode(doc)
	if err != nil {
		return err
	}
	return b.Put(k, v)
}

// UpdateObject implements storage.Adapter.
func (a *Adapter) UpdateObject(_ context.Context, p storage.UpdateObjectParams) (obj veloxdb.Object, err error) {
	err = a.update(p.ClassName, "updateObject", func(b *bolt.Bucket) error {
		docs, err := scan(b, storage.Query{Where: storage.ByID(p.ID, p.Where)})
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			return veloxdb.NewNotFoundErrorWithID(p.ClassName, p.ID)
		}
		doc := storage.Patch(docs[0], p.Data)
		if err := put(b, doc); err != nil {
			return err
		}
		obj = doc.Project(p.Fields)
		return nil
	})
	return obj, err
}

// UpdateObjects implements storage.Adapter.
func (a *Adapter) UpdateObjects(_ context.Context, p storage.UpdateObjectsParams) (objs []veloxdb.Object, err error) {
	err = a.update(p.ClassName, "updateObjects", func(b *bolt.Bucket) error {
		docs, err := scan(b, storage.Query{Where: p.Where, Order: p.Order, Offset: p.Offset, First: p.First})
		if err != nil {
			return err
		}
		objs = make([]veloxdb.Object, 0, len(docs))
		for _, d := range docs {
			doc := storage.Patch(d, p.Data)
			if err := put(b, doc); err != nil {
				return err
			}
			objs = append(objs, doc.Project(p.Fields))
		}
		return nil
	})
	return objs, err
}

// DeleteObject implements storage.Adapter.
func (a *Adapter) DeleteObject(_ context.Context, p storage.DeleteObjectParams) (obj veloxdb.Object, err error) {
	err = a.update(p.ClassName, "deleteObject", func(b *bolt.Bucket) error {
		docs, err := scan(b, storage.Query{Where: storage.ByID(p.ID, p.Where)})
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			return veloxdb.NewNotFoundErrorWithID(p.ClassName, p.ID)
		}
		k, _ := parseID(p.ID)
		if err := b.Delete(k); err != nil {
			return err
		}
		obj = docs[0].Project(p.Fields)
		return nil
	})
	return obj, err
}

// DeleteObjects implements storage.Adapter.
func (a *Adapter) DeleteObjects(_ context.Context, p storage.DeleteObjectsParams) (objs []veloxdb.Object, err error) {
	err = a.update(p.ClassName, "deleteObjects", func(b *bolt.Bucket) error {
		docs, err := scan(b, storage.Query{Where: p.Where, Order: p.Order, Offset: p.Offset, First: p.First})
		if err != nil {
			return err
		}
		for _, d := range docs {
			k, _ := parseID(d.ID())
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		objs = storage.ProjectAll(docs, p.Fields)
		return nil
	})
	return objs, err
}

// IsTimeout reports whether err came from Connect failing to lock the file.
func IsTimeout(err error) bool {
	return errors.Is(err, bolt.ErrTimeout)
}
