package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"time"

	"github.com/boltdb/bolt"
	"github.com/pkg/errors"
)

var (
	filesBucket   = []byte("files")
	historyBucket = []byte("history")
)

// Bolt keeps every repository in its own top-level bucket of a single bolt
// file. Content lives in the nested "files" bucket and each write appends a
// gob-encoded Commit to "history".
type Bolt struct {
	db   *bolt.DB
	repo []byte
}

// OpenBolt opens (or creates) the bolt file at path.
func OpenBolt(path string) (*bolt.DB, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(ErrUnavailable, "open boltdb at %v: %v", path, err)
	}
	return db, nil
}

// NewBolt returns the store for repoID inside db, creating its buckets.
func NewBolt(db *bolt.DB, repoID string) (*Bolt, error) {
	if repoID == "" {
		return nil, errors.New("empty repository id")
	}
	b := &Bolt{db: db, repo: []byte(repoID)}
	err := db.Update(func(tx *bolt.Tx) error {
		root, err := tx.CreateBucketIfNotExists(b.repo)
		if err != nil {
			return err
		}
		if _, err := root.CreateBucketIfNotExists(filesBucket); err != nil {
			return err
		}
		_, err = root.CreateBucketIfNotExists(historyBucket)
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create buckets for %s", repoID)
	}
	return b, nil
}

func (b *Bolt) ReadFile(ctx context.Context, p string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := CleanPath(p)
	if err != nil {
		return nil, err
	}
	var out []byte
	err = b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(b.repo).Bucket(filesBucket).Get([]byte(p))
		if v == nil {
			return ErrNotFound
		}
		// Values are only valid for the life of the transaction.
		out = append([]byte{}, v...)
		return nil
	})
	return out, err
}

func (b *Bolt) WriteFile(ctx context.Context, p string, data []byte, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := CleanPath(p)
	if err != nil {
		return err
	}
	err = b.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(b.repo)
		if err := root.Bucket(filesBucket).Put([]byte(p), data); err != nil {
			return err
		}
		hist := root.Bucket(historyBucket)
		seq, err := hist.NextSequence()
		if err != nil {
			return err
		}
		var val bytes.Buffer
		c := Commit{Path: p, Message: message, Time: time.Now().UTC(), Size: len(data)}
		if err := gob.NewEncoder(&val).Encode(c); err != nil {
			return errors.Wrapf(err, "encode commit for %s", p)
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return hist.Put(key, val.Bytes())
	})
	return errors.Wrapf(err, "write %s", p)
}

// History lists the commits touching p, oldest first. An empty p lists all.
func (b *Bolt) History(ctx context.Context, p string) ([]Commit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []Commit
	err := b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(b.repo).Bucket(historyBucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var cm Commit
			if err := gob.NewDecoder(bytes.NewReader(v)).Decode(&cm); err != nil {
				return errors.Wrapf(err, "decode commit of length %d", len(v))
			}
			if p == "" || cm.Path == p {
				out = append(out, cm)
			}
		}
		return nil
	})
	return out, err
}

// BoltProvider shares one bolt file across repositories.
type BoltProvider struct {
	DB *bolt.DB
}

func (p BoltProvider) Open(repoID string) (Store, error) {
	return NewBolt(p.DB, repoID)
}
