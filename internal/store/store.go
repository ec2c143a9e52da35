// Package store persists the two pieces of durable state the overlay
// needs across restarts: the local node id and the ban list (spec §6),
// backed by the same goleveldb engine the teacher's database layer wraps.
package store

import (
	"errors"

	"github.com/syndtr/goleveldb/leveldb"

	"github.com/paseka1/Concordium/internal/nodeid"
	"github.com/paseka1/Concordium/internal/peer"
)

var nodeIDKey = []byte("nodeid")

const banPrefix = "bans/"

// Store wraps a leveldb handle rooted at <user_app_dir>.
type Store struct {
	db *leveldb.DB
}

// Open opens (creating if absent) the leveldb database at dir.
func Open(dir string) (*Store, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// LoadOrCreateNodeID returns the persisted node id, generating and
// persisting a fresh one on first run.
func (s *Store) LoadOrCreateNodeID() (nodeid.ID, error) {
	v, err := s.db.Get(nodeIDKey, nil)
	if err == nil {
		return nodeid.FromBytes(v)
	}
	if !errors.Is(err, leveldb.ErrNotFound) {
		return nodeid.ID{}, err
	}

	id, err := nodeid.Generate()
	if err != nil {
		return nodeid.ID{}, err
	}
	if err := s.db.Put(nodeIDKey, id[:], nil); err != nil {
		return nodeid.ID{}, err
	}
	return id, nil
}

// Ban persists p as banned.
func (s *Store) Ban(p peer.Peer) error {
	return s.db.Put(banKey(p.ID), p.Addr.IP, nil)
}

// Unban removes id from the persisted ban list.
func (s *Store) Unban(id nodeid.ID) error {
	return s.db.Delete(banKey(id), nil)
}

// LoadBans returns every persisted banned node id.
func (s *Store) LoadBans() ([]nodeid.ID, error) {
	iter := s.db.NewIterator(nil, nil)
	defer iter.Release()

	var out []nodeid.ID
	for iter.Next() {
		key := iter.Key()
		if len(key) <= len(banPrefix) || string(key[:len(banPrefix)]) != banPrefix {
			continue
		}
		id, err := nodeid.FromHex(string(key[len(banPrefix):]))
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out, iter.Error()
}

func banKey(id nodeid.ID) []byte {
	return append([]byte(banPrefix), []byte(id.String())...)
}
