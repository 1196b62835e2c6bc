// skipped.go implements the two bounded skipped-key caches SessionState
// carries: mk_skipped (a (dh_pub, n) -> message key index that refuses
// new entries when full rather than evicting) and hk_skipped (an old
// dh_pub -> (hk_r_old, nhk_r_old) index, FIFO-evicted when full).
package ratchet

import (
	"bytes"
	"sort"

	"github.com/qsproto/qsp-core/internal/constants"
	qerrors "github.com/qsproto/qsp-core/internal/errors"
)

// MkSkippedKey identifies one skipped message key by the epoch it belongs
// to and its in-epoch sequence number.
type MkSkippedKey struct {
	DHPub [32]byte
	N     uint32
}

// MkSkippedStore is the arena-and-index pattern from spec §9: a map for
// O(1) lookup/removal plus an order slice that records insertion order.
// Nothing is evicted; snapshot serialization uses SortedKeys instead.
type MkSkippedStore struct {
	order []MkSkippedKey
	byKey map[MkSkippedKey][]byte
}

// NewMkSkippedStore returns an empty store.
func NewMkSkippedStore() *MkSkippedStore {
	return &MkSkippedStore{byKey: make(map[MkSkippedKey][]byte)}
}

// Put inserts a fresh skipped key. It fails on a duplicate key (§4.4.7)
// and fails once the store is at capacity rather than silently evicting
// a sibling entry.
func (s *MkSkippedStore) Put(key MkSkippedKey, mk []byte) error {
	if _, exists := s.byKey[key]; exists {
		return qerrors.ErrDuplicateSkippedKey
	}
	if len(s.order) >= constants.MaxMkSkipped {
		return qerrors.ErrMkSkippedFull
	}
	s.byKey[key] = append([]byte{}, mk...)
	s.order = append(s.order, key)
	return nil
}

// Take removes and returns the message key for (dhPub, n), if present.
func (s *MkSkippedStore) Take(key MkSkippedKey) ([]byte, bool) {
	mk, ok := s.byKey[key]
	if !ok {
		return nil, false
	}
	delete(s.byKey, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return mk, true
}

// Len reports the number of skipped keys currently stored.
func (s *MkSkippedStore) Len() int { return len(s.order) }

// Clone returns a deep, independent copy for draft-before-commit mutation.
func (s *MkSkippedStore) Clone() *MkSkippedStore {
	out := NewMkSkippedStore()
	out.order = append([]MkSkippedKey{}, s.order...)
	for k, v := range s.byKey {
		out.byKey[k] = append([]byte{}, v...)
	}
	return out
}

// SortedKeys returns every key in ascending (dh_pub, n) lexicographic
// order, the canonical ordering snapshot serialization requires (§6.3,
// §9 "deterministic snapshots require sorted containers").
func (s *MkSkippedStore) SortedKeys() []MkSkippedKey {
	out := append([]MkSkippedKey{}, s.order...)
	sort.Slice(out, func(i, j int) bool {
		c := bytes.Compare(out[i].DHPub[:], out[j].DHPub[:])
		if c != 0 {
			return c < 0
		}
		return out[i].N < out[j].N
	})
	return out
}

// Get returns the message key for a sorted-order key without removing it;
// used by snapshot encoding.
func (s *MkSkippedStore) Get(key MkSkippedKey) ([]byte, bool) {
	v, ok := s.byKey[key]
	return v, ok
}

// hkSkippedEntry is one retired header-key pair, indexed by the dh_pub it
// was valid under.
type hkSkippedEntry struct {
	dhPub [32]byte
	hkOld []byte
	nhkOld []byte
}

// HkSkippedStore is the FIFO-evicted index of retired header keys.
type HkSkippedStore struct {
	order   []hkSkippedEntry
}

// NewHkSkippedStore returns an empty store.
func NewHkSkippedStore() *HkSkippedStore { return &HkSkippedStore{} }

// Put inserts (hkOld, nhkOld) under dhPub. A duplicate dhPub is a no-op
// (§4.4.7); once full, the oldest entry is evicted to make room.
func (s *HkSkippedStore) Put(dhPub [32]byte, hkOld, nhkOld []byte) {
	for _, e := range s.order {
		if e.dhPub == dhPub {
			return
		}
	}
	if len(s.order) >= constants.MaxHkSkipped {
		s.order = s.order[1:]
	}
	s.order = append(s.order, hkSkippedEntry{
		dhPub:  dhPub,
		hkOld:  append([]byte{}, hkOld...),
		nhkOld: append([]byte{}, nhkOld...),
	})
}

// Get returns the (hkOld, nhkOld) pair stored under dhPub, if any.
func (s *HkSkippedStore) Get(dhPub [32]byte) (hkOld, nhkOld []byte, ok bool) {
	for _, e := range s.order {
		if e.dhPub == dhPub {
			return e.hkOld, e.nhkOld, true
		}
	}
	return nil, nil, false
}

// Len reports the number of retired header-key entries currently stored.
func (s *HkSkippedStore) Len() int { return len(s.order) }

// Clone returns a deep, independent copy for draft-before-commit mutation.
func (s *HkSkippedStore) Clone() *HkSkippedStore {
	out := NewHkSkippedStore()
	for _, e := range s.order {
		out.order = append(out.order, hkSkippedEntry{
			dhPub:  e.dhPub,
			hkOld:  append([]byte{}, e.hkOld...),
			nhkOld: append([]byte{}, e.nhkOld...),
		})
	}
	return out
}

// SortedByDHPub returns every retired entry in ascending dh_pub order, the
// canonical order snapshot encoding requires.
func (s *HkSkippedStore) SortedByDHPub() []struct {
	DHPub  [32]byte
	HKOld  []byte
	NHKOld []byte
} {
	out := make([]struct {
		DHPub  [32]byte
		HKOld  []byte
		NHKOld []byte
	}, len(s.order))
	for i, e := range s.order {
		out[i].DHPub = e.dhPub
		out[i].HKOld = e.hkOld
		out[i].NHKOld = e.nhkOld
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].DHPub[:], out[j].DHPub[:]) < 0
	})
	return out
}
