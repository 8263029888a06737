package material

import (
	"sort"

	"go.uber.org/zap"
)

// Key identifies a material across assets.
type Key struct {
	Asset string
	ID    int32
}

// Store holds the materials a replica has received.
type Store struct {
	mats map[Key]*Material
	log  *zap.Logger
}

// NewStore creates an empty store.
func NewStore(log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{mats: make(map[Key]*Material), log: log}
}

// Apply records m, decoding its texture. A texture that fails to decode is
// dropped with a warning; the parameters are kept.
func (s *Store) Apply(m *Material) {
	if m.WebP != nil && m.Image == nil {
		img, err := DecodeWebP(m.WebP)
		if err != nil {
			s.log.Warn("dropping undecodable texture",
				zap.String("asset", m.Asset), zap.Int32("material", m.ID), zap.Error(err))
		} else {
			m.Image = img
		}
	}
	s.mats[Key{m.Asset, m.ID}] = m
}

// Get looks a material up.
func (s *Store) Get(asset string, id int32) (*Material, bool) {
	m, ok := s.mats[Key{asset, id}]
	return m, ok
}

// Transparent reports whether the material is known and transparent.
func (s *Store) Transparent(asset string, id int32) bool {
	m, ok := s.Get(asset, id)
	return ok && m.Transparent()
}

// Release drops every material of asset.
func (s *Store) Release(asset string) {
	for k := range s.mats {
		if k.Asset == asset {
			delete(s.mats, k)
		}
	}
}

// Keys returns the stored keys sorted by asset then id.
func (s *Store) Keys() []Key {
	keys := make([]Key, 0, len(s.mats))
	for k := range s.mats {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Asset != keys[j].Asset {
			return keys[i].Asset < keys[j].Asset
		}
		return keys[i].ID < keys[j].ID
	})
	return keys
}

// Len returns the number of stored materials.
func (s *Store) Len() int { return len(s.mats) }
