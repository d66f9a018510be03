package memory

import (
	"github.com/BaSui01/memflow/types"
)

// failureValueFactor discounts the eviction value of unsuccessful
// records: value = access_count * (1 if success else 0.3).
const failureValueFactor = 0.3

// longTermStore holds promoted records with a token index for candidate
// lookup. It is not safe for concurrent use; the Manager's lock guards
// it.
type longTermStore struct {
	records map[string]*types.TaskRecord
	// byToken maps each fingerprint token to the ids containing it.
	byToken map[string]map[string]struct{}
}

func newLongTermStore() *longTermStore {
	return &longTermStore{
		records: make(map[string]*types.TaskRecord),
		byToken: make(map[string]map[string]struct{}),
	}
}

func (s *longTermStore) put(rec *types.TaskRecord) {
	if existing, ok := s.records[rec.ID]; ok {
		s.unindex(existing)
	}
	s.records[rec.ID] = rec
	s.index(rec)
}

func (s *longTermStore) get(id string) (*types.TaskRecord, bool) {
	rec, ok := s.records[id]
	return rec, ok
}

func (s *longTermStore) remove(id string) (*types.TaskRecord, bool) {
	rec, ok := s.records[id]
	if !ok {
		return nil, false
	}
	s.unindex(rec)
	delete(s.records, id)
	return rec, true
}

func (s *longTermStore) all() []*types.TaskRecord {
	out := make([]*types.TaskRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	return out
}

func (s *longTermStore) size() int {
	return len(s.records)
}

func (s *longTermStore) clear() int {
	cleared := len(s.records)
	s.records = make(map[string]*types.TaskRecord)
	s.byToken = make(map[string]map[string]struct{})
	return cleared
}

// candidates returns the records sharing at least one token with the
// query fingerprint. Records with no shared token cannot score above
// zero, so a positive-threshold search never needs them.
func (s *longTermStore) candidates(fp types.Fingerprint) []*types.TaskRecord {
	seen := make(map[string]struct{})
	out := make([]*types.TaskRecord, 0)
	for _, token := range fp {
		for id := range s.byToken[token] {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, s.records[id])
		}
	}
	return out
}

// evictLowestValue removes and returns the record with the lowest
// eviction value, ties broken by oldest created_at. Returns nil when
// the store is empty.
func (s *longTermStore) evictLowestValue() *types.TaskRecord {
	var victim *types.TaskRecord
	var victimValue float64

	for _, rec := range s.records {
		value := evictionValue(rec)
		if victim == nil ||
			value < victimValue ||
			(value == victimValue && rec.CreatedAt.Before(victim.CreatedAt)) {
			victim = rec
			victimValue = value
		}
	}

	if victim == nil {
		return nil
	}
	s.unindex(victim)
	delete(s.records, victim.ID)
	return victim
}

func evictionValue(rec *types.TaskRecord) float64 {
	if rec.Success {
		return float64(rec.AccessCount)
	}
	return float64(rec.AccessCount) * failureValueFactor
}

func (s *longTermStore) index(rec *types.TaskRecord) {
	for _, token := range rec.Fingerprint {
		ids, ok := s.byToken[token]
		if !ok {
			ids = make(map[string]struct{})
			s.byToken[token] = ids
		}
		ids[rec.ID] = struct{}{}
	}
}

func (s *longTermStore) unindex(rec *types.TaskRecord) {
	for _, token := range rec.Fingerprint {
		ids, ok := s.byToken[token]
		if !ok {
			continue
		}
		delete(ids, rec.ID)
		if len(ids) == 0 {
			delete(s.byToken, token)
		}
	}
}
