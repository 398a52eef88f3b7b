package trip

import (
	"sort"
	"strings"

	"github.com/samber/lo"
)

// Compare orders two observations of the same trip. The one with the later dropoff is
// greater; ties fall back to the canonical encoding of every field, greater wins. The
// result never depends on input order, so the same survivor is picked on any shard.
func Compare(a, b Record) int {
	if c := a.DropoffDatetime.Compare(b.DropoffDatetime); c != 0 {
		return c
	}

	return strings.Compare(contentKey(a), contentKey(b))
}

func contentKey(r Record) string {
	var buf []byte
	buf = appendField(buf, r.TripID)
	buf = appendField(buf, string(r.ServiceType))
	for _, def := range canonicalFields {
		v, _ := r.Value(def.Name)
		buf = appendField(buf, encodeValue(v))
	}

	keys := lo.Keys(r.Extras)
	sort.Strings(keys)
	for _, k := range keys {
		buf = appendField(buf, k)
		v := r.Extras[k]
		if v == nil {
			buf = append(buf, 0)
			continue
		}
		buf = append(buf, 1)
		buf = appendField(buf, encodeValue(v))
	}

	return string(buf)
}

// Deduplicator keeps the greatest observation per trip id. Feeding it the outputs of
// several shards gives the same result as feeding it the whole batch.
type Deduplicator struct {
	best map[string]Record
}

func NewDeduplicator() *Deduplicator {
	return &Deduplicator{best: make(map[string]Record)}
}

// Add offers an observation. Records without a trip id get one computed.
func (d *Deduplicator) Add(records ...Record) {
	for _, r := range records {
		if r.TripID == "" {
			r.TripID = ComputeID(r)
		}

		current, ok := d.best[r.TripID]
		if !ok || Compare(r, current) > 0 {
			d.best[r.TripID] = r
		}
	}
}

func (d *Deduplicator) Len() int {
	return len(d.best)
}

// Records returns the survivors sorted by trip id.
func (d *Deduplicator) Records() []Record {
	out := lo.Values(d.best)
	sort.Slice(out, func(i, j int) bool {
		return out[i].TripID < out[j].TripID
	})
	return out
}

// Deduplicate returns exactly one record per trip id.
func Deduplicate(records []Record) []Record {
	d := NewDeduplicator()
	d.Add(records...)
	return d.Records()
}
