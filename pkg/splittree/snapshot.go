package splittree

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/Sumatoshi-tech/forestcheck/pkg/addtree"
	"github.com/Sumatoshi-tech/forestcheck/pkg/domain"
	"github.com/Sumatoshi-tech/forestcheck/pkg/persist"
)

// ErrSnapshotShape indicates a leaf snapshot that does not fit the ensemble.
var ErrSnapshotShape = errors.New("leaf snapshot does not match ensemble")

// interval is a JSON-safe RealDomain; a missing bound is infinite.
type interval struct {
	Feature int      `json:"feature"`
	Lo      *float64 `json:"lo,omitempty"`
	Hi      *float64 `json:"hi,omitempty"`
}

type leafJSON struct {
	ID      int           `json:"id"`
	Box     []interval    `json:"box"`
	Reach   [][]uint64    `json:"reach"`
	Split   *domain.Split `json:"split,omitempty"`
	Score   int           `json:"score"`
	Balance int           `json:"balance"`
}

// MarshalJSON encodes the leaf including reachability and the chosen split.
func (l *Leaf) MarshalJSON() ([]byte, error) {
	lj := leafJSON{ID: l.id, Score: l.score, Balance: l.balance, Reach: make([][]uint64, len(l.reach))}

	for _, f := range l.box.Features() {
		d := l.box[f]
		iv := interval{Feature: f}

		if !math.IsInf(d.Lo, 0) {
			lo := d.Lo
			iv.Lo = &lo
		}

		if !math.IsInf(d.Hi, 0) {
			hi := d.Hi
			iv.Hi = &hi
		}

		lj.Box = append(lj.Box, iv)
	}

	for i, r := range l.reach {
		lj.Reach[i] = r
	}

	if l.hasSplit {
		s := l.best
		lj.Split = &s
	}

	return json.Marshal(lj)
}

// UnmarshalJSON decodes a leaf written by MarshalJSON.
func (l *Leaf) UnmarshalJSON(data []byte) error {
	var lj leafJSON
	if err := json.Unmarshal(data, &lj); err != nil {
		return fmt.Errorf("decode leaf: %w", err)
	}

	box := make(domain.Box, len(lj.Box))

	for _, iv := range lj.Box {
		d := domain.Everything()
		if iv.Lo != nil {
			d.Lo = *iv.Lo
		}

		if iv.Hi != nil {
			d.Hi = *iv.Hi
		}

		box[iv.Feature] = d
	}

	*l = Leaf{id: lj.ID, box: box, score: lj.Score, balance: lj.Balance, reach: make([]bitset, len(lj.Reach))}

	for i, r := range lj.Reach {
		l.reach[i] = r
	}

	if lj.Split != nil {
		l.best, l.hasSplit = *lj.Split, true
	}

	return nil
}

// Fits returns an error unless the leaf's reachability sets match the
// ensemble's tree sizes.
func (l *Leaf) Fits(at *addtree.AddTree) error {
	if len(l.reach) != at.Len() {
		return fmt.Errorf("%w: %d trees, want %d", ErrSnapshotShape, len(l.reach), at.Len())
	}

	for i, r := range l.reach {
		if want := (at.Tree(i).NumNodes() + wordBits - 1) / wordBits; len(r) != want {
			return fmt.Errorf("%w: tree %d has %d words, want %d", ErrSnapshotShape, i, len(r), want)
		}
	}

	return nil
}

// Snapshot is the stored form of a set of domain-tree leaves.
type Snapshot struct {
	RunID  string  `json:"run_id"`
	Leaves []*Leaf `json:"leaves"`
}

// snapshotPersister writes snapshots as LZ4-compressed JSON.
func snapshotPersister(basename string) *persist.Persister[Snapshot] {
	return persist.NewPersister[Snapshot](basename, persist.NewLZ4Codec(nil))
}

// SaveSnapshot writes leaves to dir/basename.json.lz4.
func SaveSnapshot(dir, basename string, s *Snapshot) error {
	if err := snapshotPersister(basename).Save(dir, s); err != nil {
		return fmt.Errorf("save leaves: %w", err)
	}

	return nil
}

// LoadSnapshot reads leaves written by SaveSnapshot.
func LoadSnapshot(dir, basename string) (*Snapshot, error) {
	s, err := snapshotPersister(basename).Load(dir)
	if err != nil {
		return nil, fmt.Errorf("load leaves: %w", err)
	}

	return s, nil
}

// EncodeLeaf packs one leaf for shipping to a worker.
func EncodeLeaf(l *Leaf) ([]byte, error) {
	return persist.Marshal(persist.NewLZ4Codec(nil), l)
}

// DecodeLeaf unpacks a leaf produced by EncodeLeaf.
func DecodeLeaf(data []byte) (*Leaf, error) {
	l := &Leaf{}
	if err := persist.Unmarshal(persist.NewLZ4Codec(nil), data, l); err != nil {
		return nil, err
	}

	return l, nil
}
