package buddy

import (
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
)

// DefaultMaxAttempts bounds how many shuffles are tried while looking for a
// partition that repeats no recent group.
const DefaultMaxAttempts = 15

// PartitionInput is the input of one partitioning run for one group.
type PartitionInput struct {
	// Members are the active member ids. Empty and duplicate ids are ignored.
	Members []string
	// LateJoiners flags members that should be spread across groups first.
	LateJoiners map[string]bool
	// History holds the member sets of recent buddy groups. A produced group
	// equal to one of them (in any order) is a repeat.
	History [][]string
}

// PartitionResult is the outcome of a partitioning run.
type PartitionResult struct {
	Groups [][]string
	// Attempts is the number of shuffles tried.
	Attempts int
	// RepeatFree is false when every attempt repeated a recent group and the
	// final attempt was kept anyway.
	RepeatFree bool
	// Insufficient is true when fewer than two members were given; Groups is
	// then empty.
	Insufficient bool
}

// Partitioner splits a group's members into pairs and trios.
//
// It is safe for concurrent use. Two Partitioners built from the same seed
// produce the same sequence of results for the same inputs.
type Partitioner struct {
	mu          sync.Mutex
	rng         *rand.Rand
	maxAttempts int
}

// NewPartitioner returns a Partitioner drawing from rng. maxAttempts <= 0
// selects DefaultMaxAttempts.
func NewPartitioner(rng *rand.Rand, maxAttempts int) *Partitioner {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Partitioner{rng: rng, maxAttempts: maxAttempts}
}

// NewSeededPartitioner returns a Partitioner backed by a PCG source seeded
// with seed.
func NewSeededPartitioner(seed uint64, maxAttempts int) *Partitioner {
	return NewPartitioner(rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), maxAttempts)
}

// Partition splits in.Members into groups of two or three.
//
// Late joiners and regular members are shuffled separately and interleaved so
// late joiners land in different groups. The working order is cut greedily
// into pairs, finishing with a pair or a trio. When a produced group repeats a
// group from in.History the regular members are reshuffled (the late joiners
// keep their positions) and the cut is tried again, up to the attempt bound.
// If no attempt avoids every repeat, the last attempt is returned with
// RepeatFree=false: complete coverage wins over repeat avoidance.
func (p *Partitioner) Partition(in PartitionInput) PartitionResult {
	members := uniqueIDs(in.Members)
	if len(members) < 2 {
		return PartitionResult{Insufficient: true}
	}

	var late, regular []string
	for _, m := range members {
		if in.LateJoiners[m] {
			late = append(late, m)
		} else {
			regular = append(regular, m)
		}
	}

	seen := make(map[string]struct{}, len(in.History))
	for _, g := range in.History {
		if len(g) > 1 {
			seen[groupKey(g)] = struct{}{}
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.shuffle(late)

	var groups [][]string
	attempts := 0
	for attempts < p.maxAttempts {
		attempts++
		p.shuffle(regular)
		groups = cut(interleave(late, regular))
		if !repeatsHistory(groups, seen) {
			return PartitionResult{Groups: groups, Attempts: attempts, RepeatFree: true}
		}
	}
	return PartitionResult{Groups: groups, Attempts: attempts, RepeatFree: false}
}

// shuffle is an in-place Fisher-Yates shuffle.
func (p *Partitioner) shuffle(ids []string) {
	for i := len(ids) - 1; i > 0; i-- {
		j := p.rng.IntN(i + 1)
		ids[i], ids[j] = ids[j], ids[i]
	}
}

// interleave alternates late joiners and regular members, starting with a
// late joiner, then appends whatever remains of the longer list.
func interleave(late, regular []string) []string {
	out := make([]string, 0, len(late)+len(regular))
	i, j := 0, 0
	for i < len(late) || j < len(regular) {
		if i < len(late) {
			out = append(out, late[i])
			i++
		}
		if j < len(regular) {
			out = append(out, regular[j])
			j++
		}
	}
	return out
}

// cut consumes order greedily: pairs while four or more remain, then the
// final two or three together. A single stray member joins the smallest
// group already built.
func cut(order []string) [][]string {
	var groups [][]string
	i := 0
	for i < len(order) {
		switch remaining := len(order) - i; {
		case remaining >= 4:
			groups = append(groups, cloneIDs(order[i:i+2]))
			i += 2
		case remaining >= 2:
			groups = append(groups, cloneIDs(order[i:]))
			i = len(order)
		default:
			groups = attachStray(groups, order[i])
			i++
		}
	}
	return groups
}

// attachStray appends id to the smallest group (the earliest one on ties).
// With no groups at all the stray forms its own group.
func attachStray(groups [][]string, id string) [][]string {
	if len(groups) == 0 {
		return append(groups, []string{id})
	}
	smallest := 0
	for k := range groups {
		if len(groups[k]) < len(groups[smallest]) {
			smallest = k
		}
	}
	groups[smallest] = append(groups[smallest], id)
	return groups
}

func repeatsHistory(groups [][]string, seen map[string]struct{}) bool {
	if len(seen) == 0 {
		return false
	}
	for _, g := range groups {
		if _, ok := seen[groupKey(g)]; ok {
			return true
		}
	}
	return false
}

// groupKey is an order-independent key for a member set.
func groupKey(ids []string) string {
	sorted := cloneIDs(ids)
	sort.Strings(sorted)
	return strings.Join(sorted, "\x00")
}

// sameMembers reports whether a and b hold the same member set.
func sameMembers(a, b []string) bool {
	return len(a) == len(b) && groupKey(a) == groupKey(b)
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func cloneIDs(ids []string) []string {
	return append([]string(nil), ids...)
}
