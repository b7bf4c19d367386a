package capture

import (
	"math"
	"sort"

	"firestige.xyz/udptrain/internal/core"
	"firestige.xyz/udptrain/internal/timing"
)

// ClassSummary holds gap statistics for one class within a segment.
type ClassSummary struct {
	Received   int
	Distinct   int
	Duplicates int
	// Reordered counts records whose id is below one already seen.
	Reordered int
	Min, Max  int32
	// MissingCount is the number of ids absent from [0, expected) when
	// expected is known, otherwise from [Min, Max].
	MissingCount int64
	// Missing lists those ids; it is nil when MissingCount exceeds
	// MaxListedMissing.
	Missing []int32
	First   timing.Timespec
	Last    timing.Timespec
}

// MaxListedMissing bounds how many missing ids are listed per class. Ranges
// spanned by stray or corrupt ids are only counted.
const MaxListedMissing = 1 << 16

// Segment is the stretch of a capture between two delimiters.
type Segment struct {
	Classes map[core.Priority]*ClassSummary
}

// Tags returns the classes of the segment in a stable order.
func (s Segment) Tags() []core.Priority {
	tags := make([]core.Priority, 0, len(s.Classes))
	for t := range s.Classes {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}

// Summarize groups entries into delimiter-separated segments and computes
// per-class statistics. expected maps a class to its transmitted count;
// classes absent from it are judged by their observed range.
func Summarize(entries []Entry, expected map[core.Priority]int) []Segment {
	var segments []Segment
	seen := map[core.Priority]map[int32]int{}
	cur := Segment{Classes: map[core.Priority]*ClassSummary{}}

	closeSegment := func() {
		if len(cur.Classes) == 0 {
			return
		}
		for tag, cs := range cur.Classes {
			cs.MissingCount, cs.Missing = missing(seen[tag], cs.Min, cs.Max, expected[tag])
		}
		segments = append(segments, cur)
		cur = Segment{Classes: map[core.Priority]*ClassSummary{}}
		seen = map[core.Priority]map[int32]int{}
	}

	for _, e := range entries {
		if e.Delimiter {
			closeSegment()
			continue
		}
		cs, ok := cur.Classes[e.Tag]
		if !ok {
			cs = &ClassSummary{Min: e.Sequence, Max: e.Sequence, First: e.Offset}
			cur.Classes[e.Tag] = cs
			seen[e.Tag] = map[int32]int{}
		} else if e.Sequence < cs.Max {
			cs.Reordered++
		}
		cs.Received++
		cs.Last = e.Offset
		if e.Sequence < cs.Min {
			cs.Min = e.Sequence
		}
		if e.Sequence > cs.Max {
			cs.Max = e.Sequence
		}
		if seen[e.Tag][e.Sequence] > 0 {
			cs.Duplicates++
		} else {
			cs.Distinct++
		}
		seen[e.Tag][e.Sequence]++
	}
	closeSegment()
	return segments
}

func missing(seen map[int32]int, minID, maxID int32, expected int) (int64, []int32) {
	lo, hi := int64(minID), int64(maxID)
	if expected > 0 {
		lo, hi = 0, int64(expected)-1
		if hi > math.MaxInt32 {
			hi = math.MaxInt32
		}
	}
	present := int64(0)
	for id := range seen {
		if int64(id) >= lo && int64(id) <= hi {
			present++
		}
	}
	count := hi - lo + 1 - present
	if count == 0 || count > MaxListedMissing {
		return count, nil
	}
	// the span is at most present+MaxListedMissing here
	out := make([]int32, 0, count)
	for id := lo; id <= hi; id++ {
		if seen[int32(id)] == 0 {
			out = append(out, int32(id))
		}
	}
	return count, out
}
