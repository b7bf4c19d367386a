// Package capture implements the collector: a timed, non-blocking receive
// loop that timestamps probe packets into an in-memory log and flushes it to
// a capture file at scheduled checkpoints.
package capture

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"firestige.xyz/udptrain/internal/core"
	"firestige.xyz/udptrain/internal/timing"
)

// UntaggedMark is written in the tag column when the collector runs
// without priority tags.
const UntaggedMark = '-'

// DefaultDelimiter marks an idle gap between two experiment runs.
const DefaultDelimiter = "*"

// Record is one line of a capture file: sequence id, tag and arrival offset
// from the last checkpoint.
type Record struct {
	Sequence int32
	Tag      core.Priority
	Offset   timing.Timespec
}

// AppendRecord appends "<seq>\t<tag>\t<sec>.<nsec>\n" to dst. Any tag other
// than H or L is written as UntaggedMark.
func AppendRecord(dst []byte, r Record) []byte {
	dst = strconv.AppendInt(dst, int64(r.Sequence), 10)
	dst = append(dst, '\t')
	if r.Tag.Valid() {
		dst = append(dst, byte(r.Tag))
	} else {
		dst = append(dst, UntaggedMark)
	}
	dst = append(dst, '\t')
	dst = r.Offset.AppendFormat(dst)
	return append(dst, '\n')
}

// FormatRecord renders r as one capture line.
func FormatRecord(r Record) string {
	return string(AppendRecord(nil, r))
}

// Entry is a parsed capture file line: either a record or a delimiter.
type Entry struct {
	Record
	Delimiter bool
}

// ParseRecord parses one line without its trailing newline.
func ParseRecord(line string) (Record, error) {
	fields := strings.Split(line, "\t")
	if len(fields) != 3 || len(fields[1]) != 1 {
		return Record{}, fmt.Errorf("malformed capture line %q", line)
	}
	seq, err := strconv.ParseInt(fields[0], 10, 32)
	if err != nil {
		return Record{}, fmt.Errorf("malformed sequence id in %q: %w", line, err)
	}
	offset, err := timing.ParseTimespec(fields[2])
	if err != nil {
		return Record{}, fmt.Errorf("malformed offset in %q: %w", line, err)
	}
	r := Record{Sequence: int32(seq), Offset: offset}
	if tag := core.Priority(fields[1][0]); tag.Valid() {
		r.Tag = tag
	} else if fields[1][0] != UntaggedMark {
		return Record{}, fmt.Errorf("malformed tag in %q", line)
	}
	return r, nil
}

// ReadRecords parses a capture file. Lines equal to delimiter become
// delimiter entries.
func ReadRecords(r io.Reader, delimiter string) ([]Entry, error) {
	if delimiter == "" {
		delimiter = DefaultDelimiter
	}
	var entries []Entry
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if line == delimiter {
			entries = append(entries, Entry{Delimiter: true})
			continue
		}
		rec, err := ParseRecord(line)
		if err != nil {
			return entries, fmt.Errorf("line %d: %w", lineNo, err)
		}
		entries = append(entries, Entry{Record: rec})
	}
	return entries, sc.Err()
}
