package depth

import (
	"bufio"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Interval is an inclusive base-pair range on one reference.
type Interval struct {
	Begin, End uint32
}

// QuerySet maps a chromosome name to the intervals requested on it.
type QuerySet map[string][]Interval

// ParseBEDFile reads chrom/begin/end triples from a BED-formatted file.
// BED's on-disk ranges are half-open [begin, end); ParseBEDFile normalizes
// them to the inclusive [begin, end-1] convention this package uses
// internally.
func ParseBEDFile(path string) (QuerySet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "depth: open BED file")
	}
	defer f.Close() // nolint: errcheck
	return ParseBED(f)
}

// ParseBED reads BED rows from r. Blank lines and lines starting with '#'
// or "track"/"browser" (common BED header lines) are skipped.
func ParseBED(r io.Reader) (QuerySet, error) {
	queries := make(QuerySet)
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") ||
			strings.HasPrefix(line, "track") || strings.HasPrefix(line, "browser") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			return nil, errors.Errorf("depth: BED line %d: want at least 3 fields, got %d", lineNo, len(fields))
		}
		begin, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			return nil, errors.Wrapf(err, "depth: BED line %d: bad begin", lineNo)
		}
		end, err := strconv.ParseUint(fields[2], 10, 32)
		if err != nil {
			return nil, errors.Wrapf(err, "depth: BED line %d: bad end", lineNo)
		}
		if end == 0 {
			return nil, errors.Errorf("depth: BED line %d: end must be > 0 for a half-open range", lineNo)
		}
		chr := fields[0]
		queries[chr] = append(queries[chr], Interval{Begin: uint32(begin), End: uint32(end - 1)})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "depth: scan BED file")
	}
	return queries, nil
}

// ParseQueryFlag parses the CLI's --query value: a comma-separated list of
// "chr:begin-end" ranges, already inclusive (not BED's half-open form), so
// no off-by-one adjustment is applied here.
func ParseQueryFlag(spec string) (QuerySet, error) {
	queries := make(QuerySet)
	if spec == "" {
		return queries, nil
	}
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		colon := strings.LastIndexByte(part, ':')
		if colon < 0 {
			return nil, errors.Errorf("depth: malformed query %q, want chr:begin-end", part)
		}
		chr := part[:colon]
		rng := part[colon+1:]
		dash := strings.IndexByte(rng, '-')
		if dash < 0 {
			return nil, errors.Errorf("depth: malformed query %q, want chr:begin-end", part)
		}
		begin, err := strconv.ParseUint(rng[:dash], 10, 32)
		if err != nil {
			return nil, errors.Wrapf(err, "depth: malformed query %q", part)
		}
		end, err := strconv.ParseUint(rng[dash+1:], 10, 32)
		if err != nil {
			return nil, errors.Wrapf(err, "depth: malformed query %q", part)
		}
		if end < begin {
			return nil, errors.Errorf("depth: malformed query %q: end before begin", part)
		}
		queries[chr] = append(queries[chr], Interval{Begin: uint32(begin), End: uint32(end)})
	}
	return queries, nil
}

// Merge combines two QuerySets (e.g. --bed and --query given together).
func Merge(a, b QuerySet) QuerySet {
	out := make(QuerySet, len(a)+len(b))
	for k, v := range a {
		out[k] = append(out[k], v...)
	}
	for k, v := range b {
		out[k] = append(out[k], v...)
	}
	return out
}

// CoalesceWithTolerance merges, per chromosome, any intervals whose gap is
// <= tolerance bases into a single covering interval. A BED file listing
// many small, closely-spaced regions (e.g. one row per exon) otherwise
// makes the engine re-walk the same overlapping stretch of the sweep-line
// array once per row; coalescing first means each covered stretch is
// swept exactly once no matter how finely the input intervals are split.
// tolerance == 0 merges only strictly overlapping or abutting intervals.
func CoalesceWithTolerance(queries QuerySet, tolerance uint32) QuerySet {
	out := make(QuerySet, len(queries))
	for chr, intervals := range queries {
		if len(intervals) == 0 {
			continue
		}
		sorted := append([]Interval(nil), intervals...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Begin < sorted[j].Begin })

		merged := []Interval{sorted[0]}
		for _, iv := range sorted[1:] {
			last := &merged[len(merged)-1]
			if gapExceeds(last.End, iv.Begin, tolerance) {
				merged = append(merged, iv)
				continue
			}
			if iv.End > last.End {
				last.End = iv.End
			}
		}
		out[chr] = merged
	}
	return out
}

// gapExceeds reports whether more than tolerance bases lie strictly between
// end and begin, i.e. whether the two intervals are too far apart to
// coalesce. Computed this way (rather than begin > end+tolerance+1) so it
// cannot overflow when end+tolerance would exceed the uint32 range.
func gapExceeds(end, begin, tolerance uint32) bool {
	if begin <= end {
		return false
	}
	return begin-end-1 > tolerance
}
