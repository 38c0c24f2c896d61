package record

import "encoding/binary"

// CIGAR operation codes that consume the reference sequence, per the BAM
// format: M(0) alignment match, D(2) deletion, N(3) skipped region, =(7)
// sequence match, X(8) sequence mismatch. I, S, H, P and B do not.
const (
	cigarOpM = 0
	cigarOpD = 2
	cigarOpN = 3
	cigarOpEq = 7
	cigarOpX = 8
)

var consumesRef = [9]bool{
	cigarOpM:  true,
	1:         false, // I
	cigarOpD:  true,
	cigarOpN:  true,
	4:         false, // S
	5:         false, // H
	6:         false, // P
	cigarOpEq: true,
	cigarOpX:  true,
}

// BaseCoverage sums the lengths of the CIGAR operations that consume
// reference bases, given the packed RawCigar bytes of a record (4 bytes per
// op: length in the high 28 bits, op code in the low 4 bits, little-endian).
// This is the only semantic CIGAR operation the columnar core needs.
func BaseCoverage(rawCigar []byte) uint32 {
	var total uint32
	for i := 0; i+4 <= len(rawCigar); i += 4 {
		packed := binary.LittleEndian.Uint32(rawCigar[i : i+4])
		op := packed & 0xf
		opLen := packed >> 4
		if int(op) < len(consumesRef) && consumesRef[op] {
			total += opLen
		}
	}
	return total
}
