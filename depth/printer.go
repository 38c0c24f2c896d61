// Package depth computes per-base read depth over a columnar gbam file and
// writes the result as tab-separated rows.
package depth

import (
	"bufio"
	"io"
)

// outputBuffer is the printer's line-buffering size.
const outputBuffer = 32 * 1024

// printerBufLen bounds one formatted row: "<name>\t<coord>\t<depth>\n". A
// chromosome name longer than 357 bytes plus two 20-digit numbers would
// overflow this, which no real reference name does.
const printerBufLen = 400

// Printer formats (chr, coord, depth) rows onto a line-buffered sink. It
// pre-reverses the chromosome name once per reference and builds each row
// right-to-left into a fixed buffer to avoid a per-row allocation on the
// hottest loop in the program.
type Printer struct {
	buf        [printerBufLen]byte
	reversedNm []byte
	out        *bufio.Writer
}

// NewPrinter wraps w with a 32 KiB line buffer.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{out: bufio.NewWriterSize(w, outputBuffer)}
}

// SetChromosome records chr's reversed bytes for use by every subsequent
// Write call, until the next SetChromosome.
func (p *Printer) SetChromosome(chr string) {
	n := len(chr)
	if cap(p.reversedNm) < n {
		p.reversedNm = make([]byte, n)
	} else {
		p.reversedNm = p.reversedNm[:n]
	}
	for i := 0; i < n; i++ {
		p.reversedNm[i] = chr[n-1-i]
	}
}

// Write emits one row "<chr>\t<coord>\t<depth>\n" for the chromosome named
// by the most recent SetChromosome call.
func (p *Printer) Write(coord uint64, depth int64) error {
	ptr := len(p.buf) - 1

	p.buf[ptr] = '\n'
	ptr--
	if depth == 0 {
		p.buf[ptr] = '0'
		ptr--
	}
	for depth > 0 {
		p.buf[ptr] = '0' + byte(depth%10)
		depth /= 10
		ptr--
	}
	p.buf[ptr] = '\t'
	ptr--
	if coord == 0 {
		p.buf[ptr] = '0'
		ptr--
	}
	for coord > 0 {
		p.buf[ptr] = '0' + byte(coord%10)
		coord /= 10
		ptr--
	}
	p.buf[ptr] = '\t'
	ptr--

	for _, b := range p.reversedNm {
		p.buf[ptr] = b
		ptr--
	}

	_, err := p.out.Write(p.buf[ptr+1:])
	return err
}

// Flush drains the line buffer to the underlying sink. Callers must call
// this once after the last Write.
func (p *Printer) Flush() error {
	return p.out.Flush()
}
