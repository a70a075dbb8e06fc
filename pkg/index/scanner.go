package index

// sepKind classifies a separator byte found during scanning.
type sepKind uint8

const (
	sepFieldDelimiter sepKind = iota
	sepCR
	sepLF
)

// candidate is a potential separator found during the first scan pass. A
// candidate inside a quoted field is not a real separator; whether it is
// depends on the quote state at segment entry, which is unknown until all
// segments have been scanned. parity records the number of quote bytes seen
// before this position within the segment, mod 2: the candidate is real iff
// parity XOR the segment's entry state is zero.
type candidate struct {
	offset int
	kind   sepKind
	parity uint8
}

// segmentScan is the result of scanning one segment.
type segmentScan struct {
	candidates []candidate
	// parity is the quote parity over the whole segment. The prefix-XOR of
	// segment parities yields each segment's true entry state. Escaped
	// quotes ("") toggle twice and cancel out, so parity tracking handles
	// them for free.
	parity uint8
}

// scanSegment scans one segment of the buffer, recording every delimiter,
// CR, and LF byte together with the local quote parity at its position.
// base is the segment's offset in the full buffer. The scan has no shared
// mutable state; segments are scanned independently and merged by segment
// order afterwards.
func scanSegment(data []byte, base int, delimiter, quote byte) segmentScan {
	var s segmentScan
	var parity uint8
	for i := 0; i < len(data); i++ {
		switch data[i] {
		case quote:
			parity ^= 1
		case delimiter:
			s.candidates = append(s.candidates, candidate{base + i, sepFieldDelimiter, parity})
		case '\r':
			s.candidates = append(s.candidates, candidate{base + i, sepCR, parity})
		case '\n':
			s.candidates = append(s.candidates, candidate{base + i, sepLF, parity})
		}
	}
	s.parity = parity
	return s
}
