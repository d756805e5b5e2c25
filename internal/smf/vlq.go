package smf

// maxVLQBytes is the longest variable-length quantity allowed by the SMF format.
const maxVLQBytes = 4

// readVLQ decodes a variable-length quantity from the start of b and returns
// the value and the number of bytes consumed.
func readVLQ(b []byte) (uint32, int, error) {
	var v uint32
	for i := 0; i < maxVLQBytes; i++ {
		if i >= len(b) {
			return 0, i, ErrVLQOverrun
		}
		c := b[i]
		v = v<<7 | uint32(c&0x7f)
		if c&0x80 == 0 {
			return v, i + 1, nil
		}
	}
	return 0, maxVLQBytes, ErrVLQOverrun
}
