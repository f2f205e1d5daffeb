package capture

import "errors"

var ErrSealed = errors.New("capture: buffer already sealed")

// Buffer collects fragments in arrival order. Seal derives the payload
// bytes exactly once; no fragment can be appended afterwards.
type Buffer struct {
	frags  [][]byte
	count  int
	size   int
	sealed bool
	out    []byte
}

func (b *Buffer) Append(frag []byte) error {
	if b.sealed {
		return ErrSealed
	}
	// the platform may reuse its slice after delivery
	cp := make([]byte, len(frag))
	copy(cp, frag)
	b.frags = append(b.frags, cp)
	b.count++
	b.size += len(cp)
	return nil
}

// Len is the number of fragments appended, before or after Seal.
func (b *Buffer) Len() int  { return b.count }
func (b *Buffer) Size() int { return b.size }

func (b *Buffer) Seal() []byte {
	if b.sealed {
		return b.out
	}
	b.sealed = true
	b.out = make([]byte, 0, b.size)
	for _, f := range b.frags {
		b.out = append(b.out, f...)
	}
	b.frags = nil
	return b.out
}
