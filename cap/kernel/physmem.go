package kernel

import (
	"github.com/joshuapare/capkit/pkg/types"
)

// physMem lazily backs simulated frames with host memory, keyed by the
// frame's physical base. Frames are only materialised when written.
type physMem struct {
	frames map[types.Word][]byte
}

func newPhysMem() *physMem {
	return &physMem{frames: make(map[types.Word][]byte)}
}

func (p *physMem) frame(paddr types.Word, size uint64) ([]byte, error) {
	if b, ok := p.frames[paddr]; ok && uint64(len(b)) >= size {
		return b, nil
	}
	b, err := mapAnon(size)
	if err != nil {
		return nil, err
	}
	p.frames[paddr] = b
	return b, nil
}

func (p *physMem) close() error {
	var first error
	for paddr, b := range p.frames {
		if err := unmapAnon(b); err != nil && first == nil {
			first = err
		}
		delete(p.frames, paddr)
	}
	return first
}
