package kernel

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/joshuapare/capkit/cap/arch"
	"github.com/joshuapare/capkit/cap/bootinfo"
	"github.com/joshuapare/capkit/internal/format"
	"github.com/joshuapare/capkit/pkg/types"
)

// Op identifies a kernel invocation for fault injection and call counting.
type Op int

const (
	OpRetype Op = iota
	OpMapPage
	OpMapPageTable
	OpMint
	OpCache
	OpGetAddress

	numOps
)

// CacheCall records one cache maintenance invocation seen by Sim.
type CacheCall struct {
	Op         CacheOp
	Start, End types.Word
}

// SimOptions configures a simulated kernel.
type SimOptions struct {
	// CNodeSizeBits is the radix of the initial capability table.
	// Default: 12 (4096 slots).
	CNodeSizeBits uint
}

// simObject is one kernel object. Several capabilities may name it (mint).
type simObject struct {
	typ      types.ObjectType
	sizeBits uint // log2 of the object's footprint in bytes
	paddr    types.Word
	device   bool

	watermark uint64 // untyped only: bytes consumed from the base

	mapped bool
	vaddr  types.Word
}

type simCap struct {
	obj    *simObject
	badge  types.Word
	rights types.CapRights
}

type simMapping struct {
	vaddr types.Word
	size  uint64
	frame *simObject
	attrs types.VMAttributes
}

// Sim is an in-process model of the kernel's capability, untyped and
// virtual-memory semantics, sufficient to exercise the allocators without
// hardware. It models a single capability table and a single vspace.
//
// Frames written through PutWord are backed by anonymous host memory.
//
// NOT thread-safe, like the allocators it serves.
type Sim struct {
	arch      *arch.Arch
	cnodeBits uint
	slots     map[types.CPtr]*simCap

	nextBootSlot types.CPtr
	untyped      []bootinfo.UntypedDesc

	vspace *simObject
	// tables[level] maps vaddr>>CoverBits to the installed paging structure.
	tables   []map[types.Word]*simObject
	mappings []*simMapping

	mem *physMem

	inject   [numOps][]Error
	calls    [numOps]int
	cacheLog []CacheCall
}

// NewSim creates a simulated kernel with the initial capabilities in place:
// TCB, capability table, vspace root, and the boot-info frame.
func NewSim(a *arch.Arch, opts SimOptions) *Sim {
	if opts.CNodeSizeBits == 0 {
		opts.CNodeSizeBits = 12
	}
	s := &Sim{
		arch:         a,
		cnodeBits:    opts.CNodeSizeBits,
		slots:        make(map[types.CPtr]*simCap),
		nextBootSlot: types.CPtr(types.NumInitialCaps),
		tables:       make([]map[types.Word]*simObject, len(a.Levels)),
		mem:          newPhysMem(),
	}
	for i := range s.tables {
		s.tables[i] = make(map[types.Word]*simObject)
	}

	rootBits, _ := a.LookupObjectSizeBits(a.RootType, 0)
	s.vspace = &simObject{typ: a.RootType, sizeBits: rootBits}

	s.install(types.InitThreadTCB.CPtr(), &simObject{typ: types.TCBObject, sizeBits: a.TCBBits})
	s.install(types.InitThreadCNode.CPtr(), &simObject{typ: types.CapTableObject, sizeBits: a.SlotBits + opts.CNodeSizeBits})
	s.install(types.InitThreadVSpace.CPtr(), s.vspace)
	s.install(types.InitBootInfoFrame.CPtr(), &simObject{typ: types.SmallPageObject, sizeBits: a.PageBits})
	return s
}

// Close releases the host memory backing simulated frames.
func (s *Sim) Close() error {
	return s.mem.close()
}

func (s *Sim) install(slot types.CPtr, obj *simObject) {
	s.slots[slot] = &simCap{obj: obj, rights: types.RightsAll}
}

// AddUntyped grants a boot untyped region to the initial thread and returns
// its capability. Call it before BootInfo.
func (s *Sim) AddUntyped(paddr types.Word, sizeBits uint, device bool) types.CPtr {
	slot := s.nextBootSlot
	s.nextBootSlot++
	s.install(slot, &simObject{typ: types.UntypedObject, sizeBits: sizeBits, paddr: paddr, device: device})
	s.untyped = append(s.untyped, bootinfo.UntypedDesc{Cap: slot, SizeBits: sizeBits, Paddr: paddr, IsDevice: device})
	return slot
}

// BootInfo describes the simulated boot state: every granted untyped and the
// empty window that follows the last boot capability.
func (s *Sim) BootInfo() *bootinfo.BootInfo {
	size := types.CPtr(1) << s.cnodeBits
	return &bootinfo.BootInfo{
		Arch:          s.arch.Name,
		CNodeSizeBits: s.cnodeBits,
		Empty:         types.CapRange{First: s.nextBootSlot, Count: uint64(size - s.nextBootSlot)},
		Untyped:       append([]bootinfo.UntypedDesc(nil), s.untyped...),
	}
}

// FailNext makes the next invocation of op fail with err, bypassing its
// normal semantics. Calls queue up in order.
func (s *Sim) FailNext(op Op, err Error) {
	s.inject[op] = append(s.inject[op], err)
}

// Calls returns how many times op has been invoked.
func (s *Sim) Calls(op Op) int { return s.calls[op] }

// CacheCalls returns the recorded cache maintenance invocations.
func (s *Sim) CacheCalls() []CacheCall {
	return append([]CacheCall(nil), s.cacheLog...)
}

func (s *Sim) enter(op Op) (Error, bool) {
	s.calls[op]++
	if q := s.inject[op]; len(q) > 0 {
		s.inject[op] = q[1:]
		return q[0], true
	}
	return NoError, false
}

func (s *Sim) lookup(slot types.CPtr) *simCap {
	return s.slots[slot]
}

// resolveNode resolves a retype destination. Only the root capability table
// exists, reached either with depth 0 or through its own capability.
func (s *Sim) resolveNode(root, nodeIndex types.CPtr, nodeDepth uint) Error {
	rc := s.lookup(root)
	if rc == nil || rc.obj.typ != types.CapTableObject {
		return InvalidCapability
	}
	if nodeDepth == 0 {
		return NoError
	}
	if nodeDepth != s.arch.WordBits {
		return RangeError
	}
	nc := s.lookup(nodeIndex)
	if nc == nil || nc.obj != rc.obj {
		return FailedLookup
	}
	return NoError
}

func (s *Sim) checkDest(slot types.CPtr) Error {
	if uint64(slot) >= uint64(1)<<s.cnodeBits {
		return RangeError
	}
	if s.lookup(slot) != nil {
		return DeleteFirst
	}
	return NoError
}

// Retype implements Kernel.
func (s *Sim) Retype(ut types.CPtr, t types.ObjectType, sizeBits uint, root types.CPtr,
	nodeIndex types.CPtr, nodeDepth uint, nodeOffset types.CPtr, numObjects uint,
) Error {
	if e, ok := s.enter(OpRetype); ok {
		return e
	}

	uc := s.lookup(ut)
	if uc == nil || uc.obj.typ != types.UntypedObject {
		return InvalidCapability
	}
	objBits, ok := s.arch.LookupObjectSizeBits(t, sizeBits)
	if !ok {
		return InvalidArgument
	}
	if t == types.UntypedObject && (sizeBits < bootinfo.MinUntypedBits || sizeBits > bootinfo.MaxUntypedBits) {
		return RangeError
	}
	if uc.obj.device && !t.IsFrame() && t != types.UntypedObject {
		return InvalidArgument
	}
	if numObjects == 0 {
		return RangeError
	}
	if e := s.resolveNode(root, nodeIndex, nodeDepth); !e.OK() {
		return e
	}
	for i := range numObjects {
		if e := s.checkDest(nodeOffset + types.CPtr(i)); !e.OK() {
			return e
		}
	}

	objSize := format.BitsToSize(objBits)
	start := format.AlignUp(uc.obj.watermark, objSize)
	end := start + objSize*uint64(numObjects)
	if end > format.BitsToSize(uc.obj.sizeBits) {
		return NotEnoughMemory
	}

	for i := range numObjects {
		obj := &simObject{
			typ:      t,
			sizeBits: objBits,
			paddr:    uc.obj.paddr + types.Word(start+objSize*uint64(i)),
			device:   uc.obj.device,
		}
		s.install(nodeOffset+types.CPtr(i), obj)
	}
	uc.obj.watermark = end
	return NoError
}

// frameLevel returns the paging level whose tables hold entries for frames of
// 2^frameBits bytes, or -1 when such frames sit directly in the root.
func (s *Sim) frameLevel(frameBits uint) int {
	for i, l := range s.arch.Levels {
		if l.CoverBits > frameBits {
			return i
		}
	}
	return -1
}

func (s *Sim) tableCovering(level int, vaddr types.Word) bool {
	if level < 0 || level >= len(s.tables) {
		return true
	}
	_, ok := s.tables[level][vaddr>>s.arch.Levels[level].CoverBits]
	return ok
}

func (s *Sim) checkVSpace(vspace types.CPtr) Error {
	vc := s.lookup(vspace)
	if vc == nil || vc.obj != s.vspace {
		return InvalidCapability
	}
	return NoError
}

// MapPage implements Kernel.
func (s *Sim) MapPage(frame, vspace types.CPtr, vaddr types.Word, _ types.CapRights, attrs types.VMAttributes) Error {
	if e, ok := s.enter(OpMapPage); ok {
		return e
	}

	fc := s.lookup(frame)
	if fc == nil || !fc.obj.typ.IsFrame() {
		return InvalidCapability
	}
	if e := s.checkVSpace(vspace); !e.OK() {
		return e
	}
	if fc.obj.mapped {
		return InvalidArgument
	}
	size := format.BitsToSize(fc.obj.sizeBits)
	if !format.IsAligned(uint64(vaddr), size) {
		return AlignmentError
	}
	if !s.tableCovering(s.frameLevel(fc.obj.sizeBits), vaddr) {
		return FailedLookup
	}
	if s.overlaps(vaddr, size) {
		return DeleteFirst
	}

	fc.obj.mapped = true
	fc.obj.vaddr = vaddr
	s.mappings = append(s.mappings, &simMapping{vaddr: vaddr, size: size, frame: fc.obj, attrs: attrs})
	return NoError
}

func (s *Sim) overlaps(vaddr types.Word, size uint64) bool {
	for _, m := range s.mappings {
		if uint64(vaddr) < uint64(m.vaddr)+m.size && uint64(m.vaddr) < uint64(vaddr)+size {
			return true
		}
	}
	return false
}

// MapPageTable implements Kernel.
func (s *Sim) MapPageTable(table, vspace types.CPtr, vaddr types.Word, _ types.VMAttributes) Error {
	if e, ok := s.enter(OpMapPageTable); ok {
		return e
	}

	tc := s.lookup(table)
	if tc == nil {
		return InvalidCapability
	}
	level, ok := s.arch.LevelOf(tc.obj.typ)
	if !ok {
		return InvalidCapability
	}
	if e := s.checkVSpace(vspace); !e.OK() {
		return e
	}
	if tc.obj.mapped {
		return InvalidArgument
	}
	key := vaddr >> s.arch.Levels[level].CoverBits
	if _, exists := s.tables[level][key]; exists {
		return DeleteFirst
	}
	if !s.tableCovering(level+1, vaddr) {
		return FailedLookup
	}

	tc.obj.mapped = true
	tc.obj.vaddr = key << s.arch.Levels[level].CoverBits
	s.tables[level][key] = tc.obj
	return NoError
}

// Mint implements Kernel.
func (s *Sim) Mint(destRoot, destIndex types.CPtr, destDepth uint,
	srcRoot, srcIndex types.CPtr, srcDepth uint, rights types.CapRights, badge types.Word,
) Error {
	if e, ok := s.enter(OpMint); ok {
		return e
	}

	for _, root := range []types.CPtr{destRoot, srcRoot} {
		if rc := s.lookup(root); rc == nil || rc.obj.typ != types.CapTableObject {
			return InvalidCapability
		}
	}
	if destDepth != s.arch.WordBits || srcDepth != s.arch.WordBits {
		return RangeError
	}
	src := s.lookup(srcIndex)
	if src == nil {
		return FailedLookup
	}
	if e := s.checkDest(destIndex); !e.OK() {
		return e
	}
	s.slots[destIndex] = &simCap{obj: src.obj, badge: badge, rights: src.rights & rights}
	return NoError
}

func (s *Sim) cache(op CacheOp, vspace types.CPtr, start, end types.Word) Error {
	if e, ok := s.enter(OpCache); ok {
		return e
	}
	if e := s.checkVSpace(vspace); !e.OK() {
		return e
	}
	if start >= end {
		return InvalidArgument
	}
	m := s.mappingAt(start)
	if m == nil {
		return FailedLookup
	}
	if uint64(end) > uint64(m.vaddr)+m.size {
		return RangeError
	}
	s.cacheLog = append(s.cacheLog, CacheCall{Op: op, Start: start, End: end})
	return NoError
}

// CleanData implements Kernel.
func (s *Sim) CleanData(vspace types.CPtr, start, end types.Word) Error {
	return s.cache(Clean, vspace, start, end)
}

// InvalidateData implements Kernel.
func (s *Sim) InvalidateData(vspace types.CPtr, start, end types.Word) Error {
	return s.cache(Invalidate, vspace, start, end)
}

// CleanInvalidateData implements Kernel.
func (s *Sim) CleanInvalidateData(vspace types.CPtr, start, end types.Word) Error {
	return s.cache(CleanInvalidate, vspace, start, end)
}

// PageGetAddress implements Kernel.
func (s *Sim) PageGetAddress(frame types.CPtr) (types.Word, Error) {
	if e, ok := s.enter(OpGetAddress); ok {
		return 0, e
	}
	fc := s.lookup(frame)
	if fc == nil || !fc.obj.typ.IsFrame() {
		return 0, InvalidCapability
	}
	return fc.obj.paddr, NoError
}

func (s *Sim) mappingAt(vaddr types.Word) *simMapping {
	for _, m := range s.mappings {
		if vaddr >= m.vaddr && uint64(vaddr-m.vaddr) < m.size {
			return m
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Memory access and inspection
// -----------------------------------------------------------------------------

// PutWord implements Memory by translating vaddr through the simulated
// mappings and storing a little-endian word of the architecture's width.
func (s *Sim) PutWord(vaddr types.Word, value types.Word) error {
	buf, err := s.wordBytes(vaddr)
	if err != nil {
		return err
	}
	if s.arch.WordBits == 32 {
		binary.LittleEndian.PutUint32(buf, uint32(value))
	} else {
		binary.LittleEndian.PutUint64(buf, uint64(value))
	}
	return nil
}

// Word reads back a word stored at vaddr.
func (s *Sim) Word(vaddr types.Word) (types.Word, error) {
	buf, err := s.wordBytes(vaddr)
	if err != nil {
		return 0, err
	}
	if s.arch.WordBits == 32 {
		return types.Word(binary.LittleEndian.Uint32(buf)), nil
	}
	return types.Word(binary.LittleEndian.Uint64(buf)), nil
}

func (s *Sim) wordBytes(vaddr types.Word) ([]byte, error) {
	wb := s.arch.WordBytes()
	m := s.mappingAt(vaddr)
	if m == nil {
		return nil, fmt.Errorf("sim: vaddr %#x is not mapped", uint64(vaddr))
	}
	off := uint64(vaddr - m.vaddr)
	if off+wb > m.size {
		return nil, fmt.Errorf("sim: word at %#x crosses the end of its frame", uint64(vaddr))
	}
	backing, err := s.mem.frame(m.frame.paddr, m.size)
	if err != nil {
		return nil, err
	}
	return backing[off : off+wb], nil
}

// ObjectInfo describes the object a capability names.
type ObjectInfo struct {
	Type     types.ObjectType
	SizeBits uint
	Paddr    types.Word
	Device   bool
	Badge    types.Word
	Mapped   bool
	Vaddr    types.Word
}

// Lookup describes the capability in slot.
func (s *Sim) Lookup(slot types.CPtr) (ObjectInfo, bool) {
	c := s.lookup(slot)
	if c == nil {
		return ObjectInfo{}, false
	}
	return ObjectInfo{
		Type:     c.obj.typ,
		SizeBits: c.obj.sizeBits,
		Paddr:    c.obj.paddr,
		Device:   c.obj.device,
		Badge:    c.badge,
		Mapped:   c.obj.mapped,
		Vaddr:    c.obj.vaddr,
	}, true
}

// IsMapped reports whether any frame covers vaddr.
func (s *Sim) IsMapped(vaddr types.Word) bool { return s.mappingAt(vaddr) != nil }

// Translate returns the physical address vaddr maps to.
func (s *Sim) Translate(vaddr types.Word) (types.Word, bool) {
	m := s.mappingAt(vaddr)
	if m == nil {
		return 0, false
	}
	return m.frame.paddr + (vaddr - m.vaddr), true
}

// MappingAttrs returns the attributes vaddr was mapped with.
func (s *Sim) MappingAttrs(vaddr types.Word) (types.VMAttributes, bool) {
	m := s.mappingAt(vaddr)
	if m == nil {
		return 0, false
	}
	return m.attrs, true
}

// Tables returns the virtual bases covered by paging structures of the given
// level, sorted.
func (s *Sim) Tables(level int) []types.Word {
	out := make([]types.Word, 0, len(s.tables[level]))
	for key := range s.tables[level] {
		out = append(out, key<<s.arch.Levels[level].CoverBits)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// UsedSlots returns the number of occupied capability slots.
func (s *Sim) UsedSlots() int { return len(s.slots) }
