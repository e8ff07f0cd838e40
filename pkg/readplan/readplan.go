// Package readplan synthesizes, from a client byte range and a coverage
// bitmap snapshot, a lazy ordered sequence of CACHE/ORIGIN steps telling
// the gateway where each slice of the response body comes from.
//
// The synthesizer never performs I/O and never suspends; it operates
// purely over the in-memory coverage slice handed to New.
package readplan

// DefaultMaxCoverageBlockSkipSize bounds how many bytes of already-covered
// blocks an ORIGIN step may silently re-fetch while coalescing a gap,
// trading a few redundant bytes for far fewer round trips to origin. Used
// when New is called with a non-positive maxCoverageBlockSkipSize.
const DefaultMaxCoverageBlockSkipSize = 5 * 1024 * 1024

// StepKind distinguishes a locally-served step from one requiring an
// origin fetch.
type StepKind int

const (
	// StepCache serves this step's bytes from the local block store.
	StepCache StepKind = iota
	// StepOrigin fetches this step's bytes from the upstream origin.
	StepOrigin
)

func (k StepKind) String() string {
	switch k {
	case StepCache:
		return "cache"
	case StepOrigin:
		return "origin"
	default:
		return "unknown"
	}
}

// Step is one segment of a read plan.
type Step struct {
	Kind StepKind

	// BlockStartNum and BlockEndNum are the inclusive block range this
	// step covers.
	BlockStartNum uint64
	BlockEndNum   uint64

	// ClientStartOffset and ClientEndOffset are the byte offsets, within
	// the first and last block of this step respectively, that must
	// actually be emitted to the client. Middle blocks are emitted whole.
	ClientStartOffset int64
	ClientEndOffset   int64

	// ByteStart and ByteEnd are the absolute object byte range to fetch
	// from origin. Only meaningful when Kind == StepOrigin.
	ByteStart int64
	ByteEnd   int64
}

// Planner is a pull iterator over read-plan steps. Call Next repeatedly
// until it returns ok == false.
//
// Two deviations from the literal block-math formulas are applied here,
// both called out as open questions rather than settled behavior:
//
//  1. max_block is end_byte/block_size, not max(end_byte/block_size,
//     len(coverage)-1) — the latter would always walk every plan to the
//     final block of the object regardless of the requested range, which
//     contradicts the unaligned-request and split-range scenarios.
//  2. An ORIGIN step's byte_end is clamped to file_size-1 rather than
//     left as max(block_end_num*block_size, file_size), which can exceed
//     both the object size and the request.
type Planner struct {
	startByte                int64
	endByte                  int64
	fileSize                 int64
	blockSize                int64
	coverage                 []bool
	maxCoverageBlockSkipSize int64

	curByte      int64
	maxBlock     uint64
	emittedFirst bool
	done         bool
}

// New creates a Planner for the inclusive byte range [startByte, endByte]
// of an object of size fileSize split into blocks of blockSize bytes, given
// a coverage snapshot with one entry per block. maxCoverageBlockSkipSize
// bounds gap-coalescing within an ORIGIN step (see walkOriginRun); a
// non-positive value falls back to DefaultMaxCoverageBlockSkipSize.
func New(startByte, endByte, fileSize, blockSize int64, coverage []bool, maxCoverageBlockSkipSize int64) *Planner {
	if endByte > fileSize-1 {
		endByte = fileSize - 1
	}
	if maxCoverageBlockSkipSize <= 0 {
		maxCoverageBlockSkipSize = DefaultMaxCoverageBlockSkipSize
	}

	return &Planner{
		startByte:                startByte,
		endByte:                  endByte,
		fileSize:                 fileSize,
		blockSize:                blockSize,
		coverage:                 coverage,
		maxCoverageBlockSkipSize: maxCoverageBlockSkipSize,
		curByte:                  startByte,
		maxBlock:                 uint64(endByte / blockSize),
	}
}

// Next returns the next step in the plan, or ok == false once the
// requested range has been fully covered.
func (p *Planner) Next() (step Step, ok bool) {
	if p.done || p.curByte > p.endByte {
		return Step{}, false
	}

	startBlock := uint64(p.curByte / p.blockSize)
	if startBlock >= uint64(len(p.coverage)) {
		p.done = true
		return Step{}, false
	}

	var endBlock uint64
	var kind StepKind

	if p.coverage[startBlock] {
		kind = StepCache
		endBlock = startBlock
		for endBlock < p.maxBlock && endBlock+1 < uint64(len(p.coverage)) && p.coverage[endBlock+1] {
			endBlock++
		}
	} else {
		kind = StepOrigin
		endBlock = p.walkOriginRun(startBlock)
	}

	step = p.buildStep(kind, startBlock, endBlock)
	p.curByte = int64(endBlock+1) * p.blockSize
	return step, true
}

// walkOriginRun extends an ORIGIN step forward from startBlock, absorbing
// consecutive covered blocks as long as the running skip within the
// current covered run stays within maxCoverageBlockSkipSize. If a run
// would exceed the bound, the step rolls back to the block before that
// run began. A fresh uncovered block resets the running skip counter.
func (p *Planner) walkOriginRun(startBlock uint64) uint64 {
	end := startBlock
	var skipped int64
	runStart := end // block to roll back to if the in-progress run overflows
	inRun := false

	for end < p.maxBlock && end+1 < uint64(len(p.coverage)) {
		next := end + 1
		if p.coverage[next] {
			if !inRun {
				runStart = end
				inRun = true
			}
			skipped += p.blockSize
			if skipped > p.maxCoverageBlockSkipSize {
				return runStart
			}
			end = next
			continue
		}

		skipped = 0
		inRun = false
		end = next
	}

	return end
}

func (p *Planner) buildStep(kind StepKind, startBlock, endBlock uint64) Step {
	step := Step{Kind: kind, BlockStartNum: startBlock, BlockEndNum: endBlock}

	if !p.emittedFirst {
		step.ClientStartOffset = p.startByte % p.blockSize
		p.emittedFirst = true
	}

	lastRequestedBlock := uint64(p.endByte / p.blockSize)
	if endBlock >= lastRequestedBlock {
		step.ClientEndOffset = p.endByte % p.blockSize
	} else {
		step.ClientEndOffset = p.blockSize - 1
	}

	if kind == StepOrigin {
		step.ByteStart = int64(startBlock) * p.blockSize
		byteEnd := int64(endBlock+1)*p.blockSize - 1
		if byteEnd > p.fileSize-1 {
			byteEnd = p.fileSize - 1
		}
		step.ByteEnd = byteEnd
	}

	return step
}
