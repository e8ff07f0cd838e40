package readplan

import "testing"

func coverageFromString(s string) []bool {
	cov := make([]bool, len(s))
	for i, c := range s {
		cov[i] = c == '1'
	}
	return cov
}

func drain(p *Planner) []Step {
	var steps []Step
	for {
		step, ok := p.Next()
		if !ok {
			break
		}
		steps = append(steps, step)
	}
	return steps
}

func TestScenario1_FullHit(t *testing.T) {
	p := New(0, 10239, 10240, 1024, coverageFromString("1111111111"), 0)
	steps := drain(p)

	if len(steps) != 1 {
		t.Fatalf("got %d steps, want 1: %+v", len(steps), steps)
	}
	s := steps[0]
	if s.Kind != StepCache || s.BlockStartNum != 0 || s.BlockEndNum != 9 {
		t.Errorf("got %+v", s)
	}
	if s.ClientStartOffset != 0 || s.ClientEndOffset != 1023 {
		t.Errorf("client offsets = [%d,%d], want [0,1023]", s.ClientStartOffset, s.ClientEndOffset)
	}
}

func TestScenario2_FullMiss(t *testing.T) {
	p := New(0, 10239, 10240, 1024, coverageFromString("0000000000"), 0)
	steps := drain(p)

	if len(steps) != 1 {
		t.Fatalf("got %d steps, want 1: %+v", len(steps), steps)
	}
	s := steps[0]
	if s.Kind != StepOrigin || s.BlockStartNum != 0 || s.BlockEndNum != 9 {
		t.Errorf("got %+v", s)
	}
	if s.ByteStart != 0 || s.ByteEnd != 10239 {
		t.Errorf("byte range = [%d,%d], want [0,10239]", s.ByteStart, s.ByteEnd)
	}
}

func TestScenario3_SplitRange(t *testing.T) {
	p := New(0, 10239, 10240, 1024, coverageFromString("1111100000"), 0)
	steps := drain(p)

	if len(steps) != 2 {
		t.Fatalf("got %d steps, want 2: %+v", len(steps), steps)
	}
	if steps[0].Kind != StepCache || steps[0].BlockStartNum != 0 || steps[0].BlockEndNum != 4 {
		t.Errorf("step0 = %+v", steps[0])
	}
	if steps[1].Kind != StepOrigin || steps[1].BlockStartNum != 5 || steps[1].BlockEndNum != 9 {
		t.Errorf("step1 = %+v", steps[1])
	}
}

func TestScenario4_SmallGapCoalesced(t *testing.T) {
	p := New(0, 10239, 10240, 1024, coverageFromString("1110111111"), 0)
	steps := drain(p)

	if len(steps) != 2 {
		t.Fatalf("got %d steps, want 2: %+v", len(steps), steps)
	}
	if steps[0].Kind != StepCache || steps[0].BlockStartNum != 0 || steps[0].BlockEndNum != 2 {
		t.Errorf("step0 = %+v", steps[0])
	}
	if steps[1].Kind != StepOrigin || steps[1].BlockStartNum != 3 || steps[1].BlockEndNum != 9 {
		t.Errorf("step1 = %+v", steps[1])
	}
}

func TestScenario5_LargeGapNotCoalesced(t *testing.T) {
	const oneMiB = 1024 * 1024
	p := New(0, 10*oneMiB-1, 10*oneMiB, oneMiB, coverageFromString("0111111110"), 0)
	steps := drain(p)

	if len(steps) != 3 {
		t.Fatalf("got %d steps, want 3: %+v", len(steps), steps)
	}
	if steps[0].Kind != StepOrigin || steps[0].BlockStartNum != 0 || steps[0].BlockEndNum != 0 {
		t.Errorf("step0 = %+v", steps[0])
	}
	if steps[1].Kind != StepCache || steps[1].BlockStartNum != 1 || steps[1].BlockEndNum != 8 {
		t.Errorf("step1 = %+v", steps[1])
	}
	if steps[2].Kind != StepOrigin || steps[2].BlockStartNum != 9 || steps[2].BlockEndNum != 9 {
		t.Errorf("step2 = %+v", steps[2])
	}
}

func TestScenario6_UnalignedRequest(t *testing.T) {
	p := New(500, 1500, 10240, 1024, coverageFromString("1111111111"), 0)
	steps := drain(p)

	if len(steps) != 1 {
		t.Fatalf("got %d steps, want 1: %+v", len(steps), steps)
	}
	s := steps[0]
	if s.Kind != StepCache || s.BlockStartNum != 0 || s.BlockEndNum != 1 {
		t.Errorf("got %+v", s)
	}
	if s.ClientStartOffset != 500 || s.ClientEndOffset != 476 {
		t.Errorf("client offsets = [%d,%d], want [500,476]", s.ClientStartOffset, s.ClientEndOffset)
	}
}

func TestInvariant_NoGapsNoDuplicates(t *testing.T) {
	cases := []struct {
		name      string
		coverage  string
		start     int64
		end       int64
		blockSize int64
	}{
		{"full-hit", "1111111111", 0, 10239, 1024},
		{"full-miss", "0000000000", 0, 10239, 1024},
		{"split", "1111100000", 0, 10239, 1024},
		{"small-gap", "1110111111", 0, 10239, 1024},
		{"unaligned", "1111111111", 500, 1500, 1024},
		{"mid-range", "1111111111", 2048, 5000, 1024},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cov := coverageFromString(c.coverage)
			fileSize := int64(len(cov)) * c.blockSize
			p := New(c.start, c.end, fileSize, c.blockSize, cov, 0)
			steps := drain(p)

			var totalBytes int64
			for i, s := range steps {
				blockCount := s.BlockEndNum - s.BlockStartNum + 1
				totalBytes += int64(blockCount) * c.blockSize
				if s.ClientStartOffset > 0 && i != 0 {
					t.Errorf("step %d has nonzero client start offset but is not first: %+v", i, s)
				}
				if s.ClientEndOffset < c.blockSize-1 && i != len(steps)-1 {
					t.Errorf("step %d has partial client end offset but is not last: %+v", i, s)
				}
			}

			first := steps[0]
			last := steps[len(steps)-1]
			totalBytes -= first.ClientStartOffset
			totalBytes -= c.blockSize - 1 - last.ClientEndOffset

			want := c.end - c.start + 1
			if totalBytes != want {
				t.Errorf("client-visible bytes = %d, want %d", totalBytes, want)
			}
		})
	}
}

func TestInvariant_OriginStepCoversAnUncoveredBlock(t *testing.T) {
	cov := coverageFromString("1110111111")
	p := New(0, 10239, 10240, 1024, cov, 0)
	steps := drain(p)

	for _, s := range steps {
		if s.Kind != StepOrigin {
			continue
		}
		foundUncovered := false
		for n := s.BlockStartNum; n <= s.BlockEndNum; n++ {
			if !cov[n] {
				foundUncovered = true
				break
			}
		}
		if !foundUncovered {
			t.Errorf("ORIGIN step %+v covers no uncovered block", s)
		}
	}
}

func TestInvariant_CoalescedSkipBounded(t *testing.T) {
	const oneMiB = 1024 * 1024
	cov := coverageFromString("0111111110")
	p := New(0, 10*oneMiB-1, 10*oneMiB, oneMiB, cov, 0)
	steps := drain(p)

	for _, s := range steps {
		if s.Kind != StepOrigin {
			continue
		}
		var coveredBytes int64
		for n := s.BlockStartNum; n <= s.BlockEndNum; n++ {
			if cov[n] {
				coveredBytes += oneMiB
			}
		}
		if coveredBytes > DefaultMaxCoverageBlockSkipSize {
			t.Errorf("ORIGIN step %+v redundantly covers %d bytes > %d", s, coveredBytes, DefaultMaxCoverageBlockSkipSize)
		}
	}
}

func TestSkipSize_CustomBoundRespected(t *testing.T) {
	const oneMiB = 1024 * 1024
	// Covered run of 4 blocks between two uncovered blocks: with a 2MiB
	// custom bound the run can't be fully absorbed, so it must split into
	// two ORIGIN steps instead of coalescing into one.
	cov := coverageFromString("0111101")
	p := New(0, 7*oneMiB-1, 7*oneMiB, oneMiB, cov, 2*oneMiB)
	steps := drain(p)

	originSteps := 0
	for _, s := range steps {
		if s.Kind == StepOrigin {
			originSteps++
		}
	}
	if originSteps < 2 {
		t.Fatalf("got %d ORIGIN steps, want at least 2 with a 2MiB skip bound: %+v", originSteps, steps)
	}
}

func TestPlanner_ShortBlockAtEndOfFile(t *testing.T) {
	// 10 full blocks of 1024 bytes plus 100 trailing bytes in block 10.
	cov := coverageFromString("00000000000")
	fileSize := int64(10*1024 + 100)
	p := New(0, fileSize-1, fileSize, 1024, cov, 0)
	steps := drain(p)

	if len(steps) != 1 {
		t.Fatalf("got %d steps, want 1: %+v", len(steps), steps)
	}
	s := steps[0]
	if s.BlockEndNum != 10 {
		t.Errorf("BlockEndNum = %d, want 10", s.BlockEndNum)
	}
	if s.ByteEnd != fileSize-1 {
		t.Errorf("ByteEnd = %d, want %d", s.ByteEnd, fileSize-1)
	}
}
