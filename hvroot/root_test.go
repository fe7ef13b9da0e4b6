package hvroot_test

import (
	"sync"
	"testing"

	"github.com/wswitch/core/hvroot"
)

func TestGetOrAllocIsIdempotent(t *testing.T) {
	t.Parallel()

	calls := 0

	p := hvroot.NewPerPCPU(4, nil)

	alloc := func() (uint64, bool) {
		calls++

		return 0x1000, true
	}

	first, err := p.GetOrAlloc(0, alloc)
	if err != nil {
		t.Fatalf("GetOrAlloc: %v", err)
	}

	second, err := p.GetOrAlloc(0, alloc)
	if err != nil {
		t.Fatalf("GetOrAlloc: %v", err)
	}

	if first != second {
		t.Errorf("expected idempotent MPN, got %#x then %#x", first, second)
	}

	if calls != 1 {
		t.Errorf("expected alloc to be called once (second call finds the installed page), got %d", calls)
	}
}

func TestGetOrAllocConcurrentRaceHasOneWinner(t *testing.T) {
	t.Parallel()

	p := hvroot.NewPerPCPU(1, nil)

	const n = 32

	results := make([]uint64, n)

	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		i := i

		wg.Add(1)

		go func() {
			defer wg.Done()

			mpn, err := p.GetOrAlloc(0, func() (uint64, bool) {
				return uint64(0x2000 + i), true
			})
			if err != nil {
				t.Errorf("GetOrAlloc: %v", err)
			}

			results[i] = mpn
		}()
	}

	wg.Wait()

	want := results[0]
	for _, got := range results {
		if got != want {
			t.Errorf("all racers must observe the same winning MPN; have %#x and %#x", got, want)
		}
	}
}

func TestGetOrAllocFailure(t *testing.T) {
	t.Parallel()

	p := hvroot.NewPerPCPU(1, nil)

	if _, err := p.GetOrAlloc(0, func() (uint64, bool) { return 0, false }); err == nil {
		t.Fatal("expected ErrAllocFailed")
	}
}

func TestTeardownFreesInstalledPages(t *testing.T) {
	t.Parallel()

	var freed []uint64

	p := hvroot.NewPerPCPU(2, func(mpn uint64) { freed = append(freed, mpn) })

	if _, err := p.GetOrAlloc(0, func() (uint64, bool) { return 0x3000, true }); err != nil {
		t.Fatalf("GetOrAlloc: %v", err)
	}

	p.Teardown()

	if len(freed) != 1 || freed[0] != 0x3000 {
		t.Errorf("expected exactly the installed page to be freed, got %v", freed)
	}

	if _, ok := p.Get(0); ok {
		t.Error("slot should read back as invalid after teardown")
	}
}
