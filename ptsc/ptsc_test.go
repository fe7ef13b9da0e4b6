package ptsc_test

import (
	"sync"
	"testing"

	"github.com/wswitch/core/ptsc"
)

type fakeClock struct {
	ref uint64
	tsc uint64
}

func (c fakeClock) ReferencePTSC() uint64 { return c.ref }
func (c fakeClock) TSC() uint64           { return c.tsc }

func TestUpdatePTSCParametersUnsynchronized(t *testing.T) {
	t.Parallel()

	v := ptsc.NewVMState(1, false)

	add, worldSwitchPTSC := v.UpdatePTSCParameters(0, fakeClock{ref: 1000, tsc: 400}, 0)

	if add != 600 {
		t.Errorf("add = %d, want 600", add)
	}

	if worldSwitchPTSC != 1000 {
		t.Errorf("worldSwitchPTSC = %d, want 1000", worldSwitchPTSC)
	}
}

func TestUpdatePTSCParametersClampsSmallBackwardsJump(t *testing.T) {
	t.Parallel()

	v := ptsc.NewVMState(1, false)

	_, worldSwitchPTSC := v.UpdatePTSCParameters(0, fakeClock{ref: 999, tsc: 0}, 1000)

	if worldSwitchPTSC != 1000 {
		t.Errorf("expected clamp to previous worldSwitchPTSC 1000, got %d", worldSwitchPTSC)
	}
}

func TestUpdatePTSCParametersSynchronizedSharesOffset(t *testing.T) {
	t.Parallel()

	const numVCPUs = 4

	v := ptsc.NewVMState(numVCPUs, true)

	var (
		wg   sync.WaitGroup
		adds = make([]uint64, numVCPUs)
	)

	for i := 0; i < numVCPUs; i++ {
		i := i

		wg.Add(1)

		go func() {
			defer wg.Done()

			add, _ := v.UpdatePTSCParameters(i, fakeClock{ref: 5000, tsc: uint64(100 * i)}, 0)
			adds[i] = add
		}()
	}

	wg.Wait()

	want := adds[0]
	for i, got := range adds {
		if got != want {
			t.Errorf("vcpu %d: add = %d, want shared offset %d", i, got, want)
		}
	}
}

func TestUpdateLatestPTSCIsMonotonicAndNeverDecreases(t *testing.T) {
	t.Parallel()

	v := ptsc.NewVMState(1, false)

	v.UpdateLatestPTSC(fakeClock{tsc: 1000}, 0)
	first := v.Latest()

	v.UpdateLatestPTSC(fakeClock{tsc: 10}, 0) // smaller upper bound
	if v.Latest() != first {
		t.Errorf("Latest regressed: had %d, now %d", first, v.Latest())
	}

	v.UpdateLatestPTSC(fakeClock{tsc: 2000}, 0)
	if v.Latest() <= first {
		t.Errorf("Latest should have advanced past %d, got %d", first, v.Latest())
	}
}

func TestConvMultLinearFunction(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		mult  uint64
		shift uint8
		add   uint64
		tsc   uint64
		want  uint64
	}{
		{"identity", 1 << 32, 32, 0, 12345, 12345},
		{"half rate", 1 << 31, 32, 0, 10000, 5000},
		{"with offset", 1 << 32, 32, 42, 100, 142},
		{"zero shift", 2, 0, 0, 7, 14},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := ptsc.ConvMult(tt.mult, tt.shift, tt.add, tt.tsc)
			if got != tt.want {
				t.Errorf("ConvMult(%#x, %d, %d, %d) = %d, want %d",
					tt.mult, tt.shift, tt.add, tt.tsc, got, tt.want)
			}
		})
	}
}
