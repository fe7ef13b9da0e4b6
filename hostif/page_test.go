package hostif_test

import (
	"testing"

	"github.com/wswitch/core/hostif"
)

func TestAllocPageRoundTripsUint64(t *testing.T) {
	t.Parallel()

	p := hostif.NewPages()

	va, mpn, ok := p.AllocPage()
	if !ok {
		t.Fatal("AllocPage failed")
	}

	if va != mpn {
		t.Errorf("userspace stand-in expects va == mpn, got va=%#x mpn=%#x", va, mpn)
	}

	if err := p.WriteUint64(va+8, 0xDEADBEEFCAFEF00D); err != nil {
		t.Fatalf("WriteUint64: %v", err)
	}

	got, err := p.ReadUint64(va + 8)
	if err != nil {
		t.Fatalf("ReadUint64: %v", err)
	}

	if got != 0xDEADBEEFCAFEF00D {
		t.Errorf("got %#x, want 0xDEADBEEFCAFEF00D", got)
	}

	p.FreePage(mpn)

	if _, err := p.ReadUint64(va); err == nil {
		t.Error("expected ReadUint64 to fail after FreePage")
	}
}

func TestReadBytesStopsAtThePageBoundary(t *testing.T) {
	t.Parallel()

	p := hostif.NewPages()

	va, _, ok := p.AllocPage()
	if !ok {
		t.Fatal("AllocPage failed")
	}

	if err := p.WriteUint64(va+hostif.PageSize-8, 0x0F0B0F0B0F0B0F0B); err != nil {
		t.Fatalf("WriteUint64: %v", err)
	}

	got, err := p.ReadBytes(va+hostif.PageSize-8, 64)
	if err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}

	if len(got) != 8 {
		t.Errorf("expected ReadBytes to stop at the page boundary, got %d bytes", len(got))
	}
}

func TestAllocMachinePageGivesDistinctPages(t *testing.T) {
	t.Parallel()

	p := hostif.NewPages()

	a, ok := p.AllocMachinePage()
	if !ok {
		t.Fatal("AllocMachinePage failed")
	}

	b, ok := p.AllocMachinePage()
	if !ok {
		t.Fatal("AllocMachinePage failed")
	}

	if a == b {
		t.Error("expected two distinct machine pages")
	}

	p.FreeMachinePage(a)
	p.FreeMachinePage(b)
}
