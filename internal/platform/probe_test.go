package platform

import (
	"errors"
	"runtime"
	"testing"

	sgerrors "github.com/ey-asu-rnd/streamguard/internal/errors"
)

func TestNullProbe(t *testing.T) {
	var p Probe = Null{}

	if caps := p.Capabilities(); caps.Disk || caps.Memory || caps.CPU {
		t.Errorf("null probe should report no capabilities: %+v", caps)
	}
	if _, err := p.DiskUsage("."); !errors.Is(err, sgerrors.ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
	if _, err := p.ResidentMemory(); !errors.Is(err, sgerrors.ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
	if _, err := p.CPUTimes(); !errors.Is(err, sgerrors.ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
	if _, err := p.TotalMemory(); !errors.Is(err, sgerrors.ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
}

func TestDefaultProbeDisk(t *testing.T) {
	p := Default()
	if !p.Capabilities().Disk {
		t.Skipf("disk statistics unsupported on %s", runtime.GOOS)
	}

	usage, err := p.DiskUsage(t.TempDir())
	if err != nil {
		t.Fatalf("DiskUsage: %v", err)
	}
	if usage.TotalBytes == 0 {
		t.Error("expected non-zero total bytes")
	}
	if usage.AvailableBytes > usage.TotalBytes {
		t.Errorf("available %d exceeds total %d", usage.AvailableBytes, usage.TotalBytes)
	}
}

func TestDefaultProbeMemoryAndCPU(t *testing.T) {
	p := Default()
	caps := p.Capabilities()

	if caps.Memory {
		rss, err := p.ResidentMemory()
		if err != nil {
			t.Fatalf("ResidentMemory: %v", err)
		}
		if rss == 0 {
			t.Error("expected non-zero resident memory")
		}

		total, err := p.TotalMemory()
		if err != nil {
			t.Fatalf("TotalMemory: %v", err)
		}
		if total < rss {
			t.Errorf("total memory %d below resident %d", total, rss)
		}
	}

	if caps.CPU {
		times, err := p.CPUTimes()
		if err != nil {
			t.Fatalf("CPUTimes: %v", err)
		}
		if times.Total <= 0 || times.Idle > times.Total {
			t.Errorf("implausible cpu times: %+v", times)
		}
	}
}

func TestFake(t *testing.T) {
	f := NewFake(1000, 120)

	usage, err := f.DiskUsage("/anywhere")
	if err != nil {
		t.Fatalf("DiskUsage: %v", err)
	}
	if usage.AvailableBytes != 120<<20 {
		t.Errorf("expected 120 MiB available, got %d", usage.AvailableBytes)
	}

	f.SetResidentMB(64)
	if rss, _ := f.ResidentMemory(); rss != 64<<20 {
		t.Errorf("expected 64 MiB rss, got %d", rss)
	}

	f.SetTotalMB(4096)
	if total, _ := f.TotalMemory(); total != 4096<<20 {
		t.Errorf("expected 4 GiB total, got %d", total)
	}

	f.AdvanceCPU(3, 1)
	if times, _ := f.CPUTimes(); times.Total != 4 || times.Idle != 1 {
		t.Errorf("unexpected cpu times: %+v", times)
	}

	f.SetCapabilities(Capabilities{Disk: true})
	if _, err := f.ResidentMemory(); !errors.Is(err, sgerrors.ErrUnsupported) {
		t.Errorf("expected ErrUnsupported after capability removal, got %v", err)
	}
	if _, err := f.TotalMemory(); !errors.Is(err, sgerrors.ErrUnsupported) {
		t.Errorf("expected ErrUnsupported after capability removal, got %v", err)
	}

	if f.DiskCalls() != 1 || f.MemoryCalls() != 2 || f.CPUCalls() != 1 {
		t.Errorf("unexpected call counts: disk=%d mem=%d cpu=%d", f.DiskCalls(), f.MemoryCalls(), f.CPUCalls())
	}
}
