package chip

import "testing"

func TestFromProduct(t *testing.T) {
	testcases := []struct {
		pid uint16
		gen Generation
		ok  bool
	}{
		{0x2763, Gen2835, true},
		{0x2764, Gen2835, true},
		{0x2711, Gen2711, true},
		{0x2712, Gen2712, true},
		{0x2710, 0, false},
	}
	for _, tc := range testcases {
		gen, ok := FromProduct(tc.pid)
		if ok != tc.ok || (ok && gen != tc.gen) {
			t.Errorf("FromProduct(%#04x) = %v, %v; expected %v, %v", tc.pid, gen, ok, tc.gen, tc.ok)
		}
	}
}

func TestEveryProductHasInfo(t *testing.T) {
	for _, pid := range ProductIDs() {
		gen, ok := FromProduct(pid)
		if !ok {
			t.Fatalf("product %#04x has no generation", pid)
		}
		info := gen.Info()
		if info.SecondStage == "" || info.ArchivePrefix == "" {
			t.Errorf("generation %v is missing names: %+v", gen, info)
		}
		if _, ok := info.Defaults[info.SecondStage]; !ok {
			t.Errorf("generation %v has no default second stage", gen)
		}
	}
}

func TestEndpointsFor(t *testing.T) {
	if ep := EndpointsFor(1); ep.Interface != 0 || ep.Out != 1 || ep.In != 2 {
		t.Errorf("single interface: %+v", ep)
	}
	if ep := EndpointsFor(2); ep.Interface != 1 || ep.Out != 3 || ep.In != 4 {
		t.Errorf("two interfaces: %+v", ep)
	}
}

func TestIsSecondStage(t *testing.T) {
	for _, name := range []string{"bootcode.bin", "bootcode4.bin", "bootcode5.bin"} {
		if !IsSecondStage(name) {
			t.Errorf("%s should be a second stage", name)
		}
	}
	if IsSecondStage("start.elf") {
		t.Error("start.elf is not a second stage")
	}
}
