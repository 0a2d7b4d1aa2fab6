package sched

import "testing"

func TestHopChannel(t *testing.T) {
	t.Run("all channels used", func(t *testing.T) {
		var unmapped uint8
		want := []uint8{7, 14, 21, 28, 35, 5, 12}
		for i, w := range want {
			if got := hopChannel(0, 7, &unmapped); got != w {
				t.Fatalf("hop %d = %d, want %d", i, got, w)
			}
		}
	})

	t.Run("remapped onto used channels", func(t *testing.T) {
		var unmapped uint8
		chMap := uint64(1<<10 - 1) // channels 0-9
		if got := hopChannel(chMap, 7, &unmapped); got != 7 {
			t.Errorf("first hop = %d, want 7", got)
		}
		// unmapped 14 is disabled: 14 mod 10 = 4th used channel
		if got := hopChannel(chMap, 7, &unmapped); got != 4 {
			t.Errorf("second hop = %d, want 4", got)
		}
		if unmapped != 14 {
			t.Errorf("unmapped = %d, want 14", unmapped)
		}
	})

	t.Run("sparse map", func(t *testing.T) {
		var unmapped uint8
		chMap := uint64(1<<3 | 1<<20 | 1<<36)
		for i := 0; i < 50; i++ {
			ch := hopChannel(chMap, 11, &unmapped)
			if chMap&(1<<ch) == 0 {
				t.Fatalf("hop %d landed on disabled channel %d", i, ch)
			}
		}
	})
}

func TestAdvChannels(t *testing.T) {
	if got := firstAdvChannel(0); got != 37 {
		t.Errorf("firstAdvChannel(0) = %d", got)
	}
	if got := firstAdvChannel(AdvChannel38 | AdvChannel39); got != 38 {
		t.Errorf("firstAdvChannel(38|39) = %d", got)
	}
	var next uint8
	var got []uint8
	for i := 0; i < 4; i++ {
		got = append(got, nextAdvChannel(AdvChannelAll, &next))
	}
	if got[0] != 37 || got[1] != 38 || got[2] != 39 || got[3] != 37 {
		t.Errorf("rotation = %v", got)
	}
}

func TestCompatible(t *testing.T) {
	tests := []struct {
		p    Params
		role Role
		want bool
	}{
		{&AdvParams{}, RoleAdvertiser, true},
		{&AdvParams{}, RoleScanner, false},
		{&ConnParams{}, RoleMaster, true},
		{&ConnParams{}, RoleSlave, true},
		{&ConnParams{}, RoleInitiator, false},
		{&PeriodicAdvParams{}, RolePeriodicAdvertiser, true},
		{&PeriodicScanParams{}, RolePeriodicScanner, true},
		{&InitParams{}, RoleInitiator, true},
		{&ScanParams{}, RoleScanner, true},
	}
	for _, tt := range tests {
		if got := compatible(tt.p, tt.role); got != tt.want {
			t.Errorf("compatible(%T, %s) = %v", tt.p, tt.role, got)
		}
	}
}

func TestRoleClasses(t *testing.T) {
	for _, r := range secondaryOrder {
		if !r.IsSecondary() || r.IsPrimary() {
			t.Errorf("%s misclassified", r)
		}
	}
	for _, r := range []Role{RoleMaster, RoleSlave} {
		if !r.IsPrimary() || r.IsSecondary() {
			t.Errorf("%s misclassified", r)
		}
	}
	if RoleNone.IsPrimary() || RoleNone.IsSecondary() {
		t.Error("RoleNone classified")
	}
}
