package sched

import (
	"errors"
	"math/bits"
	"math/rand"
	"testing"
)

func TestRegistryPoolScenario(t *testing.T) {
	r := NewRegistry(1, 2)
	if r.Capacity() != 3 {
		t.Fatalf("capacity = %d, want 3", r.Capacity())
	}

	adv, err := r.Allocate(RoleAdvertiser)
	if err != nil {
		t.Fatalf("allocate advertiser: %v", err)
	}
	connA, err := r.Allocate(RoleMaster)
	if err != nil {
		t.Fatalf("allocate connection A: %v", err)
	}
	connB, err := r.Allocate(RoleSlave)
	if err != nil {
		t.Fatalf("allocate connection B: %v", err)
	}
	if _, err := r.Allocate(RoleMaster); !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("allocate connection C: err = %v, want ErrPoolExhausted", err)
	}

	for _, h := range []Handle{adv, connA, connB} {
		if _, err := r.get(h); err != nil {
			t.Errorf("prior allocation %s corrupted: %v", h, err)
		}
	}

	if err := r.Free(connA); err != nil {
		t.Fatalf("free A: %v", err)
	}
	connC, err := r.Allocate(RoleMaster)
	if err != nil {
		t.Fatalf("allocate connection C after free: %v", err)
	}
	if connC.Index() != connA.Index() {
		t.Errorf("C took slot %d, want A's slot %d", connC.Index(), connA.Index())
	}
	if connC == connA {
		t.Error("reused slot must carry a new generation")
	}
	if _, err := r.get(connA); !errors.Is(err, ErrStaleHandle) {
		t.Errorf("stale handle A err = %v", err)
	}
	if r.ActiveCount() != 3 || r.Connections() != 2 {
		t.Errorf("count=%d conns=%d", r.ActiveCount(), r.Connections())
	}
}

func TestRegistryDoubleFree(t *testing.T) {
	r := NewRegistry(2, 1)
	h, _ := r.Allocate(RoleScanner)
	if err := r.Free(h); err != nil {
		t.Fatal(err)
	}
	if err := r.Free(h); !errors.Is(err, ErrStaleHandle) {
		t.Errorf("double free err = %v, want ErrStaleHandle", err)
	}
	if err := r.Free(Handle{}); !errors.Is(err, ErrInvalidHandle) {
		t.Errorf("zero handle err = %v, want ErrInvalidHandle", err)
	}
	if r.ActiveCount() != 0 {
		t.Errorf("count = %d after double free", r.ActiveCount())
	}
}

func TestRegistryRoles(t *testing.T) {
	t.Run("one task per secondary role", func(t *testing.T) {
		r := NewRegistry(5, 0)
		if _, err := r.Allocate(RoleScanner); err != nil {
			t.Fatal(err)
		}
		if _, err := r.Allocate(RoleScanner); !errors.Is(err, ErrRoleBusy) {
			t.Errorf("second scanner err = %v, want ErrRoleBusy", err)
		}
	})

	t.Run("secondary budget", func(t *testing.T) {
		r := NewRegistry(1, 2)
		_, _ = r.Allocate(RoleAdvertiser)
		if _, err := r.Allocate(RoleScanner); !errors.Is(err, ErrPoolExhausted) {
			t.Errorf("scanner err = %v, want ErrPoolExhausted", err)
		}
		// connection slots are not usable by secondary roles and vice versa
		if r.ActiveCount() != 1 {
			t.Errorf("count = %d", r.ActiveCount())
		}
	})

	t.Run("invalid roles", func(t *testing.T) {
		r := NewRegistry(5, 2)
		for _, role := range []Role{RoleNone, Role(0), RoleAdvertiser | RoleScanner, RoleSlave | RoleMaster} {
			if _, err := r.Allocate(role); !errors.Is(err, ErrInvalidRole) {
				t.Errorf("Allocate(%s) err = %v", role, err)
			}
		}
	})

	t.Run("lookup", func(t *testing.T) {
		r := NewRegistry(5, 2)
		h, _ := r.Allocate(RoleInitiator)
		got, ok := r.Lookup(RoleInitiator)
		if !ok || got != h {
			t.Errorf("Lookup = %s, %v", got, ok)
		}
		if _, ok := r.Lookup(RoleScanner); ok {
			t.Error("Lookup found an unallocated role")
		}
	})

	t.Run("convert", func(t *testing.T) {
		r := NewRegistry(1, 1)
		h, _ := r.Allocate(RoleInitiator)
		if err := r.Convert(h, RoleSlave); !errors.Is(err, ErrInvalidRole) {
			t.Errorf("initiator to slave err = %v", err)
		}
		if err := r.Convert(h, RoleMaster); err != nil {
			t.Fatal(err)
		}
		if r.Connections() != 1 || r.secondary != 0 {
			t.Errorf("conns=%d secondary=%d", r.Connections(), r.secondary)
		}
		// the secondary budget is free again
		if _, err := r.Allocate(RoleScanner); err != nil {
			t.Errorf("scanner after convert: %v", err)
		}
		if err := r.check(); err != nil {
			t.Error(err)
		}
	})
}

func TestRegistryRandomSequence(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	r := NewRegistry(5, 4)
	roles := []Role{RoleAdvertiser, RoleScanner, RoleInitiator, RolePeriodicAdvertiser, RolePeriodicScanner, RoleMaster, RoleSlave}
	var live []Handle

	for i := 0; i < 5000; i++ {
		if len(live) > 0 && rng.Intn(3) == 0 {
			k := rng.Intn(len(live))
			if err := r.Free(live[k]); err != nil {
				t.Fatalf("free live handle: %v", err)
			}
			live = append(live[:k], live[k+1:]...)
		} else if h, err := r.Allocate(roles[rng.Intn(len(roles))]); err == nil {
			live = append(live, h)
		}

		if err := r.check(); err != nil {
			t.Fatal(err)
		}
		if bits.OnesCount64(r.ActiveMask()) > r.Capacity() {
			t.Fatal("mask exceeds capacity")
		}
		if r.ActiveCount() != len(live) {
			t.Fatalf("count = %d, live = %d", r.ActiveCount(), len(live))
		}
		for _, h := range live {
			if _, err := r.get(h); err != nil {
				t.Fatalf("live handle %s invalid: %v", h, err)
			}
		}
	}
}
