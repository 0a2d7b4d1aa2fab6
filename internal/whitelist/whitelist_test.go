package whitelist

import (
	"errors"
	"math/rand"
	"testing"
)

func addr(last byte) Address {
	return Address{0xC0, 0x01, 0x02, 0x03, 0x04, last}
}

func checkInvariants(t *testing.T, tbl *Table) {
	t.Helper()
	inUse := 0
	seen := make(map[Peer]bool)
	for _, e := range tbl.entries {
		if !e.InUse {
			continue
		}
		inUse++
		p := Peer{e.Address, e.Type}
		if seen[p] {
			t.Fatalf("duplicate in-use entry %s (%s)", e.Address, e.Type)
		}
		seen[p] = true
	}
	if inUse != tbl.Busy() {
		t.Fatalf("busy = %d, in-use entries = %d", tbl.Busy(), inUse)
	}
}

func TestSize(t *testing.T) {
	if got := Size(8, 4); got != 17 {
		t.Errorf("Size(8, 4) = %d, want 17", got)
	}
	if got := NewSized(2, 1).Capacity(); got != 5 {
		t.Errorf("NewSized(2, 1) capacity = %d, want 5", got)
	}
}

func TestThreeEntriesOfFour(t *testing.T) {
	tbl := New(4)
	for i := byte(1); i <= 3; i++ {
		if err := tbl.Add(addr(i), Public, UseEntry); err != nil {
			t.Fatalf("Add(%d): %v", i, err)
		}
	}

	if idx, ok := tbl.Find(addr(9), Public); ok || idx != NoMatch {
		t.Errorf("Find(unlisted) = %d, %v", idx, ok)
	}
	if err := tbl.Remove(addr(9), Public); !errors.Is(err, ErrNotFound) {
		t.Errorf("Remove(unlisted) err = %v, want ErrNotFound", err)
	}
	if got := tbl.FreeEntries(); got != 1 {
		t.Errorf("FreeEntries = %d, want 1", got)
	}
	checkInvariants(t, tbl)
}

func TestAdd(t *testing.T) {
	t.Run("duplicate rejected", func(t *testing.T) {
		tbl := New(4)
		if err := tbl.Add(addr(1), Public, UseEntry); err != nil {
			t.Fatal(err)
		}
		if err := tbl.Add(addr(1), Public, UseEntry); !errors.Is(err, ErrNoSpace) {
			t.Errorf("duplicate Add err = %v, want ErrNoSpace", err)
		}
		if tbl.Busy() != 1 {
			t.Errorf("busy = %d after duplicate", tbl.Busy())
		}
	})

	t.Run("same address other type is distinct", func(t *testing.T) {
		tbl := New(4)
		if err := tbl.Add(addr(1), Public, UseEntry); err != nil {
			t.Fatal(err)
		}
		if err := tbl.Add(addr(1), Random, UseEntry); err != nil {
			t.Errorf("Add random twin: %v", err)
		}
	})

	t.Run("full table", func(t *testing.T) {
		tbl := New(2)
		_ = tbl.Add(addr(1), Public, UseEntry)
		_ = tbl.Add(addr(2), Public, UseEntry)
		if err := tbl.Add(addr(3), Public, UseEntry); !errors.Is(err, ErrNoSpace) {
			t.Errorf("Add to full err = %v", err)
		}
	})

	t.Run("reuses freed slot", func(t *testing.T) {
		tbl := New(3)
		_ = tbl.Add(addr(1), Public, UseEntry)
		_ = tbl.Add(addr(2), Public, UseEntry)
		_ = tbl.Remove(addr(1), Public)
		_ = tbl.Add(addr(3), Public, UseEntry)
		if idx, _ := tbl.Find(addr(3), Public); idx != 0 {
			t.Errorf("new entry at %d, want 0", idx)
		}
	})

	t.Run("ignore behavior", func(t *testing.T) {
		tbl := New(2)
		_ = tbl.Add(addr(1), Public, IgnoreEntry)
		if tbl.Allows(addr(1), Public) {
			t.Error("entry added with IgnoreEntry should not admit")
		}
	})
}

func TestIgnore(t *testing.T) {
	tbl := New(4)
	_ = tbl.Add(addr(1), Public, UseEntry)
	_ = tbl.Add(addr(2), Random, UseEntry)

	if err := tbl.SetIgnore(addr(1), Public); err != nil {
		t.Fatal(err)
	}
	if tbl.Allows(addr(1), Public) {
		t.Error("ignored entry admitted")
	}
	if !tbl.Allows(addr(2), Random) {
		t.Error("other entry affected")
	}
	if err := tbl.SetIgnore(addr(7), Public); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetIgnore(unlisted) err = %v", err)
	}
	if err := tbl.ClearIgnoreAll(); err != nil {
		t.Fatal(err)
	}
	if !tbl.Allows(addr(1), Public) {
		t.Error("ClearIgnoreAll did not restore entry")
	}
	if _, ok := tbl.Find(addr(1), Public); !ok {
		t.Error("ignore must not remove the entry")
	}
}

func TestPrivacyIgnore(t *testing.T) {
	tbl := New(2)
	_ = tbl.Add(addr(1), Random, UseEntry)
	if err := tbl.SetPrivacyIgnore(addr(1), Random); err != nil {
		t.Fatal(err)
	}
	if e := tbl.Entries()[0]; !e.PrivacyIgnore || e.Ignore {
		t.Errorf("entry flags = %+v", e)
	}
	if !tbl.Allows(addr(1), Random) {
		t.Error("privacy ignore must not affect admission")
	}
	_ = tbl.ClearPrivacyIgnore(addr(1), Random)
	if tbl.Entries()[0].PrivacyIgnore {
		t.Error("privacy ignore not cleared")
	}
}

func TestClear(t *testing.T) {
	tbl := New(3)
	_ = tbl.Add(addr(1), Public, UseEntry)
	_ = tbl.Add(addr(2), Public, UseEntry)
	if err := tbl.Clear(); err != nil {
		t.Fatal(err)
	}
	if tbl.Busy() != 0 || tbl.FreeEntries() != 3 {
		t.Errorf("after Clear busy=%d free=%d", tbl.Busy(), tbl.FreeEntries())
	}

	var nilTable *Table
	if err := nilTable.Clear(); !errors.Is(err, ErrInvalidTable) {
		t.Errorf("nil Clear err = %v", err)
	}
	if _, ok := nilTable.Find(addr(1), Public); ok {
		t.Error("nil table found an entry")
	}
}

func TestCopyFrom(t *testing.T) {
	src := New(4)
	_ = src.Add(addr(1), Public, UseEntry)
	_ = src.Add(addr(2), Random, IgnoreEntry)

	dst := New(2)
	if err := dst.CopyFrom(src); err != nil {
		t.Fatal(err)
	}
	if dst.Busy() != 2 || !dst.Allows(addr(1), Public) || dst.Allows(addr(2), Random) {
		t.Errorf("copy mismatch: %+v", dst.Entries())
	}

	_ = src.Add(addr(3), Public, UseEntry)
	if err := dst.CopyFrom(src); !errors.Is(err, ErrNoSpace) {
		t.Errorf("oversized copy err = %v", err)
	}
	if dst.Busy() != 0 {
		t.Errorf("failed copy left %d entries", dst.Busy())
	}
}

func TestRandomSequenceKeepsInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	tbl := New(6)
	for i := 0; i < 2000; i++ {
		a := addr(byte(rng.Intn(10)))
		typ := AddrType(rng.Intn(2))
		if rng.Intn(2) == 0 {
			_ = tbl.Add(a, typ, UseEntry)
		} else {
			_ = tbl.Remove(a, typ)
		}
		checkInvariants(t, tbl)
	}
}

func TestParseAddress(t *testing.T) {
	a, err := ParseAddress("c0:01:02:03:04:0A")
	if err != nil {
		t.Fatal(err)
	}
	if a != addr(0x0A) {
		t.Errorf("parsed %s", a)
	}
	if a.String() != "C0:01:02:03:04:0A" {
		t.Errorf("String() = %s", a.String())
	}
	for _, bad := range []string{"", "C0:01:02:03:04", "C0:01:02:03:04:0G", "C0:01:02:03:04:100"} {
		if _, err := ParseAddress(bad); !errors.Is(err, ErrBadAddress) {
			t.Errorf("ParseAddress(%q) err = %v", bad, err)
		}
	}
}
