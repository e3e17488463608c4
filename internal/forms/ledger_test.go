package forms

import (
	"sync"
	"testing"
)

func TestMarkDoneIsMonotonic(t *testing.T) {
	ledger := NewLedger()
	if ledger.IsDone("p1", Form1) {
		t.Fatal("fresh ledger should have no completions")
	}

	ledger.MarkDone("p1", Form1)
	if !ledger.IsDone("p1", Form1) {
		t.Fatal("expected form1 done after MarkDone")
	}

	// Duplicate delivery is harmless.
	ledger.MarkDone("p1", Form1)
	if !ledger.IsDone("p1", Form1) {
		t.Fatal("duplicate MarkDone must not reset the flag")
	}
}

func TestFormsAreIndependent(t *testing.T) {
	ledger := NewLedger()
	ledger.MarkDone("p1", Form2)

	if ledger.IsDone("p1", Form1) {
		t.Fatal("form1 must stay false when only form2 completed")
	}
	if !ledger.IsDone("p1", Form2) {
		t.Fatal("expected form2 done")
	}
	if ledger.IsDone("p2", Form2) {
		t.Fatal("completions must not leak across participants")
	}
}

func TestAnyDone(t *testing.T) {
	ledger := NewLedger()
	if ledger.AnyDone("p1") {
		t.Fatal("expected no completions")
	}
	ledger.MarkDone("p1", Form2)
	if !ledger.AnyDone("p1") {
		t.Fatal("expected AnyDone after form2")
	}
}

func TestParseFormID(t *testing.T) {
	if _, ok := ParseFormID("form1"); !ok {
		t.Fatal("form1 should parse")
	}
	if _, ok := ParseFormID("form3"); ok {
		t.Fatal("form3 should not parse")
	}
	if _, ok := ParseFormID(""); ok {
		t.Fatal("empty form id should not parse")
	}
}

func TestConcurrentMarkDone(t *testing.T) {
	ledger := NewLedger()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ledger.MarkDone("p1", Form1)
			ledger.MarkDone("p1", Form2)
		}()
	}
	wg.Wait()
	if !ledger.IsDone("p1", Form1) || !ledger.IsDone("p1", Form2) {
		t.Fatal("expected both forms done after concurrent delivery")
	}
}
