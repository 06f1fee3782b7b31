package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestProgressLedgerGroupLifecycle(t *testing.T) {
	t.Parallel()

	ledger := NewProgressLedger("main")
	if ledger.HasCurrentGroup() {
		t.Fatal("fresh ledger should not have a current group")
	}

	name := ledger.NextGroupName(" Team ")
	if name != "Team 1" {
		t.Fatalf("NextGroupName() = %q, want %q", name, "Team 1")
	}
	if ledger.GroupCounter != 2 {
		t.Fatalf("GroupCounter = %d, want 2", ledger.GroupCounter)
	}

	ledger.RegisterGroup("g1@g.us")
	ledger.RegisterGroup("g1@g.us")
	if !ledger.HasCurrentGroup() || *ledger.CurrentGroupID != "g1@g.us" {
		t.Fatalf("CurrentGroupID = %v, want g1@g.us", ledger.CurrentGroupID)
	}
	if len(ledger.ActiveGroups) != 1 {
		t.Fatalf("ActiveGroups = %v, want one entry", ledger.ActiveGroups)
	}
}

func TestProgressLedgerCloneIsDeep(t *testing.T) {
	t.Parallel()

	ledger := NewProgressLedger("main")
	ledger.RegisterGroup("g1@g.us")

	clone := ledger.Clone()
	clone.RegisterGroup("g2@g.us")
	clone.Advance()

	if *ledger.CurrentGroupID != "g1@g.us" {
		t.Fatalf("original CurrentGroupID mutated to %s", *ledger.CurrentGroupID)
	}
	if len(ledger.ActiveGroups) != 1 {
		t.Fatalf("original ActiveGroups mutated: %v", ledger.ActiveGroups)
	}
	if ledger.LastProcessedOffset != 0 {
		t.Fatalf("original offset mutated: %d", ledger.LastProcessedOffset)
	}
}

func TestProgressLedgerJSONShape(t *testing.T) {
	t.Parallel()

	ledger := NewProgressLedger("main")
	ledger.LastProcessedOffset = 3
	ledger.RegisterGroup("g1@g.us")

	raw, err := json.Marshal(ledger)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	for _, key := range []string{"lastProcessed", "currentGroup", "groupCounter", "activeGroups"} {
		if _, ok := doc[key]; !ok {
			t.Fatalf("ledger document missing key %q: %s", key, raw)
		}
	}
	if _, ok := doc["AccountID"]; ok {
		t.Fatalf("account id should not be part of the document: %s", raw)
	}
}

func TestProgressLedgerValidate(t *testing.T) {
	t.Parallel()

	ledger := NewProgressLedger("main")
	if err := ledger.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error = %v", err)
	}

	ledger.GroupCounter = 0
	if err := ledger.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("Validate() error = %v, want ErrValidation", err)
	}

	ledger = NewProgressLedger("")
	if err := ledger.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("Validate() error = %v, want ErrValidation", err)
	}
}
