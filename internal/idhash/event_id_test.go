package idhash

import "testing"

func TestComputePurchaseEventID_Deterministic(t *testing.T) {
	id1 := ComputePurchaseEventID("sale1", "buyer1", "native", 1000, 1700000000)
	id2 := ComputePurchaseEventID("sale1", "buyer1", "native", 1000, 1700000000)

	if id1 != id2 {
		t.Errorf("event id not deterministic: %s vs %s", id1, id2)
	}
	if len(id1) != 64 {
		t.Errorf("expected 64-char hex id, got %d chars", len(id1))
	}
}

func TestComputePurchaseEventID_FieldSensitivity(t *testing.T) {
	base := ComputePurchaseEventID("sale1", "buyer1", "native", 1000, 1700000000)

	variants := []string{
		ComputePurchaseEventID("sale2", "buyer1", "native", 1000, 1700000000),
		ComputePurchaseEventID("sale1", "buyer2", "native", 1000, 1700000000),
		ComputePurchaseEventID("sale1", "buyer1", "stable", 1000, 1700000000),
		ComputePurchaseEventID("sale1", "buyer1", "native", 1001, 1700000000),
		ComputePurchaseEventID("sale1", "buyer1", "native", 1000, 1700000001),
	}

	for i, v := range variants {
		if v == base {
			t.Errorf("variant %d collided with base id", i)
		}
	}
}
