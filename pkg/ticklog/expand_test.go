package ticklog

import "testing"

func TestDefaultExpansion(t *testing.T) {
	a := NewAggregator()
	for id := uint64(1); id <= 5; id++ {
		a.Apply(dataEvent(10, id))
	}
	if !a.Expanded(10) {
		t.Errorf("Expanded(10) with 5 logs = false; want true")
	}

	a.Apply(dataEvent(10, 6))
	if a.Expanded(10) {
		t.Errorf("Expanded(10) with 6 logs = true; want false")
	}

	rows := a.Rows()
	if len(rows) != 1 {
		t.Fatalf("Rows() = %d rows; want 1", len(rows))
	}
	if len(rows[0].Visible) != CollapseThreshold || rows[0].Hidden != 1 {
		t.Errorf("collapsed row shows %d, hides %d; want %d, 1", len(rows[0].Visible), rows[0].Hidden, CollapseThreshold)
	}
}

func TestToggleResetsOnNewLogs(t *testing.T) {
	a := NewAggregator()
	for id := uint64(1); id <= 7; id++ {
		a.Apply(dataEvent(20, id))
	}
	if a.Expanded(20) {
		t.Fatalf("Expanded(20) = true; want collapsed default")
	}
	if !a.Toggle(20) {
		t.Fatalf("Toggle(20) = false; want true")
	}
	if !a.Expanded(20) {
		t.Errorf("Expanded(20) after toggle = false; want true")
	}
	rows := a.Rows()
	if len(rows[0].Visible) != 7 {
		t.Errorf("expanded row shows %d logs; want 7", len(rows[0].Visible))
	}

	a.Apply(dataEvent(20, 8))
	if a.Expanded(20) {
		t.Errorf("Expanded(20) after new log = true; want reset to collapsed")
	}
}

func TestToggleSmallTick(t *testing.T) {
	a := NewAggregator()
	a.Apply(dataEvent(30, 1))
	if a.Toggle(30) {
		t.Errorf("Toggle(30) = true; want false (collapse from default expanded)")
	}
	rows := a.Rows()
	if len(rows[0].Visible) != 1 {
		t.Errorf("collapsed row with 1 log shows %d; want 1", len(rows[0].Visible))
	}
	if a.Toggle(999) {
		t.Errorf("Toggle(unknown) = true; want false")
	}
}
