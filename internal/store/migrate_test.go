package store

import (
	"strings"
	"testing"
)

func TestLoadMigrations_Ordered(t *testing.T) {
	ms, err := loadMigrations()
	if err != nil {
		t.Fatalf("loadMigrations: %v", err)
	}
	if len(ms) != 4 {
		t.Fatalf("expected 4 migrations, got %d", len(ms))
	}
	for i := 1; i < len(ms); i++ {
		if ms[i-1].version >= ms[i].version {
			t.Fatalf("migrations out of order: %s then %s", ms[i-1].version, ms[i].version)
		}
	}
	if ms[0].version != "001_calls" {
		t.Fatalf("unexpected first migration %s", ms[0].version)
	}
}

func TestCallsMigration_GuardsActiveCallID(t *testing.T) {
	ms, _ := loadMigrations()
	sql := ms[0].sql
	if !strings.Contains(sql, "ON calls (call_id) WHERE status NOT IN ('completed', 'failed')") {
		t.Fatalf("calls migration must carry the partial unique index on call_id")
	}
}
