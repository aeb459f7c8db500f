package queue

import (
	"strings"
	"testing"
)

func TestJobColumnListsAgree(t *testing.T) {
	selected := strings.Split(jobColumns, ", ")
	if len(selected) != len(jobTableColumns) {
		t.Fatalf("column count mismatch: select list has %d, table layout has %d", len(selected), len(jobTableColumns))
	}
	for i, col := range jobTableColumns {
		if selected[i] != col {
			t.Fatalf("column %d: select list has %q, table layout has %q", i, selected[i], col)
		}
	}
}
