package changes

import (
	"reflect"
	"testing"

	"github.com/HendryAvila/tanagraph/internal/tags"
)

func tag(id string, usage int) tags.Tag {
	return tags.Tag{ID: id, Name: id, UsageCount: usage}
}

func ids(list []tags.Tag) []string {
	out := make([]string, 0, len(list))
	for _, t := range list {
		out = append(out, t.ID)
	}
	return out
}

func TestDiff_AddedRemovedUsage(t *testing.T) {
	prev := []tags.Tag{tag("A", 5), tag("B", 2)}
	cur := []tags.Tag{tag("B", 3), tag("C", 1)}

	cs := Diff(prev, cur)

	if got := ids(cs.Added); !reflect.DeepEqual(got, []string{"C"}) {
		t.Errorf("Added = %v, want [C]", got)
	}
	if got := ids(cs.Removed); !reflect.DeepEqual(got, []string{"A"}) {
		t.Errorf("Removed = %v, want [A]", got)
	}
	want := []UsageChange{{ID: "B", Name: "B", Before: 2, After: 3}}
	if !reflect.DeepEqual(cs.UsageChanges, want) {
		t.Errorf("UsageChanges = %+v, want %+v", cs.UsageChanges, want)
	}
	if cs.UsageChanges[0].Delta() != 1 {
		t.Errorf("Delta() = %d, want 1", cs.UsageChanges[0].Delta())
	}
	if len(cs.Modified) != 0 {
		t.Errorf("Modified = %+v, want none", cs.Modified)
	}
	if !cs.HasChanges() {
		t.Error("HasChanges() = false, want true")
	}
	if cs.Total != 2 {
		t.Errorf("Total = %d, want 2", cs.Total)
	}
}

func TestDiff_Ordering(t *testing.T) {
	prev := []tags.Tag{tag("r2", 0), tag("keep", 1), tag("r1", 0)}
	cur := []tags.Tag{tag("n3", 0), tag("keep", 4), tag("n1", 0), tag("n2", 0)}

	cs := Diff(prev, cur)

	if got := ids(cs.Added); !reflect.DeepEqual(got, []string{"n3", "n1", "n2"}) {
		t.Errorf("Added = %v, want current order", got)
	}
	if got := ids(cs.Removed); !reflect.DeepEqual(got, []string{"r2", "r1"}) {
		t.Errorf("Removed = %v, want previous order", got)
	}
}

func TestDiff_Modified(t *testing.T) {
	prev := []tags.Tag{{ID: "t", Name: "old", Description: "d", FieldCount: 1, UsageCount: 3}}
	cur := []tags.Tag{{ID: "t", Name: "new", Description: "d", FieldCount: 2, UsageCount: 3}}

	cs := Diff(prev, cur)

	if len(cs.Modified) != 1 {
		t.Fatalf("Modified = %+v, want one entry", cs.Modified)
	}
	want := []FieldChange{
		{Field: "name", Before: "old", After: "new"},
		{Field: "field_count", Before: 1, After: 2},
	}
	if !reflect.DeepEqual(cs.Modified[0].Changes, want) {
		t.Errorf("Changes = %+v, want %+v", cs.Modified[0].Changes, want)
	}
	if len(cs.UsageChanges) != 0 {
		t.Errorf("UsageChanges = %+v, want none", cs.UsageChanges)
	}
}

func TestDiff_UsageOnlyIsNotAChange(t *testing.T) {
	cs := Diff([]tags.Tag{tag("A", 1)}, []tags.Tag{tag("A", 9)})
	if cs.HasChanges() {
		t.Error("HasChanges() = true for a usage-only delta")
	}
	if len(cs.UsageChanges) != 1 {
		t.Errorf("UsageChanges = %+v, want one entry", cs.UsageChanges)
	}
}

func TestDiff_IsPure(t *testing.T) {
	prev := []tags.Tag{tag("A", 5), tag("B", 2)}
	cur := []tags.Tag{tag("B", 3), tag("C", 1)}

	first := Diff(prev, cur)
	second := Diff(prev, cur)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Diff is not deterministic: %+v vs %+v", first, second)
	}
	if prev[0].UsageCount != 5 || cur[0].UsageCount != 3 {
		t.Error("Diff modified its inputs")
	}
}

func TestInitial(t *testing.T) {
	cs := Initial([]tags.Tag{tag("A", 1), tag("B", 1)})
	if !cs.InitialLoad {
		t.Error("InitialLoad = false, want true")
	}
	if cs.Total != 2 {
		t.Errorf("Total = %d, want 2", cs.Total)
	}
	if cs.HasChanges() {
		t.Error("HasChanges() = true on initial load")
	}
}
