package diag

import (
	"strings"
	"testing"
)

func TestBagAccumulates(t *testing.T) {
	b := NewBag()
	if b.HasErrors() {
		t.Error("fresh bag reports errors")
	}
	if b.Count() != 0 {
		t.Errorf("count = %d, want 0", b.Count())
	}

	b.Errorf("main.kiln", 3, 10, "app.Controller", "class %s must be final", "Controller")
	b.Warningf("main.kiln", 7, 1, "app.Controller.draw", "unused parameter %s", "rect")
	b.Infof("main.kiln", 1, 1, "app", "processing unit")

	if !b.HasErrors() {
		t.Error("bag with an error reports none")
	}
	if b.Count() != 3 {
		t.Errorf("count = %d, want 3", b.Count())
	}
	if b.ErrorCount() != 1 {
		t.Errorf("error count = %d, want 1", b.ErrorCount())
	}

	all := b.All()
	if len(all) != 3 {
		t.Fatalf("all = %d entries, want 3", len(all))
	}
	// Insertion order is preserved.
	if all[0].Severity != Error || all[1].Severity != Warning || all[2].Severity != Info {
		t.Errorf("severities = %v %v %v, want error warning info",
			all[0].Severity, all[1].Severity, all[2].Severity)
	}
	if all[0].Message != "class Controller must be final" {
		t.Errorf("message = %q, want formatted message", all[0].Message)
	}
}

func TestBySubject(t *testing.T) {
	b := NewBag()
	b.Errorf("a.kiln", 1, 1, "app.A", "first")
	b.Errorf("a.kiln", 2, 1, "app.B", "second")
	b.Warningf("a.kiln", 3, 1, "app.A", "third")

	got := b.BySubject("app.A")
	if len(got) != 2 {
		t.Fatalf("BySubject(app.A) = %d entries, want 2", len(got))
	}
	if got[0].Message != "first" || got[1].Message != "third" {
		t.Errorf("messages = %q, %q, want first, third", got[0].Message, got[1].Message)
	}
	if n := len(b.BySubject("app.C")); n != 0 {
		t.Errorf("BySubject(app.C) = %d entries, want 0", n)
	}
}

func TestFormat(t *testing.T) {
	b := NewBag()
	b.Errorf("main.kiln", 3, 10, "app.Controller", "class must be final")
	b.ErrorWithHint("main.kiln", 8, 5, "app.Controller.toString",
		"cannot override 'toString' in a foreign subclass",
		"override the foreign method 'description' instead")
	b.Warningf("other.kiln", 1, 2, "app", "something minor")

	got := b.Format()
	want := strings.Join([]string{
		"error[main.kiln:3:10]: class must be final",
		"error[main.kiln:8:5]: cannot override 'toString' in a foreign subclass",
		"  hint: override the foreign method 'description' instead",
		"warning[other.kiln:1:2]: something minor",
	}, "\n")
	if got != want {
		t.Errorf("Format =\n%s\nwant\n%s", got, want)
	}
}

func TestFormatEmpty(t *testing.T) {
	if got := NewBag().Format(); got != "" {
		t.Errorf("Format of empty bag = %q, want empty", got)
	}
}

func TestClear(t *testing.T) {
	b := NewBag()
	b.Errorf("a.kiln", 1, 1, "x", "boom")
	b.Clear()
	if b.Count() != 0 || b.HasErrors() {
		t.Errorf("after Clear: count = %d, hasErrors = %v", b.Count(), b.HasErrors())
	}
}

func TestSeverityString(t *testing.T) {
	tests := []struct {
		s    Severity
		want string
	}{
		{Error, "error"},
		{Warning, "warning"},
		{Info, "info"},
		{Severity(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("Severity(%d).String() = %q, want %q", int(tt.s), got, tt.want)
		}
	}
}
