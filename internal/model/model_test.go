package model

import (
	"strings"
	"testing"
)

func TestQualifiedID(t *testing.T) {
	tests := []struct {
		module string
		parts  []string
		want   string
	}{
		{"pkg.mod", []string{"Foo"}, "pkg.mod.Foo"},
		{"pkg.mod", []string{"Foo", "bar"}, "pkg.mod.Foo.bar"},
		{"", []string{"foo"}, "foo"},
		{"a", []string{"", "x"}, "a.x"},
	}
	for _, tt := range tests {
		if got := QualifiedID(tt.module, tt.parts...); got != tt.want {
			t.Errorf("QualifiedID(%q, %v) = %q, want %q", tt.module, tt.parts, got, tt.want)
		}
	}
}

func TestValidateID(t *testing.T) {
	valid := []string{"a", "a.b.C", "pkg.mod.*"}
	for _, id := range valid {
		if err := ValidateID(id); err != nil {
			t.Errorf("ValidateID(%q) unexpected error: %v", id, err)
		}
	}
	invalid := []string{"", "a..b", ".a", "a b"}
	for _, id := range invalid {
		if err := ValidateID(id); err == nil {
			t.Errorf("ValidateID(%q) expected error", id)
		}
	}
}

func TestHasSuffixSegment(t *testing.T) {
	if !HasSuffixSegment("pkg.mod.foo", "foo") {
		t.Error("expected foo to match")
	}
	if !HasSuffixSegment("pkg.mod.foo", "mod.foo") {
		t.Error("expected mod.foo to match")
	}
	if HasSuffixSegment("pkg.mod.barfoo", "foo") {
		t.Error("partial segment must not match")
	}
}

func TestVisibilityOf(t *testing.T) {
	tests := map[string]Visibility{
		"name":     Public,
		"_name":    Protected,
		"__name":   Private,
		"__init__": Public,
	}
	for name, want := range tests {
		if got := VisibilityOf(name); got != want {
			t.Errorf("VisibilityOf(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestFileModelAssignsIDs(t *testing.T) {
	f := NewFileModel("pkg/mod.py", "pkg.mod", "python")
	f.AddImport(&ImportStatement{Source: "os", ImportType: ImportNamespace})
	f.AddImport(&ImportStatement{Source: "a.b", Name: "x", Alias: "y", ImportType: ImportAliased})
	f.AddImport(&ImportStatement{Source: "c", Name: "*", ImportType: ImportNamespace})
	f.AddFunction(&FunctionDefinition{Name: "run"})
	f.AddClass(&ClassDefinition{
		Name:       "Service",
		Attributes: []*ClassAttribute{{VariableDeclaration: VariableDeclaration{Name: "_port"}}},
		Methods:    []*MethodDefinition{{FunctionDefinition: FunctionDefinition{Name: "start"}}},
	})

	want := []string{
		"pkg.mod.run",
		"pkg.mod.Service",
		"pkg.mod.Service._port",
		"pkg.mod.Service.start",
		"pkg.mod.os",
		"pkg.mod.y",
		"pkg.mod.c.*",
	}
	got := f.IDs()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("IDs() = %v, want %v", got, want)
	}

	m, ok := f.Get("pkg.mod.Service.start")
	if !ok {
		t.Fatal("method not found")
	}
	if OwnerClassID(m) != "pkg.mod.Service" {
		t.Errorf("OwnerClassID = %q", OwnerClassID(m))
	}
	if m.Kind() != KindMethod {
		t.Errorf("Kind = %q, want method", m.Kind())
	}
	for _, id := range got {
		if err := ValidateID(id); err != nil {
			t.Errorf("generated invalid id: %v", err)
		}
	}
}

func TestTargets(t *testing.T) {
	imp := &ImportStatement{DefinitionID: "a.foo"}
	if got := Targets(imp); len(got) != 1 || got[0] != "a.foo" {
		t.Errorf("Targets(import) = %v", got)
	}
	fn := &FunctionDefinition{References: []Reference{
		{Name: "x", UniqueID: "m.x"},
		{Name: "print"},
	}}
	if got := Targets(fn); len(got) != 1 || got[0] != "m.x" {
		t.Errorf("Targets(function) = %v", got)
	}
}

func TestContextStructureGroupsAndDedupes(t *testing.T) {
	cls := &ClassDefinition{CodeElement: CodeElement{UniqueID: "m.C", FilePath: "m.py", Raw: "class C:\n    x = 1"}, Name: "C"}
	method := &MethodDefinition{FunctionDefinition: FunctionDefinition{CodeElement: CodeElement{UniqueID: "m.C.run", FilePath: "m.py", Raw: "    def run(self):\n        pass"}, Name: "run"}, ClassID: "m.C"}
	fn := &FunctionDefinition{CodeElement: CodeElement{UniqueID: "m.helper", FilePath: "m.py", Raw: "def helper():\n    pass"}, Name: "helper"}
	imp := &ImportStatement{CodeElement: CodeElement{UniqueID: "m.os", FilePath: "m.py", Raw: "import os"}, Source: "os"}

	lookup := func(id string) (Element, bool) {
		if id == "m.C" {
			return cls, true
		}
		return nil, false
	}
	cs := NewContextStructure(lookup)
	if !cs.AddRequested(method) {
		t.Fatal("expected seed to be added")
	}
	cs.Add(fn)
	cs.Add(imp)
	if cs.Add(fn) {
		t.Error("duplicate add should be rejected")
	}
	if cs.Add(method) {
		t.Error("seed must not be re-added to a group")
	}

	if got := cs.IDs(); strings.Join(got, ",") != "m.C.run,m.helper,m.os" {
		t.Errorf("IDs() = %v", got)
	}
	if cs.Functions.Len() != 1 || cs.Imports.Len() != 1 {
		t.Errorf("unexpected group sizes: functions=%d imports=%d", cs.Functions.Len(), cs.Imports.Len())
	}

	out := cs.String()
	for _, want := range []string{
		"<PACKAGE_DEPENDENCIES_START>\nimport os",
		"<FILE_START::m.py>\ndef helper():",
		"[TARGET FILE STARTS BELOW]",
		"class C:\n    ...\n\n    def run(self):",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered output missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "[CONTEXT FILES START BELOW]") > strings.Index(out, "[TARGET FILE STARTS BELOW]") {
		t.Error("context instruction must precede target instruction")
	}
}

func TestContextStructureSingleTargetHasNoInstructions(t *testing.T) {
	fn := &FunctionDefinition{CodeElement: CodeElement{UniqueID: "m.f", FilePath: "m.py", Raw: "def f(): pass"}, Name: "f"}
	cs := NewContextStructure(nil)
	cs.AddRequested(fn)
	cs.Preloaded["m.f"] = "def f(): ..."
	out := cs.String()
	if strings.Contains(out, "[CONTEXT FILES") {
		t.Errorf("unexpected instruction in %q", out)
	}
	if !strings.Contains(out, "def f(): ...") {
		t.Errorf("preloaded text not used: %q", out)
	}
}

func TestPartialClassRendering(t *testing.T) {
	cls := &ClassDefinition{CodeElement: CodeElement{UniqueID: "m.C", FilePath: "m.py", Raw: "class C(Base):\n    pass"}, Name: "C"}
	attr := &ClassAttribute{VariableDeclaration: VariableDeclaration{CodeElement: CodeElement{UniqueID: "m.C.x", FilePath: "m.py", Raw: "    x = 1"}, Name: "x"}, ClassID: "m.C"}
	seed := &FunctionDefinition{CodeElement: CodeElement{UniqueID: "m.f", FilePath: "m.py", Raw: "def f(): pass"}, Name: "f"}
	cs := NewContextStructure(func(id string) (Element, bool) { return cls, id == "m.C" })
	cs.AddRequested(seed)
	cs.Add(attr)
	context, targets := cs.Blocks()
	if len(context) != 1 || len(targets) != 1 {
		t.Fatalf("blocks = %d context, %d targets", len(context), len(targets))
	}
	if !strings.Contains(context[0], "class C(Base):\n    x = 1") {
		t.Errorf("partial class not rendered: %q", context[0])
	}
}
