package draft

import (
	"context"
	"errors"
	"testing"

	"github.com/nfa-vfxim/project-creator/internal/directory"
)

type fakeLookup struct {
	people map[string]directory.Person
	err    error
}

func (f fakeLookup) FindPerson(_ context.Context, identifier string) (directory.Person, bool, error) {
	if f.err != nil {
		return directory.Person{}, false, f.err
	}
	p, ok := f.people[identifier]
	return p, ok, nil
}

var (
	anna = directory.Person{ID: 1, Name: "Anna de Vries", Login: "avries", Cohort: "L2020", Permission: directory.PermissionTier{ID: 5, Name: "Artist"}}
	bram = directory.Person{ID: 2, Name: "Bram Jansen", Login: "bjansen", Cohort: "L2019", Permission: directory.PermissionTier{ID: 190, Name: "Supervisor"}}
)

func newTestDraft() *Draft {
	snapshot := directory.Snapshot{
		ProjectNames: []string{"spring_short", "taken"},
		ProjectCodes: []string{"abc", "p00001"},
	}
	lookup := fakeLookup{people: map[string]directory.Person{
		"Anna":    anna,
		"avries":  anna,
		"bjansen": bram,
	}}
	return New(snapshot, lookup)
}

func TestNewDraftDefaults(t *testing.T) {
	p := newTestDraft().Project()
	if !p.HasProductionCode || p.RenderEngine != RenderEngineAll || p.Type != ProjectTypeFiction || p.FPS != 25 {
		t.Fatalf("unexpected defaults: %+v", p)
	}
	if len(p.Supervisors) != 0 {
		t.Fatalf("expected no supervisors, got %v", p.Supervisors)
	}
}

func TestSetProjectName(t *testing.T) {
	cases := []struct {
		name    string
		valid   bool
		message string
	}{
		{"myproject", true, "Project name available!"},
		{"my_project_", true, "Project name available!"},
		{"_", true, "Project name available!"},
		{"", false, "You must fill in a project name."},
		{"MyProject", false, "Project name may only use lowercase a-z and underscores."},
		{"my project", false, "Project name may only use lowercase a-z and underscores."},
		{"project2", false, "Project name may only use lowercase a-z and underscores."},
		{"abc-", false, "Project name may only use lowercase a-z and underscores."},
		{"abc\n", false, "Project name may only use lowercase a-z and underscores."},
		{"taken", false, "Project name already taken."},
	}
	for _, tc := range cases {
		d := newTestDraft()
		v := d.SetProjectName(tc.name)
		if v.Valid != tc.valid || v.Message != tc.message {
			t.Fatalf("SetProjectName(%q) = %+v, want valid=%v %q", tc.name, v, tc.valid, tc.message)
		}
		if !v.Stored || d.Project().Name != tc.name {
			t.Fatalf("SetProjectName(%q) did not store the value", tc.name)
		}
		if err := v.Err(); (err == nil) != tc.valid {
			t.Fatalf("Err() = %v for %q", err, tc.name)
		}
	}
}

func TestSetProjectCodeProductionGrammar(t *testing.T) {
	cases := []struct {
		code    string
		valid   bool
		message string
	}{
		{"P12345", true, "Project code available!"},
		{"p54321", true, "Project code available!"},
		{"P1234", false, "Project code uses fewer characters than allowed."},
		{"P123456", false, "Project code uses more characters than allowed."},
		{"123456", false, "Production code should start with a p and contain 5 numbers."},
		{"pp1234", false, "Production code should start with a p and contain 5 numbers."},
		{"abc", false, "Production code should start with a p and contain 5 numbers."},
		{"P00001", false, "Project code already taken."},
	}
	for _, tc := range cases {
		d := newTestDraft()
		v := d.SetProjectCode(tc.code)
		if v.Valid != tc.valid || v.Message != tc.message {
			t.Fatalf("SetProjectCode(%q) = %+v, want valid=%v %q", tc.code, v, tc.valid, tc.message)
		}
	}
}

func TestSetProjectCodeLetterGrammar(t *testing.T) {
	cases := []struct {
		code    string
		valid   bool
		message string
	}{
		{"xyz", true, "Project code available!"},
		{"XyZ", true, "Project code available!"},
		{"ab", false, "Project code uses fewer characters than allowed."},
		{"abcd", false, "Project code uses more characters than allowed."},
		{"a1c", false, "Three-letter code should only use letters a-z."},
		{"", false, "Three-letter code should only use letters a-z."},
		{"ABC", false, "Project code already taken."},
	}
	for _, tc := range cases {
		d := newTestDraft()
		d.SetHasProductionCode(false)
		v := d.SetProjectCode(tc.code)
		if v.Valid != tc.valid || v.Message != tc.message {
			t.Fatalf("SetProjectCode(%q) = %+v, want valid=%v %q", tc.code, v, tc.valid, tc.message)
		}
	}
}

func TestProjectCodeStoredLowercase(t *testing.T) {
	d := newTestDraft()
	d.SetProjectCode("P1")
	if got := d.Project().Code; got != "p1" {
		t.Fatalf("code = %q, want p1", got)
	}
}

func TestFlagFlipInvalidatesCode(t *testing.T) {
	d := newTestDraft()
	d.SetProjectName("myproject")
	if v := d.SetProjectCode("P12345"); !v.Valid {
		t.Fatalf("production code should be valid: %+v", v)
	}
	if _, err := d.AddSupervisor(context.Background(), "Anna"); err != nil {
		t.Fatalf("add supervisor: %v", err)
	}
	d.SetHasProductionCode(false)
	if got := d.Project().Code; got != "p12345" {
		t.Fatalf("flag flip must not touch the code, got %q", got)
	}
	err := d.ValidateAll()
	var vErr *ValidationError
	if !errors.As(err, &vErr) || vErr.Field != FieldCode {
		t.Fatalf("expected code validation error, got %v", err)
	}
	if vErr.Message != "Three-letter code should only use letters a-z." {
		t.Fatalf("unexpected message %q", vErr.Message)
	}
}

func TestAddSupervisor(t *testing.T) {
	d := newTestDraft()
	name, err := d.AddSupervisor(context.Background(), "Anna")
	if err != nil || name != "Anna de Vries" {
		t.Fatalf("AddSupervisor = %q, %v", name, err)
	}
	_, err = d.AddSupervisor(context.Background(), "avries")
	var vErr *ValidationError
	if !errors.As(err, &vErr) || vErr.Message != "This supervisor has already been added." {
		t.Fatalf("second add should fail as duplicate, got %v", err)
	}
	_, err = d.AddSupervisor(context.Background(), "nobody")
	if !errors.As(err, &vErr) || vErr.Message != `Could not find supervisor "nobody" in ShotGrid database.` {
		t.Fatalf("unknown supervisor should fail, got %v", err)
	}
	if got := d.Supervisors(); len(got) != 1 || got[0] != anna {
		t.Fatalf("supervisors = %+v", got)
	}
}

func TestAddSupervisorLookupFailureIsNotValidation(t *testing.T) {
	boom := errors.New("connection reset")
	d := New(directory.Snapshot{}, fakeLookup{err: boom})
	_, err := d.AddSupervisor(context.Background(), "Anna")
	var vErr *ValidationError
	if errors.As(err, &vErr) || !errors.Is(err, boom) {
		t.Fatalf("expected raw lookup error, got %v", err)
	}
}

func TestRemoveSupervisor(t *testing.T) {
	d := newTestDraft()
	if _, err := d.AddSupervisor(context.Background(), "Anna"); err != nil {
		t.Fatal(err)
	}
	if _, err := d.AddSupervisor(context.Background(), "bjansen"); err != nil {
		t.Fatal(err)
	}
	err := d.RemoveSupervisor(context.Background(), "nobody")
	var vErr *ValidationError
	if !errors.As(err, &vErr) || vErr.Message != `Can't remove "nobody" because supervisor isn't on the list.` {
		t.Fatalf("removing unknown supervisor: %v", err)
	}
	fresh := newTestDraft()
	if err := fresh.RemoveSupervisor(context.Background(), "Anna"); !errors.As(err, &vErr) {
		t.Fatalf("removing a known person never added should fail, got %v", err)
	}
	if err := d.RemoveSupervisor(context.Background(), "avries"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if got := d.Supervisors(); len(got) != 1 || got[0] != bram {
		t.Fatalf("supervisors after remove = %+v", got)
	}
}

func TestResolvedSupervisorEdits(t *testing.T) {
	d := newTestDraft()
	if name, err := d.AddResolvedSupervisor("Bram", bram, true); err != nil || name != "Bram Jansen" {
		t.Fatalf("AddResolvedSupervisor = %q, %v", name, err)
	}
	var vErr *ValidationError
	if _, err := d.AddResolvedSupervisor("bjansen", bram, true); !errors.As(err, &vErr) || vErr.Message != "This supervisor has already been added." {
		t.Fatalf("duplicate add: %v", err)
	}
	if _, err := d.AddResolvedSupervisor("ghost", directory.Person{}, false); !errors.As(err, &vErr) || vErr.Message != `Could not find supervisor "ghost" in ShotGrid database.` {
		t.Fatalf("unresolved add: %v", err)
	}
	if err := d.RemoveResolvedSupervisor("Anna", anna, true); !errors.As(err, &vErr) || vErr.Message != `Can't remove "Anna" because supervisor isn't on the list.` {
		t.Fatalf("absent remove: %v", err)
	}
	if err := d.RemoveResolvedSupervisor("Bram", bram, true); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if got := d.Supervisors(); len(got) != 0 {
		t.Fatalf("supervisors = %+v", got)
	}
}

func TestValidateAllOrder(t *testing.T) {
	d := newTestDraft()
	d.SetProjectCode("bad")
	var vErr *ValidationError
	if err := d.ValidateAll(); !errors.As(err, &vErr) || vErr.Field != FieldName {
		t.Fatalf("name must be checked first, got %v", err)
	}
	d.SetProjectName("myproject")
	if err := d.ValidateAll(); !errors.As(err, &vErr) || vErr.Field != FieldCode {
		t.Fatalf("code must be checked second, got %v", err)
	}
	d.SetHasProductionCode(false)
	d.SetProjectCode("xyz")
	err := d.ValidateAll()
	if !errors.As(err, &vErr) || vErr.Message != "You haven't yet added any supervisors." {
		t.Fatalf("expected no-supervisors error, got %v", err)
	}
	if _, err := d.AddSupervisor(context.Background(), "Anna"); err != nil {
		t.Fatal(err)
	}
	if err := d.ValidateAll(); err != nil {
		t.Fatalf("valid draft rejected: %v", err)
	}
}

func TestUnvalidatedSetters(t *testing.T) {
	d := newTestDraft()
	d.SetFPS(24)
	first := d.Project()
	d.SetFPS(24)
	if second := d.Project(); second.FPS != first.FPS || second.FPS != 24 {
		t.Fatalf("SetFPS not idempotent: %d then %d", first.FPS, second.FPS)
	}
	d.SetRenderEngine(RenderEngineKarma)
	d.SetProjectType(ProjectTypeDocumentary)
	p := d.Project()
	if p.RenderEngine != RenderEngineKarma || p.Type != ProjectTypeDocumentary {
		t.Fatalf("setters not applied: %+v", p)
	}
	if len(RenderEngines()) != 4 || len(ProjectTypes()) != 2 {
		t.Fatalf("unexpected choice sets")
	}
}

func TestProjectReturnsCopy(t *testing.T) {
	d := newTestDraft()
	if _, err := d.AddSupervisor(context.Background(), "Anna"); err != nil {
		t.Fatal(err)
	}
	p := d.Project()
	p.Supervisors[0].Name = "changed"
	if d.Supervisors()[0].Name != "Anna de Vries" {
		t.Fatalf("Project() leaked internal supervisor slice")
	}
}
