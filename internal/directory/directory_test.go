package directory

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nfa-vfxim/project-creator/internal/shotgrid"
)

type fakeService struct {
	authErr   error
	findErr   error
	updateErr error
	users     []shotgrid.Record
	projects  []shotgrid.Record
	byName    map[string]shotgrid.Record
	byLogin   map[string]shotgrid.Record
	queries   []string
	updates   []update
}

type update struct {
	entityType string
	id         int
	fields     map[string]any
}

func (f *fakeService) Authenticate(context.Context) error { return f.authErr }

func (f *fakeService) Find(_ context.Context, entityType string, _ []shotgrid.Filter, _ []string) ([]shotgrid.Record, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	if entityType == EntityType {
		return f.users, nil
	}
	return f.projects, nil
}

func (f *fakeService) FindOne(_ context.Context, _ string, filters []shotgrid.Filter, _ []string) (*shotgrid.Record, error) {
	filter := filters[0]
	value, _ := filter.Value.(string)
	f.queries = append(f.queries, filter.Field+" "+filter.Relation+" "+value)
	switch filter.Relation {
	case "contains":
		for name, record := range f.byName {
			if strings.Contains(name, value) {
				r := record
				return &r, nil
			}
		}
	case "is":
		if record, ok := f.byLogin[value]; ok {
			return &record, nil
		}
	}
	return nil, nil
}

func (f *fakeService) Create(context.Context, string, map[string]any) (shotgrid.Record, error) {
	return shotgrid.Record{}, errors.New("not supported")
}

func (f *fakeService) Update(_ context.Context, entityType string, id int, fields map[string]any) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates = append(f.updates, update{entityType: entityType, id: id, fields: fields})
	return nil
}

func userRecord(id int, name, login, cohort, tier string) shotgrid.Record {
	return shotgrid.Record{Type: EntityType, ID: id, Fields: map[string]any{
		"name":        name,
		"login":       login,
		"sg_lichting": cohort,
		"permission_rule_set": map[string]any{
			"id": float64(id + 100), "name": tier, "type": "PermissionRuleSet",
		},
	}}
}

func TestConnectBuildsSnapshot(t *testing.T) {
	svc := &fakeService{
		users: []shotgrid.Record{
			{ID: 1, Fields: map[string]any{"name": "Anna de Vries"}},
			{ID: 2, Fields: map[string]any{"name": "Bram Jansen"}},
		},
		projects: []shotgrid.Record{
			{ID: 10, Fields: map[string]any{"name": "spring_short", "sg_projectcode": "ABC"}},
			{ID: 11, Fields: map[string]any{"name": "template", "sg_projectcode": nil}},
		},
	}
	session, err := Connect(context.Background(), svc)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	snap := session.Snapshot()
	if len(snap.UserNames) != 2 || snap.UserNames[1] != "Bram Jansen" {
		t.Fatalf("user names = %v", snap.UserNames)
	}
	if len(snap.ProjectNames) != 2 {
		t.Fatalf("project names = %v", snap.ProjectNames)
	}
	if len(snap.ProjectCodes) != 1 || snap.ProjectCodes[0] != "abc" {
		t.Fatalf("project codes = %v, want [abc]", snap.ProjectCodes)
	}
}

func TestConnectFailuresAreConnectionErrors(t *testing.T) {
	for name, svc := range map[string]*fakeService{
		"auth":     {authErr: errors.New("Can't authenticate script")},
		"listings": {findErr: errors.New("Can't authenticate script")},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Connect(context.Background(), svc)
			var connErr *ConnectionError
			if !errors.As(err, &connErr) {
				t.Fatalf("expected ConnectionError, got %T (%v)", err, err)
			}
			if err.Error() != "Can't authenticate script" {
				t.Fatalf("message not passed through verbatim: %q", err.Error())
			}
		})
	}
}

func TestFindPersonPrefersNameMatch(t *testing.T) {
	svc := &fakeService{
		byName:  map[string]shotgrid.Record{"Anna de Vries": userRecord(1, "Anna de Vries", "avries", "L2026", "Artist")},
		byLogin: map[string]shotgrid.Record{"anna": userRecord(2, "Someone Else", "anna", "L2025", "Artist")},
	}
	session := &Session{svc: svc}
	person, ok, err := session.FindPerson(context.Background(), "Anna")
	if err != nil || !ok {
		t.Fatalf("find person: ok=%v err=%v", ok, err)
	}
	if person.ID != 1 {
		t.Fatalf("expected name match (id 1), got %d", person.ID)
	}
	if len(svc.queries) != 1 {
		t.Fatalf("login lookup should be skipped, queries = %v", svc.queries)
	}
}

func TestFindPersonFallsBackToLogin(t *testing.T) {
	svc := &fakeService{
		byName:  map[string]shotgrid.Record{},
		byLogin: map[string]shotgrid.Record{"bjansen": userRecord(2, "Bram Jansen", "bjansen", "L2025", "Supervisor")},
	}
	session := &Session{svc: svc}
	person, ok, err := session.FindPerson(context.Background(), "bjansen")
	if err != nil || !ok {
		t.Fatalf("find person: ok=%v err=%v", ok, err)
	}
	want := Person{ID: 2, Name: "Bram Jansen", Login: "bjansen", Cohort: "L2025", Permission: PermissionTier{ID: 102, Name: "Supervisor"}}
	if person != want {
		t.Fatalf("person = %+v, want %+v", person, want)
	}
	if got := strings.Join(svc.queries, " | "); got != "name contains bjansen | login is bjansen" {
		t.Fatalf("query order = %s", got)
	}
}

func TestFindPersonBlankIdentifier(t *testing.T) {
	svc := &fakeService{}
	session := &Session{svc: svc}
	if _, ok, err := session.FindPerson(context.Background(), "   "); ok || err != nil {
		t.Fatalf("blank identifier should not resolve: ok=%v err=%v", ok, err)
	}
	if len(svc.queries) != 0 {
		t.Fatalf("blank identifier hit the service: %v", svc.queries)
	}
}

func TestResolveActingUserUsesAccountName(t *testing.T) {
	svc := &fakeService{
		byLogin: map[string]shotgrid.Record{"avries": userRecord(1, "Anna de Vries", "avries", "L2026", "Artist")},
	}
	session, err := Connect(context.Background(), svc, WithAccountName(func() (string, error) { return "avries", nil }))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	person, ok, err := session.ResolveActingUser(context.Background())
	if err != nil || !ok || person.Login != "avries" {
		t.Fatalf("resolve acting user = %+v ok=%v err=%v", person, ok, err)
	}

	session.accountName = func() (string, error) { return "nobody", nil }
	if _, ok, _ := session.ResolveActingUser(context.Background()); ok {
		t.Fatalf("unknown account should require manual entry")
	}
}

func TestGraduationYear(t *testing.T) {
	for cohort, want := range map[string]int{"L2026": 2026, "Ł2027": 2027, " L2025 ": 2025} {
		year, err := GraduationYear(Person{Cohort: cohort})
		if err != nil || year != want {
			t.Fatalf("GraduationYear(%q) = %d, %v", cohort, year, err)
		}
	}
	for _, bad := range []string{"", "2026", "Lxxxx", "L20266", "L+026", "L-001", "12026"} {
		if _, err := GraduationYear(Person{Name: "x", Cohort: bad}); err == nil {
			t.Fatalf("cohort %q should be rejected", bad)
		}
	}
}

func TestCurrentYear(t *testing.T) {
	cases := []struct {
		graduation int
		now        time.Time
		want       int
	}{
		{2026, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 2},
		// 120 days past the start of September lands in the next year
		{2026, time.Date(2024, 9, 10, 0, 0, 0, 0, time.UTC), 3},
		{2024, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), 4},
		{2020, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), 4},
		{2030, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), -2},
	}
	for _, tc := range cases {
		if got := CurrentYear(tc.graduation, tc.now); got != tc.want {
			t.Fatalf("CurrentYear(%d, %s) = %d, want %d", tc.graduation, tc.now.Format("2006-01-02"), got, tc.want)
		}
	}
}

func TestNewActingUser(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	user, err := NewActingUser(Person{ID: 7, Name: "Anna", Cohort: "L2026"}, now)
	if err != nil {
		t.Fatalf("new acting user: %v", err)
	}
	if user != (ActingUser{Name: "Anna", ID: 7, GraduationYear: 2026, CurrentYear: 2}) {
		t.Fatalf("acting user = %+v", user)
	}
}

func TestElevatePermissionOnlyTouchesArtists(t *testing.T) {
	svc := &fakeService{}
	session := &Session{svc: svc, elevateTo: DefaultSupervisorTier}
	for _, tier := range []string{"Supervisor", "Admin", "Manager", ""} {
		updated, err := session.ElevatePermission(context.Background(), Person{ID: 3, Permission: PermissionTier{Name: tier}})
		if err != nil || updated {
			t.Fatalf("tier %q should be left alone: updated=%v err=%v", tier, updated, err)
		}
	}
	if len(svc.updates) != 0 {
		t.Fatalf("unexpected updates: %+v", svc.updates)
	}

	updated, err := session.ElevatePermission(context.Background(), Person{ID: 3, Name: "Anna", Permission: PermissionTier{ID: 5, Name: "Artist"}})
	if err != nil || !updated {
		t.Fatalf("artist should be promoted: updated=%v err=%v", updated, err)
	}
	if len(svc.updates) != 1 {
		t.Fatalf("expected one update, got %d", len(svc.updates))
	}
	got := svc.updates[0]
	if got.entityType != EntityType || got.id != 3 {
		t.Fatalf("update target = %s %d", got.entityType, got.id)
	}
	want := shotgrid.EntityRef{ID: 190, Name: "Supervisor", Type: "PermissionRuleSet"}
	if got.fields["permission_rule_set"] != want {
		t.Fatalf("permission_rule_set = %#v, want %#v", got.fields["permission_rule_set"], want)
	}
}

func TestElevatePermissionReturnsRemoteErrorUnchanged(t *testing.T) {
	rejected := errors.New("API update() HumanUser error: permission denied")
	session := &Session{svc: &fakeService{updateErr: rejected}, elevateTo: DefaultSupervisorTier}
	_, err := session.ElevatePermission(context.Background(), Person{ID: 3, Name: "Anna", Permission: PermissionTier{Name: "Artist"}})
	if err != rejected {
		t.Fatalf("expected the remote error as is, got %v", err)
	}
}

func TestSuggest(t *testing.T) {
	session := &Session{snapshot: Snapshot{UserNames: []string{"Anna de Vries", "Bram Jansen", "Annelies Bakker"}}}
	got := session.Suggest("anna", 5)
	if len(got) != 2 {
		t.Fatalf("suggestions = %v", got)
	}
	for _, name := range got {
		if !strings.HasPrefix(name, "Ann") {
			t.Fatalf("unexpected suggestion %q", name)
		}
	}
	if session.Suggest("", 5) != nil {
		t.Fatalf("empty query should not suggest")
	}
	if got := session.Suggest("a", 1); len(got) != 1 {
		t.Fatalf("limit not applied: %v", got)
	}
}
