package directory

import (
	"context"
	"fmt"
	"os/user"
	"strings"

	"github.com/sahilm/fuzzy"
	"golang.org/x/sync/errgroup"

	"github.com/nfa-vfxim/project-creator/internal/logbook"
	"github.com/nfa-vfxim/project-creator/internal/shotgrid"
)

// Service is the subset of the ShotGrid client the resolver and the
// submission steps rely on.
type Service interface {
	Authenticate(ctx context.Context) error
	Find(ctx context.Context, entityType string, filters []shotgrid.Filter, fields []string) ([]shotgrid.Record, error)
	FindOne(ctx context.Context, entityType string, filters []shotgrid.Filter, fields []string) (*shotgrid.Record, error)
	Create(ctx context.Context, entityType string, fields map[string]any) (shotgrid.Record, error)
	Update(ctx context.Context, entityType string, id int, fields map[string]any) error
}

// ConnectionError reports that the ShotGrid session could not be set up.
// Its message is the underlying failure, unchanged.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	if e == nil || e.Err == nil {
		return "connection failed"
	}
	return e.Err.Error()
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Snapshot holds the listings fetched once at connect time. Project codes
// are lowercased.
type Snapshot struct {
	UserNames    []string
	ProjectNames []string
	ProjectCodes []string
}

// Session is a connected ShotGrid session plus its connect-time snapshot.
type Session struct {
	svc         Service
	snapshot    Snapshot
	elevateTo   PermissionTier
	accountName func() (string, error)
	log         *logbook.Logbook
}

// Option customizes a Session.
type Option func(*Session)

// WithSupervisorTier overrides the permission rule set given to supervisors.
func WithSupervisorTier(tier PermissionTier) Option {
	return func(s *Session) {
		if tier.ID > 0 && strings.TrimSpace(tier.Name) != "" {
			s.elevateTo = tier
		}
	}
}

// WithAccountName overrides how the operating system login is read.
func WithAccountName(fn func() (string, error)) Option {
	return func(s *Session) {
		if fn != nil {
			s.accountName = fn
		}
	}
}

// WithLogbook routes resolver activity to the logbook.
func WithLogbook(log *logbook.Logbook) Option {
	return func(s *Session) {
		s.log = log.With("directory")
	}
}

// DefaultSupervisorTier is the rule set new supervisors are promoted to.
var DefaultSupervisorTier = PermissionTier{ID: 190, Name: "Supervisor"}

// Connect authenticates svc and fetches the user and project listings used
// for uniqueness checks and autocompletion. Any failure is returned as a
// *ConnectionError; nothing is retried.
func Connect(ctx context.Context, svc Service, opts ...Option) (*Session, error) {
	s := &Session{
		svc:         svc,
		elevateTo:   DefaultSupervisorTier,
		accountName: currentAccountName,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if svc == nil {
		return nil, &ConnectionError{Err: fmt.Errorf("no ShotGrid service configured")}
	}
	if err := svc.Authenticate(ctx); err != nil {
		s.log.Error("Authentication failed: %v", err)
		return nil, &ConnectionError{Err: err}
	}

	var users, projects []shotgrid.Record
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		users, err = svc.Find(gctx, EntityType, nil, []string{"name"})
		return err
	})
	g.Go(func() error {
		var err error
		projects, err = svc.Find(gctx, "Project", nil, []string{"name", "sg_projectcode"})
		return err
	})
	if err := g.Wait(); err != nil {
		s.log.Error("Fetching listings failed: %v", err)
		return nil, &ConnectionError{Err: err}
	}

	snap := Snapshot{
		UserNames:    make([]string, 0, len(users)),
		ProjectNames: make([]string, 0, len(projects)),
	}
	for _, u := range users {
		if name := u.String("name"); name != "" {
			snap.UserNames = append(snap.UserNames, name)
		}
	}
	for _, p := range projects {
		if name := p.String("name"); name != "" {
			snap.ProjectNames = append(snap.ProjectNames, name)
		}
		if code := p.String("sg_projectcode"); code != "" {
			snap.ProjectCodes = append(snap.ProjectCodes, strings.ToLower(code))
		}
	}
	s.snapshot = snap
	s.log.Info("Connected · %d users, %d projects", len(snap.UserNames), len(snap.ProjectNames))
	return s, nil
}

// Snapshot returns the listings fetched at connect time.
func (s *Session) Snapshot() Snapshot {
	return s.snapshot
}

// Service returns the underlying record service.
func (s *Session) Service() Service {
	return s.svc
}

// FindPerson looks a person up by display name ("contains") and only when
// that finds nobody, by exact login. A loose name match wins over an exact
// login match.
func (s *Session) FindPerson(ctx context.Context, identifier string) (Person, bool, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return Person{}, false, nil
	}
	record, err := s.svc.FindOne(ctx, EntityType, []shotgrid.Filter{shotgrid.Contains("name", identifier)}, personFields)
	if err != nil {
		return Person{}, false, fmt.Errorf("directory: find %q by name: %w", identifier, err)
	}
	if record != nil {
		return personFromRecord(*record), true, nil
	}
	record, err = s.svc.FindOne(ctx, EntityType, []shotgrid.Filter{shotgrid.Is("login", identifier)}, personFields)
	if err != nil {
		return Person{}, false, fmt.Errorf("directory: find %q by login: %w", identifier, err)
	}
	if record != nil {
		return personFromRecord(*record), true, nil
	}
	return Person{}, false, nil
}

// ResolveActingUser looks up the person matching the operating system login.
// A false result means the user has to enter their name by hand.
func (s *Session) ResolveActingUser(ctx context.Context) (Person, bool, error) {
	account, err := s.accountName()
	if err != nil {
		s.log.Warn("Could not read account name: %v", err)
		return Person{}, false, nil
	}
	person, ok, err := s.FindPerson(ctx, account)
	if err != nil {
		return Person{}, false, err
	}
	if ok {
		s.log.Info("Account %s resolved to %s", account, person.Name)
	} else {
		s.log.Info("Account %s not found, asking for a name", account)
	}
	return person, ok, nil
}

// ElevatePermission promotes person to the supervisor rule set when they
// still have the Artist rule set. Any other tier is left alone. It reports
// whether an update was sent.
func (s *Session) ElevatePermission(ctx context.Context, person Person) (bool, error) {
	if person.Permission.Name != ArtistTier {
		return false, nil
	}
	fields := map[string]any{
		"permission_rule_set": shotgrid.EntityRef{
			ID:   s.elevateTo.ID,
			Name: s.elevateTo.Name,
			Type: "PermissionRuleSet",
		},
	}
	if err := s.svc.Update(ctx, EntityType, person.ID, fields); err != nil {
		s.log.Error("Promoting %s failed: %v", person.Name, err)
		return false, err
	}
	s.log.Info("Promoted %s to %s", person.Name, s.elevateTo.Name)
	return true, nil
}

// Suggest returns up to limit user names that fuzzily match query, best
// match first.
func (s *Session) Suggest(query string, limit int) []string {
	query = strings.TrimSpace(query)
	if query == "" || limit <= 0 {
		return nil
	}
	matches := fuzzy.Find(query, s.snapshot.UserNames)
	if len(matches) > limit {
		matches = matches[:limit]
	}
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.Str
	}
	return out
}

func currentAccountName() (string, error) {
	u, err := user.Current()
	if err != nil {
		return "", err
	}
	name := u.Username
	// windows accounts come back as DOMAIN\user
	if idx := strings.LastIndex(name, `\`); idx >= 0 {
		name = name[idx+1:]
	}
	return name, nil
}
