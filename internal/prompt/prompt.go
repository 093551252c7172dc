// Package prompt asks for a new project line by line. It is used when the
// full-screen form cannot run, for example over a plain SSH session or when
// --plain is given.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/AlecAivazis/survey/v2"

	"github.com/nfa-vfxim/project-creator/internal/directory"
	"github.com/nfa-vfxim/project-creator/internal/draft"
	"github.com/nfa-vfxim/project-creator/internal/logbook"
	"github.com/nfa-vfxim/project-creator/internal/submit"
)

const suggestionLimit = 5

// ErrCancelled is returned when the user declines the final confirmation.
var ErrCancelled = errors.New("project creation cancelled")

// Asker asks single questions. Validators run on every answer and the
// question is repeated until the validator accepts it.
type Asker interface {
	Input(message, help string, suggest func(string) []string, validate func(string) error) (string, error)
	Confirm(message string, def bool) (bool, error)
	Select(message string, options []string, def string) (string, error)
}

// SurveyAsker asks through github.com/AlecAivazis/survey/v2.
type SurveyAsker struct {
	Options []survey.AskOpt
}

func (s SurveyAsker) Input(message, help string, suggest func(string) []string, validate func(string) error) (string, error) {
	var answer string
	prompt := &survey.Input{
		Message: message,
		Help:    help,
		Suggest: suggest,
	}
	opts := append([]survey.AskOpt{}, s.Options...)
	if validate != nil {
		opts = append(opts, survey.WithValidator(func(ans interface{}) error {
			str, _ := ans.(string)
			return validate(str)
		}))
	}
	if err := survey.AskOne(prompt, &answer, opts...); err != nil {
		return "", err
	}
	return answer, nil
}

func (s SurveyAsker) Confirm(message string, def bool) (bool, error) {
	var answer bool
	prompt := &survey.Confirm{
		Message: message,
		Default: def,
	}
	if err := survey.AskOne(prompt, &answer, s.Options...); err != nil {
		return false, err
	}
	return answer, nil
}

func (s SurveyAsker) Select(message string, options []string, def string) (string, error) {
	var answer string
	prompt := &survey.Select{
		Message: message,
		Options: options,
		Default: def,
	}
	if err := survey.AskOne(prompt, &answer, s.Options...); err != nil {
		return "", err
	}
	return answer, nil
}

// Flow walks through the questions and submits the project.
type Flow struct {
	session *directory.Session
	orch    *submit.Orchestrator
	lock    *submit.Lock
	ask     Asker
	out     io.Writer
	now     func() time.Time
	log     *logbook.Logbook
}

// Option customizes a Flow.
type Option func(*Flow)

// WithAsker replaces the survey prompts.
func WithAsker(ask Asker) Option {
	return func(f *Flow) {
		if ask != nil {
			f.ask = ask
		}
	}
}

// WithOutput sets where summaries and results are printed.
func WithOutput(out io.Writer) Option {
	return func(f *Flow) {
		if out != nil {
			f.out = out
		}
	}
}

// WithLock guards the submission with a workstation-wide file lock.
func WithLock(lock *submit.Lock) Option {
	return func(f *Flow) {
		f.lock = lock
	}
}

// WithClock overrides the time used for the programme year.
func WithClock(now func() time.Time) Option {
	return func(f *Flow) {
		if now != nil {
			f.now = now
		}
	}
}

// WithLogbook records answers in the logbook.
func WithLogbook(lb *logbook.Logbook) Option {
	return func(f *Flow) {
		f.log = lb.With("prompt")
	}
}

// New creates a flow over a connected session.
func New(session *directory.Session, orch *submit.Orchestrator, opts ...Option) *Flow {
	f := &Flow{
		session: session,
		orch:    orch,
		ask:     SurveyAsker{},
		out:     os.Stdout,
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// Run resolves the acting user, asks for every field and submits. Prompt
// errors (including an interrupt) end the flow. A failed submission comes
// back in the Result, not as an error.
func (f *Flow) Run(ctx context.Context) (submit.Result, error) {
	user, err := f.actingUser(ctx)
	if err != nil {
		return submit.Result{}, err
	}
	fmt.Fprintf(f.out, "Creating a project as %s (year %d)\n", user.Name, user.CurrentYear)

	d := draft.New(f.session.Snapshot(), f.session)
	if err := f.askProject(ctx, d); err != nil {
		return submit.Result{}, err
	}

	f.printSummary(d.Project())
	ok, err := f.ask.Confirm("Create this project?", true)
	if err != nil {
		return submit.Result{}, err
	}
	if !ok {
		f.log.Info("Cancelled before submitting")
		return submit.Result{}, ErrCancelled
	}

	result := f.lock.Guard(func() submit.Result {
		return f.orch.Submit(ctx, d, user)
	})
	if result.OK() {
		fmt.Fprintf(f.out, "Project %s created: %s\n", d.Project().Name, result.URL)
	}
	return result, nil
}

func (f *Flow) actingUser(ctx context.Context) (directory.ActingUser, error) {
	person, found, err := f.session.ResolveActingUser(ctx)
	if err != nil {
		return directory.ActingUser{}, err
	}
	if !found {
		fmt.Fprintln(f.out, "Your account was not found in ShotGrid.")
		// a remote failure accepts the answer and ends the flow below
		var lookupErr error
		_, err := f.ask.Input("Your full name:", "The name on your ShotGrid account.", f.suggest, func(answer string) error {
			match, ok, err := f.session.FindPerson(ctx, answer)
			if err != nil {
				lookupErr = err
				return nil
			}
			if !ok {
				return errors.New("Could not find user in ShotGrid database.")
			}
			person = match
			return nil
		})
		if err != nil {
			return directory.ActingUser{}, err
		}
		if lookupErr != nil {
			f.log.Error("Name lookup failed: %v", lookupErr)
			return directory.ActingUser{}, lookupErr
		}
	}
	return directory.NewActingUser(person, f.now())
}

func (f *Flow) askProject(ctx context.Context, d *draft.Draft) error {
	if _, err := f.ask.Input("Project name:", "Lowercase letters and underscores only.", nil, func(answer string) error {
		return d.SetProjectName(answer).Err()
	}); err != nil {
		return err
	}

	hasCode, err := f.ask.Confirm("Does the project have a production code?", d.HasProductionCode())
	if err != nil {
		return err
	}
	d.SetHasProductionCode(hasCode)
	help := "Three letters, a-z."
	if hasCode {
		help = "A p followed by 5 numbers, e.g. p12345."
	}
	if _, err := f.ask.Input("Project code:", help, nil, func(answer string) error {
		return d.SetProjectCode(answer).Err()
	}); err != nil {
		return err
	}

	if err := f.askSupervisors(ctx, d); err != nil {
		return err
	}

	engine, err := f.ask.Select("Render engine:", toStrings(draft.RenderEngines()), string(draft.RenderEngineAll))
	if err != nil {
		return err
	}
	d.SetRenderEngine(draft.RenderEngine(engine))

	projectType, err := f.ask.Select("Project type:", toStrings(draft.ProjectTypes()), string(draft.ProjectTypeFiction))
	if err != nil {
		return err
	}
	d.SetProjectType(draft.ProjectType(projectType))

	fps, err := f.ask.Input("FPS:", fmt.Sprintf("Leave empty for %d.", draft.DefaultFPS), nil, validFPS)
	if err != nil {
		return err
	}
	if fps = strings.TrimSpace(fps); fps != "" {
		n, _ := strconv.Atoi(fps)
		d.SetFPS(n)
	}
	return nil
}

// askSupervisors keeps asking until an empty answer is given with at least
// one supervisor on the list. A leading "-" removes a supervisor.
func (f *Flow) askSupervisors(ctx context.Context, d *draft.Draft) error {
	for {
		var added, removed string
		var lookupErr error
		// rule violations re-ask; a remote failure is kept and ends the flow
		check := func(err error) error {
			var vErr *draft.ValidationError
			if err != nil && !errors.As(err, &vErr) {
				lookupErr = err
				return nil
			}
			return err
		}
		answer, err := f.ask.Input("Add a supervisor (empty when done, -name to remove):", "Full name or login.", f.suggest, func(answer string) error {
			answer = strings.TrimSpace(answer)
			switch {
			case answer == "":
				if len(d.Supervisors()) == 0 {
					return errors.New("You haven't yet added any supervisors.")
				}
				return nil
			case strings.HasPrefix(answer, "-"):
				identifier := strings.TrimPrefix(answer, "-")
				if err := d.RemoveSupervisor(ctx, identifier); err != nil {
					return check(err)
				}
				removed = identifier
				return nil
			}
			name, err := d.AddSupervisor(ctx, answer)
			added = name
			return check(err)
		})
		if err != nil {
			return err
		}
		if lookupErr != nil {
			f.log.Error("Supervisor lookup failed: %v", lookupErr)
			return lookupErr
		}
		if strings.TrimSpace(answer) == "" {
			return nil
		}
		switch {
		case added != "":
			fmt.Fprintf(f.out, "Added %s.\n", added)
			f.log.Info("Supervisor %s added", added)
		case removed != "":
			fmt.Fprintf(f.out, "Removed %s.\n", removed)
			f.log.Info("Supervisor %s removed", removed)
		}
	}
}

func (f *Flow) suggest(toComplete string) []string {
	return f.session.Suggest(toComplete, suggestionLimit)
}

func validFPS(answer string) error {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return nil
	}
	n, err := strconv.Atoi(answer)
	if err != nil || n < draft.MinFPS || n > draft.MaxFPS {
		return fmt.Errorf("FPS must be a number between %d and %d.", draft.MinFPS, draft.MaxFPS)
	}
	return nil
}

func (f *Flow) printSummary(p draft.Project) {
	names := make([]string, len(p.Supervisors))
	for i, person := range p.Supervisors {
		names[i] = person.Name
	}
	fmt.Fprintln(f.out)
	fmt.Fprintf(f.out, "  Name:          %s\n", p.Name)
	fmt.Fprintf(f.out, "  Code:          %s\n", p.Code)
	fmt.Fprintf(f.out, "  Supervisors:   %s\n", strings.Join(names, ", "))
	fmt.Fprintf(f.out, "  Render engine: %s\n", p.RenderEngine)
	fmt.Fprintf(f.out, "  Type:          %s\n", p.Type)
	fmt.Fprintf(f.out, "  FPS:           %d\n", p.FPS)
	fmt.Fprintln(f.out)
}

func toStrings[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}
