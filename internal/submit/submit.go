package submit

import (
	"context"
	"fmt"
	"strings"

	"github.com/nfa-vfxim/project-creator/internal/directory"
	"github.com/nfa-vfxim/project-creator/internal/draft"
	"github.com/nfa-vfxim/project-creator/internal/logbook"
	"github.com/nfa-vfxim/project-creator/internal/shotgrid"
)

const (
	DefaultSite               = "https://nfa.shotgunstudio.com"
	DefaultPipelineRepository = "https://github.com/nfa-vfxim/nfa-shotgun-configuration.git"
	DefaultPluginIDs          = "basic.*"

	projectEntity  = "Project"
	pipelineEntity = "PipelineConfiguration"
	activeStatus   = "Active"
	primaryConfig  = "Primary"
)

// Step identifies where in the write sequence a submission failed.
type Step string

const (
	StepElevate        Step = "elevate_permissions"
	StepCreateProject  Step = "create_project"
	StepCreatePipeline Step = "create_pipeline_configuration"
)

// Directory promotes supervisors before the project is created.
type Directory interface {
	ElevatePermission(ctx context.Context, person directory.Person) (bool, error)
}

// Records creates entities.
type Records interface {
	Create(ctx context.Context, entityType string, fields map[string]any) (shotgrid.Record, error)
}

// SubmissionError wraps a failure during the remote write sequence. Earlier
// steps are not rolled back. The message is the underlying error text.
type SubmissionError struct {
	Step Step
	Err  error
}

func (e *SubmissionError) Error() string {
	return e.Err.Error()
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// Result is the single outcome of a submission. Err is a
// *draft.ValidationError when nothing was sent, a *SubmissionError otherwise.
type Result struct {
	ProjectID int
	URL       string
	Err       error
}

// OK reports whether the project was created.
func (r Result) OK() bool {
	return r.Err == nil
}

// Settings holds the fixed values written into the new records.
type Settings struct {
	Site               string
	PipelineRepository string
	PluginIDs          string
}

func (s Settings) withDefaults() Settings {
	if strings.TrimSpace(s.Site) == "" {
		s.Site = DefaultSite
	}
	s.Site = strings.TrimRight(s.Site, "/")
	if strings.TrimSpace(s.PipelineRepository) == "" {
		s.PipelineRepository = DefaultPipelineRepository
	}
	if strings.TrimSpace(s.PluginIDs) == "" {
		s.PluginIDs = DefaultPluginIDs
	}
	return s
}

// Orchestrator turns a validated draft into the project and pipeline
// configuration records.
type Orchestrator struct {
	dir      Directory
	records  Records
	settings Settings
	log      *logbook.Logbook
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithSettings overrides the site and pipeline values.
func WithSettings(settings Settings) Option {
	return func(o *Orchestrator) {
		o.settings = settings.withDefaults()
	}
}

// WithLogbook records each step in the logbook.
func WithLogbook(log *logbook.Logbook) Option {
	return func(o *Orchestrator) {
		o.log = log.With("submit")
	}
}

// New creates an orchestrator writing through records.
func New(dir Directory, records Records, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		dir:      dir,
		records:  records,
		settings: Settings{}.withDefaults(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// Submit validates d and, when it passes, promotes the supervisors, creates
// the project and then its pipeline configuration, in that order. The first
// failure stops the sequence.
func (o *Orchestrator) Submit(ctx context.Context, d *draft.Draft, user directory.ActingUser) Result {
	if err := d.ValidateAll(); err != nil {
		o.log.Warn("Submission rejected: %v", err)
		return Result{Err: err}
	}
	project := d.Project()
	o.log.Info("Creating project %s (%s) for %s", project.Name, project.Code, user.Name)

	supervisors := make([]shotgrid.EntityRef, 0, len(project.Supervisors))
	for _, person := range project.Supervisors {
		supervisors = append(supervisors, person.Ref())
		if _, err := o.dir.ElevatePermission(ctx, person); err != nil {
			return o.fail(StepElevate, err)
		}
	}

	created, err := o.records.Create(ctx, projectEntity, ProjectFields(project, supervisors, user))
	if err != nil {
		return o.fail(StepCreateProject, err)
	}
	o.log.Info("Project %s created with id %d", project.Name, created.ID)

	if _, err := o.records.Create(ctx, pipelineEntity, o.pipelineFields(created.ID, user)); err != nil {
		return o.fail(StepCreatePipeline, err)
	}
	o.log.Info("Pipeline configuration created for project %d (release/s%d)", created.ID, user.CurrentYear)

	return Result{ProjectID: created.ID, URL: o.ProjectURL(created.ID)}
}

func (o *Orchestrator) fail(step Step, err error) Result {
	o.log.Error("%s failed: %v", step, err)
	return Result{Err: &SubmissionError{Step: step, Err: err}}
}

// ProjectFields is the field map of the project create call.
func ProjectFields(project draft.Project, supervisors []shotgrid.EntityRef, user directory.ActingUser) map[string]any {
	return map[string]any{
		"name":             project.Name,
		"tank_name":        project.Name,
		"sg_projectcode":   project.Code,
		"users":            supervisors,
		"sg_supervisors":   supervisors,
		"sg_render_engine": string(project.RenderEngine),
		"sg_type":          string(project.Type),
		"sg_lichting":      fmt.Sprintf("L%d", user.GraduationYear),
		"sg_fps":           project.FPS,
		"sg_status":        activeStatus,
	}
}

func (o *Orchestrator) pipelineFields(projectID int, user directory.ActingUser) map[string]any {
	return map[string]any{
		"code":        primaryConfig,
		"descriptor":  Descriptor(user.CurrentYear, o.settings.PipelineRepository),
		"plugin_ids":  o.settings.PluginIDs,
		"project":     shotgrid.EntityRef{ID: projectID, Type: projectEntity},
		"sg_lichting": fmt.Sprintf("s%d", user.CurrentYear),
	}
}

// Descriptor is the toolkit descriptor pointing at the release branch for
// the given programme year.
func Descriptor(currentYear int, repository string) string {
	return fmt.Sprintf("sgtk:descriptor:git_branch?branch=release/s%d&path=%s", currentYear, repository)
}

// UserMessage is the text shown when the tool has to stop because of err.
func UserMessage(err error) string {
	msg := "unknown error"
	if err != nil {
		msg = strings.TrimRight(strings.TrimSpace(err.Error()), ".")
	}
	return fmt.Sprintf("Error: %s. Please contact a pipeliner if the problem persists.", msg)
}

// ProjectURL links to the project overview page on the site.
func (o *Orchestrator) ProjectURL(projectID int) string {
	return fmt.Sprintf("%s/page/project_overview?project_id=%d", o.settings.Site, projectID)
}
