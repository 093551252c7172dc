package draft

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/nfa-vfxim/project-creator/internal/directory"
)

// RenderEngine is the renderer a project is set up for.
type RenderEngine string

const (
	RenderEngineAll       RenderEngine = "All"
	RenderEngineArnold    RenderEngine = "Arnold"
	RenderEngineKarma     RenderEngine = "Karma"
	RenderEngineRenderMan RenderEngine = "RenderMan"
)

// ProjectType is the kind of film being made.
type ProjectType string

const (
	ProjectTypeFiction     ProjectType = "Fiction"
	ProjectTypeDocumentary ProjectType = "Documentary"
)

const (
	DefaultFPS = 25
	MinFPS     = 1
	MaxFPS     = 120

	productionCodeLength = 6
	letterCodeLength     = 3
)

var (
	projectNamePattern    = regexp.MustCompile(`^[a-z_]+$`)
	productionCodePattern = regexp.MustCompile(`^[Pp][0-9]+$`)
	letterCodePattern     = regexp.MustCompile(`^[A-Za-z]+$`)
)

// RenderEngines lists the render engine choices in display order.
func RenderEngines() []RenderEngine {
	return []RenderEngine{RenderEngineAll, RenderEngineArnold, RenderEngineKarma, RenderEngineRenderMan}
}

// ProjectTypes lists the project type choices in display order.
func ProjectTypes() []ProjectType {
	return []ProjectType{ProjectTypeFiction, ProjectTypeDocumentary}
}

// Lookup resolves a supervisor name or login to a person.
type Lookup interface {
	FindPerson(ctx context.Context, identifier string) (directory.Person, bool, error)
}

// Project is a read-only copy of the draft's values.
type Project struct {
	Name              string
	HasProductionCode bool
	Code              string
	Supervisors       []directory.Person
	RenderEngine      RenderEngine
	Type              ProjectType
	FPS               int
}

// Draft is the project being filled in. Setters always store the value they
// are given, even when it does not validate.
type Draft struct {
	project Project

	takenNames map[string]struct{}
	takenCodes map[string]struct{}
	lookup     Lookup
}

// New creates an empty draft that checks uniqueness against snapshot and
// resolves supervisors through lookup.
func New(snapshot directory.Snapshot, lookup Lookup) *Draft {
	d := &Draft{
		project: Project{
			HasProductionCode: true,
			RenderEngine:      RenderEngineAll,
			Type:              ProjectTypeFiction,
			FPS:               DefaultFPS,
		},
		takenNames: make(map[string]struct{}, len(snapshot.ProjectNames)),
		takenCodes: make(map[string]struct{}, len(snapshot.ProjectCodes)),
		lookup:     lookup,
	}
	for _, name := range snapshot.ProjectNames {
		d.takenNames[name] = struct{}{}
	}
	for _, code := range snapshot.ProjectCodes {
		d.takenCodes[strings.ToLower(code)] = struct{}{}
	}
	return d
}

// Project returns a copy of the current values.
func (d *Draft) Project() Project {
	p := d.project
	p.Supervisors = d.Supervisors()
	return p
}

// SetProjectName stores name and validates it.
func (d *Draft) SetProjectName(name string) Validation {
	d.project.Name = name
	return d.validateName()
}

func (d *Draft) validateName() Validation {
	name := d.project.Name
	switch {
	case name == "":
		return invalid(FieldName, "You must fill in a project name.")
	case !projectNamePattern.MatchString(name):
		return invalid(FieldName, "Project name may only use lowercase a-z and underscores.")
	}
	if _, taken := d.takenNames[name]; taken {
		return invalid(FieldName, "Project name already taken.")
	}
	return valid(FieldName, "Project name available!")
}

// SetHasProductionCode switches between the production code and the
// three-letter code grammar. The stored code is not re-validated.
func (d *Draft) SetHasProductionCode(has bool) {
	d.project.HasProductionCode = has
}

// HasProductionCode reports which code grammar is active.
func (d *Draft) HasProductionCode() bool {
	return d.project.HasProductionCode
}

// SetProjectCode stores code lowercased and validates it against the active
// grammar.
func (d *Draft) SetProjectCode(code string) Validation {
	d.project.Code = strings.ToLower(code)
	return d.checkCode(code)
}

func (d *Draft) checkCode(code string) Validation {
	pattern, length, warning := letterCodePattern, letterCodeLength, "Three-letter code should only use letters a-z."
	if d.project.HasProductionCode {
		pattern, length, warning = productionCodePattern, productionCodeLength, "Production code should start with a p and contain 5 numbers."
	}
	if !pattern.MatchString(code) {
		return invalid(FieldCode, warning)
	}
	if n := len(code); n != length {
		amount := "fewer"
		if n > length {
			amount = "more"
		}
		return invalid(FieldCode, fmt.Sprintf("Project code uses %s characters than allowed.", amount))
	}
	if _, taken := d.takenCodes[strings.ToLower(code)]; taken {
		return invalid(FieldCode, "Project code already taken.")
	}
	return valid(FieldCode, "Project code available!")
}

// AddSupervisor resolves identifier and adds that person to the supervisor
// list. It returns the person's display name. Lookup failures of the remote
// service are returned as plain errors, rule violations as *ValidationError.
func (d *Draft) AddSupervisor(ctx context.Context, identifier string) (string, error) {
	person, found, err := d.lookup.FindPerson(ctx, identifier)
	if err != nil {
		return "", err
	}
	return d.AddResolvedSupervisor(identifier, person, found)
}

// AddResolvedSupervisor applies the outcome of a lookup that already ran.
// found is false when identifier matched nobody.
func (d *Draft) AddResolvedSupervisor(identifier string, person directory.Person, found bool) (string, error) {
	if !found {
		return "", &ValidationError{Field: FieldSupervisors, Message: fmt.Sprintf("Could not find supervisor %q in ShotGrid database.", strings.TrimSpace(identifier))}
	}
	if d.indexOf(person) >= 0 {
		return "", &ValidationError{Field: FieldSupervisors, Message: "This supervisor has already been added."}
	}
	d.project.Supervisors = append(d.project.Supervisors, person)
	return person.Name, nil
}

// RemoveSupervisor resolves identifier and removes that person from the
// supervisor list.
func (d *Draft) RemoveSupervisor(ctx context.Context, identifier string) error {
	person, found, err := d.lookup.FindPerson(ctx, identifier)
	if err != nil {
		return err
	}
	return d.RemoveResolvedSupervisor(identifier, person, found)
}

// RemoveResolvedSupervisor is the counterpart of AddResolvedSupervisor.
func (d *Draft) RemoveResolvedSupervisor(identifier string, person directory.Person, found bool) error {
	idx := -1
	if found {
		idx = d.indexOf(person)
	}
	if idx < 0 {
		return &ValidationError{Field: FieldSupervisors, Message: fmt.Sprintf("Can't remove %q because supervisor isn't on the list.", strings.TrimSpace(identifier))}
	}
	d.project.Supervisors = append(d.project.Supervisors[:idx], d.project.Supervisors[idx+1:]...)
	return nil
}

func (d *Draft) indexOf(person directory.Person) int {
	for i, existing := range d.project.Supervisors {
		if existing == person {
			return i
		}
	}
	return -1
}

// Supervisors returns the supervisors in the order they were added.
func (d *Draft) Supervisors() []directory.Person {
	out := make([]directory.Person, len(d.project.Supervisors))
	copy(out, d.project.Supervisors)
	return out
}

// SetRenderEngine stores the render engine without validation.
func (d *Draft) SetRenderEngine(engine RenderEngine) {
	d.project.RenderEngine = engine
}

// SetProjectType stores the project type without validation.
func (d *Draft) SetProjectType(projectType ProjectType) {
	d.project.Type = projectType
}

// SetFPS stores the frame rate without validation; callers offer MinFPS..MaxFPS.
func (d *Draft) SetFPS(fps int) {
	d.project.FPS = fps
}

// ValidateAll re-checks the stored name and code, then requires at least
// one supervisor. The first failure is returned.
func (d *Draft) ValidateAll() error {
	if err := d.validateName().Err(); err != nil {
		return err
	}
	if err := d.checkCode(d.project.Code).Err(); err != nil {
		return err
	}
	if len(d.project.Supervisors) == 0 {
		return &ValidationError{Field: FieldSupervisors, Message: "You haven't yet added any supervisors."}
	}
	return nil
}
