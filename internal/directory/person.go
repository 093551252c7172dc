package directory

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/nfa-vfxim/project-creator/internal/shotgrid"
)

// EntityType is the ShotGrid entity that stores people.
const EntityType = "HumanUser"

// ArtistTier is the permission rule set name that gets elevated when a
// person is added as supervisor.
const ArtistTier = "Artist"

// academic years roll over in early September, so "now" is pushed forward
// before taking the calendar year
const yearBoundaryShift = 120 * 24 * time.Hour

const finalYear = 4

// cohortTag is one non-digit prefix followed by the graduation year.
var cohortTag = regexp.MustCompile(`^\D(\d{4})$`)

var personFields = []string{"id", "name", "login", "sg_lichting", "permission_rule_set"}

// PermissionTier is a ShotGrid permission rule set.
type PermissionTier struct {
	ID   int
	Name string
}

// Person is a snapshot of a HumanUser record. Two people are the same
// supervisor only if every field matches.
type Person struct {
	ID         int
	Name       string
	Login      string
	Cohort     string
	Permission PermissionTier
}

// Ref returns the entity link used in multi-entity fields.
func (p Person) Ref() shotgrid.EntityRef {
	return shotgrid.EntityRef{ID: p.ID, Type: EntityType}
}

func personFromRecord(record shotgrid.Record) Person {
	person := Person{
		ID:     record.ID,
		Name:   record.String("name"),
		Login:  record.String("login"),
		Cohort: record.String("sg_lichting"),
	}
	if tier, ok := record.Entity("permission_rule_set"); ok {
		person.Permission = PermissionTier{ID: tier.ID, Name: tier.Name}
	}
	return person
}

// ActingUser is the person creating the project, with their cohort maths
// resolved once at session start.
type ActingUser struct {
	Name           string
	ID             int
	GraduationYear int
	CurrentYear    int
}

// NewActingUser derives the acting user from a resolved person.
func NewActingUser(person Person, now time.Time) (ActingUser, error) {
	graduation, err := GraduationYear(person)
	if err != nil {
		return ActingUser{}, err
	}
	return ActingUser{
		Name:           person.Name,
		ID:             person.ID,
		GraduationYear: graduation,
		CurrentYear:    CurrentYear(graduation, now),
	}, nil
}

// GraduationYear reads the year out of a cohort tag such as "L2026". The
// leading character is discarded.
func GraduationYear(person Person) (int, error) {
	m := cohortTag.FindStringSubmatch(strings.TrimSpace(person.Cohort))
	if m == nil {
		return 0, fmt.Errorf("directory: %s has no valid cohort (sg_lichting %q)", person.Name, person.Cohort)
	}
	year, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("directory: %s has no valid cohort (sg_lichting %q): %w", person.Name, person.Cohort, err)
	}
	return year, nil
}

// CurrentYear returns which year of the programme a student graduating in
// graduationYear is in at now. The result is capped at 4; students further
// from graduation get values below 1.
func CurrentYear(graduationYear int, now time.Time) int {
	year := now.Add(yearBoundaryShift).Year()
	current := finalYear - (graduationYear - year)
	if current > finalYear {
		current = finalYear
	}
	return current
}
