package tui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nfa-vfxim/project-creator/internal/directory"
	"github.com/nfa-vfxim/project-creator/internal/submit"
)

var (
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF"))
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF6B6B")).
			MarginBottom(1)
	labelStyle   = lipgloss.NewStyle().Width(18)
	focusStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#5FD787"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	boxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#444444")).Padding(0, 1)
	buttonStyle  = lipgloss.NewStyle().Padding(0, 2).Border(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("#444444"))
	pressedStyle = buttonStyle.BorderForeground(lipgloss.Color("#5B8DEF")).Bold(true)
)

// View renders the current state to a string.
func (a *App) View() string {
	width := a.width
	if width <= 0 {
		width = 100
	}
	var content string
	switch a.state {
	case stateConnecting:
		content = fmt.Sprintf("%s Connecting to ShotGrid...", a.spinner.View())
	case stateUsername:
		content = a.renderUsername()
	case stateForm:
		content = a.renderForm()
	case stateChoose:
		content = a.chooser.View() + "\n" + mutedStyle.Render("Enter → select    Esc → back")
	case stateSubmitting:
		content = fmt.Sprintf("%s Creating project %s...", a.spinner.View(), a.draft.Project().Name)
	case stateDone:
		content = a.renderDone()
	case stateFailed:
		content = warnStyle.Render(a.errorText()) + "\n\n" + mutedStyle.Render("Press enter to quit.")
	}

	sections := []string{
		headerStyle.Render("⬡ PROJECT CREATOR"),
		boxStyle.Width(max(20, width-4)).Render(content),
	}
	if logPanel := a.renderLogPanel(); logPanel != "" {
		sections = append(sections, logPanel)
	}
	if a.statusMsg != "" && a.state != stateFailed {
		sections = append(sections, mutedStyle.MarginTop(1).Render(a.statusMsg))
	}
	return strings.Join(sections, "\n")
}

func (a *App) errorText() string {
	return submit.UserMessage(a.err)
}

func (a *App) renderUsername() string {
	lines := []string{
		"We could not match your account to a ShotGrid user.",
		"",
		labelStyle.Render(focusStyle.Render("› Your name")) + a.usernameInput.View(),
	}
	lines = append(lines, a.renderSuggestions()...)
	lines = append(lines, "", mutedStyle.Render("Enter → continue    Ctrl+F → complete    Esc → quit"))
	return strings.Join(lines, "\n")
}

func (a *App) renderForm() string {
	project := a.draft.Project()
	productionCode := "[ ] no, use a three-letter code"
	if project.HasProductionCode {
		productionCode = "[x] yes"
	}

	lines := []string{
		mutedStyle.Render(fmt.Sprintf("Logged in as %s · year %d", a.user.Name, a.user.CurrentYear)),
		"",
		a.row(fieldName, "Project name", a.nameInput.View()),
	}
	lines = append(lines, a.feedbackLine(fieldName)...)
	lines = append(lines, a.row(fieldProductionCode, "Production code", productionCode))
	lines = append(lines, a.row(fieldCode, "Project code", a.codeInput.View()))
	lines = append(lines, a.feedbackLine(fieldCode)...)
	lines = append(lines, a.row(fieldSupervisor, "Supervisors", supervisorList(project.Supervisors)))
	lines = append(lines, labelStyle.Render("")+a.supervisorInput.View())
	if a.focus == fieldSupervisor {
		lines = append(lines, a.renderSuggestions()...)
	}
	lines = append(lines, a.feedbackLine(fieldSupervisor)...)
	lines = append(lines, a.row(fieldRenderEngine, "Render engine", string(project.RenderEngine)+" ▸"))
	lines = append(lines, a.row(fieldProjectType, "Project type", string(project.Type)+" ▸"))
	lines = append(lines, a.row(fieldFPS, "FPS", a.fpsInput.View()))
	lines = append(lines, a.feedbackLine(fieldFPS)...)

	button := buttonStyle.Render("Create project")
	if a.focus == fieldSubmit {
		button = pressedStyle.Render("Create project")
	}
	lines = append(lines, "", button, "", mutedStyle.Render(a.hint()))
	return strings.Join(lines, "\n")
}

func (a *App) row(f field, label, value string) string {
	if a.focus == f {
		return labelStyle.Render(focusStyle.Render("› "+label)) + value
	}
	return labelStyle.Render("  "+label) + value
}

func (a *App) feedbackLine(f field) []string {
	fb, ok := a.feedback[f]
	if !ok || fb.text == "" {
		return nil
	}
	if fb.ok {
		return []string{labelStyle.Render("") + okStyle.Render("✓ "+fb.text)}
	}
	return []string{labelStyle.Render("") + warnStyle.Render("⚠ "+fb.text)}
}

func (a *App) renderSuggestions() []string {
	if len(a.suggestions) == 0 {
		return nil
	}
	return []string{labelStyle.Render("") + mutedStyle.Render(strings.Join(a.suggestions, " · "))}
}

func (a *App) hint() string {
	switch a.focus {
	case fieldProductionCode:
		return "Space → toggle    Tab → next field"
	case fieldSupervisor:
		return "Enter → add    Ctrl+R → remove    Ctrl+F → complete    Tab → next field"
	case fieldRenderEngine, fieldProjectType:
		return "Enter → choose    Tab → next field"
	case fieldFPS:
		return "←/→ → adjust    Tab → next field"
	case fieldSubmit:
		return "Enter → create project"
	}
	return "Tab → next field    Esc → quit"
}

func supervisorList(people []directory.Person) string {
	if len(people) == 0 {
		return mutedStyle.Render("none yet")
	}
	names := make([]string, len(people))
	for i, p := range people {
		names[i] = p.Name
	}
	return strings.Join(names, ", ")
}

func (a *App) renderDone() string {
	lines := []string{
		okStyle.Render(fmt.Sprintf("Project %s created!", a.draft.Project().Name)),
		"",
		"Open it in ShotGrid:",
		accentStyle.Render(a.url),
		"",
		mutedStyle.Render("Press enter to quit."),
	}
	return strings.Join(lines, "\n")
}

func (a *App) renderLogPanel() string {
	if a.logbook == nil {
		return ""
	}
	lines, total := a.logbook.Tail(6)
	if len(lines) == 0 {
		return ""
	}
	fileName := filepath.Base(a.logbook.Path())
	if fileName == "." || fileName == "" {
		fileName = "log"
	}
	head := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#5B8DEF")).
		Render(fmt.Sprintf("LOG · %s · %d entries", fileName, total))
	body := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#AAAAAA")).
		Render(strings.Join(lines, "\n"))
	return boxStyle.Render(fmt.Sprintf("%s\n%s", head, body))
}
