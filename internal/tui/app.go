// internal/tui/app.go
//
// This is the terminal front end of the project creator.
// It uses bubbletea, which follows The Elm Architecture:
//
// 1. Model: Your application state
// 2. Update: A function that updates state based on messages
// 3. View: A function that renders state to a string
//
// Every ShotGrid round trip runs inside a tea.Cmd and reports back with a
// typed message, so the screen never blocks on the network.

package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nfa-vfxim/project-creator/internal/config"
	"github.com/nfa-vfxim/project-creator/internal/directory"
	"github.com/nfa-vfxim/project-creator/internal/draft"
	"github.com/nfa-vfxim/project-creator/internal/logbook"
	"github.com/nfa-vfxim/project-creator/internal/submit"
)

// appState represents which "screen" we're on
type appState int

const (
	stateConnecting appState = iota // Authenticating and fetching listings
	stateUsername                   // Account not found, asking for a name
	stateForm                       // Filling in the project
	stateChoose                     // Picking a render engine or project type
	stateSubmitting                 // Writes in flight
	stateDone                       // Project created
	stateFailed                     // Fatal error screen
)

// field is a focusable row of the form.
type field int

const (
	fieldName field = iota
	fieldProductionCode
	fieldCode
	fieldSupervisor
	fieldRenderEngine
	fieldProjectType
	fieldFPS
	fieldSubmit
	fieldCount
)

const (
	suggestionLimit = 5
	userNotFound    = "Could not find user in ShotGrid database."
)

// Connector opens the ShotGrid session.
type Connector func(ctx context.Context) (*directory.Session, error)

// AppOption customizes App construction for tests and alternate runtimes.
type AppOption func(*App)

// WithConnector sets how the ShotGrid session is opened.
func WithConnector(connect Connector) AppOption {
	return func(a *App) {
		if connect != nil {
			a.connect = connect
		}
	}
}

// WithLogbook shows the logbook tail under the form and records UI events.
func WithLogbook(lb *logbook.Logbook) AppOption {
	return func(a *App) {
		a.logbook = lb
	}
}

// WithLock guards submissions with a workstation-wide file lock.
func WithLock(lock *submit.Lock) AppOption {
	return func(a *App) {
		a.lock = lock
	}
}

// WithClock overrides the time used for the programme year.
func WithClock(now func() time.Time) AppOption {
	return func(a *App) {
		if now != nil {
			a.now = now
		}
	}
}

type connectedMsg struct {
	session *directory.Session
	person  directory.Person
	found   bool
	err     error
}

type userLookupMsg struct {
	person directory.Person
	found  bool
	err    error
}

type supervisorMsg struct {
	remove     bool
	identifier string
	person     directory.Person
	found      bool
	err        error
}

type submittedMsg struct {
	result submit.Result
}

type feedback struct {
	text string
	ok   bool
}

// choiceItem implements list.Item for the render engine and project type pickers.
type choiceItem struct {
	title string
	desc  string
}

func (i choiceItem) Title() string       { return i.title }
func (i choiceItem) Description() string { return i.desc }
func (i choiceItem) FilterValue() string { return i.title }

// App is the main application model. In bubbletea, this holds ALL your state.
type App struct {
	state   appState
	config  *config.Config
	logbook *logbook.Logbook
	connect Connector
	lock    *submit.Lock
	now     func() time.Time

	session      *directory.Session
	draft        *draft.Draft
	orchestrator *submit.Orchestrator
	user         directory.ActingUser

	// UI components
	spinner         spinner.Model
	usernameInput   textinput.Model
	nameInput       textinput.Model
	codeInput       textinput.Model
	supervisorInput textinput.Model
	fpsInput        textinput.Model
	chooser         list.Model
	choosing        field

	focus       field
	feedback    map[field]feedback
	suggestions []string
	lookingUp   bool
	statusMsg   string
	err         error
	url         string

	// Window size (we get this from bubbletea)
	width  int
	height int
}

// NewApp creates a new App instance
func NewApp(cfg *config.Config, opts ...AppOption) *App {
	if cfg == nil {
		def := config.Default()
		cfg = &def
	}
	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = accentStyle

	chooser := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	chooser.SetShowStatusBar(false)
	chooser.SetFilteringEnabled(false)
	chooser.SetShowHelp(false)

	app := &App{
		state:           stateConnecting,
		config:          cfg,
		connect:         missingConnector,
		now:             time.Now,
		spinner:         spin,
		usernameInput:   newInput("firstname lastname", 64),
		nameInput:       newInput("my_project", 64),
		codeInput:       newInput("p12345", 8),
		supervisorInput: newInput("name or login", 64),
		fpsInput:        newInput("25", 3),
		chooser:         chooser,
		feedback:        map[field]feedback{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(app)
		}
	}
	app.fpsInput.SetValue(strconv.Itoa(draft.DefaultFPS))
	return app
}

func newInput(placeholder string, limit int) textinput.Model {
	input := textinput.New()
	input.Prompt = ""
	input.Placeholder = placeholder
	input.CharLimit = limit
	input.Width = 32
	input.Cursor.SetMode(cursor.CursorStatic)
	return input
}

func missingConnector(context.Context) (*directory.Session, error) {
	return nil, &directory.ConnectionError{Err: errors.New("no ShotGrid connection configured")}
}

// Init is called once when the program starts.
func (a *App) Init() tea.Cmd {
	a.statusMsg = "Connecting to " + a.config.ShotGrid.Site
	return tea.Batch(a.spinner.Tick, a.connectCmd())
}

func (a *App) connectCmd() tea.Cmd {
	connect := a.connect
	return func() tea.Msg {
		ctx := context.Background()
		session, err := connect(ctx)
		if err != nil {
			return connectedMsg{err: err}
		}
		person, found, err := session.ResolveActingUser(ctx)
		return connectedMsg{session: session, person: person, found: found, err: err}
	}
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.chooser.SetSize(max(20, msg.Width-8), max(8, msg.Height/2))
		return a, nil

	case spinner.TickMsg:
		if a.state != stateConnecting && a.state != stateSubmitting {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case connectedMsg:
		return a.handleConnected(msg)

	case userLookupMsg:
		return a.handleUserLookup(msg)

	case supervisorMsg:
		return a.handleSupervisor(msg)

	case submittedMsg:
		return a.handleSubmitted(msg)

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return a, tea.Quit
		}
		switch a.state {
		case stateUsername:
			return a.updateUsername(msg)
		case stateForm:
			return a.updateForm(msg)
		case stateChoose:
			return a.updateChooser(msg)
		case stateDone, stateFailed:
			switch msg.String() {
			case "enter", "esc", "q":
				return a, tea.Quit
			}
		}
	}
	return a, nil
}

func (a *App) handleConnected(msg connectedMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		return a.fail(msg.err)
	}
	a.session = msg.session
	a.draft = draft.New(msg.session.Snapshot(), msg.session)
	a.orchestrator = submit.New(msg.session, msg.session.Service(),
		submit.WithSettings(submit.Settings{
			Site:               a.config.ShotGrid.Site,
			PipelineRepository: a.config.Pipeline.Repository,
			PluginIDs:          a.config.Pipeline.PluginIDs,
		}),
		submit.WithLogbook(a.logbook),
	)
	if !msg.found {
		a.state = stateUsername
		a.statusMsg = "Your account was not found in ShotGrid. Enter your full name."
		return a, a.usernameInput.Focus()
	}
	return a.startForm(msg.person)
}

func (a *App) startForm(person directory.Person) (tea.Model, tea.Cmd) {
	user, err := directory.NewActingUser(person, a.now())
	if err != nil {
		return a.fail(err)
	}
	a.user = user
	a.state = stateForm
	a.statusMsg = ""
	a.suggestions = nil
	a.logbook.Info("Creating projects as %s (graduating %d, year %d)", user.Name, user.GraduationYear, user.CurrentYear)
	return a, a.setFocus(fieldName)
}

func (a *App) fail(err error) (tea.Model, tea.Cmd) {
	a.state = stateFailed
	a.err = err
	a.logbook.Error("%v", err)
	return a, nil
}

func (a *App) updateUsername(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.lookingUp {
		return a, nil
	}
	switch msg.String() {
	case "esc":
		return a, tea.Quit
	case "ctrl+f":
		a.completeFrom(&a.usernameInput)
		return a, nil
	case "enter":
		identifier := strings.TrimSpace(a.usernameInput.Value())
		if identifier == "" {
			a.statusMsg = userNotFound
			return a, nil
		}
		a.lookingUp = true
		session := a.session
		return a, func() tea.Msg {
			person, found, err := session.FindPerson(context.Background(), identifier)
			return userLookupMsg{person: person, found: found, err: err}
		}
	}
	var cmd tea.Cmd
	a.usernameInput, cmd = a.usernameInput.Update(msg)
	a.suggestions = a.session.Suggest(a.usernameInput.Value(), suggestionLimit)
	return a, cmd
}

func (a *App) handleUserLookup(msg userLookupMsg) (tea.Model, tea.Cmd) {
	a.lookingUp = false
	if msg.err != nil {
		return a.fail(msg.err)
	}
	if !msg.found {
		a.statusMsg = userNotFound
		return a, nil
	}
	a.usernameInput.Blur()
	return a.startForm(msg.person)
}

func (a *App) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.lookingUp {
		return a, nil
	}
	key := msg.String()
	switch key {
	case "esc":
		return a, tea.Quit
	case "tab", "down":
		return a, a.setFocus((a.focus + 1) % fieldCount)
	case "shift+tab", "up":
		return a, a.setFocus((a.focus + fieldCount - 1) % fieldCount)
	}

	switch a.focus {
	case fieldProductionCode:
		switch key {
		case " ", "space", "enter", "left", "right":
			a.toggleProductionCode()
		}
		return a, nil
	case fieldRenderEngine, fieldProjectType:
		switch key {
		case "enter", " ", "space":
			a.openChooser(a.focus)
		}
		return a, nil
	case fieldSubmit:
		if key == "enter" {
			return a.submit()
		}
		return a, nil
	case fieldFPS:
		switch key {
		case "left", "-":
			a.adjustFPS(-1)
			return a, nil
		case "right", "+":
			a.adjustFPS(1)
			return a, nil
		case "enter":
			return a, a.setFocus(fieldSubmit)
		}
	case fieldSupervisor:
		switch key {
		case "enter":
			return a.lookupSupervisor(false)
		case "ctrl+r":
			return a.lookupSupervisor(true)
		case "ctrl+f":
			a.completeFrom(&a.supervisorInput)
			return a, nil
		}
	case fieldName, fieldCode:
		if key == "enter" {
			return a, a.setFocus(a.focus + 1)
		}
	}
	return a, a.updateInput(msg)
}

// updateInput forwards a key to the focused text input and validates the
// new value when it changed.
func (a *App) updateInput(msg tea.KeyMsg) tea.Cmd {
	input := a.focusedInput()
	if input == nil {
		return nil
	}
	before := input.Value()
	var cmd tea.Cmd
	*input, cmd = input.Update(msg)
	value := input.Value()
	if value == before {
		return cmd
	}
	switch a.focus {
	case fieldName:
		a.setFeedback(a.draft.SetProjectName(value))
	case fieldCode:
		a.setFeedback(a.draft.SetProjectCode(value))
	case fieldSupervisor:
		a.suggestions = a.session.Suggest(value, suggestionLimit)
	case fieldFPS:
		a.applyFPS(value)
	}
	return cmd
}

func (a *App) focusedInput() *textinput.Model {
	switch a.focus {
	case fieldName:
		return &a.nameInput
	case fieldCode:
		return &a.codeInput
	case fieldSupervisor:
		return &a.supervisorInput
	case fieldFPS:
		return &a.fpsInput
	}
	return nil
}

func (a *App) setFocus(f field) tea.Cmd {
	a.focus = f
	a.suggestions = nil
	a.nameInput.Blur()
	a.codeInput.Blur()
	a.supervisorInput.Blur()
	a.fpsInput.Blur()
	if input := a.focusedInput(); input != nil {
		return input.Focus()
	}
	return nil
}

func (a *App) setFeedback(v draft.Validation) {
	target := fieldName
	switch v.Field {
	case draft.FieldCode:
		target = fieldCode
	case draft.FieldSupervisors:
		target = fieldSupervisor
	}
	a.feedback[target] = feedback{text: v.Message, ok: v.Valid}
}

// toggleProductionCode flips the code grammar and re-checks whatever code is
// already typed so the message matches the new grammar.
func (a *App) toggleProductionCode() {
	has := !a.draft.HasProductionCode()
	a.draft.SetHasProductionCode(has)
	if has {
		a.codeInput.Placeholder = "p12345"
	} else {
		a.codeInput.Placeholder = "abc"
	}
	if a.codeInput.Value() != "" {
		a.setFeedback(a.draft.SetProjectCode(a.codeInput.Value()))
	}
	a.logbook.Info("Production code toggled to %t", has)
}

func (a *App) adjustFPS(delta int) {
	fps := a.draft.Project().FPS + delta
	if fps < draft.MinFPS || fps > draft.MaxFPS {
		return
	}
	a.draft.SetFPS(fps)
	a.fpsInput.SetValue(strconv.Itoa(fps))
	delete(a.feedback, fieldFPS)
}

func (a *App) applyFPS(value string) {
	fps, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || fps < draft.MinFPS || fps > draft.MaxFPS {
		a.feedback[fieldFPS] = feedback{text: fmt.Sprintf("FPS must be a number between %d and %d.", draft.MinFPS, draft.MaxFPS)}
		return
	}
	a.draft.SetFPS(fps)
	delete(a.feedback, fieldFPS)
}

func (a *App) completeFrom(input *textinput.Model) {
	if len(a.suggestions) == 0 {
		return
	}
	input.SetValue(a.suggestions[0])
	input.CursorEnd()
	a.suggestions = nil
}

// lookupSupervisor only resolves the identifier off the UI goroutine; the
// draft is changed in handleSupervisor.
func (a *App) lookupSupervisor(remove bool) (tea.Model, tea.Cmd) {
	identifier := strings.TrimSpace(a.supervisorInput.Value())
	if identifier == "" {
		return a, nil
	}
	a.lookingUp = true
	a.statusMsg = fmt.Sprintf("Looking up %s...", identifier)
	session := a.session
	return a, func() tea.Msg {
		person, found, err := session.FindPerson(context.Background(), identifier)
		return supervisorMsg{remove: remove, identifier: identifier, person: person, found: found, err: err}
	}
}

func (a *App) handleSupervisor(msg supervisorMsg) (tea.Model, tea.Cmd) {
	a.lookingUp = false
	a.statusMsg = ""
	if msg.err != nil {
		a.feedback[fieldSupervisor] = feedback{text: fmt.Sprintf("Lookup failed: %v", msg.err)}
		a.logbook.Error("Supervisor lookup for %s failed: %v", msg.identifier, msg.err)
		return a, nil
	}
	var err error
	if msg.remove {
		err = a.draft.RemoveResolvedSupervisor(msg.identifier, msg.person, msg.found)
	} else {
		_, err = a.draft.AddResolvedSupervisor(msg.identifier, msg.person, msg.found)
	}
	if err != nil {
		var vErr *draft.ValidationError
		if errors.As(err, &vErr) {
			a.feedback[fieldSupervisor] = feedback{text: vErr.Message}
			return a, nil
		}
		return a.fail(err)
	}
	if msg.remove {
		a.feedback[fieldSupervisor] = feedback{text: fmt.Sprintf("Removed %s.", msg.identifier), ok: true}
		a.logbook.Info("Supervisor %s removed", msg.person.Name)
	} else {
		a.feedback[fieldSupervisor] = feedback{text: fmt.Sprintf("Added %s.", msg.person.Name), ok: true}
		a.logbook.Info("Supervisor %s added", msg.person.Name)
	}
	a.supervisorInput.SetValue("")
	a.suggestions = nil
	return a, nil
}

func (a *App) openChooser(target field) {
	var items []list.Item
	selected := 0
	project := a.draft.Project()
	switch target {
	case fieldRenderEngine:
		a.chooser.Title = "Render engine"
		for i, engine := range draft.RenderEngines() {
			items = append(items, choiceItem{title: string(engine), desc: renderEngineHint(engine)})
			if engine == project.RenderEngine {
				selected = i
			}
		}
	case fieldProjectType:
		a.chooser.Title = "Project type"
		for i, projectType := range draft.ProjectTypes() {
			items = append(items, choiceItem{title: string(projectType), desc: "Graduation " + strings.ToLower(string(projectType))})
			if projectType == project.Type {
				selected = i
			}
		}
	default:
		return
	}
	a.chooser.SetItems(items)
	a.chooser.Select(selected)
	if a.width > 0 && a.height > 0 {
		a.chooser.SetSize(max(20, a.width-8), max(8, a.height/2))
	} else {
		a.chooser.SetSize(40, 12)
	}
	a.choosing = target
	a.state = stateChoose
}

func renderEngineHint(engine draft.RenderEngine) string {
	if engine == draft.RenderEngineAll {
		return "Set up every supported renderer"
	}
	return "Set up " + string(engine) + " only"
}

func (a *App) updateChooser(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		a.state = stateForm
		return a, nil
	case "enter":
		item, ok := a.chooser.SelectedItem().(choiceItem)
		if ok {
			switch a.choosing {
			case fieldRenderEngine:
				a.draft.SetRenderEngine(draft.RenderEngine(item.title))
			case fieldProjectType:
				a.draft.SetProjectType(draft.ProjectType(item.title))
			}
			a.logbook.Info("%s set to %s", a.chooser.Title, item.title)
		}
		a.state = stateForm
		return a, nil
	}
	var cmd tea.Cmd
	a.chooser, cmd = a.chooser.Update(msg)
	return a, cmd
}

// submit re-validates the whole draft and only starts the remote writes
// when every field passes.
func (a *App) submit() (tea.Model, tea.Cmd) {
	if err := a.draft.ValidateAll(); err != nil {
		return a.showValidation(err)
	}
	a.state = stateSubmitting
	a.statusMsg = "Creating project..."
	orch, d, user, lock := a.orchestrator, a.draft, a.user, a.lock
	return a, tea.Batch(a.spinner.Tick, func() tea.Msg {
		result := lock.Guard(func() submit.Result {
			return orch.Submit(context.Background(), d, user)
		})
		return submittedMsg{result: result}
	})
}

func (a *App) showValidation(err error) (tea.Model, tea.Cmd) {
	var vErr *draft.ValidationError
	if !errors.As(err, &vErr) {
		return a.fail(err)
	}
	a.state = stateForm
	a.setFeedback(draft.Validation{Field: vErr.Field, Message: vErr.Message})
	target := fieldName
	switch vErr.Field {
	case draft.FieldCode:
		target = fieldCode
	case draft.FieldSupervisors:
		target = fieldSupervisor
	}
	a.statusMsg = vErr.Message
	return a, a.setFocus(target)
}

func (a *App) handleSubmitted(msg submittedMsg) (tea.Model, tea.Cmd) {
	result := msg.result
	switch {
	case result.OK():
		a.state = stateDone
		a.url = result.URL
		a.statusMsg = ""
		return a, nil
	case errors.Is(result.Err, submit.ErrBusy):
		a.state = stateForm
		a.statusMsg = result.Err.Error()
		return a, nil
	}
	var vErr *draft.ValidationError
	if errors.As(result.Err, &vErr) {
		return a.showValidation(vErr)
	}
	return a.fail(result.Err)
}

// Err returns the error that stopped the app, if any.
func (a *App) Err() error {
	return a.err
}

// URL returns the overview link of the created project, empty until done.
func (a *App) URL() string {
	return a.url
}
