package views

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tgienger/taskdesk/internal/session"
	"github.com/tgienger/taskdesk/internal/ui/keys"
	"github.com/tgienger/taskdesk/internal/ui/styles"
)

// Session is the part of session.Controller the login view uses
type Session interface {
	SignIn(ctx context.Context, email, password string) error
	SignUp(ctx context.Context, email, password, firstName, lastName string) error
}

var _ Session = (*session.Controller)(nil)

// login form fields, in focus order. Names are only shown when signing up.
const (
	loginEmail = iota
	loginPassword
	loginFirstName
	loginLastName
)

type authResult struct {
	err error
}

// LoginView is the sign-in and sign-up form
type LoginView struct {
	session Session
	styles  *styles.Styles
	keys    keys.KeyMap
	width   int
	height  int

	signUp   bool
	inputs   []textinput.Model
	focusIdx int
	busy     bool
	err      error
}

// NewLoginView creates the login form
func NewLoginView(sess Session) *LoginView {
	placeholders := []string{"Email", "Password", "First name", "Last name"}
	inputs := make([]textinput.Model, len(placeholders))
	for i, p := range placeholders {
		in := textinput.New()
		in.Placeholder = p
		in.CharLimit = 100
		inputs[i] = in
	}
	inputs[loginPassword].EchoMode = textinput.EchoPassword
	inputs[loginPassword].EchoCharacter = '•'

	v := &LoginView{
		session: sess,
		styles:  styles.NewStyles(),
		keys:    keys.DefaultKeyMap(),
		inputs:  inputs,
	}
	v.updateFocus()
	return v
}

func (v *LoginView) Init() tea.Cmd {
	return textinput.Blink
}

// Reset clears the form, keeping the email for the next sign-in
func (v *LoginView) Reset() {
	for i := range v.inputs {
		if i != loginEmail {
			v.inputs[i].Reset()
		}
	}
	v.busy = false
	v.err = nil
	v.focusIdx = loginEmail
	v.updateFocus()
}

func (v *LoginView) fieldCount() int {
	if v.signUp {
		return len(v.inputs)
	}
	return loginPassword + 1
}

func (v *LoginView) updateFocus() {
	for i := range v.inputs {
		if i == v.focusIdx {
			v.inputs[i].Focus()
		} else {
			v.inputs[i].Blur()
		}
	}
}

func (v *LoginView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.width = msg.Width
		v.height = msg.Height
		return v, nil

	case authResult:
		v.busy = false
		v.err = msg.err
		return v, nil

	case tea.KeyMsg:
		switch {
		case msg.String() == "ctrl+c", key.Matches(msg, v.keys.Back):
			return v, tea.Quit

		case msg.String() == "ctrl+t":
			v.signUp = !v.signUp
			v.err = nil
			if v.focusIdx >= v.fieldCount() {
				v.focusIdx = loginEmail
				v.updateFocus()
			}
			return v, nil

		case key.Matches(msg, v.keys.Tab), msg.String() == "down":
			v.focusIdx = (v.focusIdx + 1) % v.fieldCount()
			v.updateFocus()
			return v, nil

		case msg.String() == "shift+tab", msg.String() == "up":
			v.focusIdx = (v.focusIdx + v.fieldCount() - 1) % v.fieldCount()
			v.updateFocus()
			return v, nil

		case key.Matches(msg, v.keys.Enter):
			if v.focusIdx < v.fieldCount()-1 {
				v.focusIdx++
				v.updateFocus()
				return v, nil
			}
			return v, v.submit()
		}
	}

	var cmd tea.Cmd
	v.inputs[v.focusIdx], cmd = v.inputs[v.focusIdx].Update(msg)
	return v, cmd
}

func (v *LoginView) submit() tea.Cmd {
	if v.busy {
		return nil
	}
	email := strings.TrimSpace(v.inputs[loginEmail].Value())
	password := v.inputs[loginPassword].Value()
	if email == "" || password == "" {
		v.err = errors.New("email and password are required")
		return nil
	}
	first := strings.TrimSpace(v.inputs[loginFirstName].Value())
	last := strings.TrimSpace(v.inputs[loginLastName].Value())
	signUp := v.signUp

	v.busy = true
	v.err = nil
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), mutationTimeout)
		defer cancel()
		var err error
		if signUp {
			err = v.session.SignUp(ctx, email, password, first, last)
		} else {
			err = v.session.SignIn(ctx, email, password)
		}
		return authResult{err: err}
	}
}

func (v *LoginView) View() string {
	s := v.styles
	contentWidth := styles.ContentWidth(v.width)
	inputWidth := clamp(contentWidth-6, 20, 40)

	title, toggle := "Sign In", "Ctrl+T: create an account"
	if v.signUp {
		title, toggle = "Create Account", "Ctrl+T: sign in instead"
	}

	labels := []string{"Email:", "Password:", "First name:", "Last name:"}
	rows := []string{s.Title.Render("TaskDesk"), s.TitleMuted.Render(title), ""}
	for i := 0; i < v.fieldCount(); i++ {
		style := s.Input
		if i == v.focusIdx {
			style = s.InputFocused
		}
		rows = append(rows, labels[i], style.Width(inputWidth).Render(v.inputs[i].View()))
	}

	rows = append(rows, "")
	if v.busy {
		rows = append(rows, s.TitleMuted.Render("Working..."))
	} else if v.err != nil {
		rows = append(rows, renderError(s, v.err))
	}
	rows = append(rows, "", s.TitleMuted.Render("Tab: next • Enter: submit • "+toggle+" • Esc: quit"))

	centered := lipgloss.Place(contentWidth, v.height,
		lipgloss.Center, lipgloss.Center,
		lipgloss.JoinVertical(lipgloss.Left, rows...),
	)
	return styles.CenterView(centered, v.width, v.height)
}
