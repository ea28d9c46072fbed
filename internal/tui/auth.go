package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// authForm is the username/password form shown while anonymous
type authForm struct {
	username textinput.Model
	password textinput.Model
	focus    int
	register bool
	message  string
	busy     bool
}

func newAuthForm() authForm {
	username := textinput.New()
	username.Placeholder = "username"
	username.Prompt = "Username: "
	username.CharLimit = 150
	username.Focus()

	password := textinput.New()
	password.Placeholder = "password"
	password.Prompt = "Password: "
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'

	return authForm{username: username, password: password}
}

func (f *authForm) setFocus(i int) tea.Cmd {
	f.focus = i
	if i == 0 {
		f.password.Blur()
		return f.username.Focus()
	}
	f.username.Blur()
	return f.password.Focus()
}

// update routes a key to the form. The bool is true once a complete form is
// submitted.
func (f *authForm) update(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.String() {
	case "tab", "down", "shift+tab", "up":
		return f.setFocus(1 - f.focus), false
	case "ctrl+r":
		f.register = !f.register
		f.message = ""
		return nil, false
	case "enter":
		if f.focus == 0 {
			return f.setFocus(1), false
		}
		if strings.TrimSpace(f.username.Value()) == "" || f.password.Value() == "" {
			f.message = "Username and password are required"
			return nil, false
		}
		return nil, true
	}

	var cmd tea.Cmd
	if f.focus == 0 {
		f.username, cmd = f.username.Update(msg)
	} else {
		f.password, cmd = f.password.Update(msg)
	}
	return cmd, false
}

func (f *authForm) reset() {
	f.username.SetValue("")
	f.password.SetValue("")
	f.busy = false
	f.setFocus(0)
}

func (f authForm) view(width int) string {
	title := "Login"
	toggle := "ctrl+r: create an account instead"
	if f.register {
		title = "Register"
		toggle = "ctrl+r: log in to an existing account"
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("229"))
	hintStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))
	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("196"))

	var b strings.Builder
	b.WriteString(titleStyle.Render(title) + "\n\n")
	b.WriteString(f.username.View() + "\n")
	b.WriteString(f.password.View() + "\n\n")
	if f.message != "" {
		b.WriteString(errorStyle.Render(f.message) + "\n\n")
	}
	b.WriteString(hintStyle.Render("tab: switch field • enter: submit • " + toggle + " • ctrl+c: quit"))

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("63")).
		Padding(1, 2)
	if width > 0 {
		return lipgloss.PlaceHorizontal(width, lipgloss.Center, box.Render(b.String()))
	}
	return box.Render(b.String())
}
