// Package tui renders an authentication code field in the terminal.
package tui

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/FilipeAphrody/sentinel-mfa/internal/domain"
	"github.com/FilipeAphrody/sentinel-mfa/internal/presenter"
)

// ErrAborted is returned by Prompt when the user cancels.
var ErrAborted = errors.New("authentication cancelled")

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	labelStyle  = lipgloss.NewStyle().Faint(true).Width(11)
	secretStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	helpStyle   = lipgloss.NewStyle().Faint(true)
)

var errNotNumeric = errors.New("code must contain only digits")

// Model is a tea.Model binding one code field presenter to the terminal.
type Model struct {
	message string
	field   *presenter.CodeField
	input   textinput.Model
	qr      string

	submitted bool
	aborted   bool
}

// New builds the model for field. opener receives the key URI on ctrl+o.
func New(message string, field domain.CodeField, opener presenter.URIOpener) Model {
	ti := textinput.New()
	ti.Placeholder = strings.Repeat("0", max(field.Digits, 6))
	ti.CharLimit = 8
	if field.Digits > 0 {
		ti.CharLimit = field.Digits
	}
	ti.Validate = func(s string) error {
		for _, r := range s {
			if !unicode.IsDigit(r) {
				return errNotNumeric
			}
		}
		return nil
	}
	ti.Focus()

	m := Model{
		message: message,
		field:   presenter.NewCodeField(field, opener),
		input:   ti,
	}
	if field.KeyExposed() && field.KeyURI != "" {
		if q, err := qrcode.New(field.KeyURI, qrcode.Medium); err == nil {
			m.qr = q.ToSmallString(false)
		}
	}
	return m
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.aborted = true
			return m, tea.Quit
		case tea.KeyCtrlD:
			if m.field.DetailsShown() {
				m.field.HideDetails()
			} else {
				m.field.ShowDetails()
			}
			return m, nil
		case tea.KeyCtrlO:
			m.field.OpenKeyURI()
			return m, nil
		case tea.KeyEnter:
			if m.Code() == "" || m.input.Err != nil {
				return m, nil
			}
			m.submitted = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(m.message))
	b.WriteString("\n\n")

	f := m.field.Field()
	if f.KeyExposed() {
		b.WriteString("Scan this code with your authenticator app:\n\n")
		if m.qr != "" {
			b.WriteString(m.qr)
			b.WriteString("\n")
		} else {
			b.WriteString(m.field.KeyURI())
			b.WriteString("\n\n")
		}

		if m.field.DetailsShown() {
			b.WriteString(detail("Secret", secretStyle.Render(strings.Join(m.field.GroupedSecret(), " "))))
			b.WriteString(detail("Issuer", f.Issuer))
			b.WriteString(detail("Account", f.Username))
			b.WriteString(detail("Digits", fmt.Sprint(f.Digits)))
			b.WriteString(detail("Period", fmt.Sprintf("%ds", f.Period)))
			b.WriteString(detail("Algorithm", f.Mode))
			b.WriteString("\n")
		}
	}

	b.WriteString("Code ")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	if m.input.Err != nil {
		b.WriteString(errStyle.Render(m.input.Err.Error()))
		b.WriteString("\n")
	}

	help := "enter submit • esc cancel"
	if f.KeyExposed() {
		verb := "show"
		if m.field.DetailsShown() {
			verb = "hide"
		}
		help = "ctrl+d " + verb + " details • ctrl+o open in authenticator • " + help
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render(help))
	b.WriteString("\n")

	return b.String()
}

// Code is the trimmed code typed so far.
func (m Model) Code() string {
	return strings.TrimSpace(m.input.Value())
}

// Submitted reports whether the user confirmed the code.
func (m Model) Submitted() bool {
	return m.submitted
}

// Aborted reports whether the user cancelled.
func (m Model) Aborted() bool {
	return m.aborted
}

// Prompt runs the model until the user submits or cancels.
func Prompt(message string, field domain.CodeField, opener presenter.URIOpener, opts ...tea.ProgramOption) (string, error) {
	final, err := tea.NewProgram(New(message, field, opener), opts...).Run()
	if err != nil {
		return "", err
	}

	m, ok := final.(Model)
	if !ok {
		return "", errors.New("failed to cast code field model")
	}
	if m.aborted || !m.submitted {
		return "", ErrAborted
	}
	return m.Code(), nil
}

func detail(label, value string) string {
	return labelStyle.Render(label) + value + "\n"
}
