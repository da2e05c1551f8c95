package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sevigo/extpr/internal/core"
	"github.com/sevigo/extpr/internal/gitutil"
	"github.com/sevigo/extpr/internal/storage"
)

// maxLogLines is how many command log lines stay below the dispatch table.
const maxLogLines = 12

type model struct {
	styles  styles
	store   storage.Store
	cleanup func()

	// UI Components
	viewport  viewport.Model
	textarea  textarea.Model
	spinner   spinner.Model
	progress  progress.Model
	isLoading bool

	// Session State
	repoFilter  string
	watching    bool
	watchID     int
	records     []*core.DispatchRecord
	lastRefresh time.Time
	log         []string
	storeErr    error
}

func initialModel(theme ThemeName) *model {
	styles := GetTheme(theme)
	ta := textarea.New()
	ta.Placeholder = "Type /help for commands..."
	ta.Focus()
	ta.Prompt = styles.prompt.Render("► ")
	ta.CharLimit = 2048
	ta.SetWidth(50)
	ta.SetHeight(1)
	ta.ShowLineNumbers = false

	sp := spinner.New()
	sp.Spinner = spinner.Points
	sp.Style = lipgloss.NewStyle().Foreground(styles.palette.Primary)
	pr := progress.New(progress.WithDefaultGradient(), progress.WithWidth(30))

	return &model{
		styles:    styles,
		textarea:  ta,
		spinner:   sp,
		progress:  pr,
		isLoading: true,
		watching:  true,
	}
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(openStoreCmd(), m.spinner.Tick)
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		spCmd tea.Cmd
	)

	m.textarea, tiCmd = m.textarea.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)
	m.spinner, spCmd = m.spinner.Update(msg)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			input := strings.TrimSpace(m.textarea.Value())
			m.textarea.Reset()
			if input == "" {
				return m, nil
			}
			return m, m.processCommand(input)
		}

	case storeOpenedMsg:
		m.isLoading = false
		if msg.err != nil {
			m.storeErr = msg.err
			m.appendLog(m.styles.error.Render("⚠ " + msg.err.Error()))
			m.appendLog(m.styles.inactive.Render("/verify still works without a store."))
			return m, nil
		}
		m.store = msg.store
		m.cleanup = msg.cleanup
		m.appendLog(m.styles.success.Render("✓ Connected to dispatch store"))
		return m, tea.Batch(m.reload(), refreshTickCmd(m.watchID))

	case dispatchesLoadedMsg:
		m.isLoading = false
		if msg.err != nil {
			m.appendLog(m.styles.error.Render("⚠ Could not load dispatches: " + msg.err.Error()))
			return m, nil
		}
		m.records = msg.records
		m.lastRefresh = time.Now()
		m.render()
		return m, nil

	case refreshTickMsg:
		if !m.watching || msg.id != m.watchID || m.store == nil {
			return m, nil
		}
		return m, tea.Batch(loadDispatchesCmd(m.store, m.repoFilter), refreshTickCmd(m.watchID))

	case tokenVerifiedMsg:
		m.isLoading = false
		if msg.err != nil {
			m.appendLog(m.styles.error.Render("✗ Token rejected: " + msg.err.Error()))
			return m, nil
		}
		c := msg.claims
		m.appendLog(m.styles.success.Render(fmt.Sprintf("✓ Token valid for %s @ %s [%s]",
			c.Template.FullName(), shortSHA(c.Template.SHA), c.Template.Context)))
		m.appendLog(m.styles.inactive.Render(fmt.Sprintf("  id %s, event %s, expires %s",
			c.ID, c.EventID, c.ExpiresAt.Local().Format(time.RFC822))))
		return m, nil

	case tea.WindowSizeMsg:
		m.styles.header.Width(msg.Width - 4)
		m.viewport.Width = msg.Width - 4
		m.viewport.Height = msg.Height - 9
		m.textarea.SetWidth(msg.Width - 10)
		m.render()
	}

	return m, tea.Batch(tiCmd, vpCmd, spCmd)
}

func (m *model) View() string {
	header := m.styles.header.Render("EXTPR DISPATCH CONSOLE")

	var statusParts []string
	if m.repoFilter != "" {
		statusParts = append(statusParts, "REPO: "+m.repoFilter)
	} else {
		statusParts = append(statusParts, "REPO: all")
	}
	switch {
	case m.storeErr != nil:
		statusParts = append(statusParts, m.styles.error.Render("✗ STORE OFFLINE"))
	case m.watching:
		statusParts = append(statusParts, m.styles.success.Render("● WATCHING"))
	default:
		statusParts = append(statusParts, m.styles.inactive.Render("○ PAUSED"))
	}
	if !m.lastRefresh.IsZero() {
		statusParts = append(statusParts, "UPDATED: "+m.lastRefresh.Format("15:04:05"))
	}
	if len(m.records) > 0 {
		statusParts = append(statusParts, "TRIGGERED "+m.progress.ViewAs(triggeredRatio(m.records)))
	}
	status := m.styles.inactive.Render(strings.Join(statusParts, " │ "))

	var loadingIndicator string
	if m.isLoading {
		loadingIndicator = " " + m.spinner.View() + " " + m.styles.success.Render("LOADING...")
	}

	return m.styles.app.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			header,
			m.styles.viewport.Render(m.viewport.View()),
			m.styles.footer.Render(
				lipgloss.JoinHorizontal(lipgloss.Left,
					m.textarea.View(),
					loadingIndicator,
				),
			),
			status,
		),
	)
}

func (m *model) processCommand(input string) tea.Cmd {
	m.appendLog(m.styles.prompt.Render("► ") + input)

	parts := strings.Fields(input)
	command := parts[0]
	args := parts[1:]

	switch command {
	case "/repo":
		if len(args) != 1 {
			m.appendLog(m.styles.error.Render("USAGE: /repo [owner/repo | URL]"))
			return nil
		}
		owner, repo, err := gitutil.ParseRepository(args[0])
		if err != nil {
			m.appendLog(m.styles.error.Render(err.Error()))
			return nil
		}
		m.repoFilter = owner + "/" + repo
		m.appendLog(m.styles.command.Render("→ Showing dispatches for " + m.repoFilter))
		return m.reload()

	case "/all":
		m.repoFilter = ""
		m.appendLog(m.styles.command.Render("→ Showing dispatches for all repositories"))
		return m.reload()

	case "/refresh", "/r":
		return m.reload()

	case "/watch", "/w":
		m.watching = !m.watching
		m.watchID++
		if !m.watching {
			m.appendLog(m.styles.command.Render("→ Auto refresh paused"))
			return nil
		}
		m.appendLog(m.styles.command.Render(fmt.Sprintf("→ Refreshing every %s", refreshInterval)))
		return tea.Batch(m.reload(), refreshTickCmd(m.watchID))

	case "/verify":
		if len(args) != 1 {
			m.appendLog(m.styles.error.Render("USAGE: /verify [token]"))
			return nil
		}
		m.isLoading = true
		return tea.Batch(m.spinner.Tick, verifyTokenCmd(args[0]))

	case "/help", "/h":
		helpText := m.styles.success.Render("AVAILABLE COMMANDS:") + `
  /repo [owner/repo]   Only show dispatches for one repository.
  /all                 Show dispatches for every repository.
  /refresh, /r         Reload the dispatch list now.
  /watch, /w           Toggle automatic refresh.
  /verify [token]      Check a status token and show what it may update.
  /help                Show this help message.
  /exit, /quit         Leave the console.`
		m.appendLog(helpText)
		return nil

	case "/exit", "/quit":
		return tea.Quit

	default:
		m.appendLog(m.styles.error.Render("UNKNOWN COMMAND: " + command))
		return nil
	}
}

// reload fetches the dispatch list for the current filter.
func (m *model) reload() tea.Cmd {
	if m.store == nil {
		m.appendLog(m.styles.error.Render("No dispatch store is connected."))
		return nil
	}
	m.isLoading = true
	return tea.Batch(m.spinner.Tick, loadDispatchesCmd(m.store, m.repoFilter))
}

func (m *model) appendLog(line string) {
	m.log = append(m.log, line)
	if len(m.log) > maxLogLines {
		m.log = m.log[len(m.log)-maxLogLines:]
	}
	m.render()
}

func (m *model) render() {
	var b strings.Builder
	b.WriteString(renderDispatches(m.styles, m.records))
	b.WriteString("\n\n")
	b.WriteString(strings.Join(m.log, "\n"))
	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

// close releases the store connection once the program has exited.
func (m *model) close() {
	if m.cleanup != nil {
		m.cleanup()
	}
}

func renderDispatches(s styles, records []*core.DispatchRecord) string {
	if len(records) == 0 {
		return s.inactive.Render("No dispatches recorded.")
	}
	var b strings.Builder
	b.WriteString(s.title.Render(fmt.Sprintf("%-15s %-32s %-6s %-8s %-26s %s",
		"WHEN", "REPOSITORY", "PR", "SHA", "CONTEXT", "OUTCOME")))
	for _, r := range records {
		fmt.Fprintf(&b, "\n%-15s %-32s %-6s %-8s %-26s %s",
			r.CreatedAt.Local().Format(time.Stamp),
			r.RepoFullName,
			fmt.Sprintf("#%d", r.PRNumber),
			shortSHA(r.HeadSHA),
			r.Context,
			s.outcome(r.Outcome),
		)
		if r.Error != "" {
			b.WriteString("\n" + s.inactive.Render("    "+r.Error))
		}
	}
	return b.String()
}

// triggeredRatio is the share of records whose build was started.
func triggeredRatio(records []*core.DispatchRecord) float64 {
	if len(records) == 0 {
		return 0
	}
	var n int
	for _, r := range records {
		if r.Outcome == core.OutcomeTriggered {
			n++
		}
	}
	return float64(n) / float64(len(records))
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
