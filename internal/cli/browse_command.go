package cli

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"epub2mp3/internal/model"
	"epub2mp3/internal/runstore"
)

type browseMode int

const (
	browseModeRuns browseMode = iota
	browseModeChapters
	browseModeRequeueConfirm
)

type browseRunEntry struct {
	Dir  string
	Meta runstore.RunMeta
}

type browseModel struct {
	runsDir string
	mode    browseMode
	width   int
	height  int

	runs      []browseRunEntry
	runCursor int

	manifestDir   string
	manifest      model.RunManifest
	chapterCursor int
	filter        textinput.Model
	filtering     bool

	statusMessage string
	fatalErr      error
}

type browseRunsLoadedMsg struct {
	runs []browseRunEntry
	err  error
}

type browseManifestLoadedMsg struct {
	dir      string
	manifest model.RunManifest
	err      error
}

type browseRequeueMsg struct {
	message string
	err     error
}

var (
	browseTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	browseMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	browseErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	browsePanelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	browseSelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("230")).Background(lipgloss.Color("62")).Bold(true)
	browseFailStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	browseDoneStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
)

func runBrowse(args []string) error {
	fs := flag.NewFlagSet("browse", flag.ContinueOnError)
	runsDir := fs.String("runs-dir", "runs", "runs directory")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !stdinIsTTY() {
		return errors.New("browse requires an interactive terminal (TTY)")
	}

	filter := textinput.New()
	filter.Prompt = "/"
	filter.Placeholder = "filter chapters"
	filter.CharLimit = 128

	m := browseModel{
		runsDir: strings.TrimSpace(*runsDir),
		mode:    browseModeRuns,
		filter:  filter,
	}
	p := tea.NewProgram(m, tea.WithAltScreen())
	finalModel, err := p.Run()
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "tty") {
			return errors.New("browse requires an interactive terminal (TTY)")
		}
		return err
	}
	if fm, ok := finalModel.(browseModel); ok {
		return fm.fatalErr
	}
	return nil
}

func (m browseModel) Init() tea.Cmd {
	return loadRunsCmd(m.runsDir)
}

func (m browseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.filter.Width = clampInt(m.width-8, 20, 120)
		return m, nil
	case browseRunsLoadedMsg:
		if msg.err != nil {
			m.fatalErr = msg.err
			return m, tea.Quit
		}
		m.runs = msg.runs
		if len(m.runs) == 0 {
			m.runCursor = 0
		} else if m.runCursor > len(m.runs)-1 {
			m.runCursor = len(m.runs) - 1
		}
		return m, nil
	case browseManifestLoadedMsg:
		if msg.err != nil {
			m.statusMessage = "error: " + msg.err.Error()
			m.mode = browseModeRuns
			return m, nil
		}
		m.manifestDir = msg.dir
		m.manifest = msg.manifest
		m.mode = browseModeChapters
		m.chapterCursor = 0
		m.filtering = false
		m.filter.SetValue("")
		return m, nil
	case browseRequeueMsg:
		m.mode = browseModeChapters
		if msg.err != nil {
			m.statusMessage = "error: " + msg.err.Error()
			return m, nil
		}
		m.statusMessage = msg.message
		return m, loadManifestCmd(m.manifestDir)
	}

	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch m.mode {
	case browseModeRuns:
		return m.updateRuns(keyMsg)
	case browseModeChapters:
		return m.updateChapters(keyMsg)
	case browseModeRequeueConfirm:
		return m.updateRequeueConfirm(keyMsg)
	default:
		return m, nil
	}
}

func (m browseModel) updateRuns(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q", "esc":
		return m, tea.Quit
	case "up", "k":
		if m.runCursor > 0 {
			m.runCursor--
		}
	case "down", "j":
		if m.runCursor < len(m.runs)-1 {
			m.runCursor++
		}
	case "r":
		return m, loadRunsCmd(m.runsDir)
	case "enter":
		if len(m.runs) == 0 {
			m.statusMessage = "no runs yet; use `epub2mp3 convert` first"
			return m, nil
		}
		return m, loadManifestCmd(m.runs[m.runCursor].Dir)
	}
	return m, nil
}

func (m browseModel) updateChapters(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.filtering {
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "esc":
			m.filtering = false
			m.filter.SetValue("")
			m.filter.Blur()
			return m, nil
		case "enter":
			m.filtering = false
			m.filter.Blur()
			return m, nil
		}
		var cmd tea.Cmd
		m.filter, cmd = m.filter.Update(msg)
		m.chapterCursor = 0
		return m, cmd
	}

	rows := m.filteredChapterRows()
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "esc", "backspace":
		m.mode = browseModeRuns
		m.statusMessage = ""
		return m, loadRunsCmd(m.runsDir)
	case "up", "k":
		if m.chapterCursor > 0 {
			m.chapterCursor--
		}
	case "down", "j":
		if m.chapterCursor < len(rows)-1 {
			m.chapterCursor++
		}
	case "/":
		m.filtering = true
		m.filter.Focus()
		return m, textinput.Blink
	case "r":
		if m.manifest.FailedPermanent+m.manifest.FailedRetryable == 0 {
			m.statusMessage = "no failed chapters to requeue"
			return m, nil
		}
		m.mode = browseModeRequeueConfirm
		return m, nil
	}
	return m, nil
}

func (m browseModel) updateRequeueConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc", "n":
		m.mode = browseModeChapters
		m.statusMessage = "requeue cancelled"
		return m, nil
	case "y", "enter":
		return m, requeueFailedCmd(m.manifestDir)
	}
	return m, nil
}

func (m browseModel) View() string {
	if m.fatalErr != nil {
		return browseErrorStyle.Render("fatal: " + m.fatalErr.Error())
	}
	if m.width <= 0 {
		m.width = 100
	}
	if m.height <= 0 {
		m.height = 30
	}

	switch m.mode {
	case browseModeChapters:
		return m.viewChapters()
	case browseModeRequeueConfirm:
		return m.viewRequeueConfirm()
	default:
		return m.viewRuns()
	}
}

func (m browseModel) viewRuns() string {
	header := browseTitleStyle.Render("epub2mp3 runs") + "\n" +
		browseMutedStyle.Render("up/down: move | enter: chapters | r: refresh | q: quit")

	lines := make([]string, 0, len(m.runs)+1)
	if len(m.runs) == 0 {
		lines = append(lines, browseMutedStyle.Render("No runs found in "+m.runsDir+"."))
	}
	maxRows := clampInt(m.height-8, 4, 24)
	start, end := listWindow(len(m.runs), m.runCursor, maxRows)
	if start > 0 {
		lines = append(lines, browseMutedStyle.Render("..."))
	}
	for i := start; i < end; i++ {
		e := m.runs[i]
		line := fmt.Sprintf("%s  %d/%d  %s", e.Meta.RunID, e.Meta.Completed, e.Meta.TotalChapters, e.Meta.BookTitle)
		line = truncateRunes(line, maxInt(m.width-8, 10))
		if i == m.runCursor {
			line = browseSelStyle.Width(maxInt(m.width-6, 6)).Render(line)
		}
		lines = append(lines, line)
	}
	if end < len(m.runs) {
		lines = append(lines, browseMutedStyle.Render("..."))
	}

	panel := browsePanelStyle.Width(maxInt(m.width-2, 20)).Render(strings.Join(lines, "\n"))
	return lipgloss.JoinVertical(lipgloss.Left, header, panel, m.renderStatusLine())
}

func (m browseModel) viewChapters() string {
	mf := m.manifest
	header := browseTitleStyle.Render(fmt.Sprintf("%s  %d/%d converted", mf.RunID, mf.Completed, mf.Total)) + "\n" +
		browseMutedStyle.Render("up/down: move | /: filter | r: requeue failed | esc: back | q: quit")

	rows := m.filteredChapterRows()
	lines := make([]string, 0, len(rows)+2)
	if m.filtering || m.filter.Value() != "" {
		lines = append(lines, m.filter.View())
	}
	maxRows := clampInt(m.height-9, 4, 24)
	start, end := listWindow(len(rows), m.chapterCursor, maxRows)
	if start > 0 {
		lines = append(lines, browseMutedStyle.Render("..."))
	}
	for i := start; i < end; i++ {
		j := mf.Jobs[rows[i]]
		mark := " "
		if _, err := os.Stat(outputPathFor(mf, j)); err == nil {
			mark = "x"
		}
		line := fmt.Sprintf("[%s] %03d %-16s %s", mark, j.Index, j.Status, j.Title)
		line = truncateRunes(line, maxInt(m.width-8, 10))
		switch {
		case i == m.chapterCursor:
			line = browseSelStyle.Width(maxInt(m.width-6, 6)).Render(line)
		case j.Status == model.StatusCompleted:
			line = browseDoneStyle.Render(line)
		case j.Status == model.StatusFailedPermanent || j.Status == model.StatusFailedRetryable:
			line = browseFailStyle.Render(line)
		}
		lines = append(lines, line)
	}
	if end < len(rows) {
		lines = append(lines, browseMutedStyle.Render("..."))
	}
	if len(rows) == 0 {
		lines = append(lines, browseMutedStyle.Render("no chapters match the filter"))
	}

	detail := ""
	if len(rows) > 0 && m.chapterCursor < len(rows) {
		j := mf.Jobs[rows[m.chapterCursor]]
		parts := []string{kv("file", j.OutputFile), kv("attempts", fmt.Sprintf("%d", j.Attempts))}
		if j.ErrorKind != "" {
			parts = append(parts, kv("error_kind", j.ErrorKind))
		}
		if j.LastError != "" {
			parts = append(parts, kv("last_error", truncateRunes(j.LastError, maxInt(m.width-20, 20))))
		}
		detail = browsePanelStyle.Width(maxInt(m.width-2, 20)).Render(strings.Join(parts, "\n"))
	}

	panel := browsePanelStyle.Width(maxInt(m.width-2, 20)).Render(strings.Join(lines, "\n"))
	return lipgloss.JoinVertical(lipgloss.Left, header, panel, detail, m.renderStatusLine())
}

func (m browseModel) viewRequeueConfirm() string {
	n := m.manifest.FailedPermanent + m.manifest.FailedRetryable
	text := fmt.Sprintf(
		"Requeue %d failed chapter(s) of run '%s'?\n\nThey return to pending and convert again on the next run.\n\nPress y or Enter to confirm, n or Esc to cancel.",
		n, m.manifest.RunID,
	)
	boxW := clampInt(m.width-8, 36, 80)
	boxH := clampInt(m.height-6, 8, 12)
	panel := browsePanelStyle.Width(boxW).Height(boxH).Render(text)
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, panel)
}

func (m browseModel) renderStatusLine() string {
	msg := strings.TrimSpace(m.statusMessage)
	if msg == "" {
		return ""
	}
	style := browseMutedStyle
	if strings.HasPrefix(strings.ToLower(msg), "error:") {
		style = browseErrorStyle
	}
	return style.Width(maxInt(m.width, 20)).Render(truncateRunes(msg, maxInt(m.width-2, 10)))
}

func (m browseModel) filteredChapterRows() []int {
	needle := strings.ToLower(strings.TrimSpace(m.filter.Value()))
	rows := make([]int, 0, len(m.manifest.Jobs))
	for i, j := range m.manifest.Jobs {
		if needle != "" && !strings.Contains(strings.ToLower(j.Title), needle) {
			continue
		}
		rows = append(rows, i)
	}
	return rows
}

func loadRunsCmd(runsDir string) tea.Cmd {
	return func() tea.Msg {
		dirs, err := runstore.ListRunDirs(runsDir)
		if err != nil {
			return browseRunsLoadedMsg{err: err}
		}
		runs := make([]browseRunEntry, 0, len(dirs))
		for _, dir := range dirs {
			meta, err := runstore.LoadRunMeta(dir)
			if err != nil {
				continue
			}
			runs = append(runs, browseRunEntry{Dir: dir, Meta: meta})
		}
		return browseRunsLoadedMsg{runs: runs}
	}
}

func loadManifestCmd(runDir string) tea.Cmd {
	return func() tea.Msg {
		var mf model.RunManifest
		if err := runstore.ReadJSON(runstore.ManifestPath(runDir), &mf); err != nil {
			return browseManifestLoadedMsg{err: err}
		}
		return browseManifestLoadedMsg{dir: runDir, manifest: mf}
	}
}

func requeueFailedCmd(runDir string) tea.Cmd {
	return func() tea.Msg {
		message, err := requeueFailedChapters(runDir)
		if err != nil {
			return browseRequeueMsg{err: err}
		}
		return browseRequeueMsg{message: message}
	}
}

// requeueFailedChapters moves every failed chapter back to pending. Takes the
// run lock so it never races an active convert on the same run.
func requeueFailedChapters(runDir string) (string, error) {
	meta, _ := runstore.LoadRunMeta(runDir)
	lock, err := runstore.AcquireRunLock(runDir, meta.RunID, "requeue")
	if err != nil {
		return "", err
	}
	defer func() {
		_ = lock.Release()
	}()

	var mf model.RunManifest
	if err := runstore.ReadJSON(runstore.ManifestPath(runDir), &mf); err != nil {
		return "", err
	}

	requeued := 0
	for i := range mf.Jobs {
		j := &mf.Jobs[i]
		if j.Status != model.StatusFailedPermanent && j.Status != model.StatusFailedRetryable {
			continue
		}
		if err := model.TransitionJobStatus(j, model.StatusPending, "manual_requeue"); err != nil {
			return "", err
		}
		j.ErrorKind = ""
		j.LastError = ""
		requeued++
	}
	model.RecomputeCounts(&mf)
	if err := runstore.WriteJSON(runstore.ManifestPath(runDir), mf); err != nil {
		return "", err
	}
	return fmt.Sprintf("requeued %d chapter(s)", requeued), nil
}
