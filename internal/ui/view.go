// internal/ui/view.go
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/bigyan313/OBGC-V19/internal/notify"
	"github.com/bigyan313/OBGC-V19/internal/store"
	"github.com/bigyan313/OBGC-V19/internal/tokenbalance"
)

const recentTransactions = 5

// View renders the clicker screen.
func (m *Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}

	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderCounters())
	b.WriteString("\n")

	if m.engine.Accumulator.Frozen() {
		b.WriteString(m.styles.Frozen.Render("Checkpoint reached. Press v to verify you are human."))
		b.WriteString("\n")
	}
	if m.submitting {
		b.WriteString(m.spinner.View() + m.styles.Info.Render(" Submitting batch..."))
		b.WriteString("\n")
	}

	panels := []string{m.renderLeaderboard(), m.renderHistory()}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, panels...))
	b.WriteString("\n")

	b.WriteString(m.renderNotifications())
	b.WriteString(m.renderHelp())

	return b.String()
}

func (m *Model) renderHeader() string {
	wallet := m.engine.Accumulator.Wallet()
	walletLabel := "no wallet"
	if wallet != "" {
		walletLabel = shortAddress(wallet)
	}

	parts := []string{
		m.styles.Title.Render("1B Global Clicks"),
		m.styles.Wallet.Render(walletLabel),
	}
	if m.balance.Amount > 0 {
		parts = append(parts, m.styles.Counter.Render(
			fmt.Sprintf("balance %s", tokenbalance.Format(m.balance.Amount))))
	}
	return m.styles.Header.Render(strings.Join(parts, "  |  "))
}

func (m *Model) renderCounters() string {
	pending := m.engine.Accumulator.Pending()
	yours := m.snapshot.UserClicks + pending

	lines := []string{
		fmt.Sprintf("%s %s",
			m.styles.Counter.Render("Global clicks:"),
			m.styles.CounterBig.Render(formatCount(m.snapshot.TotalClicks+pending))),
		fmt.Sprintf("%s %s   %s %s",
			m.styles.Counter.Render("Your clicks:"),
			m.styles.CounterBig.Render(formatCount(yours)),
			m.styles.Counter.Render("Pending:"),
			m.styles.Pending.Render(formatCount(pending))),
	}
	if m.snapshot.UserRank > 0 {
		lines = append(lines, fmt.Sprintf("%s %s of %s",
			m.styles.Counter.Render("Rank:"),
			m.styles.RankSelf.Render(fmt.Sprintf("#%d", m.snapshot.UserRank)),
			formatCount(m.snapshot.TotalUsers)))
	}
	return m.styles.Panel.Render(strings.Join(lines, "\n"))
}

func (m *Model) renderLeaderboard() string {
	var lines []string
	lines = append(lines, m.styles.PanelTitle.Render("Leaderboard"))

	if len(m.snapshot.Leaderboard) == 0 {
		lines = append(lines, m.styles.Muted.Render("no entries yet"))
	}

	self := m.engine.Accumulator.Wallet()
	for i, entry := range m.snapshot.Leaderboard {
		line := fmt.Sprintf("%2d. %s  %s", i+1, shortAddress(entry.Wallet), formatCount(entry.Clicks))
		if entry.Wallet == self {
			line = m.styles.RankSelf.Render(line + "  (you)")
		} else {
			line = m.styles.Leaderboard.Render(line)
		}
		lines = append(lines, line)
	}
	return m.styles.Panel.Render(strings.Join(lines, "\n"))
}

func (m *Model) renderHistory() string {
	var lines []string
	lines = append(lines, m.styles.PanelTitle.Render("Recent batches"))

	wallet := m.engine.Accumulator.Wallet()
	var records []store.TransactionRecord
	if wallet != "" && m.engine.Store != nil {
		records = m.engine.Store.Transactions(wallet)
	}
	if len(records) == 0 {
		lines = append(lines, m.styles.Muted.Render("no submissions yet"))
	}
	if len(records) > recentTransactions {
		records = records[:recentTransactions]
	}

	for _, rec := range records {
		status := m.styles.Muted.Render(rec.Status)
		switch rec.Status {
		case store.StatusConfirmed:
			status = m.styles.Success.Render(rec.Status)
		case store.StatusFailed:
			status = m.styles.Error.Render(rec.Status)
		case store.StatusPending:
			status = m.styles.Warning.Render(rec.Status)
		}
		sig := rec.Signature
		if len(sig) > 12 {
			sig = sig[:12] + "..."
		}
		lines = append(lines, fmt.Sprintf("%s  %4d clicks  %s", status, rec.Clicks, sig))
	}
	return m.styles.Panel.Render(strings.Join(lines, "\n"))
}

func (m *Model) renderNotifications() string {
	if len(m.notifications) == 0 {
		return ""
	}
	var b strings.Builder
	for _, n := range m.notifications {
		style := m.styles.Info
		switch n.Level {
		case notify.LevelSuccess:
			style = m.styles.Success
		case notify.LevelWarning:
			style = m.styles.Warning
		case notify.LevelError:
			style = m.styles.Error
		}
		b.WriteString(style.Render(fmt.Sprintf("%s: %s", n.Title, n.Message)))
		if n.ExplorerURL != "" {
			b.WriteString(" " + m.styles.Muted.Render(n.ExplorerURL))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) renderHelp() string {
	var parts []string
	for _, binding := range m.keys.HelpLine() {
		h := binding.Help()
		parts = append(parts, fmt.Sprintf("%s %s", h.Key, h.Desc))
	}
	return m.styles.Help.Render(strings.Join(parts, " • "))
}

func shortAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:4] + "..." + addr[len(addr)-4:]
}

func formatCount(n uint64) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteString(",")
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
