package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/zzb13647948235-source/ArtIsLife-sub001/internal/auction"
	cl "github.com/zzb13647948235-source/ArtIsLife-sub001/internal/cli"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gorilla/websocket"
)

var (
	watchTitleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	watchBidStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	watchWonStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	watchLostStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	watchFaintStyle  = lipgloss.NewStyle().Faint(true)
	watchBidderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
)

type snapshotMsg auction.Snapshot

type feedClosedMsg struct{}

type feedErrMsg struct{ err error }

type bidResultMsg struct {
	snap auction.Snapshot
	err  error
}

type watchModel struct {
	client    *cl.Client
	token     string
	sessionID string
	conn      *websocket.Conn
	updates   chan tea.Msg

	spin    spinner.Model
	clock   progress.Model
	snap    auction.Snapshot
	haveOne bool
	bidErr  string
	done    bool
	err     error
}

// watchAuction subscribes to the auction feed and runs the live view until
// the auction settles or the user quits.
func watchAuction(ctx context.Context, client *cl.Client, token, sessionID string) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, client.FeedURL(sessionID), header)
	if err != nil {
		return fmt.Errorf("connect feed: %w", err)
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := watchModel{
		client:    client,
		token:     token,
		sessionID: sessionID,
		conn:      conn,
		updates:   make(chan tea.Msg, 16),
		spin:      sp,
		clock:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40), progress.WithoutPercentage()),
	}

	go func() {
		defer close(m.updates)
		for {
			var snap auction.Snapshot
			if err := conn.ReadJSON(&snap); err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					m.updates <- feedClosedMsg{}
				} else {
					m.updates <- feedErrMsg{err: err}
				}
				return
			}
			m.updates <- snapshotMsg(snap)
		}
	}()

	final, err := tea.NewProgram(m, tea.WithContext(ctx)).Run()
	conn.Close()
	if err != nil {
		return err
	}
	if fm, ok := final.(watchModel); ok && fm.err != nil {
		return fm.err
	}
	return nil
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.waitForUpdate())
}

func (m watchModel) waitForUpdate() tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-m.updates
		if !ok {
			return feedClosedMsg{}
		}
		return msg
	}
}

func (m watchModel) placeBid() tea.Cmd {
	client, token, sessionID := m.client, m.token, m.sessionID
	return func() tea.Msg {
		snap, err := client.AuctionBid(context.Background(), token, sessionID)
		return bidResultMsg{snap: snap, err: err}
	}
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "b":
			if !m.done {
				m.bidErr = ""
				return m, m.placeBid()
			}
		}
	case snapshotMsg:
		m.snap = auction.Snapshot(msg)
		m.haveOne = true
		if m.snap.Status.Terminal() {
			m.done = true
		}
		return m, m.waitForUpdate()
	case bidResultMsg:
		if msg.err != nil {
			m.bidErr = msg.err.Error()
		} else {
			m.snap = msg.snap
			m.haveOne = true
		}
		return m, nil
	case feedClosedMsg:
		m.done = true
		return m, tea.Quit
	case feedErrMsg:
		if !m.done {
			m.err = msg.err
		}
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m watchModel) View() string {
	var b strings.Builder
	b.WriteString(watchTitleStyle.Render("AUCTION "+m.sessionID) + "\n\n")

	if !m.haveOne {
		b.WriteString(m.spin.View() + " waiting for feed...\n")
		return b.String()
	}

	b.WriteString(fmt.Sprintf("Item:        %s\n", m.snap.ItemID))
	b.WriteString(fmt.Sprintf("Current bid: %s credits\n", watchBidStyle.Render(formatMicros(m.snap.CurrentBidMicros))))
	left := float64(m.snap.RemainingSeconds) / float64(auction.InitialSeconds)
	b.WriteString(fmt.Sprintf("Remaining:   %ds %s\n", m.snap.RemainingSeconds, m.clock.ViewAs(left)))

	switch m.snap.Status {
	case auction.StatusWon:
		b.WriteString("Status:      " + watchWonStyle.Render("WON") + "\n")
	case auction.StatusLost:
		b.WriteString("Status:      " + watchLostStyle.Render("LOST") + "\n")
	default:
		b.WriteString(fmt.Sprintf("Status:      %s %s\n", m.snap.Status, m.spin.View()))
	}

	if n := len(m.snap.Bids); n > 0 {
		b.WriteString("\nRecent bids:\n")
		start := 0
		if n > 5 {
			start = n - 5
		}
		for _, bid := range m.snap.Bids[start:] {
			bidder := bid.Bidder
			if bidder == auction.UserBidder {
				bidder = watchBidStyle.Render(bidder)
			} else {
				bidder = watchBidderStyle.Render(bidder)
			}
			b.WriteString(fmt.Sprintf("  %s  %s credits\n", bidder, formatMicros(bid.AmountMicros)))
		}
	}

	if m.bidErr != "" {
		b.WriteString("\n" + watchLostStyle.Render("bid rejected: "+m.bidErr) + "\n")
	}

	if m.done {
		b.WriteString("\n" + watchFaintStyle.Render("auction over, press q to exit") + "\n")
	} else {
		next := m.snap.CurrentBidMicros + auction.UserIncrementMicros
		b.WriteString("\n" + watchFaintStyle.Render(fmt.Sprintf("press b to bid %s credits, q to quit", formatMicros(next))) + "\n")
	}
	return b.String()
}
