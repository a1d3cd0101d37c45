package views

import (
	"fmt"
	"time"

	"github.com/rivo/tview"
	"github.com/vanotis720/vochat/internal/docstore"
)

// MessageView displays the active conversation as a selectable list so audio
// messages can be targeted for playback.
type MessageView struct {
	*tview.Table
	userID   string
	msgs     []docstore.Message
	playback func(messageID string) string
}

// NewMessageView creates a new message view.
func NewMessageView() *MessageView {
	tbl := tview.NewTable().
		SetSelectable(true, false)
	tbl.SetBorder(true).SetTitle(" Conversation ")

	return &MessageView{Table: tbl, playback: func(string) string { return "" }}
}

// SetUserID marks which messages render as own messages.
func (mv *MessageView) SetUserID(id string) {
	mv.userID = id
}

// SetPlaybackLookup supplies the per-message playback state for rendering.
func (mv *MessageView) SetPlaybackLookup(fn func(messageID string) string) {
	mv.playback = fn
}

// SelectedMessage returns the currently selected message, or nil.
func (mv *MessageView) SelectedMessage() *docstore.Message {
	row, _ := mv.GetSelection()
	if row < 0 || row >= len(mv.msgs) {
		return nil
	}
	return &mv.msgs[row]
}

// Update refreshes the view with a new conversation snapshot. The previous
// rows are replaced wholesale.
func (mv *MessageView) Update(msgs []docstore.Message) {
	prevRow, _ := mv.GetSelection()
	atEnd := prevRow >= len(mv.msgs)-1

	mv.Clear()
	mv.msgs = msgs

	for i, m := range msgs {
		sender := m.UserID
		if m.UserID == mv.userID {
			sender = "You"
		}
		ts := time.UnixMilli(m.CreatedAt).Format("15:04")

		body := sanitizeForTerminal(m.Content)
		if m.Kind == docstore.KindAudio {
			body = mv.audioLabel(m)
		}
		receipt := ""
		if m.UserID == mv.userID {
			receipt = " [gray]✓[-]"
			if m.Status == docstore.StatusRead {
				receipt = " [blue]✓✓[-]"
			}
		}

		cell := tview.NewTableCell(fmt.Sprintf("[::d]%s[-:-:-] [::b]%s[-:-:-] %s%s", ts, sender, body, receipt)).
			SetExpansion(1)
		mv.SetCell(i, 0, cell)
	}

	if len(msgs) > 0 && atEnd {
		mv.Select(len(msgs)-1, 0)
		mv.ScrollToEnd()
	}
}

func (mv *MessageView) audioLabel(m docstore.Message) string {
	switch mv.playback(m.ID) {
	case "loading":
		return "[yellow]▶ voice message (loading…)[-]"
	case "playing":
		return "[green]▶ voice message (playing)[-]"
	case "paused":
		return "[yellow]⏸ voice message (paused)[-]"
	default:
		return "▶ voice message"
	}
}
