package views

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// Composer is the text input for sending messages. Its draft survives send
// failures; only a successful send clears it.
type Composer struct {
	*tview.InputField
	onSend func(text string)
}

// NewComposer creates a new message composer.
func NewComposer() *Composer {
	input := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)

	c := &Composer{InputField: input}

	input.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter && c.onSend != nil {
			if text := c.GetText(); text != "" {
				c.onSend(text)
			}
		}
	})

	return c
}

// SetOnSend sets the callback when the user submits the draft. The callback
// decides when to call ClearDraft.
func (c *Composer) SetOnSend(fn func(text string)) {
	c.onSend = fn
}

// ClearDraft empties the composer after a confirmed send.
func (c *Composer) ClearDraft() {
	c.SetText("")
}
