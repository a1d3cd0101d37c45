package tui

import (
	"context"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/vanotis720/vochat/internal/api"
	"github.com/vanotis720/vochat/internal/bus"
	"github.com/vanotis720/vochat/internal/docstore"
	"github.com/vanotis720/vochat/internal/tui/client"
	"github.com/vanotis720/vochat/internal/tui/model"
	"github.com/vanotis720/vochat/internal/tui/views"
)

// App is the main TUI application shell.
type App struct {
	app       *tview.Application
	pages     *tview.Pages
	vm        *model.ViewModel
	daemon    *client.Client
	statusBar *views.StatusBar
	msgView   *views.MessageView
	composer  *views.Composer
	authView  *views.AuthView
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewApp creates the TUI application.
func NewApp(c *client.Client, profileName string) *App {
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		app:       tview.NewApplication(),
		pages:     tview.NewPages(),
		vm:        model.NewViewModel(c),
		daemon:    c,
		statusBar: views.NewStatusBar(),
		msgView:   views.NewMessageView(),
		composer:  views.NewComposer(),
		authView:  views.NewAuthView(),
		ctx:       ctx,
		cancel:    cancel,
	}

	a.statusBar.SetProfile(profileName)
	a.msgView.SetPlaybackLookup(a.vm.GetPlayback)
	a.setupCallbacks()
	a.setupLayout()

	return a
}

func (a *App) setupCallbacks() {
	a.authView.SetOnLogin(func(email, password string) {
		go func() {
			if err := a.vm.Login(a.ctx, email, password); err != nil {
				a.app.QueueUpdateDraw(func() {
					a.authView.ShowError(err.Error())
				})
				return
			}
			_ = a.vm.LoadMessages(a.ctx)
			a.app.QueueUpdateDraw(func() {
				a.authView.Reset()
				a.showConversation()
			})
		}()
	})

	a.composer.SetOnSend(func(text string) {
		go func() {
			if err := a.vm.SendText(a.ctx, text); err != nil {
				// The draft stays in the composer for retry.
				a.vm.Flash.Set("Send failed: "+err.Error(), 5*time.Second)
				a.app.QueueUpdateDraw(a.renderStatus)
				return
			}
			a.app.QueueUpdateDraw(func() {
				a.composer.ClearDraft()
				a.renderStatus()
			})
		}()
	})
}

func (a *App) setupLayout() {
	chatFlex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.msgView, 0, 1, true).
		AddItem(a.composer, 1, 0, false)

	a.pages.AddPage("auth", a.authView, true, true)
	a.pages.AddPage("conversation", chatFlex, true, false)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(root, true)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		currentPage, _ := a.pages.GetFrontPage()

		// Let text input widgets handle keys normally.
		focused := a.app.GetFocus()
		if _, ok := focused.(*tview.InputField); ok {
			if event.Key() == tcell.KeyEscape && currentPage == "conversation" {
				a.app.SetFocus(a.msgView)
				return nil
			}
			return event
		}

		if currentPage != "conversation" || event.Key() != tcell.KeyRune {
			return event
		}

		switch event.Rune() {
		case 'q':
			a.app.Stop()
			return nil
		case 'i':
			a.app.SetFocus(a.composer.InputField)
			return nil
		case 'v':
			go a.toggleRecording()
			return nil
		case ' ', 'p':
			if m := a.msgView.SelectedMessage(); m != nil && m.Kind == docstore.KindAudio {
				go a.togglePlayback(m.ID)
			}
			return nil
		}
		return event
	})
}

func (a *App) toggleRecording() {
	if err := a.vm.ToggleRecording(a.ctx); err != nil {
		a.vm.Flash.Set("Recording: "+err.Error(), 5*time.Second)
	}
	a.app.QueueUpdateDraw(a.renderStatus)
}

func (a *App) togglePlayback(messageID string) {
	if err := a.vm.TogglePlayback(a.ctx, messageID); err != nil {
		a.vm.Flash.Set("Playback: "+err.Error(), 5*time.Second)
	}
	a.app.QueueUpdateDraw(func() {
		a.msgView.Update(a.vm.GetMessages())
		a.renderStatus()
	})
}

func (a *App) showConversation() {
	if st := a.vm.GetStatus(); st != nil {
		a.msgView.SetUserID(st.UserID)
	}
	a.msgView.Update(a.vm.GetMessages())
	a.pages.SwitchToPage("conversation")
	a.app.SetFocus(a.msgView)
	a.renderStatus()
}

func (a *App) renderStatus() {
	if st := a.vm.GetStatus(); st != nil {
		a.statusBar.SetStatus(st.Status)
	}
	a.statusBar.SetRecording(a.vm.GetRecording())
	a.statusBar.SetFlash(a.vm.Flash.Get())
}

// Run starts the TUI application.
func (a *App) Run() error {
	go func() {
		_ = a.vm.LoadStatus(a.ctx)

		a.app.QueueUpdateDraw(func() {
			st := a.vm.GetStatus()
			if st != nil && st.UserID != "" {
				_ = a.vm.LoadMessages(a.ctx)
				a.showConversation()
				return
			}
			a.renderStatus()
		})

		a.streamEvents()
	}()

	return a.app.Run()
}

// streamEvents follows the daemon's event feed and refreshes the UI. The
// conversation view is replaced wholesale on every snapshot event.
func (a *App) streamEvents() {
	events, cancel, err := a.daemon.Events(a.ctx, "")
	if err != nil {
		a.vm.Flash.Set("Event stream unavailable: "+err.Error(), 10*time.Second)
		a.app.QueueUpdateDraw(a.renderStatus)
		return
	}
	defer cancel()

	for {
		select {
		case <-a.ctx.Done():
			return
		case env, ok := <-events:
			if !ok {
				return
			}
			a.handleEvent(env)
		}
	}
}

func (a *App) handleEvent(env api.EventEnvelope) {
	switch env.Kind {
	case bus.KindSnapshotApplied, bus.KindMessageSent:
		_ = a.vm.LoadMessages(a.ctx)
		a.app.QueueUpdateDraw(func() {
			a.msgView.Update(a.vm.GetMessages())
			a.renderStatus()
		})
	case bus.KindSessionChanged, bus.KindStatusChanged:
		_ = a.vm.LoadStatus(a.ctx)
		a.app.QueueUpdateDraw(a.renderStatus)
	case bus.KindRecordingState:
		a.vm.SetRecording(payloadField(env.Payload, "To"))
		a.app.QueueUpdateDraw(a.renderStatus)
	case bus.KindPlaybackState:
		id := payloadField(env.Payload, "MessageID")
		a.vm.SetPlayback(id, payloadField(env.Payload, "To"))
		a.app.QueueUpdateDraw(func() {
			a.msgView.Update(a.vm.GetMessages())
		})
	case bus.KindSendFailed, bus.KindSyncError, bus.KindRecordingFailed, bus.KindPlaybackFailed:
		a.vm.Flash.Set(flashForFailure(env), 5*time.Second)
		a.app.QueueUpdateDraw(a.renderStatus)
	}
}

func flashForFailure(env api.EventEnvelope) string {
	if msg, ok := env.Payload.(string); ok && msg != "" {
		return msg
	}
	if msg := payloadField(env.Payload, "error"); msg != "" {
		return msg
	}
	return env.Kind
}

// payloadField reads a string field from a decoded JSON payload.
func payloadField(payload any, field string) string {
	m, ok := payload.(map[string]any)
	if !ok {
		return ""
	}
	s, _ := m[field].(string)
	return s
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
