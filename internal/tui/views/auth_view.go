package views

import (
	"fmt"

	"github.com/rivo/tview"
)

// AuthView is the email/password sign-in form.
type AuthView struct {
	*tview.Flex
	form    *tview.Form
	message *tview.TextView
	onLogin func(email, password string)
}

// NewAuthView creates a new auth view.
func NewAuthView() *AuthView {
	av := &AuthView{
		form:    tview.NewForm(),
		message: tview.NewTextView().SetDynamicColors(true).SetTextAlign(tview.AlignCenter),
	}

	av.form.
		AddInputField("Email", "", 40, nil, nil).
		AddPasswordField("Password", "", 40, '*', nil).
		AddButton("Sign in", func() {
			if av.onLogin == nil {
				return
			}
			email := av.form.GetFormItemByLabel("Email").(*tview.InputField).GetText()
			password := av.form.GetFormItemByLabel("Password").(*tview.InputField).GetText()
			av.onLogin(email, password)
		})
	av.form.SetBorder(true).SetTitle(" Sign in ")

	av.Flex = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(av.form, 11, 0, true).
		AddItem(av.message, 0, 1, false)

	return av
}

// SetOnLogin sets the sign-in callback. The entered credentials stay in the
// form until sign-in succeeds, so a rejected attempt can be corrected.
func (av *AuthView) SetOnLogin(fn func(email, password string)) {
	av.onLogin = fn
}

// ShowError displays a sign-in failure under the form.
func (av *AuthView) ShowError(msg string) {
	av.message.Clear()
	_, _ = fmt.Fprintf(av.message, "\n[red]%s[-]", msg)
}

// ShowMessage displays a neutral status message under the form.
func (av *AuthView) ShowMessage(msg string) {
	av.message.Clear()
	_, _ = fmt.Fprintf(av.message, "\n%s", msg)
}

// Reset clears the password field and any message after a successful sign-in.
func (av *AuthView) Reset() {
	av.form.GetFormItemByLabel("Password").(*tview.InputField).SetText("")
	av.message.Clear()
}
