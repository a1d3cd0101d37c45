package status

import (
	"testing"
	"time"

	"github.com/vanotis720/vochat/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	if m.Current() != Booting {
		t.Errorf("initial state = %s, want BOOTING", m.Current())
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Booting, AuthRequired},
		{Booting, Activating},
		{AuthRequired, Activating},
		{Activating, Ready},
		{Activating, Degraded},
		{Ready, AuthRequired},
		{Ready, Degraded},
		{Degraded, Activating},
		{Error, Booting},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine(nil)
			m.current = tt.from
			if err := m.Transition(tt.to); err != nil {
				t.Errorf("Transition(%s) from %s error = %v", tt.to, tt.from, err)
			}
			if m.Current() != tt.to {
				t.Errorf("state = %s, want %s", m.Current(), tt.to)
			}
		})
	}
}

func TestInvalidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Booting, Ready},
		{AuthRequired, Ready},
		{Ready, Booting},
		{Error, Ready},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine(nil)
			m.current = tt.from
			if err := m.Transition(tt.to); err == nil {
				t.Errorf("Transition(%s) from %s should fail", tt.to, tt.from)
			}
			if m.Current() != tt.from {
				t.Errorf("state changed to %s after invalid transition", m.Current())
			}
		})
	}
}

func TestTransitionPublishesEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("daemon.", 4)
	defer unsub()

	m := NewMachine(b)
	if err := m.Transition(AuthRequired); err != nil {
		t.Fatal(err)
	}

	select {
	case evt := <-ch:
		change, ok := evt.Payload.(StatusChange)
		if !ok {
			t.Fatalf("payload type = %T, want StatusChange", evt.Payload)
		}
		if change.From != Booting || change.To != AuthRequired {
			t.Errorf("change = %+v, want Booting->AuthRequired", change)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for status event")
	}
}
