package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("conversation.", 4)
	defer unsub()

	b.Publish(Event{Kind: KindSnapshotApplied, Timestamp: time.Now()})

	select {
	case evt := <-ch:
		if evt.Kind != KindSnapshotApplied {
			t.Errorf("kind = %q, want %q", evt.Kind, KindSnapshotApplied)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestPrefixFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("playback.", 4)
	defer unsub()

	b.Publish(Event{Kind: KindSessionChanged})
	b.Publish(Event{Kind: KindRecordingState})
	b.Publish(Event{Kind: KindPlaybackState})

	select {
	case evt := <-ch:
		if evt.Kind != KindPlaybackState {
			t.Errorf("kind = %q, want %q", evt.Kind, KindPlaybackState)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	select {
	case evt := <-ch:
		t.Errorf("unexpected extra event %q", evt.Kind)
	default:
	}
}

func TestEmptyPrefixReceivesEverything(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("", 8)
	defer unsub()

	kinds := []string{KindSessionChanged, KindSnapshotApplied, KindRecordingState}
	for _, k := range kinds {
		b.Publish(Event{Kind: k})
	}

	for _, want := range kinds {
		select {
		case evt := <-ch:
			if evt.Kind != want {
				t.Errorf("kind = %q, want %q", evt.Kind, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for %q", want)
		}
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("", 4)
	unsub()

	b.Publish(Event{Kind: KindSessionChanged})

	select {
	case evt := <-ch:
		t.Errorf("received %q after unsubscribe", evt.Kind)
	default:
	}
}

func TestFullSubscriberDropsAndCounts(t *testing.T) {
	b := New()
	_, unsub := b.Subscribe("", 1)
	defer unsub()

	b.Publish(Event{Kind: KindSessionChanged})
	b.Publish(Event{Kind: KindSessionChanged})

	if got := b.Dropped(); got != 1 {
		t.Errorf("Dropped() = %d, want 1", got)
	}
}
