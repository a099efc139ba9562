package events

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	ch := bus.Subscribe(ChannelUploadProgress)

	bus.Publish(ChannelUploadProgress, "payload")

	select {
	case event := <-ch:
		if event.Channel != ChannelUploadProgress {
			t.Errorf("channel = %q", event.Channel)
		}
		if event.Payload != "payload" {
			t.Errorf("payload = %v", event.Payload)
		}
		if event.Time.IsZero() {
			t.Error("event time not set")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}
}

func TestChannelIsolation(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	uploadCh := bus.Subscribe(ChannelUploadProgress)
	downloadCh := bus.Subscribe(ChannelDownloadProgress)

	bus.Publish(ChannelUploadProgress, 1)

	select {
	case <-uploadCh:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("upload subscriber missed event")
	}

	select {
	case event := <-downloadCh:
		t.Fatalf("download subscriber received %v", event.Payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMultipleSubscribers(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	ch1 := bus.Subscribe(ChannelUploadProgress)
	ch2 := bus.Subscribe(ChannelUploadProgress)
	all := bus.SubscribeAll()

	bus.Publish(ChannelUploadProgress, 42)

	for i, ch := range []<-chan Event{ch1, ch2, all} {
		select {
		case event := <-ch:
			if event.Payload != 42 {
				t.Errorf("subscriber %d payload = %v", i, event.Payload)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("subscriber %d missed event", i)
		}
	}
}

func TestFullBufferDropsEvents(t *testing.T) {
	bus := NewBus(1)
	defer bus.Close()

	_ = bus.Subscribe(ChannelUploadProgress)

	bus.Publish(ChannelUploadProgress, 1)
	bus.Publish(ChannelUploadProgress, 2) // buffer full, dropped

	if dropped := bus.DroppedEventCount(); dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	ch := bus.Subscribe(ChannelUploadProgress)
	bus.Unsubscribe(ChannelUploadProgress, ch)

	bus.Publish(ChannelUploadProgress, 1)

	select {
	case event, ok := <-ch:
		if ok {
			t.Fatalf("received %v after unsubscribe", event.Payload)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishAfterClose(t *testing.T) {
	bus := NewBus(10)
	ch := bus.Subscribe(ChannelUploadProgress)
	bus.Close()

	// Must not panic, and the channel must be closed.
	bus.Publish(ChannelUploadProgress, 1)

	if _, ok := <-ch; ok {
		t.Error("subscriber channel not closed")
	}
}
