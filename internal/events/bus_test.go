package events

import (
	"testing"
	"time"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	a := bus.Subscribe()
	b := bus.Subscribe()

	bus.Publish(New(TypeMessageCreate, "s1", map[string]string{"content": "hi"}))

	for _, sub := range []*Subscription{a, b} {
		select {
		case ev := <-sub.Events():
			if ev.Type != TypeMessageCreate || ev.SpaceID != "s1" {
				t.Errorf("got %+v", ev)
			}
			if ev.Intent != IntentMessages {
				t.Errorf("intent = %q, want messages", ev.Intent)
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestPublishOrderPreserved(t *testing.T) {
	bus := NewBus()
	defer bus.Close()
	sub := bus.Subscribe()

	for i := 0; i < 100; i++ {
		bus.Publish(Event{Type: TypeMessageCreate, Payload: i})
	}
	for i := 0; i < 100; i++ {
		ev := <-sub.Events()
		if ev.Payload.(int) != i {
			t.Fatalf("event %d arrived out of order as %v", i, ev.Payload)
		}
	}
}

func TestSlowSubscriberDropped(t *testing.T) {
	bus := NewBusWithBuffer(2)
	defer bus.Close()

	slow := bus.Subscribe()
	fast := bus.Subscribe()

	// Fill slow's buffer and push one more; slow must be dropped, fast
	// must still receive everything it has room for.
	for i := 0; i < 3; i++ {
		bus.Publish(Event{Type: TypeTypingStart, Payload: i})
		// Drain fast to keep it alive.
		select {
		case <-fast.Events():
		case <-time.After(time.Second):
			t.Fatal("fast subscriber starved")
		}
	}

	if got := bus.SubscriberCount(); got != 1 {
		t.Fatalf("subscriber count = %d, want 1 after drop", got)
	}

	// The dropped channel still yields its buffered events, then closes.
	received := 0
	for {
		ev, ok := <-slow.Events()
		if !ok {
			break
		}
		received++
		_ = ev
	}
	if received != 2 {
		t.Errorf("dropped subscriber drained %d buffered events, want 2", received)
	}
}

func TestUnsubscribeIdempotentWithDrop(t *testing.T) {
	bus := NewBusWithBuffer(1)
	sub := bus.Subscribe()
	bus.Publish(Event{Type: TypePresenceUpdate})
	bus.Publish(Event{Type: TypePresenceUpdate}) // drops sub

	// Must not panic on double remove.
	bus.Unsubscribe(sub)
	bus.Close()
}

func TestIntentFor(t *testing.T) {
	cases := []struct {
		eventType string
		want      string
	}{
		{TypeMessageCreate, IntentMessages},
		{TypeMessageBulkDelete, IntentMessages},
		{TypeMemberJoin, IntentMembers},
		{TypeSpaceUpdate, IntentSpaces},
		{TypeChannelCreate, IntentSpaces},
		{TypeRoleDelete, IntentSpaces},
		{TypeInviteCreate, IntentSpaces},
		{TypeReactionAdd, IntentMessageReactions},
		{TypeTypingStart, IntentMessageTyping},
		{TypePresenceUpdate, IntentPresences},
		{TypeVoiceStateUpdate, IntentVoiceStates},
		{TypeVoiceServerUpdate, IntentVoiceStates},
		{TypeBanCreate, IntentModeration},
		{TypeEmojiCreate, IntentEmojis},
		{TypeSoundboardCreate, ""},
		{TypeInteractionCreate, ""},
		{"mystery.event", ""},
	}
	for _, tc := range cases {
		if got := IntentFor(tc.eventType); got != tc.want {
			t.Errorf("IntentFor(%s) = %q, want %q", tc.eventType, got, tc.want)
		}
	}
}
