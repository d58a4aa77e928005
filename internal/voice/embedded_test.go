package voice

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/accord-chat/accord/internal/domain"
)

func embeddedFixture(t *testing.T) (*EmbeddedRouter, *Directory) {
	t.Helper()
	dir := NewDirectory(nil)
	if _, err := dir.Register(context.Background(), "n1", "wss://n1.voice.test", "eu", 100); err != nil {
		t.Fatalf("register n1: %v", err)
	}
	if _, err := dir.Register(context.Background(), "n2", "wss://n2.voice.test", "us", 100); err != nil {
		t.Fatalf("register n2: %v", err)
	}
	return NewEmbeddedRouter(dir, "topsecret", "eu"), dir
}

func TestEmbeddedRouterPinsRoomToNode(t *testing.T) {
	r, _ := embeddedFixture(t)
	ctx := context.Background()

	if err := r.EnsureRoom(ctx, "chan1", "eu"); err != nil {
		t.Fatalf("EnsureRoom: %v", err)
	}
	if got := r.ExternalURL("chan1"); got != "wss://n1.voice.test" {
		t.Fatalf("ExternalURL = %q, want n1 endpoint", got)
	}

	// A second ensure keeps the pin.
	if err := r.EnsureRoom(ctx, "chan1", "us"); err != nil {
		t.Fatalf("EnsureRoom again: %v", err)
	}
	if got := r.ExternalURL("chan1"); got != "wss://n1.voice.test" {
		t.Fatalf("ExternalURL after re-ensure = %q, want n1 endpoint", got)
	}
}

func TestEmbeddedRouterRepinsWhenNodeOffline(t *testing.T) {
	r, dir := embeddedFixture(t)
	ctx := context.Background()

	if err := r.EnsureRoom(ctx, "chan1", "eu"); err != nil {
		t.Fatalf("EnsureRoom: %v", err)
	}
	if err := dir.Deregister(ctx, "n1"); err != nil {
		t.Fatalf("Deregister: %v", err)
	}
	if err := r.EnsureRoom(ctx, "chan1", "eu"); err != nil {
		t.Fatalf("EnsureRoom after node loss: %v", err)
	}
	if got := r.ExternalURL("chan1"); got != "wss://n2.voice.test" {
		t.Fatalf("ExternalURL = %q, want n2 endpoint after re-pin", got)
	}
}

func TestEmbeddedRouterNoNodes(t *testing.T) {
	r := NewEmbeddedRouter(NewDirectory(nil), "topsecret", "eu")
	err := r.EnsureRoom(context.Background(), "chan1", "")
	if !errors.Is(err, domain.ErrInternal) {
		t.Fatalf("EnsureRoom with empty fleet = %v, want ErrInternal", err)
	}
}

func TestEmbeddedRouterTokenRoundTrip(t *testing.T) {
	r, _ := embeddedFixture(t)
	ctx := context.Background()

	if err := r.EnsureRoom(ctx, "chan1", "eu"); err != nil {
		t.Fatalf("EnsureRoom: %v", err)
	}
	tok, err := r.GenerateToken("u1", "Alice", "chan1", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := ParseToken(tok, []byte("topsecret"))
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.Subject != "u1" {
		t.Errorf("subject = %q, want u1", claims.Subject)
	}
	if claims.Room != "chan1" {
		t.Errorf("room = %q, want chan1", claims.Room)
	}
	if claims.Name != "Alice" {
		t.Errorf("name = %q, want Alice", claims.Name)
	}
	if len(claims.Audience) != 1 || claims.Audience[0] != "n1" {
		t.Errorf("audience = %v, want [n1]", claims.Audience)
	}
	if !claims.Grants.Publish || !claims.Grants.Subscribe || !claims.Grants.PublishData {
		t.Errorf("grants = %+v, want all true", claims.Grants)
	}

	if _, err := ParseToken(tok, []byte("wrong")); err == nil {
		t.Error("ParseToken with wrong secret succeeded")
	}
}

func TestEmbeddedRouterTokenUnknownRoom(t *testing.T) {
	r, _ := embeddedFixture(t)
	if _, err := r.GenerateToken("u1", "Alice", "nowhere", time.Hour); err == nil {
		t.Fatal("GenerateToken for unknown room succeeded")
	}
}

func TestEmbeddedRouterRoomLifecycle(t *testing.T) {
	r, _ := embeddedFixture(t)
	ctx := context.Background()

	if err := r.EnsureRoom(ctx, "chan1", "eu"); err != nil {
		t.Fatalf("EnsureRoom: %v", err)
	}
	if _, err := r.GenerateToken("u1", "Alice", "chan1", time.Hour); err != nil {
		t.Fatalf("GenerateToken u1: %v", err)
	}
	if _, err := r.GenerateToken("u2", "Bob", "chan1", time.Hour); err != nil {
		t.Fatalf("GenerateToken u2: %v", err)
	}

	r.RemoveParticipant(ctx, "chan1", "u1")
	r.DeleteRoomIfEmpty(ctx, "chan1")
	if got := r.ExternalURL("chan1"); got == "" {
		t.Fatal("room deleted while u2 still present")
	}

	r.RemoveParticipant(ctx, "chan1", "u2")
	r.DeleteRoomIfEmpty(ctx, "chan1")
	if got := r.ExternalURL("chan1"); got != "" {
		t.Fatalf("ExternalURL after empty delete = %q, want empty", got)
	}

	// Both calls tolerate unknown rooms.
	r.RemoveParticipant(ctx, "chan1", "u2")
	r.DeleteRoomIfEmpty(ctx, "chan1")
}
