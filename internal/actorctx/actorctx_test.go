package actorctx

import (
	"context"
	"testing"
)

func TestClientID(t *testing.T) {
	if _, ok := ClientIDFrom(context.Background()); ok {
		t.Fatalf("empty context should have no client")
	}

	ctx := WithClientID(context.Background(), "c-1")
	if id, ok := ClientIDFrom(ctx); !ok || id != "c-1" {
		t.Fatalf("got %q %v", id, ok)
	}

	if _, ok := ClientIDFrom(WithClientID(ctx, "")); ok {
		t.Fatalf("blank client id should not count")
	}
}

func TestUserID(t *testing.T) {
	ctx := WithUserID(WithClientID(context.Background(), "c"), "42")
	if id, ok := UserIDFrom(ctx); !ok || id != "42" {
		t.Fatalf("got %q %v", id, ok)
	}
}
