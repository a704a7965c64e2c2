package pathindex_test

import (
	"context"
	"errors"
	"testing"

	"fabula/internal/pathindex"
	"fabula/internal/pathkey"
	"fabula/internal/services"
	"fabula/internal/testsupport"
)

func TestExistsOnlyMatchesComplete(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	index := pathindex.New(pathkey.New(0), store)

	ctx := context.Background()
	complete := testsupport.CompleteRecording(t, store, "sess-1", "enter the cave", "~root", "enter the cave", 2)
	testsupport.StartRecording(t, store, "sess-1", "run away", "~root", "run away")

	found, err := index.Exists(ctx, "sess-1", []string{"enter the cave"})
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if found == nil || found.ID != complete.ID {
		t.Fatalf("expected complete recording, got %#v", found)
	}

	// An active recording on the path is not navigable.
	active, err := index.Exists(ctx, "sess-1", []string{"run away"})
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if active != nil {
		t.Fatalf("expected nil for in-progress path, got %#v", active)
	}

	// Other sessions see nothing.
	other, err := index.Exists(ctx, "sess-2", []string{"enter the cave"})
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if other != nil {
		t.Fatalf("expected session isolation, got %#v", other)
	}
}

func TestExistsAtRoot(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	index := pathindex.New(pathkey.New(0), store)

	ctx := context.Background()
	root := testsupport.CompleteRecording(t, store, "sess-1", "~root", "", "", 1)

	found, err := index.Exists(ctx, "sess-1", nil)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if found == nil || found.ID != root.ID {
		t.Fatalf("expected root recording, got %#v", found)
	}
}

func TestExistsRejectsInvalidChoice(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	index := pathindex.New(pathkey.New(0), store)

	if _, err := index.Exists(context.Background(), "sess-1", []string{""}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestChildrenOfSurfacesRecordedChoices(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	index := pathindex.New(pathkey.New(0), store)

	ctx := context.Background()
	testsupport.CompleteRecording(t, store, "sess-1", "intro", "~root", "intro", 1)
	testsupport.CompleteRecording(t, store, "sess-1", "intro/forest", "intro", "forest", 2)
	testsupport.CompleteRecording(t, store, "sess-1", "intro/river", "intro", "river", 1)
	testsupport.StartRecording(t, store, "sess-1", "intro/cave", "intro", "cave")

	children, err := index.ChildrenOf(ctx, "sess-1", []string{"intro"})
	if err != nil {
		t.Fatalf("ChildrenOf failed: %v", err)
	}
	if len(children) != 2 {
		t.Fatalf("expected two complete children, got %#v", children)
	}
	if _, ok := children["forest"]; !ok {
		t.Fatalf("missing forest child: %#v", children)
	}
	if _, ok := children["river"]; !ok {
		t.Fatalf("missing river child: %#v", children)
	}
}
