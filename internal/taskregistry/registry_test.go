package taskregistry_test

import (
	"context"
	"sync"
	"testing"

	"github.com/ErlanBelekov/taskrun/internal/taskregistry"
)

func TestRegistry_LookupUnregisteredReturnsFalse(t *testing.T) {
	r := taskregistry.New()
	if _, ok := r.Lookup("nope"); ok {
		t.Fatal("expected lookup of unregistered id to fail")
	}
}

func TestRegistry_RegisterThenLookup(t *testing.T) {
	r := taskregistry.New()
	r.Register("echo", func(_ context.Context, args []any, _ map[string]any) (any, error) {
		return args, nil
	})

	fn, ok := r.Lookup("echo")
	if !ok {
		t.Fatal("expected echo to be registered")
	}
	ret, err := fn(context.Background(), []any{"a", "b"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, ok := ret.([]any)
	if !ok || len(got) != 2 {
		t.Fatalf("unexpected return value: %v", ret)
	}
}

func TestRegistry_ReregisterOverwritesPrevious(t *testing.T) {
	r := taskregistry.New()
	r.Register("task", func(context.Context, []any, map[string]any) (any, error) { return "v1", nil })
	r.Register("task", func(context.Context, []any, map[string]any) (any, error) { return "v2", nil })

	fn, _ := r.Lookup("task")
	ret, _ := fn(context.Background(), nil, nil)
	if ret != "v2" {
		t.Fatalf("expected last registration to win, got %v", ret)
	}
}

func TestRegistry_MustLookupPanicsOnUnregistered(t *testing.T) {
	r := taskregistry.New()
	defer func() {
		if recover() == nil {
			t.Fatal("expected MustLookup to panic on unregistered id")
		}
	}()
	r.MustLookup("missing")
}

func TestRegistry_ConcurrentRegisterAndLookup(t *testing.T) {
	r := taskregistry.New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Register("concurrent", func(context.Context, []any, map[string]any) (any, error) { return nil, nil })
		}()
		go func() {
			defer wg.Done()
			r.Lookup("concurrent")
		}()
	}
	wg.Wait()
}
