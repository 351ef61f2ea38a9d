package di

import (
	"context"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"go.uber.org/zap/zaptest"

	"github.com/goliatone/go-connector-cache/cache"
	"github.com/goliatone/go-connector-cache/config"
	"github.com/goliatone/go-connector-cache/connector"
	"github.com/goliatone/go-connector-cache/connector/memory"
	"github.com/goliatone/go-connector-cache/entity"
	"github.com/goliatone/go-connector-cache/pkg/testsupport"
)

const settleTimeout = 2 * time.Second

// newConsole builds a container over the console fixture with the response
// cache enabled.
func newConsole(t *testing.T, opts ...memory.Option) (*Container, *memory.Backend) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Fetch.RetryDelay = time.Millisecond

	console := testsupport.ConsoleFixture(t)
	backend := memory.New(append([]memory.Option{memory.WithEntities(console.Entities()...)}, opts...)...)

	container, err := NewContainer(cfg, backend, WithLogger(zaptest.NewLogger(t)))
	if err != nil {
		t.Fatalf("NewContainer() failed: %v", err)
	}
	return container, backend
}

func listScope(kind entity.Kind) cache.Scope {
	return cache.ListScope(kind, connector.ListParams{})
}

func waitEntry(t *testing.T, container *Container, scope cache.Scope) cache.Entry {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()
	e, err := container.Orchestrator().Prefetch(ctx, scope)
	if err != nil {
		t.Fatalf("prefetch %v: %v", scope.Kind, err)
	}
	return e
}

func TestEndToEndBrowseAndMutate(t *testing.T) {
	container, backend := newConsole(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	view := container.NewListView(ctx, entity.KindAsset)
	defer view.Close()

	s, err := view.Wait(ctx)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if len(s.Items) != 4 {
		t.Fatalf("expected 4 fixture assets, got %d", len(s.Items))
	}

	created, err := container.Coordinator().Create(ctx, entity.KindAsset, entity.Asset{
		Properties: map[string]any{"name": "Air quality"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.EntityID() == "" {
		t.Fatal("expected the server to assign an id")
	}

	testsupport.Eventually(t, settleTimeout, func() bool {
		s := view.Snapshot()
		return s.Status == cache.StatusSuccess && !s.Stale &&
			len(s.Items) == 5 && s.Items[4].EntityID() == created.EntityID()
	}, "created asset not listed")

	if err := container.Coordinator().Delete(ctx, entity.KindAsset, "asset-energy-grid"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	testsupport.Eventually(t, settleTimeout, func() bool {
		s := view.Snapshot()
		if s.Status != cache.StatusSuccess || s.Stale || len(s.Items) != 4 {
			return false
		}
		for _, item := range s.Items {
			if item.EntityID() == "asset-energy-grid" {
				return false
			}
		}
		return true
	}, "deleted asset still listed")

	if n := backend.CallCount(entity.KindAsset, memory.OpList); n < 3 {
		t.Errorf("expected each commit to reach the connector, got %d list calls", n)
	}
}

func TestResponseCacheReuse(t *testing.T) {
	container, backend := newConsole(t)
	scope := listScope(entity.KindPolicyDefinition)

	waitEntry(t, container, scope)
	if n := backend.CallCount(entity.KindPolicyDefinition, memory.OpList); n != 1 {
		t.Fatalf("expected 1 list call, got %d", n)
	}

	// stale in the store only: the next load is served by the response cache
	container.Store().Invalidate(cache.MatchKind(entity.KindPolicyDefinition))
	e := waitEntry(t, container, scope)
	if !e.Fresh() || len(e.Items) != 2 {
		t.Errorf("expected a fresh reload with 2 policies, got %+v", e)
	}
	if n := backend.CallCount(entity.KindPolicyDefinition, memory.OpList); n != 1 {
		t.Errorf("expected the cached response to be reused, got %d calls", n)
	}

	container.Orchestrator().Invalidate(cache.MatchKind(entity.KindPolicyDefinition))
	waitEntry(t, container, scope)
	if n := backend.CallCount(entity.KindPolicyDefinition, memory.OpList); n != 2 {
		t.Errorf("expected invalidation to reach the connector, got %d calls", n)
	}
}

func TestReferencedPolicyDeleteRollsBack(t *testing.T) {
	container, _ := newConsole(t)
	ctx := context.Background()

	sub := container.Orchestrator().Ensure(listScope(entity.KindPolicyDefinition))
	defer sub.Close()
	waitCtx, cancel := context.WithTimeout(ctx, settleTimeout)
	defer cancel()
	if _, err := sub.Wait(waitCtx); err != nil {
		t.Fatalf("wait: %v", err)
	}

	err := container.Coordinator().Delete(ctx, entity.KindPolicyDefinition, "policy-open")
	if !goerrors.IsCategory(err, goerrors.CategoryConflict) {
		t.Fatalf("expected a conflict, got %v", err)
	}

	e := sub.Entry()
	if len(e.Items) != 2 || e.IsOptimistic {
		t.Errorf("expected the list restored, got %d items optimistic=%v", len(e.Items), e.IsOptimistic)
	}
}

func TestPolicyUpdateRefreshesContracts(t *testing.T) {
	container, backend := newConsole(t)
	ctx := context.Background()

	contracts := container.Orchestrator().Ensure(listScope(entity.KindContractDefinition))
	defer contracts.Close()
	waitCtx, cancel := context.WithTimeout(ctx, settleTimeout)
	defer cancel()
	if _, err := contracts.Wait(waitCtx); err != nil {
		t.Fatalf("wait: %v", err)
	}

	none := []entity.Rule{}
	if _, err := container.Coordinator().Update(ctx, entity.KindPolicyDefinition, "policy-eu-only",
		entity.PolicyPatch{Prohibitions: &none}); err != nil {
		t.Fatalf("update: %v", err)
	}

	testsupport.Eventually(t, settleTimeout, func() bool {
		e := contracts.Entry()
		return backend.CallCount(entity.KindContractDefinition, memory.OpList) == 2 && e.Fresh()
	}, "contract list not reloaded after a policy update")
}

func TestErrorPropagation(t *testing.T) {
	down := connector.NetworkError(nil, "connector down")
	container, backend := newConsole(t,
		memory.WithHook(testsupport.FailN(2, down, testsupport.MatchOp(entity.KindAsset, memory.OpList))))
	scope := listScope(entity.KindAsset)

	e := waitEntry(t, container, scope)
	if e.Status != cache.StatusError {
		t.Fatalf("expected an error entry, got %v", e.Status)
	}
	if !connector.IsNetwork(e.Err) {
		t.Errorf("expected a network error, got %v", e.Err)
	}
	if n := backend.CallCount(entity.KindAsset, memory.OpList); n != 2 {
		t.Errorf("expected one retry, got %d calls", n)
	}

	e = waitEntry(t, container, scope)
	if e.Status != cache.StatusSuccess || len(e.Items) != 4 {
		t.Errorf("expected recovery on the next load, got %v with %d items", e.Status, len(e.Items))
	}
}
