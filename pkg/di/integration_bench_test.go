package di

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-connector-cache/cache"
	"github.com/goliatone/go-connector-cache/config"
	"github.com/goliatone/go-connector-cache/connector"
	"github.com/goliatone/go-connector-cache/connector/memory"
	"github.com/goliatone/go-connector-cache/entity"
	"github.com/goliatone/go-connector-cache/fetcher"
	"github.com/goliatone/go-connector-cache/pkg/testsupport"
)

func TestConcurrentAccess(t *testing.T) {
	gate := testsupport.NewGate(testsupport.MatchOp(entity.KindAsset, memory.OpGet))
	container, backend := newConsole(t, memory.WithHook(gate.Hook))
	scope := cache.DetailScope(entity.KindAsset, "asset-weather-daily")

	const consumers = 50
	subs := make([]*fetcher.Subscription, consumers)
	var wg sync.WaitGroup
	for i := range subs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			subs[i] = container.Orchestrator().Ensure(scope)
		}(i)
	}
	wg.Wait()

	gate.WaitArrived(t, settleTimeout)
	gate.Open()

	ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()

	errs := make(chan error, consumers)
	for _, sub := range subs {
		wg.Add(1)
		go func(sub *fetcher.Subscription) {
			defer wg.Done()
			defer sub.Close()
			e, err := sub.Wait(ctx)
			if err == nil && (e.Status != cache.StatusSuccess || e.Item == nil) {
				err = fmt.Errorf("unexpected entry %v", e.Status)
			}
			errs <- err
		}(sub)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Error(err)
		}
	}
	if n := backend.CallCount(entity.KindAsset, memory.OpGet); n != 1 {
		t.Errorf("expected a single remote read, got %d", n)
	}
	if refs := container.Store().Refs(container.Registry().Key(scope)); refs != 0 {
		t.Errorf("expected every subscription released, got %d refs", refs)
	}
}

func TestConcurrentReadWrite(t *testing.T) {
	container, _ := newConsole(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub := container.Orchestrator().Ensure(cache.ListScope(entity.KindAsset, connector.ListParams{}))
	defer sub.Close()
	if _, err := sub.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			patch := entity.AssetPatch{Properties: map[string]any{"version": fmt.Sprintf("v%d", i)}}
			if _, err := container.Coordinator().Update(ctx, entity.KindAsset, "asset-weather-daily", patch); err != nil {
				t.Errorf("update %d: %v", i, err)
			}
		}(i)
	}
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			container.Orchestrator().Ensure(cache.DetailScope(entity.KindAsset, "asset-weather-daily")).Close()
		}()
	}
	wg.Wait()

	testsupport.Eventually(t, settleTimeout, func() bool {
		e := sub.Entry()
		return e.Fresh() && !e.IsOptimistic && len(e.Items) == 4
	}, "asset list did not settle after concurrent updates")
}

func BenchmarkRegistryKey(b *testing.B) {
	registry := cache.NewRegistry(nil)
	scope := cache.ListScope(entity.KindAsset, connector.ListParams{
		Limit:  10,
		Offset: 20,
		Filter: []entity.Criterion{{OperandLeft: "id", Operator: entity.OperatorLike, OperandRight: "%weather%"}},
	})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = registry.Key(scope)
	}
}

func BenchmarkEnsureFresh(b *testing.B) {
	console := testsupport.ConsoleFixture(b)
	backend := memory.New(memory.WithEntities(console.Entities()...))
	container, err := NewContainer(config.DefaultConfig(), backend, WithLogger(zap.NewNop()))
	if err != nil {
		b.Fatalf("NewContainer() failed: %v", err)
	}
	scope := cache.ListScope(entity.KindAsset, connector.ListParams{})
	if _, err := container.Orchestrator().Prefetch(context.Background(), scope); err != nil {
		b.Fatalf("prefetch: %v", err)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			container.Orchestrator().Ensure(scope).Close()
		}
	})
}

func BenchmarkListViewSnapshot(b *testing.B) {
	items := make([]entity.Entity, 500)
	for i := range items {
		items[i] = entity.Asset{ID: fmt.Sprintf("asset-%03d", i)}
	}
	container, err := NewContainer(config.DefaultConfig(), memory.New(memory.WithEntities(items...)), WithLogger(zap.NewNop()))
	if err != nil {
		b.Fatalf("NewContainer() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	view := container.NewListView(ctx, entity.KindAsset)
	if _, err := view.Wait(ctx); err != nil {
		b.Fatalf("wait: %v", err)
	}
	view.Search("asset-1")
	view.FlushSearch()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = view.Snapshot()
	}
}
