package testsupport

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-connector-cache/connector/memory"
	"github.com/goliatone/go-connector-cache/entity"
)

func TestLoadFixture(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "test.txt")
	testContent := []byte("test fixture content")

	if err := os.WriteFile(testFile, testContent, 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	result := LoadFixture(t, testFile)
	if string(result) != string(testContent) {
		t.Errorf("expected %q, got %q", testContent, result)
	}
}

func TestLoadFixtureJSON(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "test.json")
	testData := map[string]any{
		"name":  "test",
		"value": 42,
	}

	jsonData, err := json.Marshal(testData)
	if err != nil {
		t.Fatalf("failed to marshal test data: %v", err)
	}
	if err := os.WriteFile(testFile, jsonData, 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	var result map[string]any
	LoadFixtureJSON(t, testFile, &result)

	if result["name"] != "test" {
		t.Errorf("expected name=test, got %v", result["name"])
	}
	if result["value"] != float64(42) {
		t.Errorf("expected value=42, got %v", result["value"])
	}
}

func TestFixturePath(t *testing.T) {
	result := FixturePath("test.json")
	expected := filepath.Join("testdata", "test.json")

	if result != expected {
		t.Errorf("expected %q, got %q", expected, result)
	}
}

func TestConsoleFixture(t *testing.T) {
	c := ConsoleFixture(t)

	if len(c.Assets) != 4 {
		t.Errorf("expected 4 assets, got %d", len(c.Assets))
	}
	if len(c.Policies) != 2 {
		t.Errorf("expected 2 policies, got %d", len(c.Policies))
	}
	if len(c.Contracts) != 2 {
		t.Errorf("expected 2 contracts, got %d", len(c.Contracts))
	}

	if got := c.Assets[0].Name(); got != "Daily weather observations" {
		t.Errorf("unexpected asset name %q", got)
	}
	if got := c.Assets[2].Name(); got != "Traffic counts" {
		t.Errorf("expected namespaced name to resolve, got %q", got)
	}
	if !c.Contracts[0].References("policy-eu-only") {
		t.Error("expected contract-weather to reference policy-eu-only")
	}

	all := c.Entities()
	if len(all) != 8 {
		t.Fatalf("expected 8 entities, got %d", len(all))
	}
	if all[0].EntityKind() != entity.KindAsset || all[7].EntityKind() != entity.KindContractDefinition {
		t.Error("expected entities in kind order")
	}
}

func TestLoadConsole(t *testing.T) {
	c := LoadConsole(t, FixturePath("console.json"))
	if len(c.Entities()) != len(ConsoleFixture(t).Entities()) {
		t.Error("expected file and embedded fixtures to match")
	}
}

func TestGate(t *testing.T) {
	gate := NewGate(MatchOp(entity.KindAsset, memory.OpList))
	ctx := context.Background()

	if err := gate.Hook(ctx, memory.Call{Kind: entity.KindAsset, Op: memory.OpGet}); err != nil {
		t.Fatalf("non matching call should pass: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	released := make(chan error, 1)
	go func() {
		defer wg.Done()
		released <- gate.Hook(ctx, memory.Call{Kind: entity.KindAsset, Op: memory.OpList})
	}()

	call := gate.WaitArrived(t, time.Second)
	if call.Op != memory.OpList {
		t.Errorf("unexpected call %+v", call)
	}

	select {
	case <-released:
		t.Fatal("call passed a closed gate")
	case <-time.After(20 * time.Millisecond):
	}

	gate.Open()
	gate.Open()
	wg.Wait()
	if err := <-released; err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestGate_ContextCancel(t *testing.T) {
	gate := NewGate(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := gate.Hook(ctx, memory.Call{}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestFailNAndChain(t *testing.T) {
	boom := errors.New("boom")
	var seen []memory.Op
	record := func(ctx context.Context, call memory.Call) error {
		seen = append(seen, call.Op)
		return nil
	}
	hook := Chain(FailN(2, boom, MatchOp(entity.KindAsset, memory.OpList)), nil, record)

	ctx := context.Background()
	list := memory.Call{Kind: entity.KindAsset, Op: memory.OpList}
	get := memory.Call{Kind: entity.KindAsset, Op: memory.OpGet}

	if err := hook(ctx, get); err != nil {
		t.Errorf("unexpected error for get: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := hook(ctx, list); !errors.Is(err, boom) {
			t.Errorf("call %d: expected boom, got %v", i, err)
		}
	}
	if err := hook(ctx, list); err != nil {
		t.Errorf("expected third list call to pass, got %v", err)
	}

	if len(seen) != 2 || seen[0] != memory.OpGet || seen[1] != memory.OpList {
		t.Errorf("chain should stop at the first error, recorded %v", seen)
	}
}

func TestEventually(t *testing.T) {
	start := time.Now()
	Eventually(t, time.Second, func() bool {
		return time.Since(start) > 10*time.Millisecond
	}, "clock did not advance")
}
