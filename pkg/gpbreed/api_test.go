package gpbreed

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newMemoryClient(t *testing.T) *Client {
	t.Helper()
	client, err := New(Options{StoreKind: "memory"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

func TestClientBuildRequestedSize(t *testing.T) {
	client := newMemoryClient(t)
	trees, err := client.Build(context.Background(), BuildRequest{
		FunctionSet: "binary",
		Builder:     "ptc2",
		Count:       5,
		Seed:        3,
		Size:        7,
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(trees) != 5 {
		t.Fatalf("expected 5 trees, got %d", len(trees))
	}
	for _, tree := range trees {
		if tree.Size != 7 {
			t.Fatalf("expected size 7, got %d (%s)", tree.Size, tree.Tree)
		}
		if !strings.HasPrefix(tree.Tree, "(F ") {
			t.Fatalf("unexpected tree %s", tree.Tree)
		}
	}
}

func TestClientBuildErrors(t *testing.T) {
	client := newMemoryClient(t)
	ctx := context.Background()
	if _, err := client.Build(ctx, BuildRequest{FunctionSet: "nope"}); err == nil {
		t.Fatal("expected unknown function set error")
	}
	if _, err := client.Build(ctx, BuildRequest{Builder: "nope"}); err == nil {
		t.Fatal("expected unknown builder error")
	}
	if _, err := client.Build(ctx, BuildRequest{FunctionSet: "koza", Type: "bool"}); err == nil {
		t.Fatal("expected unknown type error")
	}
	if _, err := client.Build(ctx, BuildRequest{Builder: "uniform"}); err == nil {
		t.Fatal("expected uniform without sizes to fail")
	}
}

func TestClientBuildUniformUsesTableCache(t *testing.T) {
	client := newMemoryClient(t)
	ctx := context.Background()
	trees, err := client.Build(ctx, BuildRequest{
		FunctionSet: "binary",
		Builder:     "uniform",
		Count:       10,
		Params:      map[string]string{"min-size": "1", "max-size": "11"},
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	for _, tree := range trees {
		if tree.Size > 11 || tree.Size%2 == 0 {
			t.Fatalf("unexpected uniform tree size %d", tree.Size)
		}
	}
	counts, err := client.Counts(ctx, CountsRequest{FunctionSet: "binary", MaxSize: 11})
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	_, ok, err := client.store.GetCountTable(ctx, counts.Key)
	if err != nil || !ok {
		t.Fatalf("expected the built table to be cached: ok=%v err=%v", ok, err)
	}
}

func TestClientCountsCatalan(t *testing.T) {
	client := newMemoryClient(t)
	summary, err := client.Counts(context.Background(), CountsRequest{FunctionSet: "binary", MaxSize: 9})
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	row := summary.Counts["T"]
	want := map[int]string{1: "1", 2: "0", 3: "1", 5: "2", 7: "5", 9: "14"}
	for size, count := range want {
		if row[size] != count {
			t.Fatalf("size %d: got %s want %s", size, row[size], count)
		}
	}
	if summary.MaxSize != 9 || summary.FunctionSet != "binary" {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if _, err := client.Counts(context.Background(), CountsRequest{MaxSize: 0}); err == nil {
		t.Fatal("expected invalid max size error")
	}
}

func TestClientBreedFromParamsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.yaml")
	data := `
run:
  run-id: api-run
  seed: 11
  subpop-size: 12
  generations: 2
  snapshot: true
  functionset: koza
  init:
    type: ptc2
    min-size: 3
    max-size: 15
  pipe:
    type: crossover
    source:
      "0":
        type: random
      "1": same
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write params: %v", err)
	}
	client := newMemoryClient(t)
	ctx := context.Background()
	summary, err := client.Breed(ctx, BreedRequest{
		ParamsFile: path,
		Params:     map[string]string{"run.threads": "2"},
	})
	if err != nil {
		t.Fatalf("breed: %v", err)
	}
	if summary.RunID != "api-run" || len(summary.Stats) != 3 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.Stats[0].MeanSize < 3 {
		t.Fatalf("initial trees smaller than min-size: %+v", summary.Stats[0])
	}

	snaps, err := client.Snapshots(ctx, "api-run")
	if err != nil {
		t.Fatalf("snapshots: %v", err)
	}
	if len(snaps) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(snaps))
	}
	pop, err := client.Population(ctx, snaps[1].ID)
	if err != nil {
		t.Fatalf("population: %v", err)
	}
	if pop.Generation != 1 || len(pop.Subpops[0]) != 12 {
		t.Fatalf("unexpected population: gen=%d", pop.Generation)
	}
	stats, err := client.Stats(ctx, "api-run")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if len(stats) != 3 {
		t.Fatalf("expected 3 stats, got %d", len(stats))
	}
	if _, err := client.Population(ctx, "missing"); err == nil {
		t.Fatal("expected missing population error")
	}
}

func TestClientFunctionSets(t *testing.T) {
	client := newMemoryClient(t)
	names := client.FunctionSets()
	for _, want := range []string{"binary", "koza", "mixed", "typed"} {
		found := false
		for _, n := range names {
			found = found || n == want
		}
		if !found {
			t.Fatalf("missing function set %s in %v", want, names)
		}
	}
}
