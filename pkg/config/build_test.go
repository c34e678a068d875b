package config

import (
	"context"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/openfroyo/featurekit/pkg/cache"
	"github.com/openfroyo/featurekit/pkg/dependencies"
	"github.com/openfroyo/featurekit/pkg/hooks"
	"github.com/openfroyo/featurekit/pkg/node"
	"github.com/openfroyo/featurekit/pkg/permissions"
)

type harness struct {
	tree       *Tree
	bus        *hooks.MemoryBus
	svc        *hooks.Service
	lifecycle  *node.Lifecycle
	aggregator *permissions.Aggregator
}

func newHarness(t *testing.T, env dependencies.Environment) *harness {
	t.Helper()

	logger := zerolog.New(nil).Level(zerolog.Disabled)
	bus := hooks.NewMemoryBus()
	svc := hooks.NewDefaultService(bus, hooks.WithLogger(logger))
	aggregator := permissions.NewAggregator(cache.NewMemory(), permissions.WithLogger(logger))

	tree, err := Build(loadTestManifest(t), env,
		WithHooks(svc),
		WithAggregator(aggregator),
		WithLogger(logger),
		WithDependencyOptions(dependencies.WithLogger(logger)),
	)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	return &harness{
		tree:       tree,
		bus:        bus,
		svc:        svc,
		lifecycle:  node.NewLifecycle(node.WithHooks(svc), node.WithLogger(logger)),
		aggregator: aggregator,
	}
}

func loadTestEnvironment(t *testing.T) *dependencies.StaticEnvironment {
	t.Helper()
	env, err := dependencies.LoadEnvironment(filepath.Join("testdata", "env.yaml"))
	if err != nil {
		t.Fatalf("failed to load environment: %v", err)
	}
	return env
}

func (h *harness) feature(t *testing.T, id string) *Feature {
	t.Helper()
	f, err := h.tree.Feature(id)
	if err != nil {
		t.Fatalf("feature %s: %v", id, err)
	}
	return f
}

func TestBuildTree(t *testing.T) {
	h := newHarness(t, loadTestEnvironment(t))

	var ids []string
	node.Walk(h.tree.Root, func(n node.Node, _ int) bool {
		ids = append(ids, n.ID())
		return true
	})
	want := []string{"shop", "quotes", "quotes.pdf", "reports", "legacy"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("tree order = %v, want %v", ids, want)
	}

	if got := h.feature(t, "quotes.pdf").ParentID(); got != "quotes" {
		t.Errorf("quotes.pdf parent = %q", got)
	}
	if h.tree.RootFeature().Name() != "Shop" {
		t.Errorf("unexpected root name %q", h.tree.RootFeature().Name())
	}

	keys := h.tree.Dependencies.Keys()
	if len(keys) != 2 || keys[0] != dependencies.ActiveKey("quotes") || keys[1] != dependencies.ActiveKey("reports") {
		t.Errorf("unexpected dependency keys: %v", keys)
	}
	if _, ok := h.tree.Windows["checkout"]; !ok {
		t.Error("checkout window not created")
	}
}

func TestBuildRequiresHookServiceForWindows(t *testing.T) {
	_, err := Build(loadTestManifest(t), &dependencies.StaticEnvironment{})
	if err == nil {
		t.Fatal("expected error without hook service")
	}
}

func TestBuildRejectsBrokenReferences(t *testing.T) {
	m, err := ParseYAML([]byte("version: v1\nroot: a\nnodes: [{id: a, children: [missing]}]\n"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Build(m, &dependencies.StaticEnvironment{}); err == nil {
		t.Fatal("expected error for unknown child")
	}
}

func TestBuildRejectsModuleDependencyOnDescendant(t *testing.T) {
	m, err := ParseYAML([]byte("version: v1\nroot: shop\nnodes: [{id: shop, children: [quotes], dependencies: [{id: m, kind: module, requires: [{key: quotes}]}]}, {id: quotes}]\n"))
	if err != nil {
		t.Fatal(err)
	}
	_, err = Build(m, &dependencies.StaticEnvironment{})
	if err == nil {
		t.Fatal("expected error for a node requiring its own child")
	}
	if !strings.Contains(err.Error(), "module dependency cycle") {
		t.Errorf("error %q does not report the cycle", err)
	}
}

func TestInitializeFulfilledTree(t *testing.T) {
	h := newHarness(t, loadTestEnvironment(t))
	ctx := context.Background()

	if err := h.lifecycle.Initialize(ctx, h.tree.Root, node.AlwaysReady); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	states := map[string]node.State{}
	for _, st := range h.tree.Status() {
		states[st.ID] = st.State
	}
	want := map[string]node.State{
		"shop":       node.StateInitialized,
		"quotes":     node.StateReady,
		"quotes.pdf": node.StateInitialized,
		"reports":    node.StateReady,
		"legacy":     node.StateConstructed,
	}
	if !reflect.DeepEqual(states, want) {
		t.Errorf("states = %v, want %v", states, want)
	}

	// Deferred setup runs on its host event.
	pdf := h.feature(t, "quotes.pdf")
	h.bus.DoAction(ctx, "wp_loaded")
	if !pdf.Ready() || pdf.Setups() != 1 {
		t.Errorf("quotes.pdf ready=%v setups=%d after wp_loaded", pdf.Ready(), pdf.Setups())
	}

	// Direct filter registered on initialize.
	quotes := h.feature(t, "quotes")
	if got := h.bus.ApplyFilters(ctx, "the_title", "Hello"); got != "Hello" {
		t.Errorf("filter changed value to %v", got)
	}
	if quotes.Fired("title") != 1 {
		t.Errorf("title filter fired %d times", quotes.Fired("title"))
	}

	// Window hook only exists between the window events.
	if h.bus.Count("cart_item") != 0 {
		t.Fatal("window hook registered before the window opened")
	}
	h.bus.DoAction(ctx, "checkout_start")
	h.bus.DoAction(ctx, "cart_item", "sku-1")
	h.bus.DoAction(ctx, "checkout_end")
	h.bus.DoAction(ctx, "cart_item", "sku-2")
	if quotes.Fired("track") != 1 {
		t.Errorf("track fired %d times, want 1", quotes.Fired("track"))
	}
	if h.bus.Count("cart_item") != 0 {
		t.Error("window hook still registered after the window closed")
	}
}

func TestInitializeUnfulfilledTree(t *testing.T) {
	env := loadTestEnvironment(t)
	env.Extensions["woocommerce"] = "7.9"
	h := newHarness(t, env)
	ctx := context.Background()

	if err := h.lifecycle.Initialize(ctx, h.tree.Root, node.AlwaysReady); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	status := map[string]NodeStatus{}
	for _, st := range h.tree.Status() {
		status[st.ID] = st
	}

	quotes := status["quotes"]
	if quotes.Active || !quotes.OwnActive || quotes.Fulfilled == nil || *quotes.Fulfilled {
		t.Errorf("quotes should be gated off: %+v", quotes)
	}
	if status["quotes.pdf"].Active {
		t.Error("inactive parent must deactivate quotes.pdf")
	}
	// reports depends on the quotes module being active.
	if reports := status["reports"]; reports.Active || reports.State != node.StateInitialized {
		t.Errorf("reports should be inactive and not set up: %+v", reports)
	}

	if h.bus.Count("the_title") != 0 {
		t.Error("inactive node registered hooks")
	}
	if h.bus.Count("wp_loaded") != 0 {
		t.Error("inactive node deferred its setup")
	}

	st, err := h.tree.Dependencies.Evaluate(dependencies.ActiveKey("quotes"))
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if st.Required || st.Optional {
		t.Errorf("unexpected status %+v", st)
	}
	if m := st.Missing["plugins"]["woocommerce"]; m.Actual != "7.9" {
		t.Errorf("unexpected missing entry %+v", m)
	}
	if m := st.Missing["optional-settings"]["blog_public"]; m.Expected != "1" {
		t.Errorf("unexpected optional missing entry %+v", m)
	}
}

func TestModuleLookupSeesNodeVersion(t *testing.T) {
	h := newHarness(t, loadTestEnvironment(t))

	active, version, ok := h.tree.Environment.Module("quotes")
	if !ok || !active || version != "2.1.0" {
		t.Errorf("Module(quotes) = %v %q %v", active, version, ok)
	}

	if active, _, ok := h.tree.Environment.Module("legacy"); !ok || active {
		t.Errorf("disabled node should be reported inactive, got active=%v ok=%v", active, ok)
	}

	if _, _, ok := h.tree.Environment.Module("elsewhere"); ok {
		t.Error("unknown modules should fall through to the base environment")
	}
}

func TestFeaturePermissions(t *testing.T) {
	h := newHarness(t, loadTestEnvironment(t))
	ctx := context.Background()

	if err := h.lifecycle.Initialize(ctx, h.tree.Root, node.AlwaysReady); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if err := h.lifecycle.Setup(ctx, h.tree.Root); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	root := h.tree.RootFeature()
	perms := h.aggregator.CollectPermissions(root)
	wantPerms := []string{"manage shop", "edit quotes", "delete quotes", "export quotes", "view reports"}
	if !reflect.DeepEqual(perms, wantPerms) {
		t.Errorf("permissions = %v, want %v", perms, wantPerms)
	}

	matrix := h.aggregator.CollectGrantingRules(root)
	want := permissions.Matrix{
		"manage shop":   {"admin"},
		"edit quotes":   {"admin", "editor"},
		"delete quotes": {"admin"},
		"export quotes": {"customer"},
		"view reports":  {},
	}
	if !reflect.DeepEqual(matrix, want) {
		t.Errorf("matrix = %v, want %v", matrix, want)
	}
}
