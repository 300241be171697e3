package loader_test

import (
	"context"
	"testing"

	"github.com/qbs-loader/loader"
	"github.com/qbs-loader/loader/testutil"
)

func TestLoadResolvesASingleProductWithAGroup(t *testing.T) {
	b := testutil.NewBuilder()
	group := b.Group("main.cpp", "main.h")
	product := b.Product("app", []string{"application"}, group)
	project := b.Project("top", product)

	ir := testutil.NewItemReader()
	ir.Files["project.qbs"] = project

	params := loader.SetupProjectParameters{
		ProjectFilePath: "project.qbs",
		BuildRoot:       t.TempDir(),
	}

	result, err := loader.Load(context.Background(), params, testutil.NewEvaluator(), ir, testutil.NewProfiles(), nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(result.ErroneousProducts) != 0 {
		t.Fatalf("ErroneousProducts = %v, want none", result.ErroneousProducts)
	}
	if len(result.Products) != 1 {
		t.Fatalf("got %d products, want 1", len(result.Products))
	}

	pc := result.Products[0]
	if pc.Name != "app" {
		t.Errorf("product name = %q, want %q", pc.Name, "app")
	}
	if pc.Resolved() == nil {
		t.Fatal("expected the product to have a resolved record")
	}
	if _, ok := pc.Item.ModuleNamed("qbs"); !ok {
		t.Error("expected the base qbs module to be attached to the product")
	}
}

func TestLoadFailsOnMissingProjectFile(t *testing.T) {
	ir := testutil.NewItemReader()
	params := loader.SetupProjectParameters{
		ProjectFilePath: "does-not-exist.qbs",
		BuildRoot:       t.TempDir(),
	}

	_, err := loader.Load(context.Background(), params, testutil.NewEvaluator(), ir, testutil.NewProfiles(), nil)
	if err == nil {
		t.Fatal("expected an error for a missing project file")
	}
}

func TestLoadRejectsInvalidParameters(t *testing.T) {
	_, err := loader.Load(context.Background(), loader.SetupProjectParameters{}, testutil.NewEvaluator(), testutil.NewItemReader(), testutil.NewProfiles(), nil)
	if err == nil {
		t.Fatal("expected a validation error for empty SetupProjectParameters")
	}
}

func TestLoadDisablesProductOnMissingRequiredDependency(t *testing.T) {
	b := testutil.NewBuilder()
	product := b.Product("app", nil, b.Depends("nonexistent", true))
	project := b.Project("top", product)

	ir := testutil.NewItemReader()
	ir.Files["project.qbs"] = project

	params := loader.SetupProjectParameters{
		ProjectFilePath: "project.qbs",
		BuildRoot:       t.TempDir(),
	}

	result, err := loader.Load(context.Background(), params, testutil.NewEvaluator(), ir, testutil.NewProfiles(), nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(result.ErroneousProducts) != 1 || result.ErroneousProducts[0] != "app" {
		t.Errorf("ErroneousProducts = %v, want [app]", result.ErroneousProducts)
	}
}
