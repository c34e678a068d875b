package stores_test

import (
	"context"
	"fmt"
	"log"

	"github.com/rs/zerolog"

	"github.com/openfroyo/featurekit/pkg/dependencies"
	"github.com/openfroyo/featurekit/pkg/stores"
)

// ExampleOpen demonstrates opening an in-memory option store.
func ExampleOpen() {
	ctx := context.Background()
	store, err := stores.Open(ctx, ":memory:", zerolog.Nop())
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	if err := store.SetOption(ctx, "woo_currency", "EUR", "example"); err != nil {
		log.Fatal(err)
	}

	opt, err := store.GetOption(ctx, "woo_currency")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(opt.Name, opt.Value)
	// Output: woo_currency EUR
}

// ExampleSQLiteStore_SettingsLookup demonstrates backing setting checks with
// the option store.
func ExampleSQLiteStore_SettingsLookup() {
	ctx := context.Background()
	store, err := stores.Open(ctx, ":memory:", zerolog.Nop())
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	_ = store.SetOption(ctx, "blog_public", "1", "example")

	env := dependencies.WithSettings(&dependencies.StaticEnvironment{}, store.SettingsLookup(ctx))
	checker := dependencies.NewSettingChecker("settings", env, dependencies.Descriptor{
		Kind:     dependencies.KindSetting,
		Key:      "blog_public",
		Expected: "1",
	})

	fmt.Println(len(checker.MissingDependencies()) == 0)
	// Output: true
}
