package main

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/synoptiq/go-purgo"
	"github.com/synoptiq/go-purgo/log"
)

// seedPassengers creates a passengers table with a few absurd fares.
func seedPassengers(path string) error {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.Exec(`CREATE TABLE passengers (name TEXT, age REAL, fare REAL, survived INTEGER)`); err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO passengers VALUES (?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	rng := rand.New(rand.NewSource(42))
	for i := range 500 {
		fare := 5 + rng.Float64()*80
		if i%97 == 0 {
			fare = 5000 + rng.Float64()*1000
		}
		var age any = 1 + rng.Float64()*70
		if i%50 == 0 {
			age = nil
		}
		if _, err := stmt.Exec(fmt.Sprintf("passenger-%03d", i), age, fare, rng.Intn(2)); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func main() {
	fmt.Println("🧹 purgo sqlite example")

	dir, err := os.MkdirTemp("", "purgo-sqlite")
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}
	defer os.RemoveAll(dir)

	src := filepath.Join(dir, "titanic.db")
	dst := filepath.Join(dir, "clean.db")
	if err := seedPassengers(src); err != nil {
		fmt.Printf("❌ seeding failed: %v\n", err)
		os.Exit(1)
	}

	p, err := purgo.New(src,
		purgo.WithName("titanic-sqlite"),
		purgo.WithLogger(log.Discard()),
		purgo.WithParams(map[string]any{
			purgo.KeyTableName:          "passengers",
			purgo.KeyTarget:             "survived",
			purgo.KeyCategoricalColumns: []string{"name"},
			purgo.KeyFirstQuantile:      0.01,
			purgo.KeyThirdQuantile:      0.99,
			purgo.KeyOutputPath:         dst,
		}),
		purgo.WithSteps(purgo.NewOutlierHandler(), purgo.NewWriter()),
	)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}

	if err := p.Process(context.Background()); err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}

	cleaned, err := purgo.NewReader().ReadTable(context.Background(), dst, "passengers")
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✅ %s\n", p.Info())
	fmt.Printf("   cleaned table: %s\n", cleaned)
	for _, w := range p.Warnings() {
		fmt.Printf("   ⚠️  %s\n", w)
	}
}
