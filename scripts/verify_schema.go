package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"

	"binary-core/pkg/db"
)

// verify_schema checks that a journal database carries every table and the
// columns added by migrations.
//
// Usage:
//   go run ./scripts/verify_schema.go ./data/sessions.db

func main() {
	dbPath := "./data/sessions.db"
	if len(os.Args) > 1 {
		dbPath = os.Args[1]
	}
	fmt.Printf("Verifying database at: %s\n", dbPath)

	database, err := db.New(dbPath)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer database.Close()
	if err := database.Ping(context.Background()); err != nil {
		log.Fatalf("Ping failed: %v", err)
	}

	ok := true
	for i, table := range []string{"sessions", "trades", "contract_releases"} {
		fmt.Printf("\n%d. Verifying %s table...\n", i+1, table)
		if exists(database.DB, "table", table) {
			fmt.Printf("✓ %s table exists\n", table)
		} else {
			fmt.Printf("❌ %s table MISSING\n", table)
			ok = false
		}
	}

	fmt.Println("\n4. Verifying migrated columns...")
	for _, col := range [][2]string{{"trades", "exit_tick"}, {"contract_releases", "verified"}} {
		if hasColumn(database.DB, col[0], col[1]) {
			fmt.Printf("✓ %s.%s exists\n", col[0], col[1])
		} else {
			fmt.Printf("❌ %s.%s MISSING\n", col[0], col[1])
			ok = false
		}
	}

	if !ok {
		fmt.Println("\nrun the service once (or db.ApplyMigrations) to bring the schema up to date")
		os.Exit(1)
	}
}

func exists(conn *sql.DB, kind, name string) bool {
	var n int
	err := conn.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type=? AND name=?", kind, name).Scan(&n)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	return n > 0
}

func hasColumn(conn *sql.DB, table, column string) bool {
	var n int
	err := conn.QueryRow("SELECT COUNT(*) FROM pragma_table_info(?) WHERE name=?", table, column).Scan(&n)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	return n > 0
}
