package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/limbovvv/phone-directly/common/database"
	"github.com/limbovvv/phone-directly/internal/config"
	"github.com/limbovvv/phone-directly/migrations"
)

// Usage:
//
//	apply-migration               # 执行内嵌的全部迁移
//	apply-migration <file.sql>    # 执行指定的 SQL 文件
func main() {
	cfg := config.Load()

	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatalf("Cannot connect to database: %v", err)
	}
	defer database.Close(db)

	fmt.Printf("Connected to database: %s\n\n", cfg.Database.Database)

	ctx := context.Background()
	if len(os.Args) < 2 {
		if err := migrations.Apply(ctx, db); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		fmt.Println("Embedded migrations applied successfully")
		return
	}

	content, err := os.ReadFile(os.Args[1])
	if err != nil {
		log.Fatalf("Failed to read migration file: %v", err)
	}
	stmts := migrations.Statements(string(content))
	fmt.Printf("Executing %d statements from %s...\n", len(stmts), os.Args[1])
	if err := migrations.ApplyScript(ctx, db, string(content)); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	fmt.Println("Migration completed successfully")
}
