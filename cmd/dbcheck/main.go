package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	pool, err := pgxpool.New(context.Background(), os.Getenv("DATABASE_URL"))
	if err != nil {
		panic(err)
	}
	defer pool.Close()

	ctx := context.Background()

	if len(os.Args) > 1 && os.Args[1] == "cleanup" {
		tag, _ := pool.Exec(ctx, "DELETE FROM transcription_checks WHERE done AND due_at < now() - interval '7 days'")
		fmt.Printf("Deleted %d finished check rows\n", tag.RowsAffected())
		return
	}

	if len(os.Args) > 1 && os.Args[1] == "fix-dupes" {
		dryRun := !(len(os.Args) > 2 && os.Args[2] == "apply")
		fixDuplicateJobs(ctx, pool, dryRun)
		return
	}

	if len(os.Args) > 1 && os.Args[1] == "fix-stuck" {
		dryRun := !(len(os.Args) > 2 && os.Args[2] == "apply")
		fixStuckJobs(ctx, pool, dryRun)
		return
	}

	// Default: table counts
	tables := []string{
		"user_credits", "credit_usage",
		"transcriptions", "transcription_checks",
		"integrations",
	}
	fmt.Println("Table                    Count")
	fmt.Println("─────────────────────────────────")
	for _, t := range tables {
		var count int64
		pool.QueryRow(ctx, "SELECT count(*) FROM "+t).Scan(&count)
		fmt.Printf("%-25s %d\n", t, count)
	}
}
