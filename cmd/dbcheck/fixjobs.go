package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

func fixDuplicateJobs(ctx context.Context, pool *pgxpool.Pool, dryRun bool) {
	// Retry storms leave several "processing" rows for the same upload.
	// Keep the newest row per (user_id, file_name), delete the rest.
	const findDupes = `
		SELECT t.id, t.user_id, t.file_name, t.created_at
		FROM transcriptions t
		JOIN (
			SELECT user_id, file_name, max(created_at) AS keep_created
			FROM transcriptions
			WHERE status = 'processing'
			GROUP BY user_id, file_name
			HAVING count(*) > 1
		) k ON t.user_id = k.user_id AND t.file_name = k.file_name
		WHERE t.status = 'processing' AND t.created_at < k.keep_created
		ORDER BY t.user_id, t.file_name, t.created_at
	`

	rows, err := pool.Query(ctx, findDupes)
	if err != nil {
		fmt.Printf("Error finding duplicates: %v\n", err)
		return
	}
	defer rows.Close()

	type dupe struct {
		id        string
		userID    string
		fileName  string
		createdAt time.Time
	}
	var dupes []dupe
	for rows.Next() {
		var d dupe
		if err := rows.Scan(&d.id, &d.userID, &d.fileName, &d.createdAt); err != nil {
			fmt.Printf("Error scanning duplicate: %v\n", err)
			return
		}
		dupes = append(dupes, d)
	}
	rows.Close()

	fmt.Printf("Found %d duplicate processing jobs\n", len(dupes))
	if len(dupes) == 0 {
		return
	}

	if dryRun {
		fmt.Println("Dry run — no changes made. Run with 'fix-dupes apply' to fix.")
		for i, d := range dupes {
			if i >= 10 {
				fmt.Printf("  ... and %d more\n", len(dupes)-10)
				break
			}
			fmt.Printf("  delete id=%s user=%s file=%q created=%s\n", d.id, d.userID, d.fileName, d.createdAt.Format(time.RFC3339))
		}
		return
	}

	for _, d := range dupes {
		if _, err := pool.Exec(ctx, `UPDATE transcription_checks SET done = true WHERE transcription_id = $1`, d.id); err != nil {
			fmt.Printf("Error cancelling checks for %s: %v\n", d.id, err)
			continue
		}
		tag, err := pool.Exec(ctx, `DELETE FROM transcriptions WHERE id = $1 AND status = 'processing'`, d.id)
		if err != nil {
			fmt.Printf("Error deleting %s: %v\n", d.id, err)
			continue
		}
		fmt.Printf("  deleted id=%s (%d row)\n", d.id, tag.RowsAffected())
	}
}

func fixStuckJobs(ctx context.Context, pool *pgxpool.Pool, dryRun bool) {
	// A job whose check ladder ran out before the vendor finished stays in
	// "processing" with no pending checks. Schedule one more immediate check
	// so the reconciler picks it up again.
	const findStuck = `
		SELECT t.id, t.user_id, t.file_name, t.created_at
		FROM transcriptions t
		WHERE t.status = 'processing'
		  AND t.created_at < now() - interval '10 minutes'
		  AND NOT EXISTS (
			SELECT 1 FROM transcription_checks c
			WHERE c.transcription_id = t.id AND NOT c.done
		  )
		ORDER BY t.created_at
	`

	rows, err := pool.Query(ctx, findStuck)
	if err != nil {
		fmt.Printf("Error finding stuck jobs: %v\n", err)
		return
	}
	defer rows.Close()

	type stuck struct {
		id        string
		userID    string
		fileName  string
		createdAt time.Time
	}
	var jobs []stuck
	for rows.Next() {
		var s stuck
		if err := rows.Scan(&s.id, &s.userID, &s.fileName, &s.createdAt); err != nil {
			fmt.Printf("Error scanning stuck job: %v\n", err)
			return
		}
		jobs = append(jobs, s)
	}
	rows.Close()

	fmt.Printf("Found %d stuck processing jobs\n", len(jobs))
	if len(jobs) == 0 {
		return
	}

	if dryRun {
		fmt.Println("Dry run — no changes made. Run with 'fix-stuck apply' to fix.")
		for i, s := range jobs {
			if i >= 10 {
				fmt.Printf("  ... and %d more\n", len(jobs)-10)
				break
			}
			fmt.Printf("  reschedule id=%s user=%s file=%q age=%s\n", s.id, s.userID, s.fileName, time.Since(s.createdAt).Round(time.Second))
		}
		return
	}

	for _, s := range jobs {
		_, err := pool.Exec(ctx,
			`INSERT INTO transcription_checks (transcription_id, due_at) VALUES ($1, now())`, s.id)
		if err != nil {
			fmt.Printf("Error rescheduling %s: %v\n", s.id, err)
			continue
		}
		fmt.Printf("  rescheduled id=%s\n", s.id)
	}
}
