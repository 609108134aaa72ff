// audit prints the most recent audit log entries for one account from DATABASE_URL.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	auditrepo "securebank/internal/audit/repository"
	"securebank/internal/config"
	"securebank/internal/db"
	"securebank/internal/validate"
)

func main() {
	account := flag.String("account", "", "Account id to list (e.g. AB12345)")
	limit := flag.Int("limit", 20, "Maximum number of entries, newest first")
	flag.Parse()

	if err := validate.AccountFormat(*account); err != nil {
		fmt.Fprintln(os.Stderr, "audit: -account:", err)
		os.Exit(2)
	}
	if *limit <= 0 {
		fmt.Fprintln(os.Stderr, "audit: -limit must be positive")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if cfg.DatabaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is not set; audit entries are only kept in Postgres")
		os.Exit(1)
	}
	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "db:", err)
		os.Exit(1)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	entries, err := auditrepo.NewPostgresRepository(conn).ListByAccount(ctx, *account, *limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, "audit:", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tACTION\tDETAIL")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\n", e.CreatedAt.Format(time.RFC3339), e.Action, e.Detail)
	}
	_ = w.Flush()
}
