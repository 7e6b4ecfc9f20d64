package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/mezzofy/mz-ai-assistant-sub001/internal/config"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on the assistant installation",
		Long: `Verifies that the configuration, processing backends, storage, and
gateway ports are correctly set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("Assistant Doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Config file exists
			if _, err := os.Stat(cfgPath); err != nil {
				printFail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				fmt.Printf("\nRun 'assistant init' to create a default configuration.\n")
				return nil
			}
			printPass("Config file", cfgPath)
			passed++

			// 2. Config loads and validates
			cfg, err := config.Load(cfgPath)
			if err != nil {
				printFail("Config validation", err.Error())
				failed++
				fmt.Printf("\n%d passed, %d failed\n", passed, failed)
				return nil
			}
			printPass("Config validation", "valid")
			passed++

			// 3. Workspace directory
			if cfg.General.Workspace != "" {
				if err := os.MkdirAll(cfg.General.Workspace, 0o755); err != nil {
					printFail("Workspace", fmt.Sprintf("cannot create: %v", err))
					failed++
				} else {
					printPass("Workspace", cfg.General.Workspace)
					passed++
				}
			} else {
				printWarn("Workspace", "not configured (using current directory)")
				warned++
			}

			// 4. Artifact database writable
			if err := checkDatabase(cfg.Storage.DBPath); err != nil {
				printFail("Database", err.Error())
				failed++
			} else {
				printPass("Database", cfg.Storage.DBPath)
				passed++
			}

			// 5. Artifact directory writable
			if err := os.MkdirAll(cfg.Storage.ArtifactDir, 0o755); err != nil {
				printFail("Artifact dir", err.Error())
				failed++
			} else {
				printPass("Artifact dir", cfg.Storage.ArtifactDir)
				passed++
			}

			// 6. Processing backends
			backendCount := 0
			for name, bc := range cfg.Backends {
				if !bc.Enabled {
					continue
				}
				backendCount++
				if bc.APIKey == "" && bc.APIBase == "" {
					printWarn("Backend: "+name, "enabled but no API key/base configured")
					warned++
				} else {
					printPass("Backend: "+name, bc.Model)
					passed++
				}
			}
			if backendCount == 0 {
				printFail("Backends", "no processing backends enabled")
				failed++
			}

			// 7. Gateway ports
			if cfg.Channels.API.Enabled {
				if err := checkPort(cfg.Channels.API.Port); err != nil {
					printWarn("API port", fmt.Sprintf("port %d may be in use: %v", cfg.Channels.API.Port, err))
					warned++
				} else {
					printPass("API port", fmt.Sprintf(":%d available", cfg.Channels.API.Port))
					passed++
				}
			}
			if cfg.Channels.Realtime.Enabled {
				if err := checkPort(cfg.Channels.Realtime.Port); err != nil {
					printWarn("Realtime port", fmt.Sprintf("port %d may be in use: %v", cfg.Channels.Realtime.Port, err))
					warned++
				} else {
					printPass("Realtime port", fmt.Sprintf(":%d available", cfg.Channels.Realtime.Port))
					passed++
				}
			}

			// 8. Roles file parses, when configured
			if cfg.Security.RolesFile != "" {
				if _, err := os.Stat(cfg.Security.RolesFile); err != nil {
					printWarn("Roles file", fmt.Sprintf("not found: %s (all input types allowed)", cfg.Security.RolesFile))
					warned++
				} else {
					printPass("Roles file", cfg.Security.RolesFile)
					passed++
				}
			}

			// 9. Log file writable, when configured
			if cfg.General.LogFile != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
					printWarn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
					warned++
				} else {
					printPass("Log file", cfg.General.LogFile)
					passed++
				}
			}

			// Summary
			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before serving.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nThe assistant should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! The assistant is ready to serve.\n")
			}
			return nil
		},
	}
}

func checkDatabase(dbPath string) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("cannot create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("cannot open: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("cannot ping: %w", err)
	}

	// Try a write.
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS _doctor_test (id INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	db.ExecContext(ctx, "DROP TABLE IF EXISTS _doctor_test")

	return nil
}

func checkPort(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}
