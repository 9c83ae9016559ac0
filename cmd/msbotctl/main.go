// msbotctl is the operator tool for msbot. It edits the identity store
// offline and triggers background jobs.
//
//	msbotctl users list [--json]
//	msbotctl users grant --id ID --role ROLE [--name NAME] [--email EMAIL]
//	msbotctl users role ID ROLE
//	msbotctl users revoke ID
//	msbotctl users export [--out FILE]
//	msbotctl users import --in FILE
//	msbotctl users seed --id ID [--email EMAIL]
//	msbotctl jobs trigger sessions:sweep
//	msbotctl jobs inspect
//
// Store and Redis settings come from the same environment variables the bot
// reads (STORE_BACKEND, STORE_PATH, PG_DSN, REDIS_ADDR).
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/odyssey-erp/msbot/cmd/msbot/cli"
	"github.com/odyssey-erp/msbot/internal/access"
	"github.com/odyssey-erp/msbot/internal/app"
	"github.com/odyssey-erp/msbot/internal/identity"
)

const usage = `usage: msbotctl <users|jobs> <command> [flags]

users: list, grant, role, revoke, export, import, seed
jobs:  trigger, inspect`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) < 2 {
		return errors.New(usage)
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}
	switch args[0] {
	case "users":
		return runUsers(ctx, cfg, args[1], args[2:], stdout)
	case "jobs":
		return runJobs(ctx, cfg, args[1], args[2:], stdout)
	}
	return errors.New(usage)
}

func runUsers(ctx context.Context, cfg *app.Config, cmd string, args []string, stdout io.Writer) error {
	medium, release, err := app.OpenMedium(ctx, cfg)
	if err != nil {
		return err
	}
	defer release()
	store := identity.NewStore(medium, app.NewLogger(&app.Config{LogLevel: "warn"}))
	if err := store.Load(ctx); err != nil {
		return err
	}
	tool := cli.NewIdentityCLI(store, stdout)

	flags := pflag.NewFlagSet("users "+cmd, pflag.ContinueOnError)
	var (
		asJSON bool
		in     access.GrantInput
		path   string
	)
	switch cmd {
	case "list":
		flags.BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	case "grant":
		flags.StringVar(&in.ID, "id", "", "principal id")
		flags.StringVar(&in.Name, "name", "", "display name")
		flags.StringVar(&in.Email, "email", "", "email address")
		flags.StringVar(&in.Role, "role", "user", "admin, user, guest or banned")
	case "export":
		flags.StringVar(&path, "out", "", "write to file instead of stdout")
	case "import":
		flags.StringVarP(&path, "in", "i", "", "snapshot file to merge")
	case "seed":
		flags.StringVar(&in.ID, "id", cfg.DefaultAdminUserID, "admin principal id")
		flags.StringVar(&in.Email, "email", cfg.DefaultAdminEmail, "admin email")
	}
	if err := flags.Parse(args); err != nil {
		return err
	}
	rest := flags.Args()

	switch cmd {
	case "list":
		return tool.List(ctx, asJSON)
	case "grant":
		return tool.Grant(ctx, in)
	case "role":
		if len(rest) != 2 {
			return errors.New("usage: msbotctl users role ID ROLE")
		}
		return tool.SetRole(ctx, rest[0], rest[1])
	case "revoke":
		if len(rest) != 1 {
			return errors.New("usage: msbotctl users revoke ID")
		}
		return tool.Revoke(ctx, rest[0])
	case "export":
		if path == "" {
			return tool.Export(stdout)
		}
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := tool.Export(f); err != nil {
			_ = f.Close()
			return err
		}
		return f.Close()
	case "import":
		if path == "" {
			return errors.New("usage: msbotctl users import --in FILE")
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		return tool.Import(ctx, f)
	case "seed":
		return tool.Seed(ctx, in.ID, in.Email)
	}
	return fmt.Errorf("unknown users command %q", cmd)
}

func runJobs(ctx context.Context, cfg *app.Config, cmd string, args []string, stdout io.Writer) error {
	tool, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer func() { _ = tool.Close() }()

	switch cmd {
	case "trigger":
		if len(args) != 1 {
			return errors.New("usage: msbotctl jobs trigger NAME")
		}
		info, err := tool.Trigger(ctx, args[0], "msbotctl")
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(stdout, "enqueued %s (%s) on %s\n", info.Type, info.ID, info.Queue)
		return nil
	case "inspect":
		stats, err := tool.InspectQueue(ctx)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}
	return fmt.Errorf("unknown jobs command %q", cmd)
}
