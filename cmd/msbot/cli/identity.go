// Package cli holds offline operator tooling for msbot: identity store
// maintenance and manual job triggers.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/odyssey-erp/msbot/internal/access"
	"github.com/odyssey-erp/msbot/internal/identity"
	"github.com/odyssey-erp/msbot/internal/rbac"
)

// IdentityCLI edits the identity store directly, without a running bot.
type IdentityCLI struct {
	ctrl   *access.Controller
	store  *identity.Store
	stdout io.Writer
}

// NewIdentityCLI wraps a loaded store.
func NewIdentityCLI(store *identity.Store, stdout io.Writer) *IdentityCLI {
	if stdout == nil {
		stdout = os.Stdout
	}
	return &IdentityCLI{
		ctrl:   access.NewController(store, nil, nil),
		store:  store,
		stdout: stdout,
	}
}

// List prints every principal as a table, or as JSON when asJSON is set.
func (c *IdentityCLI) List(ctx context.Context, asJSON bool) error {
	principals := c.ctrl.List(ctx)
	if asJSON {
		enc := json.NewEncoder(c.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(principals)
	}
	tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tROLE\tADDED BY")
	for _, p := range principals {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.ID, p.Name, p.Email, p.Role, p.AddedBy)
	}
	return tw.Flush()
}

// Grant upserts a principal.
func (c *IdentityCLI) Grant(ctx context.Context, in access.GrantInput) error {
	if in.GrantedBy == "" {
		in.GrantedBy = "cli"
	}
	p, created, err := c.ctrl.Grant(ctx, in)
	if err != nil {
		return err
	}
	verb := "updated"
	if created {
		verb = "added"
	}
	_, _ = fmt.Fprintf(c.stdout, "%s %s as %s\n", verb, p.ID, p.Role)
	return nil
}

// SetRole changes the role of an existing principal.
func (c *IdentityCLI) SetRole(ctx context.Context, id, role string) error {
	parsed, err := rbac.ParseRole(role)
	if err != nil {
		return err
	}
	_, previous, err := c.ctrl.SetRole(ctx, id, parsed, "cli")
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.stdout, "%s: %s -> %s\n", id, previous, parsed)
	return nil
}

// Revoke removes a principal.
func (c *IdentityCLI) Revoke(ctx context.Context, id string) error {
	if _, err := c.ctrl.Revoke(ctx, id, "cli"); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.stdout, "removed %s\n", id)
	return nil
}

// Export writes the snapshot document to w.
func (c *IdentityCLI) Export(w io.Writer) error {
	data, err := identity.EncodeSnapshot(c.store.Snapshot())
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// Import merges a snapshot document read from r.
func (c *IdentityCLI) Import(ctx context.Context, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	snap, err := identity.DecodeSnapshot(data)
	if err != nil {
		return err
	}
	n, err := c.ctrl.Import(ctx, snap, "cli")
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.stdout, "imported %d principals\n", n)
	for _, id := range snap.Demoted {
		_, _ = fmt.Fprintf(c.stdout, "%s had an unknown role and was imported as banned\n", id)
	}
	return nil
}

// Seed inserts a default admin when the store is empty.
func (c *IdentityCLI) Seed(ctx context.Context, id, email string) error {
	if id == "" {
		return errors.New("seed: admin id required")
	}
	seeded, err := c.store.SeedDefaultAdmin(ctx, identity.Principal{
		ID:      id,
		Name:    "Default Admin",
		Email:   email,
		Role:    rbac.RoleAdmin,
		AddedBy: "cli",
	})
	if err != nil {
		return err
	}
	if !seeded {
		_, _ = fmt.Fprintln(c.stdout, "store not empty; nothing seeded")
		return nil
	}
	_, _ = fmt.Fprintf(c.stdout, "seeded admin %s\n", id)
	return nil
}
