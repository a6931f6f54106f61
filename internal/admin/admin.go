// Package admin implements the docvault-admin maintenance commands that work
// directly against the database, such as bootstrapping the first admin.
package admin

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dmitrijs2005/docvault/internal/common"
	"github.com/dmitrijs2005/docvault/internal/logging"
	"github.com/dmitrijs2005/docvault/internal/server/auth"
	"github.com/dmitrijs2005/docvault/internal/server/config"
	"github.com/dmitrijs2005/docvault/internal/server/models"
	"github.com/dmitrijs2005/docvault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/docvault/internal/server/services"
	"github.com/fatih/color"
)

var ErrUsage = errors.New("usage")

const usage = `usage: docvault-admin [config flags] <command> [flags]

commands:
  create-user -email E -name N [-role admin|editor|viewer]
  set-role    -email E -role R
  deactivate  -email E
  activate    -email E
  list        [-role R]
`

type Tool struct {
	db    *sql.DB
	repos repomanager.RepositoryManager
	users *services.UserService
	in    *bufio.Reader
	out   io.Writer
}

func NewTool(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, in io.Reader, out io.Writer) *Tool {
	return &Tool{
		db:    db,
		repos: m,
		users: services.NewUserService(db, m, auth.NewMemoryRevoker(), logging.Nop{}, cfg),
		in:    bufio.NewReader(in),
		out:   out,
	}
}

// Run executes the command named by the first non-flag argument.
func (t *Tool) Run(ctx context.Context, args []string) error {
	err := t.dispatch(ctx, args)
	if errors.Is(err, ErrUsage) {
		fmt.Fprint(t.out, usage)
	}
	return err
}

func (t *Tool) dispatch(ctx context.Context, args []string) error {
	cmd, rest := command(args)
	switch cmd {
	case "create-user":
		return t.createUser(ctx, rest)
	case "set-role":
		return t.setRole(ctx, rest)
	case "deactivate":
		return t.setActive(ctx, rest, false)
	case "activate":
		return t.setActive(ctx, rest, true)
	case "list":
		return t.list(ctx, rest)
	}
	return ErrUsage
}

// command finds the subcommand, skipping global config flags before it.
func command(args []string) (string, []string) {
	for i, a := range args {
		if !strings.HasPrefix(a, "-") && (i == 0 || !strings.HasPrefix(args[i-1], "-") || strings.Contains(args[i-1], "=")) {
			return a, args[i+1:]
		}
	}
	return "", nil
}

func (t *Tool) createUser(ctx context.Context, args []string) error {
	fs := newFlagSet("create-user")
	email := fs.String("email", "", "email of the new user")
	name := fs.String("name", "", "display name")
	role := fs.String("role", string(models.RoleAdmin), "role")
	if err := fs.Parse(args); err != nil {
		return ErrUsage
	}

	var err error
	if *email == "" {
		if *email, err = getSimpleText(t.in, "Email", t.out); err != nil {
			return err
		}
	}
	if *name == "" {
		if *name, err = getSimpleText(t.in, "Name", t.out); err != nil {
			return err
		}
	}

	pw, err := getPassword(t.out, "Password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pw)

	again, err := getPassword(t.out, "Repeat password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(again)

	if string(pw) != string(again) {
		return errors.New("passwords do not match")
	}

	u, err := t.users.CreateUser(ctx, services.Registration{
		Email:    *email,
		Password: string(pw),
		Name:     *name,
		Role:     models.Role(*role),
	})
	if err != nil {
		return describe(err)
	}

	color.New(color.FgGreen).Fprintf(t.out, "✓ created %s (%s) id=%s\n", u.Email, u.Role, u.ID)
	return nil
}

func (t *Tool) setRole(ctx context.Context, args []string) error {
	fs := newFlagSet("set-role")
	email := fs.String("email", "", "email of the user")
	role := fs.String("role", "", "new role")
	if err := fs.Parse(args); err != nil || *email == "" || *role == "" {
		return ErrUsage
	}

	u, err := t.lookup(ctx, *email)
	if err != nil {
		return err
	}
	r := models.Role(*role)
	if u, err = t.users.UpdateUser(ctx, u.ID, services.UserUpdate{Role: &r}); err != nil {
		return describe(err)
	}

	color.New(color.FgGreen).Fprintf(t.out, "✓ %s is now %s\n", u.Email, u.Role)
	return nil
}

func (t *Tool) setActive(ctx context.Context, args []string, active bool) error {
	fs := newFlagSet("activate")
	email := fs.String("email", "", "email of the user")
	if err := fs.Parse(args); err != nil || *email == "" {
		return ErrUsage
	}

	u, err := t.lookup(ctx, *email)
	if err != nil {
		return err
	}
	if _, err := t.users.UpdateUser(ctx, u.ID, services.UserUpdate{IsActive: &active}); err != nil {
		return describe(err)
	}

	state := "deactivated"
	if active {
		state = "activated"
	}
	color.New(color.FgGreen).Fprintf(t.out, "✓ %s %s\n", u.Email, state)
	return nil
}

func (t *Tool) list(ctx context.Context, args []string) error {
	fs := newFlagSet("list")
	role := fs.String("role", "", "only users with this role")
	if err := fs.Parse(args); err != nil {
		return ErrUsage
	}

	filter := models.UserFilter{Role: models.Role(*role), Page: models.Page{Limit: models.MaxPageLimit}}
	tw := tabwriter.NewWriter(t.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tEMAIL\tNAME\tROLE\tACTIVE")
	for page := 1; ; page++ {
		filter.Page.Page = page
		res, err := t.users.ListUsers(ctx, filter)
		if err != nil {
			return describe(err)
		}
		for _, u := range res.Items {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n", u.ID, u.Email, u.Name, u.Role, u.IsActive)
		}
		if page*res.Limit >= res.Total {
			break
		}
	}
	return tw.Flush()
}

func (t *Tool) lookup(ctx context.Context, email string) (*models.User, error) {
	u, err := t.repos.Users(t.db).GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, common.ErrorNotFound) {
		return nil, fmt.Errorf("no user with email %q", email)
	}
	return u, err
}

func describe(err error) error {
	if errors.Is(err, common.ErrorAlreadyExists) {
		return errors.New("a user with this email already exists")
	}
	return err
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}
