package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/gophdrop/internal/common"
)

var errUsage = errors.New("usage error")

// IsUsage reports whether err came from a malformed command line.
func IsUsage(err error) bool {
	return errors.Is(err, errUsage)
}

const usageText = `Usage: gophdrop [-a server] [-c config.json] <command> [args]

Files:
  upload <path>... [-p]        upload files, -p protects them with a password
  download <token> [-o out] [-p]
                               save a file, -p prompts for its password
  bin <token>                  move a file to the bin
  restore <token>              take a file out of the bin
  delete <token>               delete a file for good
  ls [-bin]                    list your files, or the binned ones
  bundle [-o out]              save your unprotected files as .tar.gz
  history                      uploads made from this machine

Sharing:
  share <token> <user>         share a file with a user
  unshare <token> [user]       stop sharing with one user, or with everyone
  shared                       files others shared with you
  recipients <token>           users a file is shared with

Account:
  register [user]
  login [user]
  logout
  whoami
  ping                         check the server is reachable
`

type command struct {
	run func(a *App, ctx context.Context, args []string) error
}

var commands = map[string]command{
	"upload":     {(*App).upload},
	"download":   {(*App).download},
	"bin":        {(*App).bin},
	"restore":    {(*App).restore},
	"delete":     {(*App).purge},
	"ls":         {(*App).list},
	"bundle":     {(*App).bundle},
	"history":    {(*App).history},
	"share":      {(*App).share},
	"unshare":    {(*App).unshare},
	"shared":     {(*App).shared},
	"recipients": {(*App).recipients},
	"register":   {(*App).register},
	"login":      {(*App).login},
	"logout":     {(*App).logout},
	"whoami":     {(*App).whoami},
	"ping":       {(*App).ping},
	"help":       {(*App).help},
}

func (a *App) usage() {
	fmt.Fprint(a.out, usageText)
}

func (a *App) help(context.Context, []string) error {
	a.usage()
	return nil
}

// parseArgs parses flags that may appear before, between or after the
// operands and returns the operands.
func (a *App) parseArgs(name string, args []string, setup func(fs *flag.FlagSet)) ([]string, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.out)
	if setup != nil {
		setup(fs)
	}

	var operands []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, fmt.Errorf("%s: %w", name, errUsage)
		}
		args = fs.Args()
		if len(args) == 0 {
			return operands, nil
		}
		operands = append(operands, args[0])
		args = args[1:]
	}
}

// operands parses args and checks the operand count is within [lo, hi];
// a negative hi means no upper bound.
func (a *App) operands(name string, args []string, lo, hi int, setup func(fs *flag.FlagSet)) ([]string, error) {
	ops, err := a.parseArgs(name, args, setup)
	if err != nil {
		return nil, err
	}
	if len(ops) < lo || (hi >= 0 && len(ops) > hi) {
		return nil, fmt.Errorf("%s: wrong number of arguments: %w", name, errUsage)
	}
	return ops, nil
}

func (a *App) link(path string) string {
	return strings.TrimSuffix(a.config.ServerURL, "/") + path
}

func (a *App) upload(ctx context.Context, args []string) error {
	var protect bool
	paths, err := a.operands("upload", args, 1, -1, func(fs *flag.FlagSet) {
		fs.BoolVar(&protect, "p", false, "protect with a password")
	})
	if err != nil {
		return err
	}

	var password []byte
	if protect {
		if password, err = getNewPassword("File password", a.out); err != nil {
			return err
		}
		defer common.WipeByteArray(password)
	}

	var failed int
	for _, p := range paths {
		res, err := a.svc.Upload(ctx, p, string(password))
		if err != nil {
			fmt.Fprintf(a.out, "%s: %v\n", p, err)
			failed++
			continue
		}
		fmt.Fprintf(a.out, "%s\t%s\n", p, a.link(res.URL))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d uploads failed", failed, len(paths))
	}
	return nil
}

func (a *App) download(ctx context.Context, args []string) error {
	var (
		out    string
		prompt bool
	)
	ops, err := a.operands("download", args, 1, 1, func(fs *flag.FlagSet) {
		fs.StringVar(&out, "o", "", "output file or directory")
		fs.BoolVar(&prompt, "p", false, "prompt for the file password")
	})
	if err != nil {
		return err
	}

	var password []byte
	if prompt {
		if password, err = getPassword("File password", a.out); err != nil {
			return err
		}
		defer common.WipeByteArray(password)
	}

	path, err := a.svc.Download(ctx, ops[0], string(password), out)
	if errors.Is(err, common.ErrorUnauthorized) && !prompt {
		return fmt.Errorf("%w (retry with -p)", err)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, "saved", path)
	return nil
}

func (a *App) tokenCommand(ctx context.Context, name string, args []string, fn func(context.Context, string) error, done string) error {
	ops, err := a.operands(name, args, 1, 1, nil)
	if err != nil {
		return err
	}
	if err := fn(ctx, ops[0]); err != nil {
		return err
	}
	fmt.Fprintln(a.out, done)
	return nil
}

func (a *App) bin(ctx context.Context, args []string) error {
	return a.tokenCommand(ctx, "bin", args, a.svc.Bin, "moved to bin")
}

func (a *App) restore(ctx context.Context, args []string) error {
	return a.tokenCommand(ctx, "restore", args, a.svc.Restore, "restored")
}

func (a *App) purge(ctx context.Context, args []string) error {
	return a.tokenCommand(ctx, "delete", args, a.svc.Purge, "deleted")
}

func (a *App) list(ctx context.Context, args []string) error {
	var binned bool
	if _, err := a.operands("ls", args, 0, 0, func(fs *flag.FlagSet) {
		fs.BoolVar(&binned, "bin", false, "list binned files")
	}); err != nil {
		return err
	}

	files, err := a.svc.ListFiles(ctx, binned)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	if binned {
		fmt.Fprintln(tw, "TOKEN\tNAME\tSIZE\tBINNED")
	} else {
		fmt.Fprintln(tw, "TOKEN\tNAME\tSIZE\tPROTECTED\tUPLOADED")
	}
	for _, f := range files {
		if binned {
			var at time.Time
			if f.DeletedAt != nil {
				at = *f.DeletedAt
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", f.Token, f.Filename, f.Size, stamp(at))
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", f.Token, f.Filename, f.Size, yesNo(f.Protected), stamp(f.CreatedAt))
	}
	return tw.Flush()
}

func (a *App) bundle(ctx context.Context, args []string) error {
	var out string
	if _, err := a.operands("bundle", args, 0, 0, func(fs *flag.FlagSet) {
		fs.StringVar(&out, "o", "", "output file or directory")
	}); err != nil {
		return err
	}

	path, err := a.svc.Bundle(ctx, out)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, "saved", path)
	return nil
}

func (a *App) history(ctx context.Context, args []string) error {
	if _, err := a.operands("history", args, 0, 0, nil); err != nil {
		return err
	}

	uploads, err := a.svc.History(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TOKEN\tNAME\tSIZE\tPROTECTED\tUPLOADED")
	for _, u := range uploads {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", u.Token, u.Filename, u.Size, yesNo(u.Protected), stamp(u.UploadedAt))
	}
	return tw.Flush()
}

func (a *App) share(ctx context.Context, args []string) error {
	ops, err := a.operands("share", args, 2, 2, nil)
	if err != nil {
		return err
	}
	if err := a.svc.Share(ctx, ops[0], ops[1]); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "shared with %s\n", ops[1])
	return nil
}

func (a *App) unshare(ctx context.Context, args []string) error {
	ops, err := a.operands("unshare", args, 1, 2, nil)
	if err != nil {
		return err
	}

	var user string
	if len(ops) == 2 {
		user = ops[1]
	}
	n, err := a.svc.Unshare(ctx, ops[0], user)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "removed %d share(s)\n", n)
	return nil
}

func (a *App) shared(ctx context.Context, args []string) error {
	if _, err := a.operands("shared", args, 0, 0, nil); err != nil {
		return err
	}

	files, err := a.svc.ListShared(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TOKEN\tNAME\tSIZE\tOWNER\tSHARED")
	for _, f := range files {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", f.Token, f.Filename, f.Size, f.Owner, stamp(f.SharedAt))
	}
	return tw.Flush()
}

func (a *App) recipients(ctx context.Context, args []string) error {
	ops, err := a.operands("recipients", args, 1, 1, nil)
	if err != nil {
		return err
	}

	list, err := a.svc.ListRecipients(ctx, ops[0])
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USER\tSHARED")
	for _, r := range list {
		fmt.Fprintf(tw, "%s\t%s\n", r.UserName, stamp(r.SharedAt))
	}
	return tw.Flush()
}

func (a *App) ping(ctx context.Context, args []string) error {
	if _, err := a.operands("ping", args, 0, 0, nil); err != nil {
		return err
	}
	if err := a.svc.Ping(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "ok")
	return nil
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
