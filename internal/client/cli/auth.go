package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophdrop/internal/client/client"
	"github.com/dmitrijs2005/gophdrop/internal/common"
)

// userName takes the name from the operands or prompts for it.
func (a *App) userName(ops []string) (string, error) {
	if len(ops) == 1 {
		return ops[0], nil
	}
	name, err := getSimpleText(a.reader, "Enter username", a.out)
	if err != nil {
		return "", err
	}
	if name == "" {
		return "", fmt.Errorf("empty username: %w", errUsage)
	}
	return name, nil
}

// register creates an account. The password is asked twice.
func (a *App) register(ctx context.Context, args []string) error {
	ops, err := a.operands("register", args, 0, 1, nil)
	if err != nil {
		return err
	}
	userName, err := a.userName(ops)
	if err != nil {
		return err
	}

	password, err := getNewPassword("Enter password", a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if err := a.svc.Register(ctx, userName, password); err != nil {
		return err
	}

	fmt.Fprintln(a.out, "Success! Now run: gophdrop login", userName)
	return nil
}

// login authenticates and stores the session locally so later commands run
// as this user.
func (a *App) login(ctx context.Context, args []string) error {
	ops, err := a.operands("login", args, 0, 1, nil)
	if err != nil {
		return err
	}
	userName, err := a.userName(ops)
	if err != nil {
		return err
	}

	password, err := getPassword("Enter password", a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if err := a.svc.Login(ctx, userName, password); err != nil {
		return err
	}

	fmt.Fprintln(a.out, "Logged in as", userName)
	return nil
}

func (a *App) logout(ctx context.Context, args []string) error {
	if _, err := a.operands("logout", args, 0, 0, nil); err != nil {
		return err
	}
	if err := a.svc.Logout(ctx); err != nil {
		if errors.Is(err, client.ErrUnavailable) {
			fmt.Fprintln(a.out, "Server unavailable, session forgotten locally")
			return nil
		}
		return err
	}
	fmt.Fprintln(a.out, "Logged out")
	return nil
}

func (a *App) whoami(ctx context.Context, args []string) error {
	if _, err := a.operands("whoami", args, 0, 0, nil); err != nil {
		return err
	}
	sess, err := a.svc.WhoAmI(ctx)
	if errors.Is(err, client.ErrNotLoggedIn) {
		fmt.Fprintln(a.out, "anonymous")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, sess.UserName)
	return nil
}
