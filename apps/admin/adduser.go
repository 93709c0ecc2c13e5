package main

import (
	"context"
	"fmt"
	"time"

	"github.com/schooldriver/schooldriver/core"
	"github.com/schooldriver/schooldriver/core/user"
)

// addUser updates or creates a user.User; existing users keep their roles and get the new ones.
func (cli *commandLine) addUser(name, uname, email, pwd string, roles []string) error {
	ctx := context.Background()
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)
	now := time.Now().UTC()

	usr, err := cli.findUser(ctx, uname, email)
	if err != nil {
		if err != user.ErrNotFound {
			return err
		}
		usr = user.User{Username: uname, Email: email, CreatedAt: now}
	}
	if name = core.CleanString(name); name != "" {
		usr.Name = name
	}
	for _, role := range roles {
		if !core.StringInSlice(role, user.AllRoles) {
			return fmt.Errorf("%q: no such role", role)
		}
		if !core.StringInSlice(role, usr.Roles) {
			usr.Roles = append(usr.Roles, role)
		}
	}
	usr.IsActive = true
	usr.UpdatedAt = now
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}
	if usr, err = cli.usrRepo.UpdateOrCreateUser(ctx, usr); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "user %s saved (%s)\n", usr.ID, user.PortalURL(usr.Roles))
	return nil
}

func (cli *commandLine) findUser(ctx context.Context, uname, email string) (user.User, error) {
	if uname != "" {
		usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Username: uname})
		if err != user.ErrNotFound {
			return usr, err
		}
	}
	return cli.usrRepo.GetUser(ctx, user.GetFilter{Email: email})
}
