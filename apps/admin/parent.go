package main

import (
	"context"
	"fmt"

	"github.com/schooldriver/schooldriver/core/parent"
)

func (cli *commandLine) genCode(nc parent.NewCode) error {
	vc, err := cli.parentSvc.Issue(context.Background(), nc)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "verification code %s sent to %s, expires %s\n", vc.Code, vc.ParentEmail, vc.ExpiresAt.Format("2006-01-02 15:04 MST"))
	return nil
}

func (cli *commandLine) purgeCodes() error {
	n, err := cli.parentSvc.PurgeExpired(context.Background())
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%d expired verification codes deleted\n", n)
	return nil
}
