package main

import (
	"context"
	"fmt"
)

func (cli *commandLine) sendPush(token, title, body string) error {
	id, err := cli.notifSvc.SendTest(context.Background(), token, title, body)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "notification sent: %s\n", id)
	return nil
}
