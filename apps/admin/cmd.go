package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"syscall"

	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/schooldriver/schooldriver/core"
	"github.com/schooldriver/schooldriver/core/academic"
	"github.com/schooldriver/schooldriver/core/notification"
	"github.com/schooldriver/schooldriver/core/parent"
	"github.com/schooldriver/schooldriver/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db        *sqlx.DB
	dialect   string
	out       io.Writer
	usrRepo   user.Repository
	usrSvc    user.ServiceInterface
	acadSvc   *academic.Service
	parentSvc *parent.Service
	notifSvc  *notification.Service
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  adduser -username USERNAME -email EMAIL [-name NAME] [-roles ROLE,...] [-admin] - create or update a user")
	fmt.Fprintln(cli.out, "  resetpassword -username USERNAME|EMAIL - reset user's password")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS...] - run goose migration commands (up, down, status, ...)")
	fmt.Fprintln(cli.out, "  gpa -student ID [-scope current|cumulative] - print the academic report of a student")
	fmt.Fprintln(cli.out, "  gencode -student ID -email EMAIL -name NAME [-notes NOTES] - issue a parent verification code")
	fmt.Fprintln(cli.out, "  purgecodes - delete expired, unused verification codes")
	fmt.Fprintln(cli.out, "  sendpush -token TOKEN [-title TITLE] [-body BODY] - send a test push notification")
	fmt.Fprintln(cli.out, "  loaddemo [-file FILE.yaml] - load demo school data")
}

// promptPassword reads a password from the terminal without echoing it.
func (cli *commandLine) promptPassword(usage func()) (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		usage()
		return "", errHelp
	}
	return string(pwd), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ExitOnError)
	addUserUname := addUserCmd.String("username", "", "The user's username.")
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	addUserRoles := addUserCmd.String("roles", "", "Comma separated roles, e.g. teacher:")
	addUserAdmin := addUserCmd.Bool("admin", false, "Grant every admin role.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ExitOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")

	gpaCmd := flag.NewFlagSet("gpa", flag.ExitOnError)
	gpaStudent := gpaCmd.String("student", "", "The student's ID.")
	gpaScope := gpaCmd.String("scope", string(academic.ScopeCurrent), "current or cumulative.")

	genCodeCmd := flag.NewFlagSet("gencode", flag.ExitOnError)
	genCodeStudent := genCodeCmd.String("student", "", "The student's ID.")
	genCodeEmail := genCodeCmd.String("email", "", "The parent's email. The code is sent there.")
	genCodeName := genCodeCmd.String("name", "", "The parent's name.")
	genCodeNotes := genCodeCmd.String("notes", "", "Internal notes.")

	sendPushCmd := flag.NewFlagSet("sendpush", flag.ExitOnError)
	sendPushToken := sendPushCmd.String("token", "", "The device token.")
	sendPushTitle := sendPushCmd.String("title", "", "The notification title.")
	sendPushBody := sendPushCmd.String("body", "", "The notification body.")

	loadDemoCmd := flag.NewFlagSet("loaddemo", flag.ExitOnError)
	loadDemoFile := loadDemoCmd.String("file", "", "A YAML file; defaults to the bundled demo school.")

	switch args[1] {
	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserUname == "" && *addUserEmail == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword(addUserCmd.Usage)
		if err != nil {
			return err
		}
		roles := splitList(*addUserRoles)
		if *addUserAdmin {
			roles = append(roles, user.AdminRoles...)
		}
		return cli.addUser(*addUserName, *addUserUname, *addUserEmail, pwd, roles)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword(resetPasswordCmd.Usage)
		if err != nil {
			return err
		}
		return cli.resetPassword(*resetPasswordUname, pwd)

	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "gpa":
		if err := gpaCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *gpaStudent == "" {
			gpaCmd.Usage()
			return errHelp
		}
		return cli.printReport(*gpaStudent, *gpaScope)

	case "gencode":
		if err := genCodeCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *genCodeStudent == "" {
			genCodeCmd.Usage()
			return errHelp
		}
		return cli.genCode(parent.NewCode{
			StudentID:   *genCodeStudent,
			ParentEmail: *genCodeEmail,
			ParentName:  *genCodeName,
			Notes:       *genCodeNotes,
		})

	case "purgecodes":
		return cli.purgeCodes()

	case "sendpush":
		if err := sendPushCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *sendPushToken == "" {
			sendPushCmd.Usage()
			return errHelp
		}
		return cli.sendPush(*sendPushToken, *sendPushTitle, *sendPushBody)

	case "loaddemo":
		if err := loadDemoCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.loadDemo(*loadDemoFile)

	default:
		cli.printUsage()
		return errHelp
	}
}

func splitList(s string) []string {
	var items []string
	for _, item := range strings.Split(s, ",") {
		if item = core.CleanString(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
