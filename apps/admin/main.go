package main

import (
	"context"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/schooldriver/schooldriver/core"
	"github.com/schooldriver/schooldriver/core/academic"
	"github.com/schooldriver/schooldriver/core/notification"
	"github.com/schooldriver/schooldriver/core/parent"
	"github.com/schooldriver/schooldriver/core/user"
	emailsvc "github.com/schooldriver/schooldriver/services/email"
	logsvc "github.com/schooldriver/schooldriver/services/logger"
	pushsvc "github.com/schooldriver/schooldriver/services/push"
	"github.com/schooldriver/schooldriver/storage/database"
	sqlxrepos "github.com/schooldriver/schooldriver/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(os.Stdout, "admin", conf)
	logger.Enable(!conf.Debug)

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}

	validate := validator.New()
	translator := core.NewUniversalTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	core.ParseEmailTemplates(conf, logger)

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	var pushSvc core.PushService = pushsvc.NewConsoleService(logger)
	if fcm, err := pushsvc.NewFCMService(context.Background(), conf); err == nil {
		pushSvc = fcm
	}

	usrRepo := sqlxrepos.NewUserRepository(db)
	usrSvc := user.NewService(usrRepo)
	acadSvc := academic.NewService(db, sqlxrepos.NewAcademicRepository(db), validate, logger)
	notifSvc := notification.NewService(sqlxrepos.NewDeviceRepository(db), pushSvc, validate, logger)

	// start CLI
	cli := commandLine{
		db:        db,
		dialect:   "postgres",
		out:       os.Stdout,
		usrRepo:   usrRepo,
		usrSvc:    usrSvc,
		acadSvc:   acadSvc,
		parentSvc: parent.NewService(conf, db, sqlxrepos.NewCodeRepository(db), acadSvc, usrSvc, notifSvc, mailSvc, validate, logger),
		notifSvc:  notifSvc,
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			fmt.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}
