package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/faridzul/jadual/core"
	syncer "github.com/faridzul/jadual/core/sync"
	"github.com/faridzul/jadual/core/timetable"
	emailsvc "github.com/faridzul/jadual/services/email"
	logsvc "github.com/faridzul/jadual/services/logger"
	"github.com/faridzul/jadual/services/ttms"
	"github.com/faridzul/jadual/storage/database"
	sqlxrepos "github.com/faridzul/jadual/storage/database/sqlx"
)

func main() {
	defer os.Exit(0)

	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "SYNC : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer db.Close()

	validate := validator.New()
	core.InitValidators(validate, newTranslator())

	repo := sqlxrepos.NewTimetableRepository(db, conf.Database.Engine)
	client := ttms.NewClient(conf)
	sessions := syncer.NewSessionManager(client, conf)

	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	cli := commandLine{
		conf:    conf,
		orch:    syncer.NewOrchestrator(client, sessions, repo, validate, logger, conf),
		svc:     timetable.NewService(repo, logger),
		mailSvc: mailSvc,
		logger:  logger,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("error: %v", err), err)
		}
		os.Exit(1)
	}
}

func setUpDB(conf *core.Config) (*sql.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
