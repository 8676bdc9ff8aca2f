package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"

	echoapi "github.com/revolck/advancemais-front-sub011/apps/api/echo"
	"github.com/revolck/advancemais-front-sub011/core"
	"github.com/revolck/advancemais-front-sub011/core/attendance"
	logsvc "github.com/revolck/advancemais-front-sub011/services/logger"
	"github.com/revolck/advancemais-front-sub011/storage/database"
	inmemdb "github.com/revolck/advancemais-front-sub011/storage/database/inmem"
	"github.com/revolck/advancemais-front-sub011/storage/database/pgrepo"
	"github.com/revolck/advancemais-front-sub011/storage/database/redisrepo"
)

func main() {
	conf, err := core.NewConfig()
	errAndDie(err)

	std := log.New(os.Stdout, fmt.Sprintf("%s API : ", conf.AppName), log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	var logger core.Logger
	if conf.Debug || conf.RollbarToken == "" {
		logger = logsvc.NewConsoleLogger(std)
	} else {
		logger = logsvc.NewRollbarLogger(std, conf)
	}

	if err = run(conf, logger); err != nil {
		logger.Fatal("api failed", err)
	}
}

func run(conf *core.Config, logger core.Logger) error {
	validate, translator := core.NewValidator()

	// set up the attendance repository
	var repo attendance.Repository
	healthChecks := make(map[string]func(context.Context) bool)
	switch conf.Repository {
	case core.RepoPostgres:
		db, err := database.Open(conf)
		if err != nil {
			return errors.Wrap(err, "opening database")
		}
		defer func() { _ = db.Close() }()
		if err = database.Ping(db); err != nil {
			return err
		}
		if err = database.EnsureSchema(db); err != nil {
			return err
		}
		repo = pgrepo.NewAttendanceRepository(db)
		healthChecks["db"] = func(ctx context.Context) bool { return db.PingContext(ctx) == nil }

	case core.RepoRedis:
		rdb := redisrepo.Open(conf.Redis.Addr)
		defer func() { _ = rdb.Client.Close() }()
		repo = redisrepo.NewAttendanceRepository(rdb)
		healthChecks["redis"] = rdb.Healthy

	default: // inmem; DEV only, state is lost on restart
		db, err := inmemdb.Open()
		if err != nil {
			return errors.Wrap(err, "opening in-memory database")
		}
		repo = inmemdb.NewAttendanceRepository(db)
	}

	svc := attendance.NewService(repo, attendance.HashProvider{}, conf.Attendance.PresenceWindowDays)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	app := echoapi.NewServer(&echoapi.Options{
		Addr:           conf.Server.Address(),
		Conf:           conf,
		Logger:         logger,
		AttendanceSvc:  svc,
		Validate:       validate,
		Translator:     translator,
		HealthChecks:   healthChecks,
		SignalShutdown: func() { shutdown <- syscall.SIGTERM },
	})

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening on " + conf.Server.Address())
		serverErrors <- app.Start()
	}()

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return errors.Wrap(err, "server error")
		}
	case sig := <-shutdown:
		logger.Info(fmt.Sprintf("shutting down on %v signal", sig))

		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		if err := app.Stop(ctx); err != nil {
			return errors.Wrap(err, "graceful shutdown failed")
		}
	}
	return nil
}

func errAndDie(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
