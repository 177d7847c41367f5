package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	ginlogrus "github.com/toorop/gin-logrus"

	"github.com/charlie0129/radiocal/pkg/bench"
	"github.com/charlie0129/radiocal/pkg/config"
	"github.com/charlie0129/radiocal/pkg/events"
)

var (
	conf      config.Config
	runner    *Runner
	sseHub    *events.EventHub
	scheduler *Scheduler
)

func setupRoutes(middleware ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginlogrus.Logger(logrus.StandardLogger()))
	router.Use(middleware...)

	router.GET("/config", getConfig)
	router.GET("/version", getVersion)
	router.GET("/status", getStatus)
	router.GET("/records", getRecords)
	router.GET("/events", streamEvents)
	router.GET("/duty-factor", getDutyFactor)

	router.POST("/calibration", startCalibration)
	router.POST("/sweep", startSweep)
	router.DELETE("/job", cancelJob)

	router.PUT("/packet-count", setPacketCount)
	router.PUT("/read-timeout", setReadTimeout)
	router.PUT("/sweep-channels", setSweepChannels)

	router.GET("/schedule", getSchedule)
	router.PUT("/schedule", putSchedule)
	router.POST("/schedule/postpone", postponeSchedule)
	router.POST("/schedule/skip", skipSchedule)

	return router
}

// setup wires the package state around an already loaded config.
func setup(c config.Config, open bench.Opener) {
	conf = c
	sseHub = events.NewEventHub()
	runner = NewRunner(conf, open, sseHub)
	scheduler = newSweepScheduler(runner)
	runner.nextScheduled = scheduler.NextRun
}

func Run(configPath string, unixSocketPath string, allowNonRoot bool) error {
	f, err := config.NewFile(configPath)
	if err != nil {
		logrus.Fatalf("failed to parse config during startup: %v", err)
	}
	if err := f.Validate(); err != nil {
		logrus.Fatalf("invalid config: %v", err)
	}
	logrus.WithFields(f.LogrusFields()).Infof("config loaded")

	setup(f, bench.Open)

	if expr := conf.SweepSchedule(); expr != "" {
		if err := scheduler.Schedule(expr); err != nil {
			logrus.Errorf("failed to restore sweep schedule %q: %v", expr, err)
		} else {
			logrus.WithField("cron", expr).Info("sweep schedule restored")
		}
	}
	scheduler.Start()

	// Receive SIGHUP to reload config
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP)
		for range sigc {
			if err := conf.Load(); err != nil {
				logrus.Errorf("failed to reload config: %v", err)
				continue
			}
			if err := f.Validate(); err != nil {
				logrus.Errorf("reloaded config is invalid: %v", err)
				continue
			}
			if err := scheduler.Schedule(conf.SweepSchedule()); err != nil {
				logrus.Errorf("failed to apply sweep schedule: %v", err)
			}
			logrus.Infof("config reloaded")
		}
	}()

	servers := []*http.Server{{Handler: setupRoutes()}}

	// Create the socket to listen on:
	_ = os.Remove(unixSocketPath)
	l, err := net.Listen("unix", unixSocketPath)
	if err != nil {
		logrus.Fatal(err)
	}

	if allowNonRoot {
		logrus.Infof("non-root access is allowed, changing permissions of %s to 0777", unixSocketPath)
		if err := os.Chmod(unixSocketPath, 0777); err != nil {
			logrus.Fatal(err)
		}
	}

	// Serve HTTP on unix socket
	go serve(servers[0], l)

	if addr := conf.ListenAddr(); addr != "" {
		if conf.JWTSecret() == "" {
			logrus.Fatalf("listenAddr %s requires jwtSecret to be set", addr)
		}
		tl, err := net.Listen("tcp", addr)
		if err != nil {
			logrus.Fatal(err)
		}
		srv := &http.Server{
			Handler:           setupRoutes(requireToken(conf.JWTSecret())),
			ReadHeaderTimeout: 10 * time.Second,
		}
		servers = append(servers, srv)
		go serve(srv, tl)
	}

	// Handle common process-killing signals, so we can gracefully shut down:
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	// Wait for a SIGINT or SIGTERM:
	sig := <-sigc
	logrus.Infof("caught signal \"%s\": shutting down.", sig)

	logrus.Info("stopping scheduler")
	scheduler.Stop()

	if err := runner.Cancel(); err == nil {
		logrus.Info("waiting for the running job to wind down")
	}
	runner.Wait()

	logrus.Info("shutting down http server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			logrus.Errorf("failed to shutdown http server: %v", err)
		}
	}

	logrus.Info("exiting")
	return nil
}

func serve(srv *http.Server, l net.Listener) {
	logrus.Infof("http server listening on %s", l.Addr().String())
	if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logrus.Fatal(err)
	}
}
