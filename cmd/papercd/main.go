package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/papercd/papercd/pkg/api"
	"github.com/papercd/papercd/pkg/compose"
	"github.com/papercd/papercd/pkg/console"
	"github.com/papercd/papercd/pkg/git"
	"github.com/papercd/papercd/pkg/players"
	"github.com/papercd/papercd/pkg/update"
)

var version = "unversioned"

func main() {
	// Flag domain.
	fs := pflag.NewFlagSet("default", pflag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "DESCRIPTION\n")
		fmt.Fprintf(os.Stderr, "  papercd is a self-update daemon for a Paper server deployment.\n")
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "FLAGS\n")
		fs.PrintDefaults()
	}
	var (
		listenAddr       = fs.StringP("listen", "l", ":3031", "Listen address for the trigger webhook and metrics")
		lockPath         = fs.String("lock-file", "/var/run/papercd.lock", "Lock file guarding against a second daemon on the same deployment")
		repoDir          = fs.String("repo-dir", "/srv/deploy", "Working tree of the deployment repo")
		repoURL          = fs.String("repo-url", "", "URL of the deployment repo; http(s) so the trigger token can be bound to it per sync")
		repoBranch       = fs.String("repo-branch", "main", "Branch to sync")
		gitTimeout       = fs.Duration("git-timeout", 2*time.Minute, "Bound on any one git operation")
		gitUser          = fs.String("git-user", "papercd", "Committer name for the working tree")
		gitEmail         = fs.String("git-email", "papercd@localhost", "Committer email for the working tree")
		composeBin       = fs.String("compose-bin", "docker", "Binary to invoke compose through")
		composeFile      = fs.String("compose-file", "", "Compose file; empty uses compose's own lookup")
		service          = fs.String("service", "paper", "Compose service running the live server")
		buildTimeout     = fs.Duration("build-timeout", 15*time.Minute, "Bound on one image build")
		rconAddr         = fs.String("rcon-addr", "127.0.0.1:25575", "Address of the live server's RCON console")
		rconPasswordFile = fs.String("rcon-password-file", "", "Path to file containing the RCON password")
		renderAtBoot     = fs.Bool("render-players", true, "Render players.yml into server config at boot")
		versionFlag      = fs.Bool("version", false, "Print the version and exit")
	)
	fs.Parse(os.Args[1:])

	if *versionFlag {
		fmt.Println(version)
		os.Exit(0)
	}

	// Logger domain.
	var logger log.Logger
	{
		logger = log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
		logger = log.With(logger, "ts", log.DefaultTimestampUTC)
		logger = log.With(logger, "caller", log.DefaultCaller)
	}
	logger.Log("version", version)

	// One daemon per deployment: two papercds racing over the same
	// working tree is undefined.
	lock := flock.New(*lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		logger.Log("err", err, "lock", *lockPath)
		os.Exit(1)
	}
	if !locked {
		logger.Log("err", "another papercd holds the lock", "lock", *lockPath)
		os.Exit(1)
	}
	defer lock.Unlock()

	var rconPassword string
	if *rconPasswordFile != "" {
		buf, err := os.ReadFile(*rconPasswordFile)
		if err != nil {
			logger.Log("err", err)
			os.Exit(1)
		}
		rconPassword = strings.TrimSpace(string(buf))
	}

	// Source sync component.
	var syncer *git.Syncer
	{
		logger := log.With(logger, "component", "git")
		syncer = git.NewSyncer(git.Remote{URL: *repoURL}, git.Config{
			Dir:       *repoDir,
			Branch:    *repoBranch,
			UserName:  *gitUser,
			UserEmail: *gitEmail,
			Timeout:   *gitTimeout,
		}, logger)
		ctx, cancel := context.WithTimeout(context.Background(), *gitTimeout)
		err := syncer.Ready(ctx)
		cancel()
		if err != nil {
			logger.Log("err", err)
			os.Exit(1)
		}
		logger.Log("url", git.Remote{URL: *repoURL}.SafeURL(), "branch", *repoBranch)
	}

	// Build/restart component.
	comp := compose.New(compose.Config{
		Bin:          *composeBin,
		File:         *composeFile,
		Dir:          *repoDir,
		Service:      *service,
		BuildTimeout: *buildTimeout,
	}, log.With(logger, "component", "compose"))

	// Player notification component.
	notifier := &console.Notifier{
		Addr:     *rconAddr,
		Password: rconPassword,
		Logger:   log.With(logger, "component", "console"),
	}

	pipeline := &update.Pipeline{
		Sync:    syncer,
		Build:   comp,
		Notify:  notifier,
		Restart: compose.Restarter{Compose: comp},
		Logger:  log.With(logger, "component", "update"),
	}

	// Roster rendering component.
	renderer := players.Renderer{
		Dir:    *repoDir,
		Logger: log.With(logger, "component", "players"),
	}
	if *renderAtBoot {
		// Best effort: a broken roster shouldn't keep updates from
		// flowing.
		if err := renderer.Render(); err != nil {
			logger.Log("component", "players", "err", err)
		}
	}

	// HTTP component.
	server := &api.Server{
		Pipeline: pipeline,
		Renderer: renderer,
		Version:  version,
		Logger:   log.With(logger, "component", "api"),
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", api.NewHandler(server, api.NewRouter()))

	errc := make(chan error)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()
	go func() {
		logger.Log("addr", *listenAddr)
		errc <- http.ListenAndServe(*listenAddr, mux)
	}()

	logger.Log("exit", <-errc)
}
