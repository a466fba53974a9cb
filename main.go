package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ibizaman/upnpport/reconcile"
	"github.com/ibizaman/upnpport/rules"
	"github.com/ibizaman/upnpport/upnpc"
)

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	switch os.Args[1] {
	case "run":
		runCmd(os.Args[2:])
	case "configure":
		configureCmd(os.Args[2:])
	default:
		usage()
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `Maintains port forwarding in UPnP compatible routers.

Usage:
  upnpport run [-c path,path,...] [-v level] [-interval duration]
  upnpport configure <file> add <port> [-protocol tcp|udp] [-external_port port]
  upnpport configure <file> del <port> [-protocol tcp|udp]

Send SIGUSR1 to a running daemon to reload its configuration file.
`)
	os.Exit(2)
}

func runCmd(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	loglvlStr := fs.String("v", "info", "debug level")
	pathsStr := fs.String("c", strings.Join(rules.DefaultPaths(), ","),
		"comma separated config locations, last one found takes precedence")
	interval := fs.Duration("interval", reconcile.DefaultInterval, "delay between reconciliation passes")
	fs.Parse(args)

	loglvl, err := zerolog.ParseLevel(*loglvlStr)
	if err != nil {
		panic("Failed to parse log level, try debug")
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(loglvl).With().Timestamp().Logger()

	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGUSR1)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loop := &reconcile.Loop{
		Router:   upnpc.NewClient(),
		Paths:    strings.Split(*pathsStr, ","),
		Interval: *interval,
		Reload:   reload,
	}
	log.Info().Msgf("starting, config locations: %s", *pathsStr)
	if err := loop.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("reconciliation failed")
	}
	log.Info().Msg("interrupted, exiting")
}

// configureCmd edits a rule file in place: load, add or del, dump back.
func configureCmd(args []string) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if len(args) < 3 {
		usage()
	}
	path, action := args[0], args[1]

	port, err := strconv.Atoi(args[2])
	if err != nil || port < 1 || port > 65535 {
		log.Fatal().Msgf("Invalid port %q", args[2])
	}

	fs := flag.NewFlagSet("configure", flag.ExitOnError)
	protocolStr := fs.String("protocol", "tcp", "tcp or udp")
	externalPort := fs.Int("external_port", 0, "external port, defaults to port")
	fs.Parse(args[3:])

	protocol, err := rules.ParseProtocol(*protocolStr)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid protocol")
	}
	if *externalPort < 0 || *externalPort > 65535 {
		log.Fatal().Msgf("Invalid external port %d", *externalPort)
	}

	set, err := rules.Load(path)
	if err != nil {
		log.Fatal().Err(err).Msgf("Failed to load %s", path)
	}

	switch action {
	case "add":
		set.Add(uint16(port), uint16(*externalPort), protocol)
	case "del":
		if err := set.Remove(uint16(port), protocol); err != nil {
			log.Fatal().Err(err).Msgf("Failed to remove rule from %s", path)
		}
	default:
		usage()
	}

	if err := rules.Dump(path, set); err != nil {
		log.Fatal().Err(err).Msgf("Failed to write %s", path)
	}
}
