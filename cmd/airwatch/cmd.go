package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli"

	"airwatch/internal/app"
	"airwatch/internal/config"
	"airwatch/internal/timeline"
	"airwatch/pkg/logx"
)

var (
	cfgPath string
	envPath string

	globalFlags = []cli.Flag{
		cli.StringFlag{
			Name:        "config, c",
			Value:       "./config.yaml",
			Usage:       "path to the JSON or YAML config",
			EnvVar:      "AIRWATCH_CONFIG",
			Destination: &cfgPath,
		},
		cli.StringFlag{
			Name:        "env-file",
			Value:       ".env",
			Usage:       "dotenv file loaded before the config (missing is fine)",
			Destination: &envPath,
		},
	}
)

func Execute(args []string) error {
	a := cli.App{
		Name:     "airwatch",
		HelpName: "airwatch",
		Usage:    "release timetable watcher and Telegram notifier",
		Version:  fmt.Sprintf("%s (%s)", version, commit),
		Flags:    globalFlags,
		Before:   loadEnv,
		Commands: []cli.Command{
			{
				Name:   "run",
				Usage:  "run the bot (default)",
				Action: run,
			},
			{
				Name:   "check",
				Usage:  "validate the config and exit",
				Action: check,
			},
			{
				Name:   "plan",
				Usage:  "fetch the schedule and print today's plan without arming anything",
				Action: plan,
			},
		},
		Action: run,
	}
	return a.Run(args)
}

func loadEnv(*cli.Context) error {
	return config.LoadDotEnv(envPath)
}

func run(*cli.Context) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(cfgPath)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		stopCtx, c := context.WithTimeout(context.Background(), 10*time.Second)
		defer c()
		_ = a.Stop(stopCtx, app.StopFatalError)
		return err
	}

	reason := app.StopSignal
	select {
	case <-ctx.Done():
	case <-a.Done():
		if a.Err() != nil {
			reason = app.StopFatalError
		}
	}

	stopCtx, c := context.WithTimeout(context.Background(), 15*time.Second)
	defer c()
	if err := a.Stop(stopCtx, reason); err != nil {
		return err
	}
	if reason == app.StopFatalError {
		return a.Err()
	}
	return nil
}

func check(*cli.Context) error {
	cfg, err := app.CheckConfig(cfgPath)
	if err != nil {
		return err
	}
	loc, _ := cfg.Location()
	fmt.Printf("config ok: %s (timezone %s, storage %q, owners %d)\n",
		cfgPath, loc, cfg.Storage.Driver, len(cfg.Telegram.OwnerUserIDs))
	return nil
}

func plan(*cli.Context) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx, cancelT := context.WithTimeout(ctx, time.Minute)
	defer cancelT()

	p, err := app.DryRunPlan(ctx, cfgPath, logx.NewConsole("WARN"))
	if err != nil {
		return err
	}
	return printPlan(os.Stdout, p)
}

func printPlan(w io.Writer, p timeline.Plan) error {
	fmt.Fprintf(w, "%s, %s\n", p.Day, p.Now.Format("2006-01-02 15:04 MST"))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "AIR\tTITLE\tDELTA\tDECISION\tAT")
	for _, e := range p.Entries {
		at := "-"
		if !e.At.IsZero() {
			at = e.At.Format("15:04:05")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.Item.AirTime, e.Item.Title, e.Delta.Round(time.Second), e.Decision, at)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "rollover at %s\n", p.Rollover.Format("Mon 15:04 MST"))
	return err
}
