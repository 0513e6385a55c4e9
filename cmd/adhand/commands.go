package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"text/tabwriter"
	"time"

	"adhand/internal/app"
	"adhand/internal/config"
	"adhand/internal/timetable"
	logx "adhand/pkg/logx"

	"github.com/urfave/cli"
)

const defaultConfigPath = "./adhand.yaml"

var configFlag = cli.StringFlag{
	Name:   "config, c",
	Usage:  "path to the config file (YAML or JSON)",
	Value:  defaultConfigPath,
	EnvVar: "ADHAND_CONFIG",
}

func newApp() *cli.App {
	a := cli.NewApp()
	a.Name = "adhand"
	a.HelpName = "adhand"
	a.Usage = "prayer-time scheduler and adhan player"
	a.UsageText = "adhand <command> [arguments...]"
	a.Version = version
	a.Commands = []cli.Command{
		{
			Name:   "serve",
			Usage:  "run the daemon",
			Flags:  []cli.Flag{configFlag},
			Action: serve,
		},
		{
			Name:  "timings",
			Usage: "fetch and print one day's timetable",
			Flags: []cli.Flag{
				configFlag,
				cli.StringFlag{
					Name:  "date, d",
					Usage: "date as YYYY-MM-DD (default: today)",
				},
			},
			Action: timings,
		},
		{
			Name:   "validate",
			Usage:  "load and validate the config file",
			Flags:  []cli.Flag{configFlag},
			Action: validate,
		},
		{
			Name:    "version",
			Aliases: []string{"v"},
			Usage:   "print the version",
			Action:  printVersion,
		},
	}
	return a
}

func serve(ctx *cli.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	a, err := app.New(ctx.String("config"))
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(runCtx); err != nil {
		_ = a.Stop(context.Background(), app.StopFatalError)
		return err
	}

	reason := app.StopFatalError
	select {
	case sig := <-sigCh:
		reason = app.StopSIGTERM
		if sig == os.Interrupt {
			reason = app.StopSIGINT
		}
	case <-a.Done():
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)

	if reason == app.StopFatalError {
		if err := a.Err(); err != nil {
			return err
		}
		return errors.New("stopped unexpectedly")
	}
	return nil
}

func loadConfig(ctx *cli.Context) (*config.Config, error) {
	return config.NewManager(ctx.String("config")).Parse()
}

func timings(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	date := time.Now()
	if raw := ctx.String("date"); raw != "" {
		if date, err = time.Parse(timetable.DateLayout, raw); err != nil {
			return fmt.Errorf("--date: %w", err)
		}
		// Noon keeps the date stable across any timezone conversion.
		date = date.Add(12 * time.Hour)
	}

	_, log := logx.New(logx.Config{Level: "warn", Console: true})
	rctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	day, dropped, err := app.Timings(rctx, cfg, date, log)
	if err != nil {
		return err
	}
	printDay(os.Stdout, day, dropped)
	return nil
}

func printDay(w io.Writer, day timetable.DayTimetable, dropped []timetable.Dropped) {
	fmt.Fprintln(w, day.Date)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, e := range day.Entries {
		fmt.Fprintf(tw, "  %s\t%s\n", e.Event, e.Clock)
	}
	_ = tw.Flush()
	for _, d := range dropped {
		fmt.Fprintf(w, "  dropped %q at %q: %v\n", d.Slot.Name, d.Slot.Clock, d.Err)
	}
}

func validate(ctx *cli.Context) error {
	path := ctx.String("config")
	if _, err := config.NewManager(path).Parse(); err != nil {
		return err
	}
	fmt.Printf("%s: ok\n", path)
	return nil
}

func printVersion(ctx *cli.Context) error {
	fmt.Printf("%s %s (%s, %s_%s)\n", ctx.App.Name, ctx.App.Version, commit, runtime.GOOS, runtime.GOARCH)
	return nil
}
