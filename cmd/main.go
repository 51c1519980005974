package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"signalexecutor/cmd/catalogcmd"
	"signalexecutor/cmd/executor"
	"signalexecutor/cmd/flattencmd"
	"signalexecutor/cmd/keys"
	"signalexecutor/cmd/protector"
)

var Version string

func main() {
	app := cli.NewApp()
	app.Name = "Signal Executor CMD"
	app.Usage = "The signal executor command line interface"

	app.Commands = []cli.Command{
		executorCMD,
		protectorCMD,
		catalogCMD,
		flattenCMD,
		keysCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	executorCMD = cli.Command{
		Name:        "executor",
		Usage:       "run the entry executor loop",
		Action:      executorAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Ingests channel messages and submits entry orders`,
	}
	protectorCMD = cli.Command{
		Name:        "protector",
		Usage:       "run the protection reconciliation loop",
		Action:      protectorAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Keeps every open position covered by a trailing stop`,
	}
	catalogCMD = cli.Command{
		Name:        "catalog",
		Usage:       "refresh the instrument catalog once",
		Action:      catalogAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Fetches the instrument snapshot and persists it`,
	}
	flattenCMD = cli.Command{
		Name:      "flatten",
		Usage:     "market-exit open positions",
		Action:    flattenAction,
		ArgsUsage: "",
		Flags: []cli.Flag{
			cli.StringFlag{
				Name:  "venue",
				Usage: "limit the exit to one venue (NFO or MCX)",
			},
		},
		Description: `Cancels working stops and market-exits open positions, all venues or one`,
	}
	keysCMD = cli.Command{
		Name:        "keys",
		Usage:       "encrypt a brokerage credential",
		Action:      keysAction,
		ArgsUsage:   "<plaintext>",
		Flags:       []cli.Flag{},
		Description: `Seals a credential with the configured key for use in env config`,
	}
)

func executorAction(_ *cli.Context) error {

	logrus.Info("Starting executor CMD")
	logrus.WithField("cmd", "executor")

	ex := &executor.Executor{}
	err := ex.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

func protectorAction(_ *cli.Context) error {

	logrus.Info("Starting protector CMD")
	logrus.WithField("cmd", "protector")

	p := &protector.Protector{}
	err := p.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

func catalogAction(_ *cli.Context) error {

	logrus.Info("Starting catalog CMD")
	logrus.WithField("cmd", "catalog")

	c := &catalogcmd.CatalogRefresh{}
	err := c.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

func flattenAction(c *cli.Context) error {

	logrus.Info("Starting flatten CMD")
	logrus.WithField("cmd", "flatten")

	f := &flattencmd.Flatten{Venue: strings.ToUpper(c.String("venue"))}
	err := f.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

func keysAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: keys <plaintext>")
	}
	return keys.Seal(c.Args().Get(0), os.Stdout)
}
