package main

import (
	"log"
	"os"

	"github.com/mitchellh/cli"

	"github.com/RoMcHiKo0o/ratelimiter/subcommand/proxy"
)

const version = "0.1.0"

func main() {
	ui := &cli.BasicUi{Writer: os.Stdout, ErrorWriter: os.Stderr}
	c := cli.NewCLI("ratelimiter", version)
	c.Args = os.Args[1:]
	c.Commands = map[string]cli.CommandFactory{
		"proxy": func() (cli.Command, error) {
			return &proxy.Command{UI: ui}, nil
		},
	}

	exitStatus, err := c.Run()
	if err != nil {
		log.Println(err)
	}
	os.Exit(exitStatus)
}
