package main

import (
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.App{
		Usage: "Manage sectorfs disk image files",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "image",
				Aliases:  []string{"i"},
				Usage:    "path to the disk image file",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "enable debug logging",
			},
		},
		Before: func(context *cli.Context) error {
			if context.Bool("verbose") {
				logrus.SetLevel(logrus.DebugLevel)
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "format",
				Usage:     "Create or wipe an image",
				Action:    formatImage,
				Flags:     formatFlags,
				ArgsUsage: " ",
			},
			{
				Name:      "mkdir",
				Usage:     "Create a directory",
				Action:    makeDirectory,
				ArgsUsage: "PATH",
			},
			{
				Name:      "create",
				Usage:     "Create an empty file of a fixed size",
				Action:    createFile,
				Flags:     createFlags,
				ArgsUsage: "PATH",
			},
			{
				Name:      "write",
				Usage:     "Copy standard input into a stored file",
				Action:    writeFile,
				ArgsUsage: "PATH",
			},
			{
				Name:      "cat",
				Usage:     "Write a stored file to standard output",
				Action:    catFile,
				ArgsUsage: "PATH",
			},
			{
				Name:      "ls",
				Usage:     "List a directory",
				Action:    listDirectory,
				Flags:     recursiveFlag,
				ArgsUsage: "[PATH]",
			},
			{
				Name:      "rm",
				Usage:     "Remove a file, or a directory tree with -r",
				Action:    removePath,
				Flags:     recursiveFlag,
				ArgsUsage: "PATH",
			},
			{
				Name:      "print",
				Usage:     "Dump the bitmap, directories, and all file headers",
				Action:    printEverything,
				ArgsUsage: " ",
			},
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatalf("fatal error: %s", err.Error())
	}
}
