package main

import (
	"fmt"
	"io"
	"os"

	"github.com/dargueta/sectorfs"
	"github.com/dargueta/sectorfs/disk"
	"github.com/dargueta/sectorfs/disks"
	"github.com/dargueta/sectorfs/fs"
	"github.com/urfave/cli/v2"
)

var formatFlags = []cli.Flag{
	&cli.StringFlag{
		Name:  "geometry",
		Usage: "predefined disk geometry to size the image with",
		Value: "scout",
	},
	&cli.IntFlag{
		Name:  "sectors",
		Usage: "total sector count, overriding the geometry",
	},
}

var createFlags = []cli.Flag{
	&cli.IntFlag{
		Name:     "size",
		Usage:    "file size in bytes, fixed for the life of the file",
		Required: true,
	},
}

var recursiveFlag = []cli.Flag{
	&cli.BoolFlag{
		Name:    "recursive",
		Aliases: []string{"r"},
	},
}

func formatImage(context *cli.Context) error {
	numSectors := context.Int("sectors")
	if numSectors == 0 {
		geometry, err := disks.Get(context.String("geometry"))
		if err != nil {
			return err
		}
		numSectors = int(geometry.TotalSectors())
	}

	imageFile, err := os.OpenFile(
		context.String("image"), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer imageFile.Close()

	if err := imageFile.Truncate(int64(numSectors) * sectorfs.SectorSize); err != nil {
		return err
	}

	device, err := disk.NewStreamDevice(imageFile, numSectors)
	if err != nil {
		return err
	}
	_, err = fs.New(device, true)
	return err
}

// mountImage opens an existing image and mounts the file system on it. The
// sector count is implied by the image size.
func mountImage(context *cli.Context) (*fs.FileSystem, *os.File, error) {
	imageFile, err := os.OpenFile(context.String("image"), os.O_RDWR, 0)
	if err != nil {
		return nil, nil, err
	}

	info, err := imageFile.Stat()
	if err != nil {
		imageFile.Close()
		return nil, nil, err
	}
	if info.Size()%sectorfs.SectorSize != 0 {
		imageFile.Close()
		return nil, nil, sectorfs.ErrInvalidArgument.WithMessage(fmt.Sprintf(
			"image size %d is not a multiple of the sector size %d",
			info.Size(),
			sectorfs.SectorSize))
	}

	device, err := disk.NewStreamDevice(imageFile, int(info.Size()/sectorfs.SectorSize))
	if err != nil {
		imageFile.Close()
		return nil, nil, err
	}

	fileSystem, err := fs.New(device, false)
	if err != nil {
		imageFile.Close()
		return nil, nil, err
	}
	return fileSystem, imageFile, nil
}

func pathArgument(context *cli.Context) (string, error) {
	if context.NArg() != 1 {
		return "", sectorfs.ErrInvalidArgument.WithMessage("expected exactly one PATH argument")
	}
	return context.Args().First(), nil
}

func makeDirectory(context *cli.Context) error {
	path, err := pathArgument(context)
	if err != nil {
		return err
	}
	fileSystem, imageFile, err := mountImage(context)
	if err != nil {
		return err
	}
	defer imageFile.Close()
	return fileSystem.CreateDir(path)
}

func createFile(context *cli.Context) error {
	path, err := pathArgument(context)
	if err != nil {
		return err
	}
	fileSystem, imageFile, err := mountImage(context)
	if err != nil {
		return err
	}
	defer imageFile.Close()
	return fileSystem.Create(path, context.Int("size"))
}

func writeFile(context *cli.Context) error {
	path, err := pathArgument(context)
	if err != nil {
		return err
	}
	fileSystem, imageFile, err := mountImage(context)
	if err != nil {
		return err
	}
	defer imageFile.Close()

	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return err
	}

	id, err := fileSystem.Open(path)
	if err != nil {
		return err
	}
	defer fileSystem.Close(id)

	written, err := fileSystem.Write(id, data)
	if err != nil {
		return err
	}
	if written < len(data) {
		return sectorfs.ErrNoSpaceOnDevice.WithMessage(fmt.Sprintf(
			"wrote %d of %d bytes; the file's fixed size is too small", written, len(data)))
	}
	return nil
}

func catFile(context *cli.Context) error {
	path, err := pathArgument(context)
	if err != nil {
		return err
	}
	fileSystem, imageFile, err := mountImage(context)
	if err != nil {
		return err
	}
	defer imageFile.Close()

	id, err := fileSystem.Open(path)
	if err != nil {
		return err
	}
	defer fileSystem.Close(id)

	buffer := make([]byte, sectorfs.SectorSize)
	for {
		numRead, err := fileSystem.Read(id, buffer)
		if numRead > 0 {
			if _, writeErr := os.Stdout.Write(buffer[:numRead]); writeErr != nil {
				return writeErr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func listDirectory(context *cli.Context) error {
	path := ""
	if context.NArg() > 0 {
		path = context.Args().First()
	}
	fileSystem, imageFile, err := mountImage(context)
	if err != nil {
		return err
	}
	defer imageFile.Close()
	return fileSystem.List(os.Stdout, path, context.Bool("recursive"))
}

func removePath(context *cli.Context) error {
	path, err := pathArgument(context)
	if err != nil {
		return err
	}
	fileSystem, imageFile, err := mountImage(context)
	if err != nil {
		return err
	}
	defer imageFile.Close()
	return fileSystem.Remove(path, context.Bool("recursive"))
}

func printEverything(context *cli.Context) error {
	fileSystem, imageFile, err := mountImage(context)
	if err != nil {
		return err
	}
	defer imageFile.Close()
	return fileSystem.Print(os.Stdout)
}
