package main

import (
	"io/ioutil"
	"os"

	"github.com/dsoprea/go-logging"
	"github.com/jessevdk/go-flags"

	"github.com/zealfs/go-zealfs"
)

type rootParameters struct {
	ImageFilepath string `short:"f" long:"image-filepath" description:"Path of the new image to write" required:"true"`
	SizeKiB       uint64 `short:"s" long:"size-kib" description:"Image size in KiB" required:"true"`
	V2            bool   `long:"v2" description:"Use the v2 layout instead of v1"`
	MBR           bool   `long:"mbr" description:"Wrap the image in an MBR partition (v2 only)"`
	PageSizeCode  int    `long:"page-size-code" description:"v2 page_size_code override (0..8); default picks the recommended size" default:"-1"`
}

var (
	rootArguments = new(rootParameters)
)

func main() {
	defer func() {
		if state := recover(); state != nil {
			err := log.Wrap(state.(error))
			log.PrintError(err)
			os.Exit(-1)
		}
	}()

	p := flags.NewParser(rootArguments, flags.Default)

	_, err := p.Parse()
	if err != nil {
		os.Exit(1)
	}

	cfg := zealfs.MountConfig{
		ImagePath: rootArguments.ImageFilepath,
		SizeKiB:   rootArguments.SizeKiB,
		MBR:       rootArguments.MBR,
		Variant:   zealfs.V1,
	}

	if rootArguments.V2 {
		cfg.Variant = zealfs.V2
	}

	if rootArguments.PageSizeCode >= 0 {
		code := uint8(rootArguments.PageSizeCode)
		cfg.PageSizeCode = &code
	}

	_, backing, err := zealfs.FormatBacking(cfg)
	log.PanicIf(err)

	err = ioutil.WriteFile(cfg.ImagePath, backing, 0644)
	log.PanicIf(err)
}
