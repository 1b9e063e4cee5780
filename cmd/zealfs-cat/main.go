package main

import (
	"fmt"
	"io/ioutil"
	"os"

	"github.com/dsoprea/go-logging"
	"github.com/jessevdk/go-flags"

	"github.com/zealfs/go-zealfs"
)

type rootParameters struct {
	ImageFilepath  string `short:"f" long:"image-filepath" description:"Path of the ZealFS image" required:"true"`
	ExtractPath    string `short:"e" long:"extract-path" description:"Path inside the image to extract" required:"true"`
	OutputFilepath string `short:"o" long:"output-filepath" description:"File-path to write to ('-' for STDOUT)" required:"true"`
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

	backing, err := ioutil.ReadFile(rootArguments.ImageFilepath)
	log.PanicIf(err)

	eng, err := zealfs.OpenBacking(backing)
	log.PanicIf(err)

	info, err := eng.GetAttr(rootArguments.ExtractPath)
	if err == zealfs.ErrNotFound {
		fmt.Printf("File not found.\n")
		os.Exit(2)
	}
	log.PanicIf(err)

	if info.IsDir {
		fmt.Printf("Not a file.\n")
		os.Exit(2)
	}

	h, err := eng.Open(rootArguments.ExtractPath)
	log.PanicIf(err)

	data, err := eng.Read(h, 0, int(info.Size))
	log.PanicIf(err)

	var g *os.File

	if rootArguments.OutputFilepath == "-" {
		g = os.Stdout
	} else {
		g, err = os.Create(rootArguments.OutputFilepath)
		log.PanicIf(err)

		defer g.Close()
	}

	_, err = g.Write(data)
	log.PanicIf(err)

	if rootArguments.OutputFilepath != "-" {
		fmt.Printf("(%d) bytes written.\n", len(data))
	}
}
