package main

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/dsoprea/go-logging"
	"github.com/dustin/go-humanize"
	"github.com/jessevdk/go-flags"

	"github.com/zealfs/go-zealfs"
)

type rootParameters struct {
	ImageFilepath  string `short:"f" long:"image-filepath" description:"Path of the ZealFS image" required:"true"`
	FilenameFilter string `short:"p" long:"pattern" description:"Filename filter"`
}

var (
	rootArguments = new(rootParameters)
)

// walk recurses through dirPath, printing every file it finds. ZealFS has no
// notion of a working directory, so every listing starts from "/".
func walk(eng *zealfs.Engine, dirPath string) (err error) {
	h, err := eng.OpenDir(dirPath)
	if err != nil {
		return err
	}

	entries, err := eng.ReadDir(h)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.Name == "." || entry.Name == ".." {
			continue
		}

		childPath := filepath.Join(dirPath, entry.Name)

		if entry.IsDir {
			if err := walk(eng, childPath); err != nil {
				return err
			}

			continue
		}

		if rootArguments.FilenameFilter != "" {
			isMatched, err := filepath.Match(rootArguments.FilenameFilter, entry.Name)
			log.PanicIf(err)

			if isMatched != true {
				continue
			}
		}

		fmt.Printf("%15s %s\n", humanize.Comma(int64(entry.Size)), childPath)
	}

	return nil
}

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

	err = walk(eng, "/")
	log.PanicIf(err)
}
