// Command stylize renders the content of one image in the style of another
// by optimizing the pixels of a candidate image against a pretrained
// convolutional network.
//
// Usage:
//
//	stylize run -style starry.jpg -content dancer.jpg -size 256 -steps 300
//	stylize run -config run.yaml -snapshots output/snapshots
//	stylize run -interactive
//	stylize layers -arch vgg19
//	stylize serve -dir output -addr :8080
//	stylize version
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
)

const version = "v0.1.0"

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run dispatches a subcommand and returns the process exit code.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}

	var err error
	switch args[0] {
	case "run":
		err = runCommand(args[1:], stdin, stdout, stderr)
	case "layers":
		err = layersCommand(args[1:], stdout, stderr)
	case "serve":
		err = serveCommand(args[1:], stderr)
	case "version":
		fmt.Fprintf(stdout, "stylize %s\n", version)
	case "help", "-h", "-help", "--help":
		usage(stdout)
	default:
		fmt.Fprintf(stderr, "stylize: unknown command %q\n\n", args[0])
		usage(stderr)
		return 2
	}

	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, errUsage):
		return 2
	default:
		fmt.Fprintf(stderr, "stylize: %v\n", err)
		return 1
	}
}

// errUsage reports bad flags; the flag set has already printed why.
var errUsage = errors.New("usage")

// parseFlags parses args into fs, mapping parse failures to errUsage.
func parseFlags(fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	switch {
	case err == nil:
		if fs.NArg() > 0 {
			fmt.Fprintf(fs.Output(), "unexpected arguments: %v\n", fs.Args())
			return errUsage
		}
		return nil
	case errors.Is(err, flag.ErrHelp):
		return err
	default:
		return errUsage
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: stylize <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  run        Transfer the style of one image onto another")
	fmt.Fprintln(w, "  layers     List the named stages of the feature network")
	fmt.Fprintln(w, "  serve      Browse generated images over HTTP")
	fmt.Fprintln(w, "  version    Show version")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Run 'stylize <command> -h' for the flags of a command.")
}
