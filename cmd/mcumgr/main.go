// Command mcumgr manages files and firmware images on SMP peripherals.
//
// Usage:
//
//	mcumgr [-config file.yaml] [-transport sim|serial|ble|quic] [-address A] <command> [args]
//
// Commands:
//
//	stat <path>               print the size of a file on the device
//	hash <path>               print the SHA-256 of a file on the device
//	upload <local> <remote>   write a local file to the device
//	download <remote> <local> read a file from the device
//	upgrade <image>           run the firmware upgrade workflow
//	images                    list image slots
//	erase [slot]              erase an image slot (default 1)
//	confirm [hash]            confirm an image (default: the running one)
//	reset                     reboot the device
//	echo <text>               round-trip text through the device
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/moffa90/go-mcumgr/config"
	"github.com/moffa90/go-mcumgr/fs"
	"github.com/moffa90/go-mcumgr/image"
	"github.com/moffa90/go-mcumgr/logging"
	"github.com/moffa90/go-mcumgr/osmgr"
	"github.com/moffa90/go-mcumgr/smp"
)

// errUsage makes run print the usage text.
var errUsage = errors.New("usage")

// cliFlags are the command-line overrides of the configuration file.
type cliFlags struct {
	configPath string
	transport  string
	address    string
	logLevel   string
}

func millis(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one command and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fset := flag.NewFlagSet("mcumgr", flag.ContinueOnError)
	fset.SetOutput(stderr)

	var f cliFlags
	fset.StringVar(&f.configPath, "config", "", "YAML configuration file")
	fset.StringVar(&f.transport, "transport", "", "transport type: sim, serial, ble or quic")
	fset.StringVar(&f.address, "address", "", "device address (port, BLE address or gateway host:port)")
	fset.StringVar(&f.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	fset.Usage = func() { printUsage(fset, stderr) }

	if err := fset.Parse(args); err != nil {
		return 2
	}
	if fset.NArg() == 0 {
		printUsage(fset, stderr)
		return 2
	}

	cfg, err := loadConfig(f)
	if err != nil {
		fmt.Fprintf(stderr, "configuration error: %v\n", err)
		return 1
	}

	lopts := cfg.LogOptions()
	lopts.Output = stderr
	lr, err := logging.NewLogrus(lopts)
	if err != nil {
		fmt.Fprintf(stderr, "configuration error: %v\n", err)
		return 1
	}
	log := logging.New(lr)

	a, err := newApp(cfg, log, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	defer func() { _ = a.close() }()

	if err := a.dispatch(ctx, fset.Arg(0), fset.Args()[1:]); err != nil {
		if errors.Is(err, errUsage) {
			printUsage(fset, stderr)
			return 2
		}
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

// loadConfig reads the optional file, applies flag overrides, then validates
// and normalizes the result.
func loadConfig(f cliFlags) (*config.Config, error) {
	cfg := &config.Config{}
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if f.transport != "" {
		cfg.Transport.Type = f.transport
	}
	if f.address != "" {
		cfg.Transport.Address = f.address
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	config.Normalize(cfg)
	return cfg, nil
}

func printUsage(fset *flag.FlagSet, w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  mcumgr [options] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  stat <path>                print the size of a file on the device")
	fmt.Fprintln(w, "  hash <path>                print the SHA-256 of a file on the device")
	fmt.Fprintln(w, "  upload <local> <remote>    write a local file to the device")
	fmt.Fprintln(w, "  download <remote> <local>  read a file from the device")
	fmt.Fprintln(w, "  upgrade <image>            run the firmware upgrade workflow")
	fmt.Fprintln(w, "  images                     list image slots")
	fmt.Fprintln(w, "  erase [slot]               erase an image slot (default 1)")
	fmt.Fprintln(w, "  confirm [hash]             confirm an image (default: the running one)")
	fmt.Fprintln(w, "  reset                      reboot the device")
	fmt.Fprintln(w, "  echo <text>                round-trip text through the device")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Options:")
	fset.PrintDefaults()
}

// app holds one client and the managers sharing it.
type app struct {
	cfg    *config.Config
	log    logging.Logger
	client *smp.Client
	files  *fs.Manager
	images *image.Manager
	os     *osmgr.Manager
	stdout io.Writer
	stderr io.Writer
}

func newApp(cfg *config.Config, log logging.Logger, stdout, stderr io.Writer) (*app, error) {
	tr, err := dialTransport(cfg.Transport, log)
	if err != nil {
		return nil, err
	}

	client := smp.New(tr, cfg.SMPOptions(log)...)
	return &app{
		cfg:    cfg,
		log:    log,
		client: client,
		files: fs.New(client,
			fs.WithLogger(log),
			fs.WithTransferOptions(cfg.TransferOptions(log)...),
		),
		images: image.New(client, log),
		os:     osmgr.New(client, log),
		stdout: stdout,
		stderr: stderr,
	}, nil
}

func (a *app) close() error {
	return a.files.Close()
}
