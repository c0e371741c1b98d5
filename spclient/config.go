package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jrick/flagfile"
)

const appName = "spclient"

// errCmdDone is returned when the invocation was fully handled during config
// processing and the process should exit cleanly.
var errCmdDone = errors.New("command done")

type config struct {
	RootDir     string
	LogFile     string
	MaxLogFiles int
	DebugLevel  string

	ListDevices    bool
	CaptureDevice  int
	PlaybackDevice int

	// RecorderHelper is the external delegated recorder command. Empty
	// means no delegated facility is linked.
	RecorderHelper string

	// PlayerCmd is an external player used for containers the local
	// engine cannot decode.
	PlayerCmd string

	// GpsdAddr enables the gpsd location provider. FixedLat/FixedLon
	// provide a static position when no gpsd is available.
	GpsdAddr string
	FixedLat float64
	FixedLon float64
}

func expandPath(homeDir, path string) string {
	if len(path) > 0 && path[0] == '~' {
		path = filepath.Join(homeDir, path[1:])
	}
	return path
}

func defaultAppDataDir(homeDir string) string {
	return filepath.Join(homeDir, ".soundpin")
}

func loadConfig() (*config, error) {
	// Setup defaults.
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	defaultAppDir := defaultAppDataDir(homeDir)
	defaultCfgFile := filepath.Join(defaultAppDir, appName+".conf")
	defaultLogFile := filepath.Join(defaultAppDir, "applogs", appName+".log")

	// Parse CLI arguments.
	fs := flag.NewFlagSet("CLI Arguments", flag.ContinueOnError)
	flagCfgFile := fs.String("cfg", defaultCfgFile, "Config file to load")
	flagListDevices := fs.Bool("lsdev", false, "List audio devices and quit")
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, errCmdDone
		}
		return nil, err
	}

	cfgFile := expandPath(homeDir, *flagCfgFile)

	// Define config file flags.
	fs = flag.NewFlagSet("Config Options", flag.ContinueOnError)
	flagRootDir := fs.String("root", defaultAppDir, "Root of all app data")
	flagCapDevice := fs.Int("capdevice", -1, "Capture device index. -1 for system default")
	flagPlayDevice := fs.Int("playdevice", -1, "Playback device index. -1 for system default")
	flagRecorderHelper := fs.String("recordercmd", "", "External delegated recorder helper command")
	flagPlayerCmd := fs.String("playercmd", "", "External player for foreign containers")

	// location
	flagGpsdAddr := fs.String("location.gpsd", "", "Address of the gpsd daemon")
	flagFixedLat := fs.Float64("location.fixedlat", 0, "Fixed latitude when no gpsd is available")
	flagFixedLon := fs.Float64("location.fixedlon", 0, "Fixed longitude when no gpsd is available")

	// log
	flagLogFile := fs.String("log.logfile", defaultLogFile, "Log file location")
	flagMaxLogFiles := fs.Int("log.maxlogfiles", 3, "Max log files")
	flagDebugLevel := fs.String("log.debuglevel", "info", "Debug Level")

	// Load config from file. A missing config file means defaults.
	f, err := os.Open(cfgFile)
	if err == nil {
		parser := flagfile.Parser{
			ParseSections: true,
		}
		perr := parser.Parse(f, fs)
		f.Close()
		if perr != nil {
			return nil, perr
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	// Sanity check loaded flags.
	if *flagRootDir == "" {
		return nil, fmt.Errorf("flag 'root' cannot be empty")
	}

	return &config{
		RootDir:        expandPath(homeDir, *flagRootDir),
		LogFile:        expandPath(homeDir, *flagLogFile),
		MaxLogFiles:    *flagMaxLogFiles,
		DebugLevel:     *flagDebugLevel,
		ListDevices:    *flagListDevices,
		CaptureDevice:  *flagCapDevice,
		PlaybackDevice: *flagPlayDevice,
		RecorderHelper: expandPath(homeDir, *flagRecorderHelper),
		PlayerCmd:      expandPath(homeDir, *flagPlayerCmd),
		GpsdAddr:       *flagGpsdAddr,
		FixedLat:       *flagFixedLat,
		FixedLon:       *flagFixedLon,
	}, nil
}
