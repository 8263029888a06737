package config

import (
	"flag"
	"strings"
)

// Flags are the command-line overrides shared by both commands.
type Flags struct {
	fs *flag.FlagSet

	config   *string
	debug    *bool
	library  *string
	assets   *string
	listen   *string
	master   *string
	name     *string
	replicas *int
	headless *bool
	width    *int
	height   *int
	export   *string
}

// RegisterFlags defines the override flags on fs.
func RegisterFlags(fs *flag.FlagSet) *Flags {
	return &Flags{
		fs:       fs,
		config:   fs.String("config", "", "Path to config file"),
		debug:    fs.Bool("debug", false, "Enable debug logging"),
		library:  fs.String("library", "", "Asset library file"),
		assets:   fs.String("assets", "", "Comma-separated asset names to instantiate"),
		listen:   fs.String("listen", "", "Master listen address"),
		master:   fs.String("master", "", "Master websocket URL"),
		name:     fs.String("name", "", "Replica name"),
		replicas: fs.Int("replicas", 0, "Replicas to wait for before the first frame"),
		headless: fs.Bool("headless", false, "Run the replica without a window"),
		width:    fs.Int("width", 0, "Window width"),
		height:   fs.Int("height", 0, "Window height"),
		export:   fs.String("export", "", "Write a glTF snapshot to this path"),
	}
}

// ConfigPath returns the explicit config path if provided via -config.
func (f *Flags) ConfigPath() string {
	if f == nil {
		return ""
	}
	return *f.config
}

// apply copies every flag that was set on the command line.
func (f *Flags) apply(cfg *Config) {
	if f == nil {
		return
	}
	f.fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "debug":
			if *f.debug {
				cfg.Logging.Level = "debug"
			}
		case "library":
			cfg.Engine.AssetLibrary = *f.library
		case "assets":
			cfg.Engine.Assets = splitList(*f.assets)
		case "listen":
			cfg.Cluster.Listen = *f.listen
		case "master":
			cfg.Cluster.MasterURL = *f.master
		case "name":
			cfg.Cluster.Name = *f.name
		case "replicas":
			cfg.Cluster.Replicas = *f.replicas
		case "headless":
			cfg.Display.Headless = *f.headless
		case "width":
			cfg.Display.Width = *f.width
		case "height":
			cfg.Display.Height = *f.height
		case "export":
			cfg.Export.GLTFPath = *f.export
		}
	})
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
