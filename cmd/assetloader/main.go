package main

import (
	"fmt"
	"os"

	"github.com/alexflint/go-arg"

	"github.com/inkpress/assetloader/internal/config"
)

const version = "0.1.0"

// FetchCmd loads one asset into the cache
type FetchCmd struct {
	URL             string   `arg:"positional,required" help:"URL of the asset"`
	Name            string   `arg:"--name" help:"cache name (default: last path segment of the URL)"`
	ChunkSize       int64    `arg:"--chunk-size" help:"bytes per range request (default: loader.chunk_size_bytes)"`
	Headers         []string `arg:"-H,--header,separate" help:"extra request header as 'Key: Value'"`
	WithCredentials bool     `arg:"--with-credentials" help:"send cookies and authorization cross-origin"`
	Quiet           bool     `arg:"-q,--quiet" help:"do not print progress"`
}

// RequestCmd retrieves and decodes one resource
type RequestCmd struct {
	URL             string   `arg:"positional,required" help:"URL of the resource"`
	Kind            string   `arg:"-k,--kind" default:"text" help:"binary, json, text, xml, xhtml or html"`
	Output          string   `arg:"-o,--output" help:"write the result to this file instead of stdout"`
	Headers         []string `arg:"-H,--header,separate" help:"extra request header as 'Key: Value'"`
	WithCredentials bool     `arg:"--with-credentials" help:"send cookies and authorization cross-origin"`
}

// ServeCmd runs the HTTP server and maintenance loop
type ServeCmd struct {
	Addr string `arg:"--addr" help:"bind address (default: http.bind_addr)"`
}

// HistoryCmd prints recent loads
type HistoryCmd struct {
	Limit int  `arg:"-n,--limit" default:"20" help:"number of loads to show"`
	Stats bool `arg:"--stats" help:"print totals instead of individual loads"`
}

// Args is the root command
type Args struct {
	Config  string `arg:"-c,--config,env:ASSETLOADER_CONFIG" help:"path to YAML configuration file"`
	EnvFile string `arg:"--env-file" default:".env" help:"dotenv file loaded before configuration"`

	Fetch   *FetchCmd   `arg:"subcommand:fetch" help:"load an asset in ranged chunks into the cache"`
	Request *RequestCmd `arg:"subcommand:request" help:"retrieve a resource and print it decoded"`
	Serve   *ServeCmd   `arg:"subcommand:serve" help:"serve cached assets and the loader API"`
	History *HistoryCmd `arg:"subcommand:history" help:"show recorded loads"`
}

// Version is printed by --version
func (Args) Version() string {
	return "assetloader " + version
}

func main() {
	var args Args
	p := arg.MustParse(&args)
	if p.Subcommand() == nil {
		p.Fail("missing subcommand")
	}

	if err := config.LoadDotEnv(args.EnvFile); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load env file: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(args.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	app, err := newApp(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	switch {
	case args.Fetch != nil:
		err = app.runFetch(args.Fetch)
	case args.Request != nil:
		err = app.runRequest(args.Request)
	case args.Serve != nil:
		err = app.runServe(args.Serve)
	case args.History != nil:
		err = app.runHistory(args.History)
	}

	if err != nil {
		app.Close()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
