package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-mapview/internal/catalog"
	"github.com/joeblew999/plat-mapview/internal/config"
	"github.com/joeblew999/plat-mapview/internal/server"
)

// Options defines all CLI flags and env vars for the map server.
// Flags: --host, --port, --data-dir, --web-dir, --config
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, SERVICE_WEB_DIR, SERVICE_CONFIG
type Options struct {
	Host    string `doc:"Host to bind to" default:"0.0.0.0"`
	Port    int    `doc:"Port to listen on" short:"p" default:"8086"`
	DataDir string `doc:"Directory for the geocode cache database" default:".data"`
	WebDir  string `doc:"Directory with fragments/*.html template overrides"`
	Config  string `doc:"Path to a mapview.yaml settings file"`
}

func loadSettings(opts *Options) *config.Config {
	settings, err := config.Load(opts.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := config.InitLogger(settings.Log); err != nil {
		fmt.Fprintf(os.Stderr, "Error initialising logger: %v\n", err)
		os.Exit(1)
	}
	return settings
}

func newServer(opts *Options) *server.Server {
	srv, err := server.New(server.Config{
		Host:     opts.Host,
		Port:     fmt.Sprintf("%d", opts.Port),
		DataDir:  opts.DataDir,
		WebDir:   opts.WebDir,
		Settings: loadSettings(opts),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error starting server: %v\n", err)
		os.Exit(1)
	}
	return srv
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		var srv *server.Server
		httpSrv := &http.Server{Addr: fmt.Sprintf("%s:%d", opts.Host, opts.Port)}

		hooks.OnStart(func() {
			srv = newServer(opts)
			httpSrv.Handler = srv

			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			fmt.Println()
			fmt.Printf("plat-mapview server starting...\n")
			fmt.Printf("  Server:  %s\n", baseURL)
			fmt.Printf("  Data:    %s\n", opts.DataDir)
			fmt.Println()
			fmt.Printf("  Viewer:  %s/viewer\n", baseURL)
			fmt.Printf("  Docs:    %s/docs\n", baseURL)
			fmt.Printf("  OpenAPI: %s/openapi.json\n", baseURL)
			fmt.Println()

			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				zap.L().Fatal("server error", zap.Error(err))
			}
		})

		hooks.OnStop(func() {
			httpSrv.Close()
			if srv != nil {
				srv.Close()
			}
			zap.L().Sync()
		})
	})

	cli.Root().Use = "mapview"
	cli.Root().Short = "Map layer and annotation viewer"
	cli.Root().Version = "0.1.0"

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			srv := newServer(opts)
			defer srv.Close()
			spec := srv.OpenAPI()

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
			var err error
			if useYAML {
				output, err = yaml.Marshal(spec)
			} else {
				output, err = json.MarshalIndent(spec, "", "  ")
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error marshaling spec: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(output))
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	// catalog subcommand: print the layer catalog in the file format
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Print the layer catalog as YAML (the built-in one unless configured)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			settings := loadSettings(opts)
			cat := catalog.Default()
			if settings.Map.CatalogPath != "" {
				var err error
				if cat, err = catalog.Load(settings.Map.CatalogPath); err != nil {
					fmt.Fprintf(os.Stderr, "Error loading catalog: %v\n", err)
					os.Exit(1)
				}
			}
			out, err := cat.Marshal()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error marshaling catalog: %v\n", err)
				os.Exit(1)
			}
			fmt.Print(string(out))
		}),
	}
	cli.Root().AddCommand(catalogCmd)

	cli.Run()
}
