package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-mapview/internal/api"
	"github.com/joeblew999/plat-mapview/internal/api/viewer"
	"github.com/joeblew999/plat-mapview/internal/camera"
	"github.com/joeblew999/plat-mapview/internal/catalog"
	"github.com/joeblew999/plat-mapview/internal/config"
	"github.com/joeblew999/plat-mapview/internal/db"
	"github.com/joeblew999/plat-mapview/internal/engine"
	"github.com/joeblew999/plat-mapview/internal/geoloc"
	"github.com/joeblew999/plat-mapview/internal/mapview"
	"github.com/joeblew999/plat-mapview/internal/search"
	"github.com/joeblew999/plat-mapview/internal/templates"
	"github.com/joeblew999/plat-mapview/pkg/geocode"
)

// Config holds the server configuration.
type Config struct {
	Host     string
	Port     string
	DataDir  string
	WebDir   string // optional directory holding fragments/*.html overrides
	Settings *config.Config
}

// Server is the map viewer HTTP server.
type Server struct {
	config   Config
	mux      *http.ServeMux
	humaAPI  huma.API
	db       *sql.DB
	engine   *engine.Memory
	m        *mapview.Map
	renderer *templates.Renderer
}

// New creates a new map viewer server.
func New(cfg Config) (*Server, error) {
	if cfg.Settings == nil {
		settings, err := config.Load("")
		if err != nil {
			return nil, err
		}
		cfg.Settings = settings
	}
	settings := cfg.Settings

	mux := http.NewServeMux()

	// Create Huma API with humago (pure stdlib) adapter
	humaConfig := huma.DefaultConfig("plat-mapview API", api.Version)
	humaConfig.Info.Description = "Map layer and annotation controller: layer selection, drawing, place search and geolocation."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, api.LinkTransformer())

	s := &Server{
		config:  cfg,
		mux:     mux,
		humaAPI: humago.New(mux, humaConfig),
	}

	renderer, err := s.loadTemplates()
	if err != nil {
		return nil, err
	}
	s.renderer = renderer

	cat, err := loadCatalog(settings.Map.CatalogPath)
	if err != nil {
		return nil, err
	}

	center := engine.Coordinate{Lat: settings.Map.CenterLat, Lon: settings.Map.CenterLon}
	s.engine = engine.NewMemory(engine.Viewport{Center: center, Zoom: settings.Map.Zoom})

	client, cache, err := s.geocoder(settings.Geocoder)
	if err != nil {
		s.Close()
		return nil, err
	}

	var (
		locator  geoloc.Provider
		reported *geoloc.ReportedProvider
	)
	switch settings.Locator.Mode {
	case "static":
		locator = geoloc.StaticProvider{At: engine.Coordinate{Lat: settings.Locator.StaticLat, Lon: settings.Locator.StaticLon}}
	default:
		reported = geoloc.NewReportedProvider(s.engine.RequestLocation)
		locator = reported
	}

	m, err := mapview.New(mapview.Options{
		Catalog:   cat,
		Engine:    s.engine,
		Geocoder:  search.FromClient(client),
		Locator:   locator,
		BaseLayer: settings.Map.BaseLayer,
		LoggedIn:  settings.Session.LoggedIn,
		Camera:    []camera.Option{camera.WithDuration(time.Duration(settings.Map.FlyMillis) * time.Millisecond)},
	})
	if err != nil {
		s.Close()
		return nil, err
	}
	s.m = m

	s.routes(reported, cache, center, settings)
	return s, nil
}

func (s *Server) loadTemplates() (*templates.Renderer, error) {
	if s.config.WebDir == "" {
		return templates.Default()
	}
	r, err := templates.New(os.DirFS(s.config.WebDir))
	if err != nil {
		return nil, eris.Wrapf(err, "server: load templates from %s", s.config.WebDir)
	}
	zap.L().Info("server: loaded fragment templates", zap.String("dir", s.config.WebDir))
	return r, nil
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default(), nil
	}
	cat, err := catalog.Load(path)
	if err != nil {
		return nil, err
	}
	zap.L().Info("server: loaded layer catalog", zap.String("path", path),
		zap.Int("base", len(cat.Base())), zap.Int("overlays", len(cat.Overlays())))
	return cat, nil
}

// geocoder builds the place search client and its cache. The DuckDB cache is
// returned separately so its inspection routes can be mounted.
func (s *Server) geocoder(cfg config.GeocoderConfig) (geocode.Client, *geocode.DuckDBCache, error) {
	opts := []geocode.Option{
		geocode.WithBaseURL(cfg.BaseURL),
		geocode.WithUserAgent(cfg.UserAgent),
		geocode.WithRateLimit(cfg.RatePerSec),
		geocode.WithResultLimit(cfg.ResultLimit),
		geocode.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.TimeoutSecs) * time.Second}),
	}

	var duck *geocode.DuckDBCache
	switch cfg.Cache {
	case "duckdb":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		conn, err := db.Open(ctx, db.Config{DataDir: s.config.DataDir, DBName: "mapview"})
		if err != nil {
			return nil, nil, err
		}
		s.db = conn
		duck, err = geocode.NewDuckDBCache(ctx, conn, cfg.CacheTTLDays)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, geocode.WithCache(duck))
	case "memory":
		opts = append(opts, geocode.WithCache(geocode.NewMemoryCache(time.Duration(cfg.CacheTTLDays)*24*time.Hour)))
	}
	zap.L().Info("server: geocoder ready", zap.String("url", cfg.BaseURL), zap.String("cache", cfg.Cache))
	return geocode.NewClient(opts...), duck, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// OpenAPI returns the generated OpenAPI document.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Map returns the map controller.
func (s *Server) Map() *mapview.Map {
	return s.m
}

// Close closes server resources.
func (s *Server) Close() error {
	if s.m != nil {
		s.m.Close()
	}
	if s.engine != nil {
		s.engine.Close()
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Server) routes(reported *geoloc.ReportedProvider, cache *geocode.DuckDBCache, center engine.Coordinate, settings *config.Config) {
	// Register Huma REST API routes (OpenAPI-documented JSON endpoints)
	huma.AutoRegister(s.humaAPI, api.NewMapHandler(s.m))
	huma.AutoRegister(s.humaAPI, api.NewInfoHandler(s.config.DataDir, settings.Geocoder.Cache, settings.Locator.Mode))
	huma.AutoRegister(s.humaAPI, api.NewDBHandler(s.db, cache))

	// Viewer SSE routes using Huma + Datastar SDK
	v := viewer.New(s.m, s.engine, reported, s.renderer, viewer.PageConfig{
		Title:  "plat-mapview",
		Center: center,
		Zoom:   settings.Map.Zoom,
	})
	v.RegisterRoutes(s.humaAPI)

	// Page routes
	s.mux.HandleFunc("GET /viewer", v.ServePage)
	s.mux.HandleFunc("GET /{$}", v.ServePage)
}
