// Command iptv-tuner turns IPTV playlists into an HDHomeRun-style network
// tuner with a matched XMLTV program guide.
//
//	probe  Fetch playlists, probe every stream with ffprobe, save the channel catalog
//	epg    Load guide sources, match against the catalog, save the program guide
//	serve  Serve the tuner HTTP surface from the saved catalog and guide
//	run    probe (when no catalog exists) + epg + serve, with optional scheduled refresh
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/plexiptv/tuner/internal/catalog"
	"github.com/plexiptv/tuner/internal/config"
	"github.com/plexiptv/tuner/internal/guide"
	"github.com/plexiptv/tuner/internal/probe"
	"github.com/plexiptv/tuner/internal/relay"
	"github.com/plexiptv/tuner/internal/store"
	"github.com/plexiptv/tuner/internal/tuner"
)

func main() {
	log.SetFlags(log.LstdFlags)
	log.SetPrefix("[iptv-tuner] ")

	probeCmd := flag.NewFlagSet("probe", flag.ExitOnError)
	probeConfig := probeCmd.String("config", "data/config.json", "Config JSON path")

	epgCmd := flag.NewFlagSet("epg", flag.ExitOnError)
	epgConfig := epgCmd.String("config", "data/config.json", "Config JSON path")

	serveCmd := flag.NewFlagSet("serve", flag.ExitOnError)
	serveConfig := serveCmd.String("config", "data/config.json", "Config JSON path")

	runCmd := flag.NewFlagSet("run", flag.ExitOnError)
	runConfig := runCmd.String("config", "data/config.json", "Config JSON path")
	runRefresh := runCmd.String("refresh", "", `Cron schedule for catalog+guide refresh (e.g. "0 4 * * *" or "@every 12h"); empty = no refresh`)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "probe":
		probeCmd.Parse(os.Args[2:])
		err = runProbe(ctx, *probeConfig)
	case "epg":
		epgCmd.Parse(os.Args[2:])
		err = runEPG(ctx, *epgConfig)
	case "serve":
		serveCmd.Parse(os.Args[2:])
		err = runServe(ctx, *serveConfig, "")
	case "run":
		runCmd.Parse(os.Args[2:])
		err = runAll(ctx, *runConfig, *runRefresh)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s: %v", os.Args[1], err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: iptv-tuner <probe|epg|serve|run> [flags]")
}

func open(configPath string) (*config.Config, *store.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	st, err := store.Open(filepath.Join(cfg.DataDir, "state.db"))
	if err != nil {
		return nil, nil, err
	}
	return cfg, st, nil
}

func buildCatalog(ctx context.Context, cfg *config.Config, st *store.Store) (*catalog.Catalog, error) {
	builder := &catalog.Builder{
		Playlists: cfg.IPTVPlaylists,
		Prober:    probe.New(cfg.Probe),
	}
	cat, err := builder.Build(ctx)
	if err != nil {
		return nil, err
	}
	if err := cat.Save(st); err != nil {
		return nil, err
	}
	log.Printf("catalog saved: %d channels ok, %d failed", len(cat.Successful()), len(cat.Results)-len(cat.Successful()))
	return cat, nil
}

func generateGuide(ctx context.Context, cfg *config.Config, st *store.Store, cat *catalog.Catalog) (guide.Stats, error) {
	loader := &guide.Loader{
		Sources: cfg.EPGSources,
		Rakuten: guide.NewRakuten(cfg.RakutenEPG),
	}
	docs := loader.Load(ctx)
	doc, stats := guide.Generate(cat.Results, docs, time.Now())
	if err := guide.SaveGuide(st, doc); err != nil {
		return stats, err
	}
	log.Printf("guide saved: %d matched, %d synthetic", stats.Matched, stats.Synthetic)
	return stats, nil
}

func runProbe(ctx context.Context, configPath string) error {
	cfg, st, err := open(configPath)
	if err != nil {
		return err
	}
	defer st.Close()
	_, err = buildCatalog(ctx, cfg, st)
	return err
}

func runEPG(ctx context.Context, configPath string) error {
	cfg, st, err := open(configPath)
	if err != nil {
		return err
	}
	defer st.Close()
	cat, err := catalog.Load(st)
	if err != nil {
		return err
	}
	_, err = generateGuide(ctx, cfg, st, cat)
	return err
}

func runServe(ctx context.Context, configPath, refreshSpec string) error {
	cfg, st, err := open(configPath)
	if err != nil {
		return err
	}
	defer st.Close()
	return serveWith(ctx, cfg, st, refreshSpec, false)
}

func runAll(ctx context.Context, configPath, refreshSpec string) error {
	cfg, st, err := open(configPath)
	if err != nil {
		return err
	}
	defer st.Close()
	return serveWith(ctx, cfg, st, refreshSpec, true)
}

// serveWith starts the HTTP server from persisted state. When bootstrap is
// set, a missing catalog is built first and the guide is regenerated.
func serveWith(ctx context.Context, cfg *config.Config, st *store.Store, refreshSpec string, bootstrap bool) error {
	server := &tuner.Server{
		Addr:   fmt.Sprintf(":%d", cfg.Port),
		Config: cfg,
		Store:  st,
		Relay: &relay.Relay{
			UserAgent: cfg.Probe.UserAgent,
			Transcode: cfg.AudioTranscode,
		},
	}

	cat, err := catalog.Load(st)
	if err != nil {
		if !bootstrap {
			log.Printf("serve: %v", err)
		} else {
			cat, err = buildCatalog(ctx, cfg, st)
			if err != nil {
				return err
			}
		}
	}
	if cat != nil {
		server.UpdateCatalog(cat)
		if bootstrap {
			stats, err := generateGuide(ctx, cfg, st, cat)
			if err != nil {
				return err
			}
			server.SetGuideStats(stats)
		}
	}

	if refreshSpec != "" {
		sched := cron.New()
		_, err := sched.AddFunc(refreshSpec, func() {
			log.Print("refresh: rebuilding catalog and guide")
			cat, err := buildCatalog(ctx, cfg, st)
			if err != nil {
				log.Printf("refresh: catalog rebuild failed: %v", err)
				return
			}
			server.UpdateCatalog(cat)
			stats, err := generateGuide(ctx, cfg, st, cat)
			if err != nil {
				log.Printf("refresh: guide generation failed: %v", err)
				return
			}
			server.SetGuideStats(stats)
		})
		if err != nil {
			return fmt.Errorf("invalid refresh schedule %q: %w", refreshSpec, err)
		}
		sched.Start()
		defer sched.Stop()
		log.Printf("refresh scheduled: %s", refreshSpec)
	}

	return server.Run(ctx)
}
