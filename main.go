package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/cepro/dercompliance/acuvim2"
	"github.com/cepro/dercompliance/bench"
	"github.com/cepro/dercompliance/config"
	"github.com/cepro/dercompliance/curves"
	dataplatform "github.com/cepro/dercompliance/data_platform"
	"github.com/cepro/dercompliance/eut"
	"github.com/cepro/dercompliance/gridsim"
	"github.com/cepro/dercompliance/hil"
	"github.com/cepro/dercompliance/imbalance"
	"github.com/cepro/dercompliance/orchestrator"
	"github.com/cepro/dercompliance/pvsim"
	"github.com/cepro/dercompliance/repository"
	"github.com/cepro/dercompliance/sim"
	"github.com/cepro/dercompliance/supabase"
	timeutils "github.com/cepro/dercompliance/time_utils"
)

func main() {

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)

	configFilePath := flag.String("config", "./config.yaml", "Path to the config file")
	postprocessDir := flag.String("postprocess", "", "Evaluate the datasets in this directory instead of running a test")
	uploadOnly := flag.Bool("upload", false, "Upload any result rows that are waiting in the database and exit")
	flag.Parse()

	cfg, err := config.Read(*configFilePath)
	if err != nil {
		slog.Error("Failed to read config", "config_file_path", *configFilePath, "error", err)
		os.Exit(1)
	}

	switch {
	case *uploadOnly:
		err = upload(cfg)
	case *postprocessDir != "":
		err = reprocess(cfg, *postprocessDir)
	default:
		err = run(cfg)
	}
	if err != nil {
		slog.Error("Exiting with error", "error", err)
		os.Exit(1)
	}

	slog.Info("Exiting")
}

// run performs the configured test on the bench.
func run(cfg config.Config) error {
	slog.Info("Starting test", "standard", cfg.Test.Standard, "function", cfg.Test.Function, "simulated", cfg.Bench.Simulated)

	// a simulated bench runs against a manual clock, so that a run takes no longer than it takes to compute
	var clock timeutils.Clock = timeutils.SystemClock{}
	if cfg.Bench.Simulated {
		clock = timeutils.NewManualClock(time.Now())
	}

	devices, err := newDevices(cfg, clock)
	if err != nil {
		return err
	}

	var resolver *imbalance.Resolver
	if cfg.Test.ImbalanceMode != "" {
		resolver, err = imbalance.NewResolver(imbalance.Mode(cfg.Test.ImbalanceMode), imbalance.Response(cfg.Test.ImbalanceResponse), cfg.EUT.VNom)
		if err != nil {
			closeDevices(devices)
			return err
		}
	}

	b, err := bench.New(devices, bench.Nameplate{
		VNom:   cfg.EUT.VNom,
		VLow:   cfg.EUT.VLow,
		VHigh:  cfg.EUT.VHigh,
		PRated: cfg.EUT.PRated,
	}, resolver)
	if err != nil {
		closeDevices(devices)
		return err
	}

	repo, err := repository.New(cfg.DatabasePath)
	if err != nil {
		b.Close()
		return fmt.Errorf("create repository: %w", err)
	}
	defer repo.Close()

	catalog, err := newCatalog(cfg)
	if err != nil {
		b.Close()
		return err
	}

	orch, err := orchestrator.New(cfg, b, catalog, clock, repo)
	if err != nil {
		b.Close()
		return err
	}

	err = repo.AddRun(repository.StoredRun{
		ID:        orch.RunID(),
		StartedAt: time.Now(),
		Standard:  cfg.Test.Standard,
		Function:  cfg.Test.Function,
		Mode:      "run",
	})
	if err != nil {
		slog.Error("Failed to store run", "error", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	uploadCtx, stopUpload := context.WithCancel(context.Background())
	uploadDone := make(chan struct{})
	if cfg.DataPlatform.Enabled {
		platform, err := newDataPlatform(cfg, repo)
		if err != nil {
			stopUpload()
			b.Close()
			return err
		}
		go func() {
			platform.Run(uploadCtx, time.Duration(cfg.DataPlatform.UploadIntervalSecs)*time.Second)
			close(uploadDone)
		}()
	} else {
		close(uploadDone)
	}

	err = orch.Run(ctx)

	// the data platform makes a final upload attempt once it is stopped
	stopUpload()
	<-uploadDone

	if err != nil {
		return fmt.Errorf("run test: %w", err)
	}
	slog.Info("Test complete", "summary", orch.SummaryPath())
	return nil
}

// reprocess evaluates the datasets of an earlier run into a fresh summary in the same directory.
func reprocess(cfg config.Config, dir string) error {
	catalog, err := newCatalog(cfg)
	if err != nil {
		return err
	}
	orch, err := orchestrator.New(cfg, nil, catalog, timeutils.SystemClock{})
	if err != nil {
		return err
	}

	summaryName := filepath.Base(orch.SummaryPath())
	err = orch.Reprocessor().ProcessDirectory(dir, summaryName)
	if err != nil {
		return err
	}

	path := filepath.Join(dir, summaryName)
	err = orch.Summary().FlushTo(path)
	if err != nil {
		return err
	}
	slog.Info("Reprocessed datasets", "dir", dir, "rows", len(orch.Summary().Rows()), "summary", path)
	return nil
}

// upload sends the result rows that are waiting in the database to the data platform.
func upload(cfg config.Config) error {
	repo, err := repository.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("create repository: %w", err)
	}
	defer repo.Close()

	platform, err := newDataPlatform(cfg, repo)
	if err != nil {
		return err
	}
	for platform.AttemptUpload() > 0 {
	}
	return nil
}

func newDataPlatform(cfg config.Config, repo *repository.Repository) (*dataplatform.DataPlatform, error) {
	supabaseAnonKey := os.Getenv("SUPABASE_ANON_KEY")
	supabaseUserKey := os.Getenv("SUPABASE_USER_KEY")
	client, err := supabase.New(cfg.DataPlatform.Supabase.Url, supabaseAnonKey, supabaseUserKey, cfg.DataPlatform.Supabase.Schema)
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	return dataplatform.New(repo, client), nil
}

func newCatalog(cfg config.Config) (*curves.Catalog, error) {
	if cfg.CurvesDir == "" {
		return curves.NewCatalog(nil), nil
	}
	var fsys fs.FS = os.DirFS(cfg.CurvesDir)
	if _, err := fs.Stat(fsys, "."); err != nil {
		return nil, fmt.Errorf("open curves directory: %w", err)
	}
	return curves.NewCatalog(fsys), nil
}

// newDevices connects to the configured equipment, or builds the simulated bench.
func newDevices(cfg config.Config, clock timeutils.Clock) (bench.Devices, error) {
	if cfg.Bench.Simulated {
		plant := sim.NewPlant(clock, sim.Nameplate{
			VNom:     cfg.EUT.VNom,
			PRated:   cfg.EUT.PRated,
			SRated:   cfg.EUT.SRated,
			VarRated: cfg.EUT.VarRated,
			FNom:     cfg.EUT.FNom,
			Phases:   cfg.EUT.Phases(),
		}, 100*time.Millisecond)
		return plant.Devices(), nil
	}

	var devices bench.Devices
	var err error
	fail := func(what string, err error) (bench.Devices, error) {
		closeDevices(devices)
		return bench.Devices{}, fmt.Errorf("connect to %s: %w", what, err)
	}

	if cfg.Bench.Grid != nil {
		grid, err := gridsim.New(cfg.Bench.Grid.Host, cfg.Bench.Grid.UnitID)
		if err != nil {
			return fail("grid simulator", err)
		}
		devices.Grid = grid
	}
	if cfg.Bench.PV != nil {
		pv, err := pvsim.New(cfg.Bench.PV.Host, cfg.Bench.PV.UnitID)
		if err != nil {
			return fail("pv simulator", err)
		}
		devices.PV = pv
	}
	if cfg.Bench.HIL != nil {
		rig, err := hil.New(cfg.Bench.HIL.Host, cfg.Bench.HIL.UnitID)
		if err != nil {
			return fail("hil", err)
		}
		devices.HIL = rig
	}

	inverter, err := eut.New(cfg.EUT.Host, cfg.EUT.UnitID)
	if err != nil {
		return fail("eut", err)
	}
	devices.EUT = inverter

	das := cfg.Bench.DAS
	meter, err := acuvim2.New(acuvim2.Config{
		Host:           das.Host,
		UnitID:         das.UnitID,
		Pt1:            das.Pt1,
		Pt2:            das.Pt2,
		Ct1:            das.Ct1,
		Ct2:            das.Ct2,
		Phases:         cfg.EUT.Phases(),
		SampleInterval: time.Duration(das.SampleIntervalMs) * time.Millisecond,
	})
	if err != nil {
		return fail("das", err)
	}
	devices.DAS = meter

	return devices, nil
}

// closeDevices releases equipment that was connected before a bench could be built around it.
func closeDevices(devices bench.Devices) {
	closers := map[string]interface{ Close() error }{}
	if devices.Grid != nil {
		closers["grid"] = devices.Grid
	}
	if devices.PV != nil {
		closers["pv"] = devices.PV
	}
	if devices.HIL != nil {
		closers["hil"] = devices.HIL
	}
	if devices.EUT != nil {
		closers["eut"] = devices.EUT
	}
	if devices.DAS != nil {
		closers["das"] = devices.DAS
	}

	var errs []error
	for name, closer := range closers {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		slog.Error("Failed to release equipment", "error", err)
	}
}
