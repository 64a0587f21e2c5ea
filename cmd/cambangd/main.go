// Command cambangd runs a camera-orchestration core over the
// zero-configuration stub provider, drives a short scripted sequence of
// commands against it, and streams JSON snapshots to stdout.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"cambang/engine"
	"cambang/engine/internal/arbitration"
	"cambang/engine/internal/tuning"
	"cambang/engine/pixelformat"
	"cambang/engine/provider"
	"cambang/engine/provider/stub"
)

func main() {
	var (
		tuningPath    string
		snapshotEvery time.Duration
		showVersion   bool
	)

	flag.StringVar(&tuningPath, "tuning-file", "", "Path to a tuning YAML file to load and hot-reload (optional)")
	flag.DurationVar(&snapshotEvery, "snapshot-interval", 2*time.Second, "Interval between periodic snapshot dumps (0=disabled)")
	flag.BoolVar(&showVersion, "version", false, "Show version / build info")
	flag.Parse()

	if showVersion {
		fmt.Println("cambangd v1 (stub provider demo)")
		return
	}

	tuningStore := tuning.NewStore(tuningPath)
	if tuningPath != "" {
		if err := tuningStore.Load(); err != nil {
			log.Fatalf("load tuning file: %v", err)
		}
	}

	cfg := engine.Defaults()
	cfg.Tuning = tuningStore.Current()

	prov := stub.New([]provider.Endpoint{
		{HardwareID: "cam0", Name: "Stub Camera 0"},
		{HardwareID: "cam1", Name: "Stub Camera 1"},
	})
	core := engine.NewCore(cfg, prov, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		log.Println("signal received; initiating graceful shutdown...")
		cancel()
		<-sigCh
		log.Println("second signal received; forcing exit")
		os.Exit(1)
	}()

	if tuningPath != "" {
		changes, errs, err := tuning.WatchTuningFile(ctx, tuningStore)
		if err != nil {
			log.Printf("tuning hot-reload disabled: %v", err)
		} else {
			go forwardTuningChanges(ctx, core, changes, errs)
		}
	}

	done := make(chan struct{})
	go func() {
		core.Run(ctx)
		close(done)
	}()

	subID := core.Subscribe(func(gen, topologyGen uint64) {
		snap, ok := core.Snapshot()
		if !ok {
			return
		}
		b, _ := json.Marshal(snap)
		fmt.Println(string(b))
	})
	defer core.Unsubscribe(subID)

	var ticker *time.Ticker
	if snapshotEvery > 0 {
		ticker = time.NewTicker(snapshotEvery)
		defer ticker.Stop()
		go func() {
			for {
				select {
				case <-ticker.C:
					if snap, ok := core.Snapshot(); ok {
						b, _ := json.MarshalIndent(snap, "", "  ")
						fmt.Fprintf(os.Stderr, "\n=== SNAPSHOT gen=%d topology_gen=%d ===\n%s\n", snap.Gen, snap.TopologyGen, string(b))
					}
				case <-done:
					return
				}
			}
		}()
	}

	if err := runDemoSequence(ctx, core); err != nil {
		log.Printf("demo sequence: %v", err)
	}

	<-ctx.Done()
	<-done
}

// runDemoSequence exercises the public command surface against the two
// stub endpoints: engage both, run a preview stream on one, trigger a
// still capture on the other.
func runDemoSequence(ctx context.Context, core *engine.Core) error {
	eps, err := core.EnumerateEndpoints(ctx)
	if err != nil {
		return fmt.Errorf("enumerate_endpoints: %w", err)
	}
	if len(eps) < 2 {
		return fmt.Errorf("expected at least 2 endpoints, got %d", len(eps))
	}

	inst0, err := core.EngageDevice(ctx, eps[0].HardwareID)
	if err != nil {
		return fmt.Errorf("engage_device %s: %w", eps[0].HardwareID, err)
	}
	inst1, err := core.EngageDevice(ctx, eps[1].HardwareID)
	if err != nil {
		return fmt.Errorf("engage_device %s: %w", eps[1].HardwareID, err)
	}

	streamID, err := core.CreateStream(ctx, inst0, arbitration.StreamProfile{
		Intent: arbitration.IntentPreview, Width: 1280, Height: 720,
		FormatFourCC: pixelformat.NV12, TargetFPSMin: 15, TargetFPSMax: 30,
	}, false)
	if err != nil {
		return fmt.Errorf("create_stream: %w", err)
	}
	if err := core.StartStream(ctx, streamID); err != nil {
		return fmt.Errorf("start_stream: %w", err)
	}

	if err := core.SetStillCaptureProfile(ctx, inst1, arbitration.StillProfile{
		Width: 4032, Height: 3024, FormatFourCC: pixelformat.JPEG,
	}); err != nil {
		return fmt.Errorf("set_still_capture_profile: %w", err)
	}
	if _, err := core.TriggerDeviceCapture(ctx, inst1); err != nil {
		return fmt.Errorf("trigger_device_capture: %w", err)
	}

	return nil
}

func forwardTuningChanges(ctx context.Context, core *engine.Core, changes <-chan tuning.Change, errs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-changes:
			if !ok {
				return
			}
			if err := core.UpdateTuning(ctx, change.Constants); err != nil {
				log.Printf("apply hot-reloaded tuning: %v", err)
			}
		case err, ok := <-errs:
			if !ok {
				return
			}
			log.Printf("tuning watch error: %v", err)
		}
	}
}
