// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/vramesh-nv/cuda-durable-allocator/lib/clock"
	"github.com/vramesh-nv/cuda-durable-allocator/lib/gpumem"
	cudafuse "github.com/vramesh-nv/cuda-durable-allocator/lib/gpumem/fuse"
	"github.com/vramesh-nv/cuda-durable-allocator/lib/gpumem/gpudriver"
	"github.com/vramesh-nv/cuda-durable-allocator/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var showVersion bool
	var (
		allowOther bool
		mockGPU    bool
		ordinal    int
	)

	flagSet := pflag.NewFlagSet("cudafsd", pflag.ContinueOnError)
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	flagSet.BoolVar(&allowOther, "allow-other", false, "allow other users to access the mount (requires user_allow_other in /etc/fuse.conf)")
	flagSet.BoolVar(&mockGPU, "mock-gpu", false, "use an in-process mock GPU binding instead of the CUDA driver")
	flagSet.IntVar(&ordinal, "device", 0, "CUDA device ordinal to bind")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return err
	}

	if showVersion {
		fmt.Printf("cudafsd %s\n", version.Info())
		return nil
	}

	if flagSet.NArg() != 1 {
		return fmt.Errorf("usage: cudafsd [flags] <mountpoint>")
	}
	mountpoint := flagSet.Arg(0)

	logger := newLogger()

	if info, err := gpudriver.Diagnose(ordinal); err != nil {
		logger.Warn("gpu diagnostics unavailable", "device", ordinal, "error", err)
	} else {
		logger.Info("gpu device detected",
			"device", info.Ordinal,
			"name", info.Name,
			"total_memory", info.TotalMemory,
			"free_memory", info.FreeMemory,
			"driver_version", info.DriverVersion,
		)
	}

	var binding gpudriver.Binding
	if mockGPU {
		binding = gpudriver.NewMock()
	} else {
		binding = gpudriver.NewCUDABinding(ordinal)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	manager := gpumem.NewManager(binding, clock.Real())
	if err := manager.Initialize(ctx); err != nil {
		return fmt.Errorf("initializing gpu binding: %w", err)
	}

	server, err := cudafuse.Mount(cudafuse.Options{
		Mountpoint: mountpoint,
		Manager:    manager,
		AllowOther: allowOther,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("mounting filesystem: %w", err)
	}

	logger.Info("cudafsd running", "mountpoint", mountpoint, "export_kind", manager.ExportKind())

	<-ctx.Done()
	logger.Info("shutting down")

	if err := server.Unmount(); err != nil {
		logger.Error("failed to unmount filesystem", "error", err)
	}

	if err := manager.Shutdown(context.Background()); err != nil {
		return fmt.Errorf("shutting down allocation manager: %w", err)
	}

	return nil
}

func newLogger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)
	return logger
}
