package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"outweb/cmd/outweb/commands"
	"outweb/lib/telemetry"
	"outweb/lib/util/serviceutil"
)

func main() {
	ctx, cancel := serviceutil.SignalContext()
	defer cancel()

	tel, err := telemetry.SetupFromEnv(ctx, "outweb")
	if err != nil {
		serviceutil.Fatal("failed to set up telemetry", err)
	}

	err = commands.Execute(ctx, commands.NewApp(), os.Args[1:])

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second*5)
	defer shutdownCancel()
	shutdownErr := tel.Shutdown(shutdownCtx)
	if shutdownErr != nil {
		fmt.Fprintln(os.Stderr, "failed to flush telemetry:", shutdownErr)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
