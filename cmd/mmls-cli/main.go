package main

import (
	"context"
	"log/slog"
	"time"

	"mmls-attendance/cmd/mmls-cli/commands"
	"mmls-attendance/internal/notify"
	"mmls-attendance/lib/serviceutil"
	"mmls-attendance/lib/telemetry"
)

func main() {
	ctx := serviceutil.SignalContext()

	tel, err := telemetry.SetupFromEnv(ctx, "mmls-cli")
	if err != nil {
		serviceutil.Fatal("failed to setup telemetry", err)
	}
	if tel.TracerProvider != nil {
		notify.SetTracerProvider(tel.TracerProvider)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := tel.Shutdown(shutdownCtx)
		if err != nil {
			slog.Warn("failed to flush telemetry", "err", err)
		}
	}()

	commands.ExecuteContext(ctx)
}
