package main

import (
	"context"

	"github.com/ergotech/suta-bridge/internal/bridge"
	"github.com/ergotech/suta-bridge/internal/device"
	"github.com/ergotech/suta-bridge/internal/infrastructure/config"
	"github.com/ergotech/suta-bridge/internal/infrastructure/influxdb"
	"github.com/ergotech/suta-bridge/internal/infrastructure/logging"
	"github.com/ergotech/suta-bridge/internal/suta"
)

// runScanner feeds discovered beds into the bridge until cancellation.
// Beds recognised from retained discovery configs reconnect straight
// into the tracked set; everything else is offered for pairing.
func runScanner(ctx context.Context, controller *suta.Controller, br *bridge.Bridge, cfg *config.Config, telemetry *influxdb.Client, log *logging.Logger) error {
	return controller.Scan(ctx, func(bed *suta.Bed) {
		address := bed.Address()
		if br.Has(address) {
			return
		}

		frame := device.NewBedFrame(bed, cfg.GetSettleInterval())
		frame.SetLogger(log.With("device", address))
		if telemetry != nil {
			frame.SetPositionRecorder(telemetry.WritePosition)
		}

		if br.IsKnown(address) {
			if err := bed.Connect(ctx); err != nil {
				log.Warn("known bed connect failed", "address", address, "error", err)
				return
			}
			if err := br.AddTracked(ctx, frame); err != nil {
				log.Error("tracking bed failed", "address", address, "error", err)
				return
			}
			log.Info("known bed reconnected", "address", address, "name", bed.Name())
			return
		}

		if err := br.AddUnpaired(ctx, frame); err != nil {
			log.Error("offering bed failed", "address", address, "error", err)
			return
		}
		log.Info("new bed discovered", "address", address, "name", bed.Name())
	})
}
