package main

import (
	"fmt"

	"github.com/MarkoPoloResearchLab/parkwash/internal/app"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type demoParking struct {
	name              string
	pricePerHourCents int64
	slots             []string
}

type demoService struct {
	name            string
	priceCents      int64
	durationMinutes int64
}

var (
	demoParkings = []demoParking{
		{name: "Central Garage", pricePerHourCents: 6000, slots: []string{"A1", "A2", "A3", "A4"}},
		{name: "Airport Lot", pricePerHourCents: 4500, slots: []string{"P1", "P2"}},
	}
	demoServices = []demoService{
		{name: "Exterior Wash", priceCents: 1000, durationMinutes: 30},
		{name: "Full Wash", priceCents: 1500, durationMinutes: 45},
		{name: "Detailing", priceCents: 8000, durationMinutes: 180},
	}
)

func newSeedDemoCommand(cfg *app.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "seed-demo",
		Short: "Insert demo parkings, services and users",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger, err := zap.NewDevelopment()
			if err != nil {
				return fmt.Errorf("logger init: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			application, err := app.New(ctx, *cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = application.Close() }()

			customerID, err := application.Store.CreateUser(ctx, "Demo Customer", "customer@parkwash.test", "+15550100")
			if err != nil {
				return err
			}
			staffID, err := application.Store.CreateUser(ctx, "Demo Staff", "staff@parkwash.test", "+15550101")
			if err != nil {
				return err
			}
			for _, parking := range demoParkings {
				parkingID, err := application.Store.CreateParking(ctx, parking.name, parking.pricePerHourCents, parking.slots)
				if err != nil {
					return err
				}
				logger.Info("seeded parking", zap.Uint64("parking_id", uint64(parkingID)), zap.String("name", parking.name))
			}
			for _, service := range demoServices {
				serviceID, err := application.Store.CreateService(ctx, service.name, service.priceCents, service.durationMinutes)
				if err != nil {
					return err
				}
				logger.Info("seeded service", zap.Uint64("service_id", uint64(serviceID)), zap.String("name", service.name))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "customer user_id=%s staff user_id=%s\n", customerID, staffID)
			return nil
		},
	}
}
