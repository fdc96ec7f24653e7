package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/geometry"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/importer"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/zone"
)

var zonesCmd = &cobra.Command{
	Use:   "zones",
	Short: "Manage the zone catalog",
}

var zonesSeedFile string

var zonesSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert zones from a YAML seed file (default: built-in Nairobi zones)",
	Long:  "Insert zones from a YAML seed file. Zones whose name already exists are skipped.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		seed := importer.DefaultSeed()
		if zonesSeedFile != "" {
			f, err := importer.LoadSeedFile(zonesSeedFile)
			if err != nil {
				return err
			}
			seed = f
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		res, err := importer.SeedZones(ctx, st, seed.Zones)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "zones inserted: %d, skipped: %d\n", res.Inserted, res.Skipped)
		return nil
	},
}

var zonesImportOpts importer.ShapefileOptions

var zonesImportCmd = &cobra.Command{
	Use:   "import <file.shp>",
	Short: "Import polygon zones from an ESRI shapefile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		res, err := importer.ImportShapefile(ctx, st, args[0], zonesImportOpts)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "zones inserted: %d, skipped: %d\n", res.Inserted, res.Skipped)
		return nil
	},
}

var zonesListCategory string

var zonesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog zones",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		zones, err := st.ListZones(ctx, zone.Filter{Category: zonesListCategory})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%-6s %-28s %-14s %-10s %s\n", "ID", "NAME", "CATEGORY", "WEATHER", "WKT")
		for _, z := range zones {
			wkt, err := geometry.FormatWKT(z.Geom)
			if err != nil {
				return eris.Wrapf(err, "zones list: zone %d", z.ID)
			}
			weather := "-"
			if z.WeatherCondition != nil {
				weather = *z.WeatherCondition
			}
			fmt.Fprintf(out, "%-6d %-28s %-14s %-10s %s\n", z.ID, z.Name, z.Category, weather, wkt)
		}
		return nil
	},
}

func init() {
	zonesSeedCmd.Flags().StringVar(&zonesSeedFile, "file", "", "YAML seed file")

	zonesImportCmd.Flags().StringVar(&zonesImportOpts.NameField, "name-field", "NAME", "DBF attribute holding the zone name")
	zonesImportCmd.Flags().StringVar(&zonesImportOpts.Category, "category", zone.CategoryDelivery, "category for imported zones")
	zonesImportCmd.Flags().StringVar(&zonesImportOpts.Prefix, "prefix", "Nairobi", "prefix for generated names of unnamed records")
	zonesImportCmd.Flags().StringVar(&zonesImportOpts.Encoding, "encoding", "", "DBF code page (default from .cpg, else UTF-8)")

	zonesListCmd.Flags().StringVar(&zonesListCategory, "category", "", "only list this category")

	zonesCmd.AddCommand(zonesSeedCmd, zonesImportCmd, zonesListCmd)
	rootCmd.AddCommand(zonesCmd)
}
