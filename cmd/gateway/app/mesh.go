package app

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/bujia-iot/carwings-gateway/pkg/mesh"
)

func newMeshCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mesh <id> [x y]",
		Short: "解码网格ID，输出级别、外包框以及网格内偏移对应的经纬度",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 && len(args) != 3 {
				return fmt.Errorf("accepts <id> or <id> <x> <y>, received %d arg(s)", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 0, 32)
			if err != nil {
				return fmt.Errorf("invalid mesh id %q: %w", args[0], err)
			}
			cell, err := mesh.Parse(uint32(id))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "mesh   %08X\n", cell.ID)
			fmt.Fprintf(out, "level  %d\n", cell.Level)
			fmt.Fprintf(out, "fields A=%d B=%d C=%d D=%d E=%d F=%d\n", cell.A, cell.B, cell.C, cell.D, cell.E, cell.F)
			minLat, minLon, maxLat, maxLon := cell.Box().Degrees()
			fmt.Fprintf(out, "box    %.6f,%.6f .. %.6f,%.6f\n", minLat, minLon, maxLat, maxLon)

			if len(args) == 3 {
				x, err := strconv.Atoi(args[1])
				if err != nil {
					return fmt.Errorf("invalid x %q: %w", args[1], err)
				}
				y, err := strconv.Atoi(args[2])
				if err != nil {
					return fmt.Errorf("invalid y %q: %w", args[2], err)
				}
				p, err := mesh.MeshPointToMapPoint(cell.ID, x, y)
				if err != nil {
					return err
				}
				lat, lon := p.Degrees()
				fmt.Fprintf(out, "point  %.6f,%.6f\n", lat, lon)
			}
			return nil
		},
	}
}
