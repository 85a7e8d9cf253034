package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tao-j/helvetic/internal/ble"
)

func newScanCommand(v *viper.Viper) *cobra.Command {
	c := &cobra.Command{
		Use:   "scan",
		Short: "Listen for scale advertisements and print their snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			if d := v.GetDuration("scan.duration"); d > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, d)
				defer cancel()
			}

			scanner := ble.NewScanner(ble.ScanOptions{
				Adapter:    v.GetString("ble.adapter"),
				LocalName:  v.GetString("scan.name"),
				AllRepeats: v.GetBool("scan.all"),
			}, nil)

			out := cmd.OutOrStdout()
			return scanner.Run(ctx, func(s ble.Sighting) {
				fmt.Fprintf(out, "%s  %-17s rssi=%d name=%q weight=%.2fkg impedance=%d time=%s\n",
					s.SeenAt.Format(time.TimeOnly), s.Address, s.RSSI, s.LocalName,
					s.Data.Weight, s.Data.Impedance, s.Data.Time.Format(time.RFC3339))
			})
		},
	}
	c.Flags().String("adapter", "hci0", "BlueZ adapter id")
	c.Flags().String("name", "", "only report this local name")
	c.Flags().Duration("duration", 0, "stop after this long (0 = until interrupted)")
	c.Flags().Bool("all", false, "print repeated advertisements too")
	cobra.CheckErr(v.BindPFlag("ble.adapter", c.Flags().Lookup("adapter")))
	cobra.CheckErr(v.BindPFlag("scan.name", c.Flags().Lookup("name")))
	cobra.CheckErr(v.BindPFlag("scan.duration", c.Flags().Lookup("duration")))
	cobra.CheckErr(v.BindPFlag("scan.all", c.Flags().Lookup("all")))
	return c
}
