package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tao-j/helvetic/internal/clock"
)

func newRTCCommand(v *viper.Viper) *cobra.Command {
	c := &cobra.Command{
		Use:   "rtc",
		Short: "Read or program the BM8563 real-time clock",
	}
	c.PersistentFlags().String("bus", "", "I2C bus name (default: first bus found)")
	cobra.CheckErr(v.BindPFlag("rtc.bus", c.PersistentFlags().Lookup("bus")))

	get := &cobra.Command{
		Use:   "get",
		Short: "Print the RTC time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rtc, closer, err := clock.OpenBM8563(v.GetString("rtc.bus"))
			if err != nil {
				return err
			}
			defer closer.Close()

			running, err := rtc.IsRunning()
			if err != nil {
				return err
			}
			dt, err := rtc.ReadTime()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (epoch %d, running %t)\n", dt, dt.Unix(), running)
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set [RFC3339|now]",
		Short: "Program the RTC, from the system clock by default",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := parseSetTime(args)
			if err != nil {
				return err
			}
			rtc, closer, err := clock.OpenBM8563(v.GetString("rtc.bus"))
			if err != nil {
				return err
			}
			defer closer.Close()

			dt := clock.FromTime(t)
			if err := rtc.SetTime(dt); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "set %s\n", dt)
			return nil
		},
	}

	c.AddCommand(get, set)
	return c
}

func parseSetTime(args []string) (time.Time, error) {
	if len(args) == 0 || args[0] == "now" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, args[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: %w", args[0], err)
	}
	return t.UTC(), nil
}
