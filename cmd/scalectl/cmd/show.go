package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tao-j/helvetic/internal/ble"
	"github.com/tao-j/helvetic/internal/utils"
)

func newShowCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the stored measurement and its Bluetooth encodings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, release, err := openStore(cmd.Context(), v)
			if err != nil {
				return err
			}
			defer release()

			r, err := store.Load(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "weight:      %.3f kg\n", r.Weight)
			fmt.Fprintf(out, "body fat:    %.3f %%\n", r.BodyFat)
			fmt.Fprintf(out, "impedance:   %d\n", r.Impedance)
			fmt.Fprintf(out, "timestamp:   %d (%s)\n", r.Timestamp, r.Time().Format(time.RFC3339))
			fmt.Fprintf(out, "user:        %d\n", r.UserID)
			fmt.Fprintf(out, "stabilized:  %t\n", r.IsStabilized)

			p := ble.Encode(r)
			fmt.Fprintln(out)
			fmt.Fprintf(out, "0x2A9D:      %s\n", utils.BytesToHex(p.WeightScale[:]))
			fmt.Fprintf(out, "0x2A9C:      %s\n", utils.BytesToHex(p.BodyComposition[:]))
			if p.Generic != nil {
				fmt.Fprintf(out, "0xFFE1:      %q\n", p.Generic)
			} else {
				fmt.Fprintln(out, "0xFFE1:      (too long, not sent)")
			}
			fmt.Fprintf(out, "adv 0x181B:  %s\n", utils.BytesToHex(p.ServiceData[:]))
			return nil
		},
	}
}
