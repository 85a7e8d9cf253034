package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tao-j/helvetic/internal/config"
	"github.com/tao-j/helvetic/internal/protocol"
	"github.com/tao-j/helvetic/internal/utils"
)

func newDecodeCommand(v *viper.Viper) *cobra.Command {
	c := &cobra.Command{
		Use:   "decode <file>",
		Short: "Decode a captured upload body and show the response it would get",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			upload, err := protocol.Decode(body)
			if err != nil {
				return err
			}

			profile := config.DefaultProfile()
			if path := v.GetString("profile"); path != "" {
				if profile, err = config.LoadProfile(path); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			h := upload.Header
			fmt.Fprintf(out, "mac:        %s\n", h.MACString())
			fmt.Fprintf(out, "protocol:   %d\n", h.ProtocolVersion)
			fmt.Fprintf(out, "battery:    %d%%\n", h.BatteryPercent)
			fmt.Fprintf(out, "firmware:   %d\n", h.FirmwareVersion)
			fmt.Fprintf(out, "scale time: %d (%s)\n", h.ScaleTimestamp, time.Unix(int64(h.ScaleTimestamp), 0).UTC().Format(time.RFC3339))
			fmt.Fprintf(out, "blocks:     %d of %d announced\n", len(upload.Blocks), h.MeasurementCount)

			if len(upload.Blocks) > 0 {
				fmt.Fprintln(out)
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tWEIGHT_KG\tFAT_PCT\tIMPEDANCE\tUSER\tTIME")
				for _, b := range upload.Blocks {
					r := b.Record()
					fmt.Fprintf(tw, "%d\t%.3f\t%.3f\t%d\t%d\t%s\n",
						b.ID, r.Weight, r.BodyFat, b.Impedance, b.UserID, r.Time().Format(time.RFC3339))
				}
				if err := tw.Flush(); err != nil {
					return err
				}
			}

			if v.GetBool("decode.dump") {
				fmt.Fprintf(out, "\nbody:\n%s", utils.HexDump(body))
			}

			resp := protocol.EncodeResponse(protocol.ResponseParams{
				Now:            uint32(time.Now().Unix()),
				LastWeight:     upload.LastWeight(),
				ScaleTimestamp: h.ScaleTimestamp,
				User:           profile.User,
			})
			fmt.Fprintf(out, "\nresponse:\n%s", utils.HexDump(resp[:]))
			return nil
		},
	}
	c.Flags().Bool("dump", false, "hex dump the upload body")
	cobra.CheckErr(v.BindPFlag("decode.dump", c.Flags().Lookup("dump")))
	return c
}
