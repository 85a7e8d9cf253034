// Package cmd holds the scalectl operator commands.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tao-j/helvetic/internal/config"
	"github.com/tao-j/helvetic/internal/db"
	"github.com/tao-j/helvetic/internal/db/migrate"
	"github.com/tao-j/helvetic/internal/measurement"
)

// NewRootCommand builds the command tree with its own viper instance.
// Settings come from flags, HELVETIC_* variables and an optional TOML file.
func NewRootCommand() *cobra.Command {
	v := viper.New()
	var cfgFile string

	root := &cobra.Command{
		Use:          "scalectl",
		Short:        "Inspect uploads, the stored measurement and the scale hardware",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(v, cfgFile)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is /etc/helvetic/scalectl.toml or $HOME/.helvetic/scalectl.toml)")
	flags.String("store.driver", config.StoreFile, "store driver: file or sqlite")
	flags.String("store.path", "last_measurement.bin", "file store path")
	flags.String("sqlite.path", "helvetic.db", "sqlite store path")
	flags.String("profile", "", "profile file used when building responses")
	cobra.CheckErr(v.BindPFlags(flags))

	root.AddCommand(
		newDecodeCommand(v),
		newShowCommand(v),
		newMigrateCommand(v),
		newRTCCommand(v),
		newScanCommand(v),
	)
	return root
}

func initConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath("/etc/helvetic")
		v.AddConfigPath("$HOME/.helvetic")
		v.SetConfigName("scalectl")
		v.SetConfigType("toml")
	}
	v.SetEnvPrefix("HELVETIC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	slog.Debug("using config file", "config", v.ConfigFileUsed())
	return nil
}

// openStore returns the configured store and a release function.
func openStore(ctx context.Context, v *viper.Viper) (measurement.Store, func(), error) {
	switch driver := v.GetString("store.driver"); driver {
	case config.StoreFile:
		return measurement.NewFileStore(v.GetString("store.path")), func() {}, nil
	case config.StoreSQLite:
		conn, err := db.Open(db.Options{Path: v.GetString("sqlite.path")})
		if err != nil {
			return nil, nil, err
		}
		if _, err := migrate.Run(ctx, conn); err != nil {
			_ = db.Close(conn)
			return nil, nil, err
		}
		return measurement.NewSQLStore(conn), func() { _ = db.Close(conn) }, nil
	default:
		return nil, nil, fmt.Errorf("invalid store.driver %q (allowed: file, sqlite)", driver)
	}
}
