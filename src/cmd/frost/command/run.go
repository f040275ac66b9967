package command

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/frostnetworks/frost/src/frost"
)

// NewRunCmd returns the command that starts a node.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a frost node",
		RunE:  runFrost,
	}
	addRunFlags(cmd)
	return cmd
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("addr", "a", _config.BindAddr, "Listen IP:Port for the consensus protocol")
	cmd.Flags().String("advertise", "", "Advertise IP:Port to reach this node on")
	cmd.Flags().StringP("keypair", "k", "", "ed25519 seed, 64 hex characters (default: keyfile in datadir)")
	cmd.Flags().StringSliceP("bootstrap", "b", nil, "Bootstrap peer, PeerId@host:port (repeatable)")
	cmd.Flags().Bool("use-tls", false, "Use the mutually authenticated TLS transport")
	cmd.Flags().String("cert-path", "", "TLS certificate file (generated if missing)")
	cmd.Flags().String("key-path", "", "TLS key file (generated if missing)")
	cmd.Flags().String("id", "", "Override the derived node identity (base58)")
	cmd.Flags().String("moniker", "", "Friendly name of this node")
	cmd.Flags().Bool("no-service", false, "Disable the HTTP API service")
	cmd.Flags().StringP("service-listen", "s", _config.ServiceAddr, "Listen IP:Port for the HTTP service")
	cmd.Flags().Bool("store", false, "Use badger persistence instead of an in-memory store")
	cmd.Flags().String("db", "", "Directory for database files")
	cmd.Flags().String("log-file", "", "Duplicate log output to a file")
	cmd.Flags().Int("max-pool", _config.MaxPool, "Connection pool size per target")
	cmd.Flags().DurationP("timeout", "t", _config.Timeout, "Per-round query timeout")
	cmd.Flags().Duration("protocol-period", _config.ProtocolPeriod, "Cadence of the protocol loops")
	cmd.Flags().Duration("stall-timeout", _config.StallTimeout, "How long hail holds a block on undecided cells")
	cmd.Flags().Int("sync-limit", _config.SyncLimit, "Max items in a gap-fill response")
	cmd.Flags().Int("k", _config.Consensus.K, "Sample size per query")
	cmd.Flags().Float64("alpha", _config.Consensus.Alpha, "Quorum threshold, fraction of sampled weight")
	cmd.Flags().Int("beta1", _config.Consensus.Beta1, "Early-commitment streak")
	cmd.Flags().Int("beta2", _config.Consensus.Beta2, "Safety streak")
	cmd.Flags().Int("k-ice", _config.Ice.KIce, "Liveness reservoir window")
	cmd.Flags().Int("ice-beta1", _config.Ice.Beta1, "Liveness decision streak")
	cmd.Flags().Float64("live-threshold", _config.Ice.LiveThreshold, "Supermajority live weight fraction")
}

func runFrost(cmd *cobra.Command, args []string) error {
	if err := bindFlagsLoadViper(cmd); err != nil {
		return err
	}

	datadir, err := cmd.Flags().GetString("datadir")
	if err != nil {
		return err
	}
	_config.SetDataDir(datadir)

	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	logger := _config.Logger()
	logger.WithFields(logrus.Fields{
		"datadir":         _config.DataDir,
		"addr":            _config.BindAddr,
		"use-tls":         _config.UseTLS,
		"store":           _config.Store,
		"service-listen":  _config.ServiceAddr,
		"protocol-period": _config.ProtocolPeriod,
	}).Debug("RUN")

	engine := frost.NewFrost(_config)
	if err := engine.Init(); err != nil {
		logger.WithField("error", err).Error("cannot initialize engine")
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		engine.Shutdown()
	}()

	engine.Run()
	return nil
}

// bindFlagsLoadViper binds the command flags and reads the optional
// frost.toml in the datadir.
func bindFlagsLoadViper(cmd *cobra.Command) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	if err := viper.BindPFlags(cmd.Root().PersistentFlags()); err != nil {
		return err
	}

	viper.SetConfigName("frost")
	viper.AddConfigPath(_config.DataDir)

	if err := viper.ReadInConfig(); err == nil {
		_config.Logger().WithField("file", viper.ConfigFileUsed()).Debug("using config file")
	} else if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
		return err
	}
	return nil
}
