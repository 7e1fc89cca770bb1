package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"solaar-settings/internal/store"
)

// app holds what the commands share once the root pre-run has opened it.
type app struct {
	cfg    *Config
	logger *slog.Logger
	store  *store.Store
	mqtt   *mqttStopper
}

var (
	header  = color.New(color.Bold)
	success = color.New(color.FgGreen)
	muted   = color.New(color.Faint)
)

func newRootCmd(a *app) *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:          "solaar-settings",
		Short:        "Inspect and edit persisted device settings",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cfgPath == "" {
				cfgPath = filepath.Join(store.ConfigHome(), "solaar", "settings-cli.yaml")
			}
			return a.open(cfgPath)
		},
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "run configuration file")

	root.AddCommand(
		newListCmd(a),
		newShowCmd(a),
		newRegisterCmd(a),
		newSetCmd(a),
		newMigrateCmd(a),
		newWatchCmd(a),
	)
	return root
}

func (a *app) open(cfgPath string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	if err := cfg.validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	delay, _ := cfg.saveDelay()

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	backend, err := openBackend(cfg, logger)
	if err != nil {
		return err
	}
	events := store.NewEventBus(logger)
	a.cfg = cfg
	a.logger = logger
	a.mqtt = initMQTT(events, cfg, logger)
	a.store = store.New(backend, store.Options{
		Version:    version,
		DeferSaves: cfg.Store.DeferSaves,
		SaveDelay:  delay,
		Events:     events,
	}, logger)
	logger.Debug("store opened", "backend", cfg.Store.Backend, "location", backend.Location())
	return nil
}

// close flushes pending saves and disconnects. It runs even when a command
// fails.
func (a *app) close() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.mqtt.Stop()
	a.store = nil
	return err
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored device records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			records := a.store.Records()
			if len(records) == 0 {
				muted.Fprintln(cmd.OutOrStdout(), "no device records")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			header.Fprintln(w, "#\tNAME\tWPID\tSERIAL\tMODEL\tUNIT\tSETTINGS")
			for i, r := range records {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%d\n",
					i, dash(r.Name()), dash(r.WPID()), dash(r.Serial()),
					dash(r.ModelID()), dash(r.UnitID()), len(r.Keys()))
			}
			return w.Flush()
		},
	}
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <index>",
		Short: "Show every key of one record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.record(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			header.Fprintln(out, dash(r.Name()))
			for _, k := range r.Keys() {
				v, _ := r.Get(k)
				fmt.Fprintf(out, "  %s: %v\n", k, v)
			}
			return nil
		},
	}
}

func newRegisterCmd(a *app) *cobra.Command {
	var id store.Identity
	var offline bool
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Resolve a device to its record, creating one for online devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id.Online = !offline
			r := a.store.Persister(id)
			if r == nil {
				muted.Fprintln(cmd.OutOrStdout(), "offline device has no record")
				return nil
			}
			idx := indexOf(a.store.Records(), r)
			success.Fprintf(cmd.OutOrStdout(), "record %d: %s\n", idx, dash(r.Name()))
			return nil
		},
	}
	cmd.Flags().StringVar(&id.Name, "name", "", "device name")
	cmd.Flags().StringVar(&id.WPID, "wpid", "", "wireless product ID")
	cmd.Flags().StringVar(&id.Serial, "serial", "", "serial number")
	cmd.Flags().StringVar(&id.ModelID, "model", "", "model ID")
	cmd.Flags().StringVar(&id.UnitID, "unit", "", "unit ID")
	cmd.Flags().BoolVar(&offline, "offline", false, "treat the device as offline")
	return cmd
}

func newSetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set <index> <key> <value>",
		Short: "Set a setting value, parsed as YAML",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.record(args[0])
			if err != nil {
				return err
			}
			value, err := applySetting(r, args[1], args[2])
			if err != nil {
				return err
			}
			success.Fprintf(cmd.OutOrStdout(), "%s = %v\n", args[1], value)
			return nil
		},
	}
}

// applySetting stores text under key. Identity keys take the text verbatim
// and _sensitive entries go through the sensitivity policy; anything else is
// parsed as YAML.
func applySetting(r *store.Record, key, text string) (any, error) {
	switch key {
	case store.KeyName, store.KeyWPID, store.KeySerial, store.KeyModelID, store.KeyUnitID:
		return text, r.Set(key, text)
	}

	value, err := store.ParseValue(text)
	if err != nil {
		return nil, err
	}
	if key != store.KeySensitive {
		return value, r.Set(key, value)
	}

	policies, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s wants a mapping of setting to policy, got %q", key, text)
	}
	for name, raw := range policies {
		policy, err := store.ParseSensitivity(raw)
		if err != nil {
			return nil, fmt.Errorf("%s[%s]: %w", key, name, err)
		}
		r.SetSensitivity(name, policy)
	}
	return value, nil
}

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Rewrite the document in the current format and version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n := len(a.store.Records())
			a.store.Save()
			success.Fprintf(cmd.OutOrStdout(), "wrote %d records (version %s)\n", n, a.store.Version())
			return nil
		},
	}
}

func (a *app) record(arg string) (*store.Record, error) {
	idx, err := strconv.Atoi(arg)
	if err != nil {
		return nil, fmt.Errorf("record index %q: %w", arg, err)
	}
	records := a.store.Records()
	if idx < 0 || idx >= len(records) {
		return nil, fmt.Errorf("record index %d out of range (have %d)", idx, len(records))
	}
	return records[idx], nil
}

func indexOf(records []*store.Record, r *store.Record) int {
	for i, x := range records {
		if x == r {
			return i
		}
	}
	return -1
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
