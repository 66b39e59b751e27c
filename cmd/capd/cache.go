package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/bpowers/go-modelcontext/capability"
	"github.com/bpowers/go-modelcontext/persistence"
	"github.com/bpowers/go-modelcontext/persistence/sqlitestore"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the persisted provider cache",
	}
	cmd.AddCommand(newCacheListCmd(), newCacheShowCmd())
	return cmd
}

func newCacheListCmd() *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the records in the cache with their last update time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd.OutOrStdout(), dbPath)
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "path to SQLite database")
	_ = cmd.MarkFlagRequired("db")
	return cmd
}

func runList(w io.Writer, dbPath string) error {
	store, err := sqlitestore.New(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	names, err := store.Names()
	if err != nil {
		return fmt.Errorf("list records: %w", err)
	}

	for _, name := range names {
		updated, err := store.UpdatedAt(name)
		if err != nil {
			return fmt.Errorf("record %s: %w", name, err)
		}
		fmt.Fprintf(w, "%s\t%s\n", name, updated.UTC().Format(time.RFC3339))
	}
	return nil
}

func newCacheShowCmd() *cobra.Command {
	var dbPath, name, format string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the provider descriptors stored in the cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != "json" && format != "jsonl" {
				return fmt.Errorf("--format must be 'json' or 'jsonl'")
			}
			return runShow(cmd.OutOrStdout(), cmd.ErrOrStderr(), dbPath, name, format)
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "path to SQLite database")
	cmd.Flags().StringVar(&name, "record", persistence.DiscoveredServicesKey, "record to display")
	cmd.Flags().StringVar(&format, "format", "json", "output format: json or jsonl")
	_ = cmd.MarkFlagRequired("db")
	return cmd
}

func runShow(w, errw io.Writer, dbPath, name, format string) error {
	store, err := sqlitestore.New(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	value, ok, err := store.Get(name)
	if err != nil {
		return fmt.Errorf("get record: %w", err)
	}
	if !ok {
		fmt.Fprintf(errw, "no record named: %s\n", name)
		return nil
	}

	records, err := capability.SplitRecords(value)
	if err != nil {
		// not a record list; show it as stored
		fmt.Fprintln(w, value)
		return nil
	}
	descriptors := make([]capability.Descriptor, 0, len(records))
	for i, raw := range records {
		d, err := capability.DecodeDescriptor(raw)
		if err != nil {
			fmt.Fprintf(errw, "record %d: %v\n", i, err)
			continue
		}
		descriptors = append(descriptors, d)
	}

	enc := json.NewEncoder(w)
	switch format {
	case "json":
		enc.SetIndent("", "  ")
		if err := enc.Encode(descriptors); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
	case "jsonl":
		for _, d := range descriptors {
			if err := enc.Encode(d); err != nil {
				return fmt.Errorf("encode jsonl: %w", err)
			}
		}
	}
	return nil
}
