package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var nocodbCmd = &cobra.Command{
	Use:   "nocodb",
	Short: "Manage the NocoDB bases and tables leads are forwarded to",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := rootCmd.PersistentPreRunE(cmd, args); err != nil {
			return err
		}
		return cfg.Validate("nocodb")
	},
}

var nocodbBasesCmd = &cobra.Command{
	Use:   "bases",
	Short: "List bases",
	RunE: func(cmd *cobra.Command, _ []string) error {
		bases, err := newNocoDBClient().ListBases(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "nocodb bases")
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "ID\tTITLE")
		for _, b := range bases {
			_, _ = fmt.Fprintf(w, "%s\t%s\n", b.ID, b.Title)
		}
		return w.Flush()
	},
}

var nocodbTablesCmd = &cobra.Command{
	Use:   "tables <base-id>",
	Short: "List the tables of a base",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tables, err := newNocoDBClient().ListTables(cmd.Context(), args[0])
		if err != nil {
			return eris.Wrap(err, "nocodb tables")
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "ID\tTITLE\tTABLE")
		for _, t := range tables {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", t.ID, t.Title, t.TableName)
		}
		return w.Flush()
	},
}

var nocodbCreateTableCmd = &cobra.Command{
	Use:   "create-table <base-id> <name>",
	Short: "Create a table with the lead column layout",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := newNocoDBClient().CreateTable(cmd.Context(), args[0], args[1])
		if err != nil {
			return eris.Wrap(err, "nocodb create-table")
		}
		fmt.Fprintf(os.Stdout, "created table %s (%s)\n", table.Title, table.ID)
		return nil
	},
}

func init() {
	nocodbCmd.AddCommand(nocodbBasesCmd)
	nocodbCmd.AddCommand(nocodbTablesCmd)
	nocodbCmd.AddCommand(nocodbCreateTableCmd)
	rootCmd.AddCommand(nocodbCmd)
}
