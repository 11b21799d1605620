package main

import (
	"fmt"

	"github.com/BTreeMap/SalesPipe/internal/catalog"
	"github.com/spf13/cobra"
)

func newCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the phase catalog",
	}

	var showFile string
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective catalog as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadCatalog(showFile)
			if err != nil {
				return err
			}
			data, err := c.Marshal()
			if err != nil {
				return fmt.Errorf("marshal catalog: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	show.Flags().StringVar(&showFile, "file", "", "YAML override applied on top of the built-in catalog")

	var validateFile string
	validate := &cobra.Command{
		Use:   "validate",
		Short: "Check that an override file loads into a valid catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := catalog.LoadFile(validateFile)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d phases)\n", validateFile, len(c.Phases()))
			return nil
		},
	}
	validate.Flags().StringVar(&validateFile, "file", "", "YAML override to validate")
	_ = validate.MarkFlagRequired("file")

	cmd.AddCommand(show, validate)
	return cmd
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default(), nil
	}
	return catalog.LoadFile(path)
}
