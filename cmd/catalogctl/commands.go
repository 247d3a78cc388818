package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ashureev/skincare-picker/internal/catalog"
	"github.com/ashureev/skincare-picker/internal/domain"
)

type sourceFlags struct {
	url     string
	path    string
	timeout time.Duration
}

func (f *sourceFlags) load(ctx context.Context) ([]domain.Product, error) {
	src, err := catalog.NewSource(f.url, f.path, f.timeout)
	if err != nil {
		return nil, err
	}
	return catalog.NewLoader(src).FetchAll(ctx)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func newRootCmd() *cobra.Command {
	flags := &sourceFlags{}
	root := &cobra.Command{
		Use:           "catalogctl",
		Short:         "Inspect and convert skincare product catalogs",
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&flags.url, "url", os.Getenv("CATALOG_URL"), "catalog URL (wins over --path)")
	root.PersistentFlags().StringVar(&flags.path, "path", envOr("CATALOG_PATH", "./products.json"), "catalog file (.json or .xlsx)")
	root.PersistentFlags().DurationVar(&flags.timeout, "timeout", envDuration("CATALOG_TIMEOUT", 15*time.Second), "HTTP timeout for --url")

	root.AddCommand(newCategoriesCmd(flags), newValidateCmd(flags), newConvertCmd(flags))
	return root
}

func newCategoriesCmd(flags *sourceFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List categories with product counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			products, err := flags.load(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, c := range catalog.Categories(products) {
				fmt.Fprintf(out, "%-20s %d\n", c, len(catalog.Filter(products, c)))
			}
			return nil
		},
	}
}

func newValidateCmd(flags *sourceFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Report duplicate names and entries missing a category or image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			products, err := flags.load(cmd.Context())
			if err != nil {
				return err
			}
			problems := catalog.Validate(products)
			out := cmd.OutOrStdout()
			for _, p := range problems {
				fmt.Fprintln(out, p)
			}
			if len(problems) > 0 {
				return fmt.Errorf("%d problem(s) in %d products", len(problems), len(products))
			}
			fmt.Fprintf(out, "%d products OK\n", len(products))
			return nil
		},
	}
}

func newConvertCmd(flags *sourceFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "convert OUTPUT",
		Short: "Write the catalog to a .json or .xlsx file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			products, err := flags.load(cmd.Context())
			if err != nil {
				return err
			}
			target := args[0]
			switch strings.ToLower(filepath.Ext(target)) {
			case ".xlsx":
				err = catalog.WriteXLSX(target, products)
			case ".json":
				err = writeJSONFile(target, products)
			default:
				return fmt.Errorf("unsupported output %q: use .json or .xlsx", target)
			}
			if err != nil {
				return fmt.Errorf("write %s: %w", target, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d products to %s\n", len(products), target)
			return nil
		},
	}
}

func writeJSONFile(path string, products []domain.Product) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := catalog.WriteJSON(f, products); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
