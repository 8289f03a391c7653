package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"skillswap/pkg/db"
	gos3 "skillswap/pkg/s3"
	"skillswap/services/export"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "swapctl",
		Short:         "Operator utility for skillswap workspace bundles",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newBundlesCommand())
	return cmd
}

func newBundlesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bundles",
		Short: "Workspace bundle build and verify operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newBundlesBuildCommand())
	cmd.AddCommand(newBundlesVerifyCommand())
	return cmd
}

func newBundlesBuildCommand() *cobra.Command {
	var (
		workspaceID string
		bucket      string
		output      string
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Export a workspace as a signed bundle",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			wsID, err := uuid.Parse(workspaceID)
			if err != nil {
				return fmt.Errorf("parse workspace id: %w", err)
			}
			if bucket == "" {
				bucket = os.Getenv("S3_BUCKET")
			}

			signer, err := export.NewSignerFromEnv()
			if err != nil {
				return err
			}
			s3Client, err := gos3.NewClientFromEnv()
			if err != nil {
				return fmt.Errorf("s3 client: %w", err)
			}
			pool, err := db.Open(ctx, os.Getenv("DATABASE_URL"))
			if err != nil {
				return fmt.Errorf("database: %w", err)
			}
			defer pool.Close()

			_, err = export.Build(ctx, export.BuildConfig{
				WorkspaceID: wsID,
				Bucket:      bucket,
				Output:      output,
				DB:          pool,
				S3:          s3Client,
				Signer:      signer,
				Stdout:      os.Stdout,
			})
			return err
		},
	}

	cmd.Flags().StringVar(&workspaceID, "workspace", "", "Workspace id to export")
	cmd.Flags().StringVar(&bucket, "bucket", "", "Artifact bucket (defaults to S3_BUCKET)")
	cmd.Flags().StringVar(&output, "output", "", "Destination bundle file (tar.zst)")
	_ = cmd.MarkFlagRequired("workspace")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func newBundlesVerifyCommand() *cobra.Command {
	var bundleFile string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify a bundle's signature and artifact digests",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			signer, err := export.NewSignerFromEnv()
			if err != nil {
				return err
			}
			_, err = export.Verify(ctx, export.VerifyConfig{
				BundlePath: bundleFile,
				Signer:     signer,
				Stdout:     os.Stdout,
			})
			return err
		},
	}

	cmd.Flags().StringVar(&bundleFile, "file", "", "Path to the bundle tar.zst")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
