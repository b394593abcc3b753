package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/neuro220/AddonGrab/internal/batch"
	"github.com/neuro220/AddonGrab/internal/fetch"
	"github.com/neuro220/AddonGrab/internal/identifier"
	"github.com/neuro220/AddonGrab/internal/resolve"
)

const rootDesc = `Download any Chrome or Firefox extension by ID and save it as a plain
zip archive.

Chrome packages (CRX3) have their binary signing header stripped so the
output opens directly as a zip. Firefox packages (XPI) are already plain
archives and are saved verbatim.

Examples:
  addongrab cjpalhdlnbpafiamejdnhcphjbkeiagm
  addongrab --platform firefox uBlock0@raymondhill.net -o ublock.zip
  addongrab --batch ids.txt --continue-on-error
  addongrab --platform firefox --list-versions uBlock0@raymondhill.net`

// options holds the flag values for a single invocation.
type options struct {
	output          string
	version         string
	platform        string
	verbose         bool
	force           bool
	batchSpec       string
	continueOnError bool
	listVersions    bool
}

// addFlags registers the command flags on a flag set.
func (o *options) addFlags(f *pflag.FlagSet) {
	f.StringVarP(&o.output, "output", "o", "", "output zip file path (default: {extension-id}.zip)")
	f.StringVarP(&o.version, "version", "v", "", "extension version to download (default: latest)")
	f.StringVar(&o.platform, "platform", "chrome", "platform to download from (chrome or firefox)")
	f.BoolVar(&o.verbose, "verbose", false, "enable verbose logging")
	f.BoolVarP(&o.force, "force", "f", false, "overwrite the output file if it exists")
	f.StringVar(&o.batchSpec, "batch", "", "batch download: comma-separated IDs or a file with one ID per line")
	f.BoolVar(&o.continueOnError, "continue-on-error", false, "continue a batch run when an individual download fails")
	f.BoolVar(&o.listVersions, "list-versions", false, "list available versions for the addon and exit (firefox only)")
}

func newRootCmd(out io.Writer) *cobra.Command {
	o := &options{}
	cmd := &cobra.Command{
		Use:           "addongrab [extension-id]",
		Short:         "download browser extensions as plain zip archives",
		Long:          rootDesc,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd.Context(), out, args)
		},
	}
	o.addFlags(cmd.Flags())
	return cmd
}

func (o *options) run(ctx context.Context, out io.Writer, args []string) error {
	logrus.SetOutput(os.Stderr)
	logrus.SetLevel(logrus.WarnLevel)
	if o.verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	platform, err := identifier.ParsePlatform(o.platform)
	if err != nil {
		return err
	}

	ids, err := o.expandIDs(args)
	if err != nil {
		return err
	}

	client := fetch.NewClient()

	if o.listVersions {
		return o.runListVersions(ctx, out, client, platform, ids)
	}

	job := batch.Job{
		IDs:             ids,
		Platform:        platform,
		Version:         o.version,
		Output:          o.output,
		Force:           o.force,
		ContinueOnError: o.continueOnError,
	}

	sum, err := batch.Run(ctx, job, o.newDownloader(client, platform))
	if err != nil {
		return err
	}
	if sum.Skipped > 0 {
		fmt.Fprintf(out, "%d downloaded, %d skipped\n", sum.Downloaded, sum.Skipped)
	}
	return nil
}

// expandIDs collects the identifiers for this run from the batch flag or
// the positional argument.
func (o *options) expandIDs(args []string) ([]string, error) {
	if o.batchSpec != "" {
		return batch.ExpandIDs(o.batchSpec)
	}
	if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
		return []string{strings.TrimSpace(args[0])}, nil
	}
	return nil, errors.New("must provide an extension ID or --batch")
}

// newDownloader builds the platform pipeline, attaching a progress
// printer when one makes sense for the terminal.
func (o *options) newDownloader(client *fetch.Client, platform identifier.Platform) batch.Downloader {
	progress := newProgressPrinter(os.Stderr).update

	switch platform {
	case identifier.Firefox:
		ff := resolve.NewFirefox(client)
		ff.Progress = progress
		return ff
	default:
		ch := resolve.NewChrome(client)
		ch.Progress = progress
		return ch
	}
}

// runListVersions handles --list-versions: exactly one firefox addon ID,
// print its version listing, no download.
func (o *options) runListVersions(ctx context.Context, out io.Writer, client *fetch.Client, platform identifier.Platform, ids []string) error {
	if len(ids) != 1 {
		return errors.New("--list-versions requires exactly one extension ID")
	}
	if platform != identifier.Firefox {
		fmt.Fprintln(out, "Listing versions is not supported for chrome; specify --version manually.")
		return nil
	}

	id := ids[0]
	if !identifier.Valid(id, platform) {
		return errors.Errorf("invalid %s extension ID %q: %s", platform, id, identifier.Requirement(platform))
	}

	versions, err := resolve.NewFirefox(client).ListVersions(ctx, id)
	if err != nil {
		return errors.Wrapf(err, "list versions for %s", id)
	}
	resolve.SortVersions(versions)
	fmt.Fprintf(out, "Available versions for %s: %s\n", id, strings.Join(versions, ", "))
	return nil
}
