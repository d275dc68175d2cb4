// Package cli implements the sitelaunch command line.
package cli

import (
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// ErrUsage is returned after help was printed; the process exits non-zero
// without printing an error.
var ErrUsage = errors.New("usage requested")

// Execute runs the CLI
func Execute(version string) error {
	return execute(version, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
}

func execute(version string, args []string, in io.Reader, out, errOut io.Writer) error {
	helped := false
	rootCmd := newRootCmd(version)
	rootCmd.SetArgs(args)
	rootCmd.SetIn(in)
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	defaultHelp := rootCmd.HelpFunc()
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		helped = true
		defaultHelp(cmd, args)
	})

	if err := rootCmd.Execute(); err != nil {
		return err
	}
	if helped {
		return ErrUsage
	}
	return nil
}

func newRootCmd(version string) *cobra.Command {
	var f runFlags

	rootCmd := &cobra.Command{
		Use:   "sitelaunch",
		Short: "Buy a domain, point it at a server and deploy a site",
		Long: `sitelaunch provisions a website end to end:

  1. resolve and download the site archive
  2. purchase the domain (Namecheap, Dynadot)
  3. point DNS at the server (A @ and CNAME www)
  4. create the website, SSL certificate and database (CyberPanel)
  5. record the database credentials and deploy the archive

Every stage can be skipped. Missing values are prompted for.

EXAMPLES:
  # Full run
  sitelaunch --domain example.com --server-ip 203.0.113.5 --source wordpress

  # Redeploy only
  sitelaunch --domain example.com --source https://example.org/app.zip \
    --skip-domain --skip-dns --skip-website --skip-ssl --skip-database

  # Non-interactive: answer the contact and PHP version menus
  sitelaunch --domain example.com --server-ip 203.0.113.5 --source wordpress \
    --answer 1 --answer 8.1
`,
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProvision(cmd, f)
		},
	}

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		_ = cmd.Usage()
		return err
	})

	// Global flags
	rootCmd.PersistentFlags().StringVar(&f.configPath, "config", "", "config file (default: sitelaunch.toml or /etc/sitelaunch/sitelaunch.toml)")

	flags := rootCmd.Flags()
	flags.StringVar(&f.domain, "domain", "", "domain to provision")
	flags.StringVar(&f.source, "source", "", "named source or archive URL")
	flags.StringVar(&f.registrar, "registrar", "", "registrar backend (default from config)")
	flags.StringVar(&f.panel, "panel", "", "panel backend (default from config)")
	flags.StringVar(&f.serverIP, "server-ip", "", "IPv4 address the domain should point at")
	flags.BoolVar(&f.skip.Domain, "skip-domain", false, "skip the domain purchase")
	flags.BoolVar(&f.skip.DNS, "skip-dns", false, "skip DNS configuration")
	flags.BoolVar(&f.skip.Website, "skip-website", false, "skip website creation")
	flags.BoolVar(&f.skip.SSL, "skip-ssl", false, "skip SSL issuance")
	flags.BoolVar(&f.skip.Database, "skip-database", false, "skip database creation")
	flags.BoolVar(&f.skip.Deploy, "skip-deploy", false, "skip the archive download and deployment")
	flags.BoolVar(&f.waitDNS, "wait-dns", false, "wait until the domain resolves to the server IP")
	flags.StringArrayVar(&f.answers, "answer", nil, "scripted answer for the next prompt (repeatable)")
	flags.StringVar(&f.answersFile, "answers-file", "", "YAML file with scripted answers")

	// Add subcommands
	rootCmd.AddCommand(createConfigCmd(&f.configPath))
	rootCmd.AddCommand(createHistoryCmd(&f.configPath))
	rootCmd.AddCommand(createSourcesCmd(&f.configPath))

	return rootCmd
}
