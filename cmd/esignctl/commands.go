package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"esign-portal/esign-backend/internal/auth"
	"esign-portal/esign-backend/internal/config"
	"esign-portal/esign-backend/pkg/pdf"
	"esign-portal/esign-backend/pkg/security"
)

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "esignctl",
		Short:         "Operator tooling for the e-signature backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(inspectCmd(), certInfoCmd(), signCmd(), tokenCmd())
	return cmd
}

func inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file.pdf>",
		Short: "List the signatures embedded in a PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return inspect(cmd.OutOrStdout(), pdf.NewEngine(security.NewProvider()), data)
		},
	}
}

func inspect(w io.Writer, engine *pdf.Engine, data []byte) error {
	pages, err := engine.PageCount(data)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "pages: %d\n", pages)

	n := 0
	for sig, err := range engine.ExtractEmbeddedSignatures(data) {
		if err != nil {
			return err
		}
		n++
		fmt.Fprintf(w, "signature %d: name=%q reason=%q filter=%s signed=%s content=%t\n",
			n, sig.SignerName, sig.Reason, sig.SubFilter, formatTime(sig.SignDate), sig.HasContent)
	}
	if n == 0 {
		fmt.Fprintln(w, "no embedded signatures")
	}
	return nil
}

func certInfoCmd() *cobra.Command {
	var passphrase string
	cmd := &cobra.Command{
		Use:   "cert-info <container.p12>",
		Short: "Print the signing certificate of a PKCS#12 container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return certInfo(cmd.OutOrStdout(), security.NewProvider(), data, passphrase)
		},
	}
	cmd.Flags().StringVarP(&passphrase, "password", "p", "", "container passphrase")
	return cmd
}

func certInfo(w io.Writer, provider *security.Provider, data []byte, passphrase string) error {
	extractor := security.NewCertificateExtractor(provider)
	id, err := extractor.Load(data, passphrase)
	if err != nil {
		return err
	}
	alias, err := extractor.SelectSigningEntry(id)
	if err != nil {
		return err
	}
	meta, err := extractor.ExtractMetadata(id, alias)
	if err != nil {
		return err
	}

	out := struct {
		Alias string `json:"alias"`
		*security.CertificateMetadata
		ValidNow bool `json:"valid_now"`
	}{alias, meta, meta.ValidAt(provider.Now())}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

type signOptions struct {
	certificate string
	passphrase  string
	signer      string
	output      string
	page        int
	qualified   bool
	stamp       bool
}

func signCmd() *cobra.Command {
	var opts signOptions
	cmd := &cobra.Command{
		Use:   "sign <file.pdf>",
		Short: "Sign a local PDF with a PKCS#12 container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.output == "" {
				opts.output = strings.TrimSuffix(args[0], ".pdf") + "_signed.pdf"
			}
			return signFile(cmd.OutOrStdout(), args[0], opts)
		},
	}
	cmd.Flags().StringVarP(&opts.certificate, "cert", "c", "", "PKCS#12 container")
	cmd.Flags().StringVarP(&opts.passphrase, "password", "p", "", "container passphrase")
	cmd.Flags().StringVar(&opts.signer, "name", "", "signer name (defaults to the certificate common name)")
	cmd.Flags().StringVarP(&opts.output, "out", "o", "", "output file")
	cmd.Flags().IntVar(&opts.page, "page", 0, "zero-based page for the stamp")
	cmd.Flags().BoolVar(&opts.qualified, "qualified", false, "record a qualified signature reason")
	cmd.Flags().BoolVar(&opts.stamp, "stamp", true, "draw a visual stamp")
	_ = cmd.MarkFlagRequired("cert")
	return cmd
}

func signFile(w io.Writer, path string, opts signOptions) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	container, err := os.ReadFile(opts.certificate)
	if err != nil {
		return err
	}

	provider := security.NewProvider()
	extractor := security.NewCertificateExtractor(provider)
	id, err := extractor.Load(container, opts.passphrase)
	if err != nil {
		return err
	}
	alias, err := extractor.SelectSigningEntry(id)
	if err != nil {
		return err
	}
	entry, _ := id.Entry(alias)

	req := pdf.SignatureRequest{
		Key:        entry.PrivateKey,
		Chain:      entry.Chain,
		SignerName: opts.signer,
		Qualified:  opts.qualified,
		Page:       opts.page,
	}
	if req.SignerName == "" {
		req.SignerName = entry.Certificate.Subject.CommonName
	}
	if opts.stamp {
		req.Stamp = &pdf.Rect{X: 100, Y: 100, Width: 200, Height: 80}
	}

	signed, err := pdf.NewEngine(provider).ApplyCryptographicSignature(data, req)
	if err != nil {
		return err
	}
	if err := os.WriteFile(opts.output, signed.PDF, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(w, "signed %s as %q -> %s\n", path, req.SignerName, opts.output)
	return nil
}

func tokenCmd() *cobra.Command {
	var (
		configPath string
		email      string
		ttl        time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Mint a bearer token for the API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			svc, err := auth.NewService(cfg.Security.JWTSecret, "esign-api")
			if err != nil {
				return err
			}
			token, err := svc.IssueToken(args[0], email, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "config.json", "path to the JSON config file")
	cmd.Flags().StringVar(&email, "email", "", "email claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
