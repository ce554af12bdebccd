package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/fts-tools/ftsctl/internal/credstore"
	"github.com/fts-tools/ftsctl/internal/session"
)

func newCustomersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "customers",
		Short: "Manage customer profiles",
		RunE:  runCustomersList,
	}

	cmd.AddCommand(newCustomersListCmd())
	cmd.AddCommand(newCustomersSetCmd())
	cmd.AddCommand(newCustomersShowCmd())
	cmd.AddCommand(newCustomersRmCmd())

	return cmd
}

func newCustomersListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List customer profile names",
		Args:  cobra.NoArgs,
		RunE:  runCustomersList,
	}
}

func newCustomersSetCmd() *cobra.Command {
	var in credstore.ProfileInput

	cmd := &cobra.Command{
		Use:   "set NAME",
		Short: "Create or update a customer profile",
		Long: "Create or update a customer profile. Unset flags keep their stored values;\n" +
			"the client secret is prompted for when not given as a flag.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Name = args[0]
			return runCustomersSet(cmd, &in)
		},
	}

	cmd.Flags().StringVar(&in.HostBaseURL, "host-url", "", "transfer API base URL")
	cmd.Flags().StringVar(&in.OAuthBaseURL, "oauth-url", "", "OAuth2 base URL")
	cmd.Flags().StringVar(&in.OAuthScope, "scope", "", "OAuth2 scope")
	cmd.Flags().StringVar(&in.ClientID, "client-id", "", "OAuth2 client ID")
	cmd.Flags().StringVar(&in.ClientSecret, "client-secret", "", "OAuth2 client secret (prompted if omitted)")

	return cmd
}

func newCustomersShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show NAME",
		Short: "Show a customer profile with its secret masked",
		Args:  cobra.ExactArgs(1),
		RunE:  runCustomersShow,
	}
}

func newCustomersRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm NAME",
		Short: "Delete a customer profile",
		Args:  cobra.ExactArgs(1),
		RunE:  runCustomersRm,
	}
}

func runCustomersList(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()

	store, err := openStore(logger)
	if err != nil {
		return err
	}

	names, err := store.ListNames()
	if err != nil {
		return err
	}

	if flagJSON {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(names)
	}

	if len(names) == 0 {
		statusf(flagQuiet, "No customer profiles configured. Add one with: ftsctl customers set NAME\n")
		return nil
	}

	for _, name := range names {
		fmt.Fprintln(cmd.OutOrStdout(), name)
	}

	return nil
}

func runCustomersSet(cmd *cobra.Command, in *credstore.ProfileInput) error {
	logger := buildLogger()

	store, err := openStore(logger)
	if err != nil {
		return err
	}

	// Merge with any existing profile so unset flags keep stored values.
	if existing, err := store.Get(in.Name); err == nil {
		if in.HostBaseURL == "" {
			in.HostBaseURL = existing.HostBaseURL
		}
		if in.OAuthBaseURL == "" {
			in.OAuthBaseURL = existing.OAuthBaseURL
		}
		if in.OAuthScope == "" {
			in.OAuthScope = existing.OAuthScope
		}
		if in.ClientID == "" {
			in.ClientID = existing.ClientID
		}
		if in.ClientSecret == "" && existing.ClientSecretEncrypted != "" {
			secret, err := store.Secret(existing)
			if err != nil {
				return err
			}
			in.ClientSecret = secret
		}
	}

	if in.ClientSecret == "" && isatty.IsTerminal(os.Stdin.Fd()) {
		fmt.Fprint(os.Stderr, "Client secret: ")

		secret, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)

		if err != nil {
			return fmt.Errorf("reading client secret: %w", err)
		}

		in.ClientSecret = string(secret)
	}

	if err := store.Save(*in); err != nil {
		return err
	}

	statusf(flagQuiet, "Profile %q saved.\n", in.Name)

	return nil
}

func runCustomersShow(cmd *cobra.Command, args []string) error {
	logger := buildLogger()

	store, err := openStore(logger)
	if err != nil {
		return err
	}

	profile, err := store.Get(args[0])
	if err != nil {
		return err
	}

	secret, err := store.Secret(profile)
	if err != nil {
		return err
	}

	masked := session.MaskSecret(secret)

	if flagJSON {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{
			"name":           profile.Name,
			"host_base_url":  profile.HostBaseURL,
			"oauth_base_url": profile.OAuthBaseURL,
			"oauth_scope":    profile.OAuthScope,
			"client_id":      profile.ClientID,
			"client_secret":  masked,
		})
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Name:           %s\n", profile.Name)
	fmt.Fprintf(out, "Host base URL:  %s\n", profile.HostBaseURL)
	fmt.Fprintf(out, "OAuth base URL: %s\n", profile.OAuthBaseURL)
	fmt.Fprintf(out, "OAuth scope:    %s\n", profile.OAuthScope)
	fmt.Fprintf(out, "Client ID:      %s\n", profile.ClientID)
	fmt.Fprintf(out, "Client secret:  %s\n", masked)

	return nil
}

func runCustomersRm(_ *cobra.Command, args []string) error {
	logger := buildLogger()

	store, err := openStore(logger)
	if err != nil {
		return err
	}

	if err := store.Delete(args[0]); err != nil {
		return err
	}

	statusf(flagQuiet, "Profile %q deleted.\n", args[0])

	return nil
}
