/*
Package main
File: cmd_tools.go
Description:
    Helper commands: 'catalog' prints the price table, 'token' mints an
    identity token for local play.
*/

package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/everforgeworks/idle-tycoon/internal/auth"
	"github.com/everforgeworks/idle-tycoon/internal/game"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Print the business and upgrade catalog",
	Long: `Print the catalog the server would load, with the first few unit
prices of every business. Useful when balancing catalog.yaml.`,
	RunE: runCatalog,
}

var (
	tokenSubject  string
	tokenEmail    string
	tokenName     string
	tokenProvider string
	tokenTTL      time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an identity token for local play",
	Long: `Mint an ID token signed with auth.identity_secret, as the identity
service would. Exchange it at POST /api/auth/signin for a session token.`,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "account id at the provider (random when empty)")
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "email claim")
	tokenCmd.Flags().StringVar(&tokenName, "name", "", "display name claim")
	tokenCmd.Flags().StringVar(&tokenProvider, "provider", "google.com", "sign-in provider claim")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "token lifetime")
}

func runCatalog(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c, err := game.LoadCatalog(cfg.Game.CatalogPath)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "BUSINESS\tCOST x1\tx10\tx25\tINCOME/S")
	for _, b := range c.Businesses {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", b.Name,
			game.FormatMoney(priceAt(b, 0)),
			game.FormatMoney(priceAt(b, 10)),
			game.FormatMoney(priceAt(b, 25)),
			game.FormatMoney(b.IncomePerSecond))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "UPGRADE\tTYPE\tTARGET\tCOST\tMULTIPLIER")
	for _, u := range c.Upgrades {
		target := u.BusinessID
		if target == "" {
			target = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%g\n", u.Name, u.Kind, target, game.FormatMoney(u.Cost), u.Multiplier)
	}
	return w.Flush()
}

// priceAt is the cost of the next unit once owned units are held.
func priceAt(b game.Business, owned int) float64 {
	b.Owned = owned
	return game.Cost(b)
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Auth.IdentitySecret == "" {
		return fmt.Errorf("auth.identity_secret is not configured")
	}
	subject := tokenSubject
	if subject == "" {
		subject = uuid.NewString()
	}

	tok, err := auth.MintIdentityToken(cfg.Auth.IdentitySecret, cfg.Auth.Issuer, cfg.Auth.Audience, auth.Identity{
		Provider:    tokenProvider,
		Subject:     subject,
		Email:       tokenEmail,
		DisplayName: tokenName,
	}, tokenTTL, time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), tok)
	fmt.Fprintln(os.Stderr, "user id:", auth.UserID(tokenProvider, subject))
	return nil
}
