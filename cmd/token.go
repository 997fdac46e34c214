package cmd

import (
	"fmt"
	"time"

	"github.com/ezlinkai/fal-studio/common/config"
	"github.com/ezlinkai/fal-studio/common/token"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	tokenSubject string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Sign a proxy access token with $PROXY_ACCESS_SECRET",
	RunE: func(cmd *cobra.Command, args []string) error {
		if config.ProxyAccessSecret == "" {
			return errors.New("PROXY_ACCESS_SECRET is not set, the proxy accepts requests without a token")
		}
		ttl := tokenTTL
		if ttl <= 0 {
			ttl = config.ProxyTokenTTL
		}
		signed, err := token.Sign(config.ProxyAccessSecret, tokenSubject, ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), signed)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "web", "Token subject, shown in proxy logs")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "Token lifetime (default $PROXY_TOKEN_TTL)")
	rootCmd.AddCommand(tokenCmd)
}
