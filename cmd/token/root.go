package token

import (
	"encoding/json"
	"fmt"
	"github.com/ValentinKolb/dLink/cmd/util"
	"github.com/ValentinKolb/dLink/rpc/session"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"time"
)

var (
	// TokenCmd issues a session token that clients can forward as cookie or bearer header
	TokenCmd = &cobra.Command{
		Use:   "token [user-id]",
		Short: "Issue a session token",
		Long: fmt.Sprintf(`Issue a signed session token for a user. Pass it to server contexts with
--header "authorization=Bearer <token>" or --header "cookie=%s=<token>".
The secret must match the --session-secret of the server (DLINK_SESSION_SECRET).`, session.CookieName),
		Args: cobra.ExactArgs(1),
		RunE: run,
	}
)

func init() {
	key := "session-secret"
	TokenCmd.Flags().String(key, "", util.WrapString("Secret used to sign the token"))
	key = "name"
	TokenCmd.Flags().String(key, "", util.WrapString("Display name of the user"))
	key = "email"
	TokenCmd.Flags().String(key, "", util.WrapString("Email of the user"))
	key = "ttl"
	TokenCmd.Flags().Duration(key, session.DefaultTTL, util.WrapString("Lifetime of the token"))
	key = "json"
	TokenCmd.Flags().Bool(key, false, util.WrapString("Print the token together with the session as json"))
}

func run(cmd *cobra.Command, args []string) error {
	manager, err := session.NewManager(viper.GetString("session-secret"), viper.GetDuration("ttl"))
	if err != nil {
		return err
	}

	token, s, err := manager.Issue(args[0], viper.GetString("name"), viper.GetString("email"))
	if err != nil {
		return err
	}

	if !viper.GetBool("json") {
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Token   string          `json:"token"`
		Session session.Session `json:"session"`
		TTL     string          `json:"ttl"`
	}{token, s, time.Until(s.ExpiresAt).Round(time.Second).String()})
}
