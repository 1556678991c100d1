package cmd

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/oauth2"

	"montage/internal/storage"
)

var gdriveAuthCmd = &cobra.Command{
	Use:   "gdrive-auth",
	Short: "Mint a Google Drive refresh token for the gdrive storage provider",
	Long: `gdrive-auth runs the OAuth consent flow against a loopback listener and
prints the refresh token to put in GDRIVE_REFRESH_TOKEN. The client id and
secret come from --client-id/--client-secret or GDRIVE_CLIENT_ID and
GDRIVE_CLIENT_SECRET.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		clientID := strings.TrimSpace(viper.GetString("gdrive_client_id"))
		clientSecret := strings.TrimSpace(viper.GetString("gdrive_client_secret"))
		if clientID == "" || clientSecret == "" {
			return fmt.Errorf("client id and secret are required (GDRIVE_CLIENT_ID, GDRIVE_CLIENT_SECRET)")
		}
		timeout, _ := cmd.Flags().GetDuration("timeout")

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("listen for callback: %w", err)
		}
		defer ln.Close()

		redirectURL := fmt.Sprintf("http://%s/callback", ln.Addr().String())
		conf := storage.OAuthConfig(clientID, clientSecret, redirectURL)

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		tok, err := authorize(ctx, conf, ln, timeout, func(authURL string) {
			cmd.Println("Open this URL in your browser:")
			cmd.Println()
			cmd.Println(authURL)
			cmd.Println()
			cmd.Println("Waiting for authorization on", redirectURL)
		})
		if err != nil {
			return err
		}

		// Google omits the refresh token when the app was already authorized
		// without prompt=consent.
		if strings.TrimSpace(tok.RefreshToken) == "" {
			return fmt.Errorf("no refresh_token returned; revoke the app at https://myaccount.google.com/permissions and retry")
		}
		cmd.Println("REFRESH TOKEN:")
		cmd.Println(tok.RefreshToken)
		return nil
	},
}

// authorize serves the OAuth callback on ln, hands the consent URL to
// announce and exchanges the returned code.
func authorize(ctx context.Context, conf *oauth2.Config, ln net.Listener, timeout time.Duration, announce func(string)) (*oauth2.Token, error) {
	state, err := randomState()
	if err != nil {
		return nil, err
	}

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Get("state") != state:
			http.Error(w, "invalid state", http.StatusBadRequest)
			deliver(errCh, fmt.Errorf("invalid state"))
		case q.Get("error") != "":
			http.Error(w, "auth error: "+q.Get("error"), http.StatusBadRequest)
			deliver(errCh, fmt.Errorf("auth error: %s", q.Get("error")))
		case q.Get("code") == "":
			http.Error(w, "missing code", http.StatusBadRequest)
			deliver(errCh, fmt.Errorf("missing code"))
		default:
			fmt.Fprintln(w, "OK. You can close this window and return to the terminal.")
			deliver(codeCh, q.Get("code"))
		}
	})

	srv := &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() { _ = srv.Serve(ln) }()
	defer srv.Close()

	// offline access yields a refresh token
	announce(conf.AuthCodeURL(
		state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	))

	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	var code string
	select {
	case code = <-codeCh:
	case err := <-errCh:
		return nil, err
	case <-time.After(timeout):
		return nil, fmt.Errorf("timed out waiting for authorization")
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	return tok, nil
}

func deliver[T any](ch chan T, v T) {
	select {
	case ch <- v:
	default:
	}
}

func randomState() (string, error) {
	b := make([]byte, 18)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func init() {
	rootCmd.AddCommand(gdriveAuthCmd)

	gdriveAuthCmd.Flags().String("client-id", "", "OAuth client id")
	gdriveAuthCmd.Flags().String("client-secret", "", "OAuth client secret")
	gdriveAuthCmd.Flags().Duration("timeout", 3*time.Minute, "how long to wait for the browser")
	_ = viper.BindPFlag("gdrive_client_id", gdriveAuthCmd.Flags().Lookup("client-id"))
	_ = viper.BindPFlag("gdrive_client_secret", gdriveAuthCmd.Flags().Lookup("client-secret"))
	_ = viper.BindEnv("gdrive_client_id", "GDRIVE_CLIENT_ID")
	_ = viper.BindEnv("gdrive_client_secret", "GDRIVE_CLIENT_SECRET")
}
