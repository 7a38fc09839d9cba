package mailferry

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const (
	credentialsFile = "credentials.json"
	tokenFile       = "token.json"
)

// AccountPaths holds the credential file locations for one account.
// Each account gets its own subdirectory of the config dir, so the
// source and the archive account can authorize independently.
type AccountPaths struct {
	Dir         string
	Credentials string
	Token       string
}

// PathsFor returns the credential paths for account under configDir.
func PathsFor(configDir, account string) AccountPaths {
	dir := filepath.Join(configDir, account)
	return AccountPaths{
		Dir:         dir,
		Credentials: filepath.Join(dir, credentialsFile),
		Token:       filepath.Join(dir, tokenFile),
	}
}

// oauthConfig builds the OAuth2 config from a downloaded
// credentials.json (installed-app shape).
func oauthConfig(credBytes []byte) (*oauth2.Config, error) {
	type creds struct {
		Installed struct {
			ClientID     string `json:"client_id"`
			ClientSecret string `json:"client_secret"`
			AuthURI      string `json:"auth_uri"`
			TokenURI     string `json:"token_uri"`
		} `json:"installed"`
	}

	var c creds
	if err := json.Unmarshal(credBytes, &c); err != nil {
		return nil, errors.Wrap(err, "parsing credentials")
	}
	if c.Installed.ClientID == "" {
		return nil, errors.New("credentials file has no installed-app client (expected an OAuth Desktop client download)")
	}

	return &oauth2.Config{
		ClientID:     c.Installed.ClientID,
		ClientSecret: c.Installed.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  c.Installed.AuthURI,
			TokenURL: c.Installed.TokenURI,
		},
		RedirectURL: "urn:ietf:wg:oauth:2.0:oob",
		Scopes:      []string{gmail.GmailModifyScope},
	}, nil
}

func loadOAuthConfig(paths AccountPaths) (*oauth2.Config, error) {
	credBytes, err := os.ReadFile(paths.Credentials)
	if err != nil {
		return nil, errors.Errorf(`credentials not found at %s

Create an OAuth 2.0 Client ID (Desktop app) in the Google Cloud
console with the Gmail API enabled, download the JSON file and save it
there, then run 'mailferry configure <account>' to authorize`, paths.Credentials)
	}
	return oauthConfig(credBytes)
}

// newGmailService builds an authenticated Gmail service for account.
// Missing credentials or a missing token are fatal at startup.
func newGmailService(ctx context.Context, configDir, account string) (*gmail.Service, error) {
	paths := PathsFor(configDir, account)
	cfg, err := loadOAuthConfig(paths)
	if err != nil {
		return nil, err
	}

	tokBytes, err := os.ReadFile(paths.Token)
	if err != nil {
		return nil, errors.Errorf("no saved token for %s: run 'mailferry configure %s' first", account, account)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(tokBytes, &tok); err != nil {
		return nil, errors.Wrapf(err, "parsing token for %s", account)
	}

	svc, err := gmail.NewService(ctx, option.WithHTTPClient(cfg.Client(ctx, &tok)))
	if err != nil {
		return nil, errors.Wrapf(err, "creating Gmail client for %s", account)
	}
	return svc, nil
}

// Connect authenticates account and wraps the service in a Connection.
func Connect(ctx context.Context, configDir, account string) (*Connection, error) {
	svc, err := newGmailService(ctx, configDir, account)
	if err != nil {
		return nil, err
	}
	return NewConnection(svc, account), nil
}

// Authorize runs the out-of-band OAuth flow for account and saves the
// resulting token next to its credentials.
func Authorize(ctx context.Context, configDir, account string) error {
	paths := PathsFor(configDir, account)
	if err := os.MkdirAll(paths.Dir, 0o700); err != nil {
		return errors.Wrap(err, "creating account config dir")
	}
	cfg, err := loadOAuthConfig(paths)
	if err != nil {
		return err
	}

	url := cfg.AuthCodeURL("state", oauth2.AccessTypeOffline)
	fmt.Printf("Visit this URL, authorize %s, and paste the code below:\n\n%s\n\nCode: ", account, url)

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return errors.Wrap(err, "reading authorization code")
	}
	tok, err := cfg.Exchange(ctx, strings.TrimSpace(line))
	if err != nil {
		return errors.Wrap(err, "exchanging authorization code")
	}

	tokBytes, err := json.Marshal(tok)
	if err != nil {
		return errors.Wrap(err, "encoding token")
	}
	if err := os.WriteFile(paths.Token, tokBytes, 0o600); err != nil {
		return errors.Wrap(err, "saving token")
	}
	fmt.Printf("Token saved to %s\n", paths.Token)
	return nil
}
