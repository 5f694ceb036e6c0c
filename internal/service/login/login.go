package login

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/oshokin/alarm-monitor/internal/auth"
	"github.com/oshokin/alarm-monitor/internal/config"
	"github.com/oshokin/alarm-monitor/internal/httputil"
	"github.com/oshokin/alarm-monitor/internal/logger"
	"github.com/oshokin/alarm-monitor/internal/service/common"
)

// loginPath is the token endpoint.
const loginPath = "/login"

// Options configures the login command.
type Options struct {
	// ConfigPath to YAML settings file, defaults to standard filename if empty.
	ConfigPath string
	// APIURL overrides the backend base URL from config when set.
	APIURL string
	// TokenFile overrides the token file from config when set.
	TokenFile string
	// Username defaults to the current OS user.
	Username string
	// Input supplies the PIN. A terminal is read without echo; os.Stdin when nil.
	Input io.Reader
	// Prompt receives the PIN prompt, os.Stderr when nil.
	Prompt io.Writer
}

// errNoAccessToken is returned for a login response without a token.
var errNoAccessToken = errors.New("login response carries no access token")

// Credentials is the login request body.
type Credentials struct {
	Username string `json:"username"`
	PIN      string `json:"pin"`
}

// TokenResponse is the login response body.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Run prompts for the PIN, logs in and writes the token file.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "alarm-monitor-login")

	cfg, err := config.LoadWithOverrides(opts.ConfigPath, config.Overrides{
		APIURL:    opts.APIURL,
		TokenFile: opts.TokenFile,
	})
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	username := opts.Username
	if username == "" {
		if username, err = common.DetectUsername(); err != nil {
			return fmt.Errorf("detect user: %w", err)
		}
	}

	input := opts.Input
	if input == nil {
		input = os.Stdin
	}

	prompt := opts.Prompt
	if prompt == nil {
		prompt = os.Stderr
	}

	pin, err := common.ReadPIN(input, prompt, fmt.Sprintf("PIN for %s: ", username))
	if err != nil {
		return err
	}

	endpoint, err := httputil.JoinEndpoint(cfg.APIURL, loginPath)
	if err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	token, err := Exchange(callCtx, http.DefaultClient, endpoint, Credentials{Username: username, PIN: pin})
	if err != nil {
		return err
	}

	if err = auth.WriteToken(cfg.TokenFile, token); err != nil {
		return err
	}

	logger.InfoKV(ctx, "Logged in", "username", username, "token_file", cfg.TokenFile)

	return nil
}

// Exchange posts credentials to endpoint and returns the access token.
func Exchange(ctx context.Context, client *http.Client, endpoint string, creds Credentials) (string, error) {
	body, err := json.Marshal(creds)
	if err != nil {
		return "", fmt.Errorf("marshal credentials: %w", err)
	}

	req, err := httputil.NewBearerRequest(ctx, http.MethodPost, endpoint, "", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build login request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if !httputil.IsSuccess(resp.StatusCode) {
		return "", fmt.Errorf("login: %s: %s", resp.Status, httputil.ReadDetail(resp))
	}

	var token TokenResponse
	if err = json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}

	if token.AccessToken == "" {
		return "", errNoAccessToken
	}

	return token.AccessToken, nil
}
