package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/spf13/cobra"
)

// ---- token store ----

type tokenFile struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	API          string    `json:"api"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "efiling")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "efiling")
}

func tokenPath() string { return filepath.Join(cfgDir(), "token.json") }

func saveToken(tf tokenFile) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(tf, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(tokenPath(), b, 0o600)
}

func loadToken() (tokenFile, error) {
	b, err := os.ReadFile(tokenPath())
	if err != nil {
		return tokenFile{}, errors.New("not logged in (run efctl login)")
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return tokenFile{}, err
	}
	if tf.AccessToken == "" || time.Now().After(tf.ExpiresAt) {
		return tokenFile{}, errors.New("session expired (run efctl login)")
	}
	return tf, nil
}

// ---- http ----

// apiError is the error envelope of the HTTP API.
type apiError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("http %d", e.Status)
	}
	return fmt.Sprintf("%s: %s", strings.ToLower(e.Code), e.Message)
}

type client struct {
	base  string
	token string
	hc    *http.Client
}

func newClient(base, token string) *client {
	return &client{base: strings.TrimRight(base, "/"), token: token, hc: &http.Client{Timeout: 30 * time.Second}}
}

// do sends body as JSON and decodes a 2xx response into out, if given.
func (c *client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	res, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return err
	}
	if res.StatusCode >= 300 {
		var env struct {
			Error apiError `json:"error"`
		}
		_ = json.Unmarshal(raw, &env)
		env.Error.Status = res.StatusCode
		return &env.Error
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// authed builds a client from the saved session. A session saved against
// another API keeps its own base URL unless --api was set explicitly.
func (o *rootOptions) authed(cmd *cobra.Command) (*client, error) {
	tf, err := loadToken()
	if err != nil {
		return nil, err
	}
	base := o.API
	if !cmd.Flags().Changed("api") && tf.API != "" {
		base = tf.API
	}
	return newClient(base, tf.AccessToken), nil
}

func (o *rootOptions) ctx(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), o.Timeout)
}

// ---- commands ----

func newLoginCommand(opts *rootOptions) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and save the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv("EFILING_PASSWORD")
			}
			ctx, cancel := opts.ctx(cmd)
			defer cancel()
			var tok struct {
				AccessToken  string    `json:"access_token"`
				RefreshToken string    `json:"refresh_token"`
				ExpiresAt    time.Time `json:"expires_at"`
			}
			err := newClient(opts.API, "").do(ctx, http.MethodPost, "/api/auth/login",
				map[string]string{"email": email, "password": password}, &tok)
			if err != nil {
				return err
			}
			if err := saveToken(tokenFile{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken, ExpiresAt: tok.ExpiresAt, API: opts.API}); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "u", "", "login email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (or EFILING_PASSWORD)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newLogoutCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tf, err := loadToken()
			if err != nil {
				return err
			}
			c, err := opts.authed(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := opts.ctx(cmd)
			defer cancel()
			if err := c.do(ctx, http.MethodPost, "/api/auth/logout", map[string]string{"refresh_token": tf.RefreshToken}, nil); err != nil {
				return err
			}
			_ = os.Remove(tokenPath())
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}

func newWhoamiCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in actor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.getJSON(cmd, "/api/auth/me")
		},
	}
}

func (o *rootOptions) getJSON(cmd *cobra.Command, path string) error {
	c, err := o.authed(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := o.ctx(cmd)
	defer cancel()
	var out json.RawMessage
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return err
	}
	printJSON(cmd.OutOrStdout(), out)
	return nil
}

func parseIDs(args []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, len(args))
	for i, a := range args {
		id, err := uuid.FromString(a)
		if err != nil {
			return nil, fmt.Errorf("%q is not a valid id", a)
		}
		ids[i] = id
	}
	return ids, nil
}

// newMoveCommand builds request and return, which share a shape.
func newMoveCommand(opts *rootOptions, op string) *cobra.Command {
	return &cobra.Command{
		Use:   op + " <user-id> <file-id>",
		Short: strings.ToUpper(op[:1]) + op[1:] + " a file for a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return opts.move(cmd, fmt.Sprintf("/api/filemovement/%s/%s/%s", ids[0], op, ids[1]), nil)
		},
	}
}

func newChargeCommand(opts *rootOptions) *cobra.Command {
	var (
		to, remark, docID, docType string
		page                       int
	)
	cmd := &cobra.Command{
		Use:   "charge <from-user-id> <file-id>",
		Short: "Charge a file from one user to another",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(append(args, to))
			if err != nil {
				return err
			}
			body := map[string]any{"to_user_id": ids[2], "remark": remark}
			if cmd.Flags().Changed("page") {
				body["page_index"] = page
			}
			if docID != "" {
				d, err := uuid.FromString(docID)
				if err != nil {
					return fmt.Errorf("%q is not a valid document id", docID)
				}
				body["document_id"] = d
				body["document_type"] = docType
			}
			return opts.move(cmd, fmt.Sprintf("/api/filemovement/%s/charge/%s", ids[0], ids[1]), body)
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "destination user id (required)")
	cmd.Flags().StringVar(&remark, "remark", "", "minute for the receiving officer")
	cmd.Flags().IntVar(&page, "page", 0, "page index the remark refers to")
	cmd.Flags().StringVar(&docID, "document", "", "mail id routed with the file")
	cmd.Flags().StringVar(&docType, "document-type", "incoming", "incoming or outgoing")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func (o *rootOptions) move(cmd *cobra.Command, path string, body any) error {
	c, err := o.authed(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := o.ctx(cmd)
	defer cancel()
	var out json.RawMessage
	if err := c.do(ctx, http.MethodPut, path, body, &out); err != nil {
		return err
	}
	printJSON(cmd.OutOrStdout(), out)
	return nil
}

func newHistoryCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history <file-id>",
		Short: "Show the movement logs of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return opts.getJSON(cmd, "/api/files/"+ids[0].String()+"/movements")
		},
	}
}
