// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/holomush/gatekeeper/internal/auth"
)

// userView is the printable form of auth.User. The password hash is omitted.
type userView struct {
	UUID     string `yaml:"uuid"`
	Email    string `yaml:"email,omitempty"`
	Username string `yaml:"username,omitempty"`
	Admin    bool   `yaml:"admin"`
}

func newUserView(u *auth.User) userView {
	return userView{
		UUID:     u.UUID.String(),
		Email:    u.EmailOrEmpty(),
		Username: u.UsernameOrEmpty(),
		Admin:    u.IsAdmin,
	}
}

// selector picks one user by UUID, email or username.
type selector struct {
	uuid     string
	email    string
	username string
}

func (s *selector) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.uuid, "uuid", "", "select the user by UUID")
	cmd.Flags().StringVar(&s.email, "email", "", "select the user by email")
	cmd.Flags().StringVar(&s.username, "username", "", "select the user by username")
	cmd.MarkFlagsMutuallyExclusive("uuid", "email", "username")
	cmd.MarkFlagsOneRequired("uuid", "email", "username")
}

func (s *selector) resolve(ctx context.Context, users *auth.Users) (*auth.User, error) {
	if s.uuid != "" {
		id, err := uuid.Parse(s.uuid)
		if err != nil {
			return nil, oops.Code("INVALID_UUID").With("uuid", s.uuid).Wrap(auth.ErrBadRequest)
		}
		return users.GetByUUID(ctx, id)
	}
	return users.GetByLogin(ctx, auth.Login{
		Email:    auth.StringPtr(s.email),
		Username: auth.StringPtr(s.username),
	})
}

// passwordSource reads a password from --password or, with --password-stdin,
// from the first line of stdin.
type passwordSource struct {
	value     string
	fromStdin bool
}

func (p *passwordSource) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&p.value, "password", "", "password (visible in the process list; prefer --password-stdin)")
	cmd.Flags().BoolVar(&p.fromStdin, "password-stdin", false, "read the password from stdin")
	cmd.MarkFlagsMutuallyExclusive("password", "password-stdin")
}

func (p *passwordSource) read(stdin io.Reader) (string, error) {
	password := p.value
	if p.fromStdin {
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", oops.Code("PASSWORD_READ_FAILED").Wrap(err)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if password == "" {
		return "", oops.Code("AUTH_EMPTY_PASSWORD").Wrap(auth.ErrEmptyPassword)
	}
	return password, nil
}

func (c *cli) newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Create, inspect and remove user accounts",
	}
	cmd.AddCommand(c.newUserCreateCmd())
	cmd.AddCommand(c.newUserShowCmd())
	cmd.AddCommand(c.newUserDeleteCmd())
	cmd.AddCommand(c.newUserPasswdCmd())
	cmd.AddCommand(c.newUserLoginCmd())
	cmd.AddCommand(c.newUserLogoutCmd())
	return cmd
}

// withUsers opens the configured backend, runs fn and closes the backend.
func (c *cli) withUsers(cmd *cobra.Command, fn func(ctx context.Context, users *auth.Users) error) (err error) {
	cfg, logger, err := c.setup(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	b, err := openBackend(ctx, cfg, c.deps, logger, nil)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := b.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	return fn(ctx, b.users)
}

func (c *cli) newUserCreateCmd() *cobra.Command {
	var (
		email    string
		username string
		admin    bool
		password passwordSource
		policy   bool
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user account",
		Long: `Create a user account with an email, a username or both. The password
policy is not applied unless --enforce-policy is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pw, err := password.read(c.deps.Stdin)
			if err != nil {
				return err
			}
			return c.withUsers(cmd, func(ctx context.Context, users *auth.Users) error {
				var id uuid.UUID
				if policy && !admin {
					id, err = users.Signup(ctx, auth.Signup{
						Email:    auth.StringPtr(email),
						Username: auth.StringPtr(username),
						Password: pw,
					})
				} else {
					if email == "" && username == "" {
						return oops.Code("AUTH_BAD_SELECTOR").
							With("reason", "neither email nor username was provided").
							Wrap(auth.ErrInvalidSelector)
					}
					id = uuid.New()
					err = users.CreateUser(ctx, id, auth.StringPtr(email), auth.StringPtr(username), pw, admin)
				}
				if err != nil {
					return err
				}
				cmd.Println(id.String())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&username, "username", "", "account username")
	cmd.Flags().BoolVar(&admin, "admin", false, "grant administrator rights")
	cmd.Flags().BoolVar(&policy, "enforce-policy", false, "validate the signup against the password policy")
	cmd.MarkFlagsMutuallyExclusive("admin", "enforce-policy")
	password.register(cmd)
	return cmd
}

func (c *cli) newUserShowCmd() *cobra.Command {
	var sel selector
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print a user account as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withUsers(cmd, func(ctx context.Context, users *auth.Users) error {
				user, err := sel.resolve(ctx, users)
				if err != nil {
					return err
				}
				out, err := yaml.Marshal(newUserView(user))
				if err != nil {
					return oops.Code("USER_MARSHAL_FAILED").Wrap(err)
				}
				cmd.Print(string(out))
				return nil
			})
		},
	}
	sel.register(cmd)
	return cmd
}

func (c *cli) newUserDeleteCmd() *cobra.Command {
	var sel selector
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Revoke a user's session and delete the account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withUsers(cmd, func(ctx context.Context, users *auth.Users) error {
				if sel.email != "" {
					if err := users.DeleteByEmail(ctx, sel.email); err != nil {
						return err
					}
					cmd.Printf("Deleted %s\n", sel.email)
					return nil
				}
				user, err := sel.resolve(ctx, users)
				if err != nil {
					return err
				}
				if err := users.Delete(ctx, user.UUID); err != nil {
					return err
				}
				cmd.Printf("Deleted %s\n", user.UUID)
				return nil
			})
		},
	}
	sel.register(cmd)
	return cmd
}

func (c *cli) newUserPasswdCmd() *cobra.Command {
	var (
		sel      selector
		password passwordSource
		revoke   bool
	)
	cmd := &cobra.Command{
		Use:   "passwd",
		Short: "Replace a user's password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pw, err := password.read(c.deps.Stdin)
			if err != nil {
				return err
			}
			return c.withUsers(cmd, func(ctx context.Context, users *auth.Users) error {
				user, err := sel.resolve(ctx, users)
				if err != nil {
					return err
				}
				if err := users.SetPassword(user, pw); err != nil {
					return err
				}
				if err := users.Modify(ctx, user); err != nil {
					return err
				}
				if revoke {
					if err := users.Sessions().Remove(ctx, user.UUID); err != nil {
						return oops.Code("SESSION_REVOKE_FAILED").With("uuid", user.UUID.String()).Wrap(err)
					}
				}
				cmd.Printf("Password updated for %s\n", user.UUID)
				return nil
			})
		},
	}
	sel.register(cmd)
	password.register(cmd)
	cmd.Flags().BoolVar(&revoke, "revoke-session", false, "also revoke the user's live session")
	return cmd
}

func (c *cli) newUserLoginCmd() *cobra.Command {
	var (
		email    string
		username string
		password passwordSource
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Check a password and issue a session",
		Long: `Authenticate with an email or a username and print the issued session
as "UUID AUTH_KEY". Any earlier session of the user is superseded. With the
memory session backend the session ends when the command exits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pw, err := password.read(c.deps.Stdin)
			if err != nil {
				return err
			}
			form := auth.Login{
				Email:    auth.StringPtr(email),
				Username: auth.StringPtr(username),
				Password: pw,
			}
			return c.withUsers(cmd, func(ctx context.Context, users *auth.Users) error {
				var s auth.Session
				if ttl > 0 {
					s, err = users.LoginFor(ctx, form, ttl)
				} else {
					s, err = users.Login(ctx, form)
				}
				if err != nil {
					return err
				}
				cmd.Printf("%s %s\n", s.UUID, s.AuthKey)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "log in by email")
	cmd.Flags().StringVar(&username, "username", "", "log in by username")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "session lifetime (default: sessions.defaultLifetime)")
	cmd.MarkFlagsMutuallyExclusive("email", "username")
	cmd.MarkFlagsOneRequired("email", "username")
	password.register(cmd)
	return cmd
}

func (c *cli) newUserLogoutCmd() *cobra.Command {
	var (
		id  string
		key string
	)
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Revoke a session if it is still the live one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsed, err := uuid.Parse(id)
			if err != nil {
				return oops.Code("INVALID_UUID").With("uuid", id).Wrap(auth.ErrBadRequest)
			}
			return c.withUsers(cmd, func(ctx context.Context, users *auth.Users) error {
				return users.Logout(ctx, auth.Session{UUID: parsed, AuthKey: key})
			})
		},
	}
	cmd.Flags().StringVar(&id, "uuid", "", "session user UUID")
	cmd.Flags().StringVar(&key, "auth-key", "", "session auth key")
	_ = cmd.MarkFlagRequired("uuid")     //nolint:errcheck // flag is registered above
	_ = cmd.MarkFlagRequired("auth-key") //nolint:errcheck // flag is registered above
	return cmd
}
