package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/multiplier-synth/multiplier-api/internal/account"
	"github.com/multiplier-synth/multiplier-api/internal/database"
	"github.com/multiplier-synth/multiplier-api/internal/membership"
)

var (
	userLogin    string
	userEmail    string
	userPassword string
	userAdmin    bool
)

// userCmd is the parent command for account management
var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user accounts",
	Long: `Manage the accounts that can sign in to the API.

Available subcommands:
  create   - Create a user, generating a password if none is given
  set-meta - Set or clear a stored attribute such as the pledge amount`,
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user",
	RunE:  runUserCreate,
}

var userSetMetaCmd = &cobra.Command{
	Use:   "set-meta <user-id> <key> [value]",
	Short: "Set a user attribute; omit the value to delete it",
	Long: `Set a stored user attribute. Known keys:

  patreon_pledge_amount_cents  pledge in cents
  patreon_user_id              Patreon user id
  patreon_email                Patreon email
  patreon_access_token         token for the live membership lookup`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runUserSetMeta,
}

func init() {
	userCreateCmd.Flags().StringVar(&userLogin, "login", "", "Login name (required)")
	userCreateCmd.Flags().StringVar(&userEmail, "email", "", "Email address")
	userCreateCmd.Flags().StringVar(&userPassword, "password", "", "Password (generated when empty)")
	userCreateCmd.Flags().BoolVar(&userAdmin, "admin", false, "Grant administrator rights")
	_ = userCreateCmd.MarkFlagRequired("login")
}

func runUserCreate(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync()

	db, err := database.Open(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	password := userPassword
	generated := password == ""
	if generated {
		if password, err = account.GeneratePassword(); err != nil {
			return err
		}
	}

	u, err := account.NewStore(db).Create(cmd.Context(), account.CreateParams{
		Login:    userLogin,
		Email:    userEmail,
		Password: password,
		IsAdmin:  userAdmin,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created user %d (%s)\n", u.ID, u.Login)
	if generated {
		fmt.Fprintf(out, "Password: %s\n", password)
	}
	return nil
}

func runUserSetMeta(cmd *cobra.Command, args []string) error {
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || userID <= 0 {
		return fmt.Errorf("invalid user id %q", args[0])
	}
	key := args[1]

	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync()

	db, err := database.Open(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	accounts := account.NewStore(db)
	if _, err := accounts.Get(cmd.Context(), userID); err != nil {
		return err
	}

	if len(args) == 3 {
		err = accounts.SetMeta(cmd.Context(), userID, key, args[2])
	} else {
		err = accounts.DeleteMeta(cmd.Context(), userID, key)
	}
	if err != nil {
		return err
	}

	// Cached membership documents would hide the change until they expire.
	if cfg.Patreon.RedisAddr != "" {
		rdb := membership.NewRedisClient(cfg.Patreon.RedisAddr)
		defer rdb.Close()
		cache := membership.NewCached(nil, rdb, cfg.Patreon.CacheTTL.Std(), log)
		if err := cache.Invalidate(cmd.Context(), userID); err != nil {
			log.Warn("Membership cache invalidation failed", "userId", userID, "error", err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Updated %s for user %d\n", key, userID)
	return nil
}
