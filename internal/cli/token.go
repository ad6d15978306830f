package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/spec-kit/support-core/internal/auth"
	"github.com/spec-kit/support-core/internal/config"
	"github.com/spec-kit/support-core/internal/domain"
)

var (
	tokenRole       string
	tokenOrg        string
	tokenActorsFile string
)

var tokenCmd = &cobra.Command{
	Use:   "token <actor-id>",
	Short: "Issue a bearer token for an actor",
	Long: `Issue a bearer token signed with AUTH_JWT_SECRET.

With --actors the role and organization come from the seed file; otherwise
they come from --role and --org. The server rejects tokens whose role does
not match its actor directory.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		actor, err := resolveActor(args[0])
		if err != nil {
			return err
		}

		tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
		token, expires, err := tokens.GenerateToken(actor)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expires.Format(time.RFC3339))
		return nil
	},
}

func resolveActor(id string) (domain.Actor, error) {
	if tokenActorsFile != "" {
		actors, err := config.LoadActors(tokenActorsFile)
		if err != nil {
			return domain.Actor{}, err
		}
		for _, actor := range actors {
			if actor.ID == id {
				return actor, nil
			}
		}
		return domain.Actor{}, fmt.Errorf("actor %s not in %s", id, tokenActorsFile)
	}

	actor := domain.Actor{ID: id, Role: domain.Role(tokenRole)}
	if !actor.Role.Valid() {
		return domain.Actor{}, fmt.Errorf("unknown role %q", tokenRole)
	}
	if tokenOrg != "" {
		org := tokenOrg
		actor.OrganizationID = &org
	}
	return actor, nil
}

func init() {
	tokenCmd.Flags().StringVar(&tokenRole, "role", string(domain.RoleEndUser), "actor role when --actors is not given")
	tokenCmd.Flags().StringVar(&tokenOrg, "org", "", "actor organization when --actors is not given")
	tokenCmd.Flags().StringVar(&tokenActorsFile, "actors", "", "YAML actor seed file to resolve the actor from")
}
