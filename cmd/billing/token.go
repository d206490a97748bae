package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Alijeyrad/simorq_billing/pkg/authorize"
	pasetotoken "github.com/Alijeyrad/simorq_billing/pkg/paseto"
)

func NewTokenCommand() *cobra.Command {
	var (
		user       string
		clinic     string
		role       string
		superadmin bool
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token for a user, optionally granting a clinic role",
		Long: `Token issues a PASETO access token for --user.

With --clinic and --role the user is first granted that role in the clinic.
Role grants persist only with the postgres driver; the memory driver keeps
policies for the lifetime of one process.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := readConfig(cmd)
			if err != nil {
				return err
			}
			userID, err := uuid.Parse(user)
			if err != nil {
				return fmt.Errorf("invalid --user: %w", err)
			}
			if (clinic == "") != (role == "") {
				return fmt.Errorf("--clinic and --role must be given together")
			}
			var r authorize.Role
			if role != "" {
				r = authorize.Role(role)
				if _, ok := authorize.KnownRoles[r]; !ok {
					if mapped, ok := authorize.ClinicMemberRoleToRBACRole[role]; ok {
						r = mapped
					} else {
						return fmt.Errorf("unknown role %q", role)
					}
				}
			}
			clinicID, err := parseOptionalUUID("clinic", clinic)
			if err != nil {
				return err
			}

			var (
				mgr  *pasetotoken.Manager
				auth authorize.IAuthorization
			)
			return runWithServices(cmd.Context(), cfg, func(ctx context.Context) error {
				if superadmin {
					if err := authorize.AssignSuperAdmin(ctx, auth, userID.String()); err != nil {
						return fmt.Errorf("assign superadmin: %w", err)
					}
				}
				if clinic != "" {
					if err := authorize.AssignClinicRole(ctx, auth, userID.String(), clinicID.String(), r); err != nil {
						return fmt.Errorf("assign role: %w", err)
					}
				}

				token, err := mgr.IssueAccess(userID, nil)
				if err != nil {
					return err
				}
				fmt.Println(token)
				return nil
			}, &mgr, &auth)
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "User id (required)")
	cmd.Flags().StringVar(&clinic, "clinic", "", "Clinic to grant --role in")
	cmd.Flags().StringVar(&role, "role", "", "Role, e.g. accountant or role:clinic:accountant")
	cmd.Flags().BoolVar(&superadmin, "superadmin", false, "Grant the platform superadmin role")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
