package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ukydev/iotfleet/internal/auth"
	"github.com/ukydev/iotfleet/internal/config"
	"github.com/ukydev/iotfleet/internal/models"
)

var (
	tokenSubject string
	tokenRole    string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for an operator or device",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.JWTSecret == "" {
			return errors.New("JWT_SECRET must be set to mint tokens")
		}

		svc, err := auth.NewService(cfg.JWTSecret, cfg.JWTExpiry)
		if err != nil {
			return err
		}
		token, err := svc.GenerateToken(tokenSubject, models.Role(tokenRole))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "Token subject, e.g. an operator name or device id")
	tokenCmd.Flags().StringVar(&tokenRole, "role", string(models.RoleOperator), "admin, manager, operator, viewer or device")
	_ = tokenCmd.MarkFlagRequired("subject")
}
