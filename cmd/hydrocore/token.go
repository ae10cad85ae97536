package main

import (
	"fmt"
	"io"
	"time"

	"github.com/zombieplant/hydrocore/internal/api"
	"github.com/zombieplant/hydrocore/internal/infrastructure/config"
)

// issueToken prints a bearer token signed with the configured JWT secret.
func issueToken(w io.Writer, subject string, ttl time.Duration) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	token, err := api.IssueToken(cfg.Security.JWT.Secret, cfg.Security.JWT.Issuer, subject, ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, token)
	return err
}
