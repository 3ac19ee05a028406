// Package main provides engagectl, an offline companion to the engagement API.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"

	"github.com/noah-isme/wellness-analytics-api/internal/analytics"
	"github.com/noah-isme/wellness-analytics-api/internal/models"
	"github.com/noah-isme/wellness-analytics-api/internal/service"
	"github.com/noah-isme/wellness-analytics-api/pkg/config"
)

const (
	defaultLimit        = 10
	defaultInactiveDays = analytics.DefaultInactiveDays
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "engagectl",
		Short:        "Offline engagement analytics and service tokens",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(newRollupCmd())
	rootCmd.AddCommand(newLeaderboardCmd())
	rootCmd.AddCommand(newTrendCmd())
	rootCmd.AddCommand(newTokenCmd())
	return rootCmd
}

func addWindowFlags(cmd *cobra.Command, w *windowFlags) {
	cmd.Flags().StringVar(&w.period, "period", "week", "today, week, month, year or custom")
	cmd.Flags().StringVar(&w.from, "from", "", "custom window start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&w.to, "to", "", "custom window end, inclusive (YYYY-MM-DD)")
	cmd.Flags().StringVar(&w.asOf, "as-of", "", "evaluate as of this day (YYYY-MM-DD), default today")
	cmd.Flags().StringVar(&w.timezone, "tz", "UTC", "school timezone")
}

func newRollupCmd() *cobra.Command {
	var (
		file    string
		groupBy string
		window  windowFlags
	)
	cmd := &cobra.Command{
		Use:   "rollup",
		Short: "Aggregate a snapshot by class or school",
		RunE: func(cmd *cobra.Command, _ []string) error {
			snap, err := loadSnapshot(file)
			if err != nil {
				return err
			}
			w, err := window.resolve()
			if err != nil {
				return err
			}
			records := analytics.Collapse(snap.Rows, w)
			policy := analytics.DefaultRiskPolicy()
			switch analytics.GroupBy(strings.ToLower(groupBy)) {
			case analytics.GroupByClass:
				return writeJSON(cmd.OutOrStdout(), analytics.ClassRollups(records, snap.Classes, policy))
			case analytics.GroupBySchool:
				return writeJSON(cmd.OutOrStdout(), analytics.Overview(snap.SchoolID, records, policy))
			default:
				return fmt.Errorf("unknown --group %q", groupBy)
			}
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "snapshot JSON file")
	cmd.Flags().StringVar(&groupBy, "group", "class", "class or school")
	addWindowFlags(cmd, &window)
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newLeaderboardCmd() *cobra.Command {
	var (
		file         string
		limit        int
		inactiveDays int
		window       windowFlags
	)
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Rank students and list at-risk and non-submitting students",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}
			snap, err := loadSnapshot(file)
			if err != nil {
				return err
			}
			w, err := window.resolve()
			if err != nil {
				return err
			}
			standings := analytics.RankWindow(analytics.Collapse(snap.Rows, w), w, analytics.DefaultRiskPolicy())
			return writeJSON(cmd.OutOrStdout(), analytics.BuildLeaderboard(standings, limit, inactiveDays))
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "snapshot JSON file")
	cmd.Flags().IntVar(&limit, "limit", defaultLimit, "entries per list")
	cmd.Flags().IntVar(&inactiveDays, "inactive-days", defaultInactiveDays, "days without activity before a student counts as inactive")
	addWindowFlags(cmd, &window)
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newTrendCmd() *cobra.Command {
	var (
		file    string
		bucket  string
		metric  string
		classID string
		window  windowFlags
	)
	cmd := &cobra.Command{
		Use:   "trend",
		Short: "Build a weekly or monthly trend series",
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := analytics.ParseBucket(bucket)
			if err != nil {
				return err
			}
			m, err := analytics.ParseMetric(metric)
			if err != nil {
				return err
			}
			snap, err := loadSnapshot(file)
			if err != nil {
				return err
			}
			w, err := window.resolve()
			if err != nil {
				return err
			}
			points := analytics.DefaultTrendPoints()
			rows := snap.Rows
			if classID != "" {
				rows = rows[:0:0]
				for _, row := range snap.Rows {
					if row.ClassID == classID {
						rows = append(rows, row)
					}
				}
			}
			series, err := analytics.BuildSeries(rows, w, b, m, points, analytics.DefaultRiskPolicy())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), series)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "snapshot JSON file")
	cmd.Flags().StringVar(&bucket, "bucket", "week", "week or month")
	cmd.Flags().StringVar(&metric, "metric", string(analytics.MetricOverallRate), "series metric")
	cmd.Flags().StringVar(&classID, "class", "", "restrict to one class")
	addWindowFlags(cmd, &window)
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newTokenCmd() *cobra.Command {
	var (
		subject  string
		role     string
		schoolID string
		name     string
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token signed with the configured JWT secret",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			// stdout carries the token; issuance is not logged here
			auth := service.NewAuthService(validator.New(), nil, service.AuthConfig{
				AccessTokenSecret: cfg.JWT.Secret,
				AccessTokenExpiry: cfg.JWT.Expiration,
				Issuer:            cfg.JWT.Issuer,
			})
			issued, err := auth.IssueToken(models.TokenRequest{
				Subject:  subject,
				Role:     models.UserRole(strings.ToUpper(role)),
				SchoolID: schoolID,
				FullName: name,
				TTL:      ttl,
			})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), issued)
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject (user or service id)")
	cmd.Flags().StringVar(&role, "role", string(models.RoleService), "SUPERADMIN, ADMIN, COUNSELOR, TEACHER or SERVICE")
	cmd.Flags().StringVar(&schoolID, "school", "", "school scope, required for COUNSELOR and TEACHER")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime, default from JWT_EXPIRATION")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
