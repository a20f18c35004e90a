package cli

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/FranksOps/liaison/internal/auth"
	"github.com/FranksOps/liaison/internal/httpserver"
	"github.com/FranksOps/liaison/internal/pipeline"
	"github.com/FranksOps/liaison/internal/report"
)

func newServeCommand(g *globalFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := g.app(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if addr == "" {
				addr = a.Config.Server.Addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return httpserver.Run(ctx, addr, a.Handler(), a.Logger)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from server.addr)")
	return cmd
}

func newDiscoverCommand(g *globalFlags) *cobra.Command {
	var (
		topic       string
		max         int
		format      string
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Search for posts on a topic and print their text",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := report.ParseFormat(format)
			if err != nil {
				return err
			}
			a, err := g.app(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			defer startMetrics(cmd, metricsAddr, a)()

			if topic == "" {
				topic = a.Config.Search.DefaultTopic
			}
			if max <= 0 {
				max = a.Config.Search.MaxPosts
			}
			posts, err := a.Pipeline.Discover(cmd.Context(), topic, max)
			if err != nil {
				return err
			}
			return report.WritePosts(cmd.OutOrStdout(), f, posts)
		},
	}
	cmd.Flags().StringVar(&topic, "topic", "", "search topic (default from search.default_topic)")
	cmd.Flags().IntVar(&max, "max", 0, "maximum posts (default from search.max_posts)")
	cmd.Flags().StringVar(&format, "format", "text", "output format: text, json, csv")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve /metrics on this address while running")
	return cmd
}

func newBatchCommand(g *globalFlags) *cobra.Command {
	var (
		req         pipeline.BatchRequest
		format      string
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Discover posts, draft a comment for each, and optionally post them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := report.ParseFormat(format)
			if err != nil {
				return err
			}
			a, err := g.app(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			defer startMetrics(cmd, metricsAddr, a)()

			if req.Topic == "" {
				req.Topic = a.Config.Search.DefaultTopic
			}
			items, err := a.Pipeline.Batch(cmd.Context(), req)
			if err != nil {
				return err
			}
			return report.WriteItems(cmd.OutOrStdout(), f, items)
		},
	}
	cmd.Flags().StringVar(&req.Topic, "topic", "", "search topic (default from search.default_topic)")
	cmd.Flags().StringVar(&req.Tone, "tone", "professional", "comment tone")
	cmd.Flags().StringVar(&req.Context, "context", "", "free text about you, passed to the model")
	cmd.Flags().IntVar(&req.Max, "max", 5, "maximum posts")
	cmd.Flags().BoolVar(&req.AutoPost, "auto-post", false, "post each generated comment")
	cmd.Flags().StringVar(&format, "format", "text", "output format: text, json, csv")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve /metrics on this address while running")
	return cmd
}

func newReplyCommand(g *globalFlags) *cobra.Command {
	var (
		address     string
		text        string
		tone        string
		userContext string
		count       int
		doPost      bool
	)
	cmd := &cobra.Command{
		Use:   "reply",
		Short: "Draft comments for one post, or post one with --post",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := g.app(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			out := cmd.OutOrStdout()
			ctx := cmd.Context()

			if doPost {
				res, err := a.Pipeline.GenerateAndSubmit(ctx, pipeline.SingleRequest{
					URL: address, PostText: text, Tone: tone, Context: userContext,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "posted to %s via %s (receipt %s)\n%s\n", res.ID.URN(), res.Receipt.Variant, res.Receipt.ID, res.Comment)
				return nil
			}

			if text == "" {
				analysis, err := a.Pipeline.Analyze(ctx, address)
				if err != nil {
					return err
				}
				if analysis.Manual {
					return fmt.Errorf("could not fetch the text of %s; pass it with --text", analysis.ID.URN())
				}
				text = analysis.Text
			}
			suggestions, err := a.Pipeline.Suggest(ctx, pipeline.SuggestRequest{
				PostText: text, Tone: tone, Context: userContext, Count: count,
			})
			if err != nil {
				return err
			}
			for i, s := range suggestions {
				fmt.Fprintf(out, "%d. %s\n", i+1, s)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&address, "url", "", "post URL or URN")
	cmd.Flags().StringVar(&text, "text", "", "post text, fetched from --url when empty")
	cmd.Flags().StringVar(&tone, "tone", "professional", "comment tone")
	cmd.Flags().StringVar(&userContext, "context", "", "free text about you, passed to the model")
	cmd.Flags().IntVar(&count, "count", 3, "number of suggestions")
	cmd.Flags().BoolVar(&doPost, "post", false, "generate one comment and post it")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

func newAuthCommand(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Inspect or clear the stored LinkedIn token",
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Report whether a valid token is stored",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := g.load(cmd)
			if err != nil {
				return err
			}
			store := auth.NewTokenStore(cfg.LinkedIn.TokenPath)
			out := cmd.OutOrStdout()
			urn, err := store.MemberURN(cmd.Context())
			switch {
			case err == nil:
				fmt.Fprintf(out, "authenticated as %s\n", urn)
			case errors.Is(err, auth.ErrNotAuthenticated) && store.Authenticated(cmd.Context()):
				fmt.Fprintln(out, "authenticated (member urn unknown)")
			case errors.Is(err, auth.ErrNotAuthenticated):
				fmt.Fprintln(out, "not authenticated")
			default:
				return err
			}
			if cfg.LinkedIn.LiAt != "" && cfg.LinkedIn.JSessionID != "" {
				fmt.Fprintln(out, "voyager session cookies configured")
			}
			return nil
		},
	}

	logout := &cobra.Command{
		Use:   "logout",
		Short: "Delete the stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := g.load(cmd)
			if err != nil {
				return err
			}
			store := auth.NewTokenStore(cfg.LinkedIn.TokenPath)
			if err := store.Clear(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged out (removed %s)\n", store.Path())
			return nil
		},
	}

	cmd.AddCommand(status, logout)
	return cmd
}
