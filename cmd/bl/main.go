package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bookline/internal/config"
	"bookline/internal/db"
	"bookline/internal/domain"
	"bookline/internal/engine"
	"bookline/internal/guard"
	"bookline/internal/migrate"
	"bookline/internal/repo"
	"bookline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "bl",
	Short: "Bookline CLI",
	Long: `Bookline schedules training sessions between clients, enterprises and operators.
- Workspace: the .bookline directory holding the database; config lives in bookline.yml.
- Session: a bookable engagement; a client requests it, the enterprise confirms it,
  operators apply to staff it, and completion settles subscription credits.
- Marketplace: confirmed sessions visible to operators.
- Offer: a purchased allotment of sessions; abonnement offers track consumed credits.
- Event log: diary of changes, view with 'bl log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("BOOKLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(sessionCmd())
	rootCmd.AddCommand(marketplaceCmd())
	rootCmd.AddCommand(staffingCmd())
	rootCmd.AddCommand(offerCmd())
	rootCmd.AddCommand(actorCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func sessionCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "session", Short: "Manage sessions"}
	cmd.AddCommand(sessionRequestCmd())
	cmd.AddCommand(sessionConfirmCmd())
	cmd.AddCommand(sessionCompleteCmd())
	cmd.AddCommand(sessionDeleteCmd())
	cmd.AddCommand(sessionShowCmd())
	cmd.AddCommand(sessionListCmd())
	return cmd
}

func sessionRequestCmd() *cobra.Command {
	var clientID, regionID, offerID, date string
	var setupIDs []string
	var minOps, prefOps int
	cmd := &cobra.Command{
		Use:   "request",
		Short: "Request a session (pending confirmation)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.RequestSession(ctx, engine.SessionRequestOptions{
					ClientID:           clientID,
					RegionID:           regionID,
					OfferID:            offerID,
					Date:               date,
					SetupIDs:           setupIDs,
					MinOperators:       minOps,
					PreferredOperators: prefOps,
					ActorID:            viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&clientID, "client", "", "client id")
	cmd.Flags().StringVar(&regionID, "region", "", "region id")
	cmd.Flags().StringVar(&offerID, "offer", "", "offer id consumed by this session")
	cmd.Flags().StringVar(&date, "date", "", "session date (RFC3339)")
	cmd.Flags().StringSliceVar(&setupIDs, "setup", nil, "setup ids (repeatable)")
	cmd.Flags().IntVar(&minOps, "min-operators", 1, "minimum operators")
	cmd.Flags().IntVar(&prefOps, "preferred-operators", 1, "preferred operators")
	_ = cmd.MarkFlagRequired("client")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func sessionConfirmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "confirm <session-id>",
		Short: "Confirm a session and publish it on the marketplace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.ConfirmSession(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	return cmd
}

func sessionCompleteCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "complete <session-id>",
		Short: "Set a session's status and settle subscription credits",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.CompleteMission(ctx, args[0], status, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", domain.SessionTerminee, "target status")
	return cmd
}

func sessionDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session, returning any consumed credit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.DeleteMission(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	return cmd
}

func sessionShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.GetSession(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	return cmd
}

func sessionListCmd() *cobra.Command {
	var f repo.SessionFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				sessions, err := e.ListSessions(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(sessions)
				}
				renderSessionTable(sessions)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.ClientID, "client", "", "client filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max results")
	return cmd
}

func marketplaceCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "marketplace", Short: "Operator-facing marketplace"}
	cmd.AddCommand(marketplaceListCmd())
	cmd.AddCommand(marketplaceApplyCmd())
	return cmd
}

func marketplaceListCmd() *cobra.Command {
	var f repo.MarketplaceFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List confirmed, visible sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				sessions, err := e.MarketplaceSessions(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(sessions)
				}
				renderSessionTable(sessions)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.DateFrom, "from", "", "earliest session date (RFC3339)")
	cmd.Flags().StringVar(&f.RegionID, "region", "", "region filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max results")
	return cmd
}

func marketplaceApplyCmd() *cobra.Command {
	var operatorID string
	cmd := &cobra.Command{
		Use:   "apply <session-id>",
		Short: "Apply to staff a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if operatorID == "" {
				operatorID = viper.GetString("actor-id")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.ApplyToSession(ctx, args[0], operatorID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&operatorID, "operator", "", "operator id (defaults to --actor-id)")
	return cmd
}

func staffingCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "staffing", Short: "Decide operator applications"}
	cmd.AddCommand(staffingDecideCmd("accept", domain.ApplicationAccepted))
	cmd.AddCommand(staffingDecideCmd("reject", domain.ApplicationRejected))
	cmd.AddCommand(staffingListCmd())
	return cmd
}

func staffingDecideCmd(use, decision string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <session-id> <operator-id>",
		Short: "Mark a pending application " + decision,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.DecideApplication(ctx, args[0], args[1], decision, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

func staffingListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <session-id>",
		Short: "List a session's applications",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				apps, err := e.ListApplications(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(apps)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Operator", "Status", "Applied", "Decided"})
				for _, a := range apps {
					decided := ""
					if a.AcceptedAt != nil {
						decided = *a.AcceptedAt
					}
					if a.RejectedAt != nil {
						decided = *a.RejectedAt
					}
					tw.AppendRow(table.Row{a.OperatorID, a.Status, a.AppliedAt, decided})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func offerCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "offer", Short: "Manage commercial offers"}
	cmd.AddCommand(offerCreateCmd())
	cmd.AddCommand(offerShowCmd())
	cmd.AddCommand(offerListCmd())
	return cmd
}

func offerCreateCmd() *cobra.Command {
	var clientID, offerType string
	var nbSessions int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an offer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				o, err := e.CreateOffer(ctx, engine.OfferCreateOptions{
					ClientID:   clientID,
					Type:       offerType,
					NbSessions: nbSessions,
					ActorID:    viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	cmd.Flags().StringVar(&clientID, "client", "", "client id")
	cmd.Flags().StringVar(&offerType, "type", domain.OfferAbonnement, "offer type")
	cmd.Flags().IntVar(&nbSessions, "nb-sessions", 0, "session capacity")
	_ = cmd.MarkFlagRequired("client")
	_ = cmd.MarkFlagRequired("nb-sessions")
	return cmd
}

func offerShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <offer-id>",
		Short: "Show an offer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				o, err := e.GetOffer(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	return cmd
}

func offerListCmd() *cobra.Command {
	var clientID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List offers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				offers, err := e.ListOffers(ctx, clientID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(offers)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Client", "Type", "Consumed", "Capacity"})
				for _, o := range offers {
					tw.AppendRow(table.Row{o.ID, o.ClientID, o.Type, o.SessionsConsumed, o.NbSessions})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&clientID, "client", "", "client filter")
	return cmd
}

func actorCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "actor", Short: "Manage actors"}
	cmd.AddCommand(actorCreateCmd())
	cmd.AddCommand(actorListCmd())
	return cmd
}

func actorCreateCmd() *cobra.Command {
	var id, role, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !guard.ValidRole(guard.Role(role)) {
				return fmt.Errorf("--role must be client, enterprise, operator or admin")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if id == "" {
					id = uuid.NewString()
				}
				a := domain.Actor{
					ID:        id,
					Role:      role,
					Name:      name,
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := r.InsertActor(ctx, a); err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "actor id (generated when omitted)")
	cmd.Flags().StringVar(&role, "role", "", "role: client, enterprise, operator or admin")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	return cmd
}

func actorListCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List actors",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				actors, err := r.ListActors(ctx, role)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(actors)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Role", "Name", "Created"})
				for _, a := range actors {
					tw.AppendRow(table.Row{a.ID, a.Role, a.Name, a.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "role filter")
	return cmd
}

func apikeyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	cmd.AddCommand(apikeyCreateCmd())
	cmd.AddCommand(apikeyListCmd())
	cmd.AddCommand(apikeyRevokeCmd())
	return cmd
}

func apikeyCreateCmd() *cobra.Command {
	var actorID, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (the secret prints only once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if actorID == "" {
				return fmt.Errorf("--actor required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if _, err := r.GetActor(ctx, actorID); err != nil {
					return err
				}
				secret := uuid.NewString()
				key := domain.APIKey{
					ID:        uuid.NewString(),
					ActorID:   actorID,
					Name:      name,
					KeyHash:   repo.HashAPIKey(secret),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := r.InsertAPIKey(ctx, nil, key); err != nil {
					return err
				}
				return printJSONOrTable(map[string]string{
					"id":      key.ID,
					"actor":   key.ActorID,
					"api_key": secret,
				})
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "actor id")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var actorID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys (hashes only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				keys, err := r.ListAPIKeys(ctx, actorID)
				if err != nil {
					return err
				}
				return printJSONOrTable(keys)
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "actor filter")
	return cmd
}

func apikeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Event log",
	}
	cmd.AddCommand(logTailCmd())
	return cmd
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.LatestEvents(ctx, n, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("BOOKLINE_JWT_SECRET")}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("BOOKLINE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(cmd.Context(), server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Bookline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func renderSessionTable(sessions []domain.Session) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Client", "Date", "Status", "Visible", "Region"})
	for _, s := range sessions {
		tw.AppendRow(table.Row{s.ID, s.ClientID, s.Date, s.Status, s.MarketplaceVisible, s.RegionID})
	}
	tw.Render()
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
