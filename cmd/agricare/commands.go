package main

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pribylovaa/agricare-client/internal/clients/weather"
	"github.com/pribylovaa/agricare-client/internal/models"
	"github.com/pribylovaa/agricare-client/internal/pkg/log"
	"github.com/pribylovaa/agricare-client/internal/service"
)

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "agricare",
		Short:         "AgriCare client: crop disease diagnosis, assistant chat and weather",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.setup(cmd.Context()); err != nil {
				return err
			}

			// Логгер команды едет в контексте до сервисного слоя.
			ctx := log.Into(cmd.Context(), a.log)
			cmd.SetContext(log.With(ctx, slog.String("command", cmd.Name())))

			return nil
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to config file")
	root.PersistentFlags().StringVarP(&a.output, "output", "o", outputYAML, "output format: yaml|json")

	root.AddCommand(
		newLoginCmd(a),
		newRegisterCmd(a),
		newLogoutCmd(a),
		newStatusCmd(a),
		newWhoamiCmd(a),
		newPredictCmd(a),
		newHistoryCmd(a),
		newChatCmd(a),
		newAskCmd(a),
		newConversationsCmd(a),
		newWeatherCmd(a),
		newSyncCmd(a),
	)

	return root
}

// readPassword берёт пароль из флага, иначе - первую строку stdin.
func readPassword(cmd *cobra.Command, flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}

	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		if err != nil {
			return "", fmt.Errorf("password is required: %w", err)
		}
		return "", errors.New("password is required")
	}

	return line, nil
}

type sessionView struct {
	Authenticated bool       `json:"authenticated"        yaml:"authenticated"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
}

func newLoginCmd(a *app) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the token pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pass, err := readPassword(cmd, password)
			if err != nil {
				return err
			}

			cl, err := a.api(cmd.Context())
			if err != nil {
				return err
			}

			pair, err := cl.API.Login(cmd.Context(), email, pass)
			if err != nil {
				return err
			}

			return render(cmd.OutOrStdout(), a.output, sessionView{Authenticated: true, ExpiresAt: &pair.ExpiresAt})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (read from stdin when empty)")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func newRegisterCmd(a *app) *cobra.Command {
	var email, password, userType string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pass, err := readPassword(cmd, password)
			if err != nil {
				return err
			}

			cl, err := a.api(cmd.Context())
			if err != nil {
				return err
			}

			pair, err := cl.API.Register(cmd.Context(), email, pass, userType)
			if err != nil {
				return err
			}

			return render(cmd.OutOrStdout(), a.output, sessionView{Authenticated: true, ExpiresAt: &pair.ExpiresAt})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (read from stdin when empty)")
	cmd.Flags().StringVar(&userType, "user-type", "", "account type, e.g. farmer")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cl, err := a.api(cmd.Context())
			if err != nil {
				return err
			}

			if all {
				err = cl.API.LogoutAll(cmd.Context())
			} else {
				err = cl.API.Logout(cmd.Context())
			}
			if err != nil {
				return err
			}

			return render(cmd.OutOrStdout(), a.output, sessionView{})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "revoke every session of the account")

	return cmd
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether a valid session is stored",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cl, err := a.api(cmd.Context())
			if err != nil {
				return err
			}

			view := sessionView{Authenticated: cl.API.IsAuthenticated(cmd.Context())}
			if pair, err := cl.API.Credentials(cmd.Context()); err == nil && pair != nil && !pair.ExpiresAt.IsZero() {
				view.ExpiresAt = &pair.ExpiresAt
			}

			return render(cmd.OutOrStdout(), a.output, view)
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cl, err := a.api(cmd.Context())
			if err != nil {
				return err
			}

			me, err := cl.API.Me(cmd.Context())
			if err != nil {
				return err
			}

			return render(cmd.OutOrStdout(), a.output, me)
		},
	}
}

type diagnosisView struct {
	models.Prediction `yaml:",inline"`

	Crop    string `json:"crop"    yaml:"crop"`
	Disease string `json:"disease" yaml:"disease"`
}

func newPredictCmd(a *app) *cobra.Command {
	var (
		crop string
		save bool
	)

	cmd := &cobra.Command{
		Use:   "predict <image>",
		Short: "Diagnose a crop disease from a leaf photo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd.Context(), false)
			if err != nil {
				return err
			}

			p, err := svc.Diagnose(cmd.Context(), args[0], crop, save)
			if err != nil {
				return err
			}

			c, d := service.SplitClass(p.PredictedClass)

			return render(cmd.OutOrStdout(), a.output, diagnosisView{Prediction: *p, Crop: c, Disease: d})
		},
	}

	cmd.Flags().StringVar(&crop, "crop", "", "crop type stored with the diagnosis")
	cmd.Flags().BoolVar(&save, "save", true, "save the diagnosis to local history")

	return cmd
}

func newHistoryCmd(a *app) *cobra.Command {
	var clearAll bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List or clear the local diagnosis history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.service(cmd.Context(), false)
			if err != nil {
				return err
			}

			if clearAll {
				if err := svc.ClearPredictionHistory(cmd.Context()); err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), a.output, []models.Prediction{})
			}

			items, err := svc.PredictionHistory(cmd.Context())
			if err != nil {
				return err
			}

			return render(cmd.OutOrStdout(), a.output, items)
		},
	}

	cmd.Flags().BoolVar(&clearAll, "clear", false, "delete the whole history")

	return cmd
}

// conversationFlag - необязательный --conversation: 0 означает новый диалог.
func conversationFlag(id int64) *int64 {
	if id <= 0 {
		return nil
	}

	return &id
}

func newChatCmd(a *app) *cobra.Command {
	var conversation int64

	cmd := &cobra.Command{
		Use:   "chat <message>",
		Short: "Ask the farming assistant",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd.Context(), false)
			if err != nil {
				return err
			}

			resp, err := svc.SendMessage(cmd.Context(), strings.Join(args, " "), conversationFlag(conversation))
			if err != nil {
				return err
			}

			return render(cmd.OutOrStdout(), a.output, resp)
		},
	}

	cmd.Flags().Int64Var(&conversation, "conversation", 0, "continue the conversation with this id")

	return cmd
}

func newAskCmd(a *app) *cobra.Command {
	var (
		crop, disease, followUp, predictionID string
		conversation                          int64
	)

	cmd := &cobra.Command{
		Use:   "ask",
		Short: "Discuss a diagnosis with the assistant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.service(cmd.Context(), false)
			if err != nil {
				return err
			}

			resp, err := svc.SendPredictionMessage(cmd.Context(), crop, disease, followUp, conversationFlag(conversation))
			if err != nil {
				return err
			}

			if predictionID != "" {
				if err := svc.LinkPredictionConversation(cmd.Context(), predictionID, resp.ConversationID); err != nil {
					return err
				}
			}

			return render(cmd.OutOrStdout(), a.output, resp)
		},
	}

	cmd.Flags().StringVar(&crop, "crop", "", "crop name, e.g. Tomato")
	cmd.Flags().StringVar(&disease, "disease", "", "disease name, e.g. Late blight")
	cmd.Flags().StringVar(&followUp, "follow-up", "", "follow-up question")
	cmd.Flags().StringVar(&predictionID, "prediction", "", "link the conversation to this diagnosis id")
	cmd.Flags().Int64Var(&conversation, "conversation", 0, "continue the conversation with this id")
	_ = cmd.MarkFlagRequired("crop")
	_ = cmd.MarkFlagRequired("disease")

	return cmd
}

func newConversationsCmd(a *app) *cobra.Command {
	var cached bool

	cmd := &cobra.Command{
		Use:   "conversations [id]",
		Short: "List conversations or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd.Context(), false)
			if err != nil {
				return err
			}

			if len(args) == 1 {
				id, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid conversation id %q", args[0])
				}

				c, err := svc.Conversation(cmd.Context(), id)
				if err != nil {
					return err
				}

				return render(cmd.OutOrStdout(), a.output, c)
			}

			var list []models.Conversation
			if cached {
				list, err = svc.CachedConversations(cmd.Context())
			} else {
				list, err = svc.Conversations(cmd.Context())
			}
			if err != nil {
				return err
			}

			return render(cmd.OutOrStdout(), a.output, list)
		},
	}

	cmd.Flags().BoolVar(&cached, "cached", false, "read the local cache instead of the backend")

	return cmd
}

func newWeatherCmd(a *app) *cobra.Command {
	var (
		lat, lon float64
		daily    bool
	)

	cmd := &cobra.Command{
		Use:   "weather",
		Short: "Show the 5-day forecast for a location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cl, err := a.api(cmd.Context())
			if err != nil {
				return err
			}

			data, err := cl.Weather.Forecast(cmd.Context(), lat, lon)
			if err != nil {
				return err
			}

			if daily {
				return render(cmd.OutOrStdout(), a.output, weather.Daily(data.List))
			}

			return render(cmd.OutOrStdout(), a.output, data)
		},
	}

	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude")
	cmd.Flags().Float64Var(&lon, "lon", 0, "longitude")
	cmd.Flags().BoolVar(&daily, "daily", false, "summarise the forecast per day")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lon")

	return cmd
}

func newSyncCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Upload the local history and photos to the archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.service(cmd.Context(), true)
			if err != nil {
				return err
			}

			report, err := svc.Sync(cmd.Context())
			if err != nil {
				return err
			}

			return render(cmd.OutOrStdout(), a.output, report)
		},
	}
}
