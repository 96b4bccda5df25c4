package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/MarcoPoloResearchLab/coutupro/internal/access"
	"github.com/MarcoPoloResearchLab/coutupro/internal/backup"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var errClearNotConfirmed = errors.New("refusing to clear the workshop data without --yes")

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the alert scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

// withApplication opens the store with a console logger for one-shot commands.
func withApplication(run func(app *application) error) error {
	app, err := openApplication(true)
	if err != nil {
		return err
	}
	defer app.Close()
	return run(app)
}

func newCodesCommand() *cobra.Command {
	codesCmd := &cobra.Command{
		Use:   "codes",
		Short: "Manage single-use access codes",
	}

	codesCmd.AddCommand(&cobra.Command{
		Use:   "issue [code]",
		Short: "Store a new access code; a random one is generated when omitted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			requested := ""
			if len(args) == 1 {
				requested = args[0]
			}
			return withApplication(func(app *application) error {
				code, err := app.gate.IssueCode(cmd.Context(), requested)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), code.Code)
				return nil
			})
		},
	})

	codesCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List access codes, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(func(app *application) error {
				codes, err := app.gate.ListCodes(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, code := range codes {
					state := "unused"
					if code.IsUsed && code.UsedAt != nil {
						state = "used " + code.UsedAt.Format("2006-01-02 15:04")
					}
					fmt.Fprintf(out, "%s\t%s\t%s\n", code.Code, code.CreatedAt.Format("2006-01-02"), state)
				}
				return nil
			})
		},
	})

	return codesCmd
}

// newSessionCommand manages the session bound to this host, for operators
// running the workshop from a terminal.
func newSessionCommand() *cobra.Command {
	sessionCmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect or manage the device-bound session",
	}

	sessionCmd.AddCommand(&cobra.Command{
		Use:   "login <code>",
		Short: "Redeem an access code for this host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(func(app *application) error {
				fingerprint := access.Fingerprint(access.HostCharacteristics())
				user, err := app.gate.Login(cmd.Context(), args[0], fingerprint)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "session bound for user %s\n", user.ID)
				return nil
			})
		},
	})

	sessionCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Report whether this host holds the bound session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(func(app *application) error {
				ok, err := app.gate.Restore(cmd.Context(), access.Fingerprint(access.HostCharacteristics()))
				if err != nil {
					return err
				}
				if ok {
					fmt.Fprintln(cmd.OutOrStdout(), "authenticated")
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "not authenticated")
				}
				return nil
			})
		},
	})

	sessionCmd.AddCommand(&cobra.Command{
		Use:   "logout",
		Short: "Drop the device binding",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(func(app *application) error {
				return app.gate.Logout(cmd.Context())
			})
		},
	})

	return sessionCmd
}

func newExportCommand() *cobra.Command {
	var output string
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Write a backup document of every workshop collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(func(app *application) error {
				document, err := app.backup.Export(cmd.Context())
				if err != nil {
					return err
				}
				var writer io.Writer = cmd.OutOrStdout()
				if output != "" && output != "-" {
					file, err := os.Create(output)
					if err != nil {
						return err
					}
					defer file.Close()
					writer = file
				}
				if err := backup.WriteJSON(writer, document); err != nil {
					return err
				}
				app.logger.Info("export written",
					zap.String("output", output),
					zap.Int("clients", len(document.Clients)),
					zap.Int("commandes", len(document.Commandes)),
				)
				return nil
			})
		},
	}
	exportCmd.Flags().StringVarP(&output, "output", "o", "", "Destination file (stdout when empty)")
	return exportCmd
}

func newImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Load a backup document into an empty or disjoint store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer file.Close()
			document, err := backup.ReadJSON(file)
			if err != nil {
				return err
			}
			return withApplication(func(app *application) error {
				report, err := app.backup.Import(cmd.Context(), document)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(),
					"imported %d clients, %d mesures, %d modeles, %d commandes, %d paiements, %d retouches, %d alertes\n",
					report.Clients, report.Mesures, report.Modeles, report.Commandes, report.Paiements, report.Retouches, report.Alertes,
				)
				return nil
			})
		},
	}
}

func newClearCommand() *cobra.Command {
	var confirmed bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every workshop record; access codes and the session are kept",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirmed {
				return errClearNotConfirmed
			}
			return withApplication(func(app *application) error {
				return app.backup.ClearAll(cmd.Context())
			})
		},
	}
	clearCmd.Flags().BoolVar(&confirmed, "yes", false, "Confirm the deletion")
	return clearCmd
}

func newAlertsCommand() *cobra.Command {
	alertsCmd := &cobra.Command{
		Use:   "alerts",
		Short: "Run the alert rules",
	}
	alertsCmd.AddCommand(&cobra.Command{
		Use:   "tick",
		Short: "Evaluate the delivery and payment rules once and purge expired alerts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(func(app *application) error {
				report, err := app.alertsTick.RunOnce(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "scanned %d, livraison %d, paiement %d, expired %d\n",
					report.Tick.Scanned, report.Tick.Livraison, report.Tick.Paiement, report.Expired)
				return nil
			})
		},
	})
	return alertsCmd
}
